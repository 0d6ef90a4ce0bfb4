package paypro

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// Field name variants seen across PayPro responses. Order is priority.
var (
	tokenHeaderNames = []string{"token", "x-auth-token", "access-token", "authorization"}
	tokenBodyKeys    = []string{"token", "Token", "access_token", "accessToken", "authToken", "AuthToken"}
	statusKeys       = []string{"Status", "status", "StatusCode", "statusCode"}
	paymentIDKeys    = []string{"PayProId", "payProId", "PayproId", "payproId", "cpayId", "CpayId", "CPayId", "paymentId", "PaymentId"}
	redirectKeys     = []string{
		"Click2Pay", "click2Pay",
		"ShortClick2Pay", "shortClick2Pay",
		"PaymentUrl", "paymentUrl",
		"checkoutUrl", "CheckoutUrl",
		"redirectUrl", "RedirectUrl",
		"url",
	}
	descriptionKeys = []string{"Description", "description", "message", "Message", "error"}
)

var credentialErrorPhrases = []string{
	"invalid client",
	"invalid credentials",
	"invalid clientid",
	"invalid client id or secret",
	"authentication failed",
	"unauthorized",
}

// Markers whose presence in a status response means paid. "paid" also matches "unpaid";
// the upstream has used several encodings so matching stays permissive.
var paidMarkers = []string{`"status":"00"`, `"statuscode":"00"`, "paid", "success"}

// DecodeBody parses a JSON body into a generic value, nil when the body is not JSON.
func DecodeBody(raw []byte) interface{} {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil
	}
	return out
}

// IsHTMLResponse reports an HTML page, which PayPro serves for unknown routes.
func IsHTMLResponse(header http.Header, raw []byte) bool {
	if header != nil && strings.Contains(strings.ToLower(header.Get("Content-Type")), "text/html") {
		return true
	}
	body := strings.ToLower(strings.TrimSpace(string(raw)))
	return strings.HasPrefix(body, "<!doctype") || strings.HasPrefix(body, "<html")
}

// LooksLikeCredentialError matches the upstream's credential rejection texts.
func LooksLikeCredentialError(raw []byte) bool {
	body := strings.ToLower(string(raw))
	for _, phrase := range credentialErrorPhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}

// ExtractToken looks in headers first, then in the body and one data wrapper.
func ExtractToken(header http.Header, body interface{}) string {
	for _, name := range tokenHeaderNames {
		if header == nil {
			break
		}
		value := strings.TrimSpace(header.Get(name))
		if value == "" {
			continue
		}
		if strings.EqualFold(name, "authorization") {
			if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
				value = strings.TrimSpace(value[7:])
			}
		}
		if value != "" {
			return value
		}
	}
	return findInBody(body, tokenBodyKeys, 1)
}

// ExtractStatusAndPaymentID returns the upstream status and payment id. In arrays the
// status and the details usually sit in different elements.
func ExtractStatusAndPaymentID(body interface{}) (status string, paymentID string) {
	return extractStatusAndID(body, 1)
}

func extractStatusAndID(body interface{}, depth int) (string, string) {
	switch v := body.(type) {
	case map[string]interface{}:
		status := firstString(v, statusKeys)
		id := firstString(v, paymentIDKeys)
		if (status == "" || id == "") && depth > 0 {
			if nested, ok := v["data"]; ok {
				nestedStatus, nestedID := extractStatusAndID(nested, depth-1)
				if status == "" {
					status = nestedStatus
				}
				if id == "" {
					id = nestedID
				}
			}
		}
		return status, id
	case []interface{}:
		var statusObj, detailsObj map[string]interface{}
		for _, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if statusObj == nil && hasAnyKey(obj, statusKeys) {
				statusObj = obj
			}
			if detailsObj == nil && (hasAnyKey(obj, paymentIDKeys) || hasAnyKey(obj, redirectKeys)) {
				detailsObj = obj
			}
		}
		status := firstString(statusObj, statusKeys)
		id := firstString(detailsObj, paymentIDKeys)
		if status == "" && id == "" && depth > 0 {
			for _, item := range v {
				obj, ok := item.(map[string]interface{})
				if !ok {
					continue
				}
				if nested, ok := obj["data"]; ok {
					return extractStatusAndID(nested, depth-1)
				}
			}
		}
		return status, id
	default:
		return "", ""
	}
}

// ExtractRedirectURL searches the checkout URL synonyms in priority order.
func ExtractRedirectURL(body interface{}) string {
	return findInBody(body, redirectKeys, 1)
}

// ExtractDescription returns the upstream's human readable message, if any.
func ExtractDescription(body interface{}) string {
	return findInBody(body, descriptionKeys, 1)
}

// IsSuccessStatus matches the callback success tokens: 00, paid, success.
func IsSuccessStatus(status string) bool {
	status = strings.TrimSpace(status)
	return status == "00" || strings.EqualFold(status, "paid") || strings.EqualFold(status, "success")
}

// IsPaidMarker applies the permissive paid check to a raw status response.
func IsPaidMarker(raw []byte) bool {
	compact := strings.Join(strings.Fields(strings.ToLower(string(raw))), "")
	for _, marker := range paidMarkers {
		if strings.Contains(compact, marker) {
			return true
		}
	}
	return false
}

// explicitFailure reports a body carrying success:false.
func explicitFailure(body interface{}) bool {
	obj, ok := body.(map[string]interface{})
	if !ok {
		return false
	}
	flag, ok := obj["success"].(bool)
	return ok && !flag
}

// findInBody walks objects, arrays and up to depth data wrappers for the first non empty key.
func findInBody(body interface{}, keys []string, depth int) string {
	switch v := body.(type) {
	case map[string]interface{}:
		if value := firstString(v, keys); value != "" {
			return value
		}
		if depth > 0 {
			if nested, ok := v["data"]; ok {
				return findInBody(nested, keys, depth-1)
			}
		}
	case []interface{}:
		for _, item := range v {
			if value := findInBody(item, keys, depth); value != "" {
				return value
			}
		}
	}
	return ""
}

func hasAnyKey(obj map[string]interface{}, keys []string) bool {
	for _, key := range keys {
		if value, ok := obj[key]; ok && value != nil {
			return true
		}
	}
	return false
}

func firstString(obj map[string]interface{}, keys []string) string {
	if obj == nil {
		return ""
	}
	for _, key := range keys {
		if value := scalarString(obj[key]); value != "" {
			return value
		}
	}
	return ""
}

func scalarString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
