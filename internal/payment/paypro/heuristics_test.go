package paypro

import (
	"net/http"
	"testing"
)

func TestIsHTMLResponse(t *testing.T) {
	cases := []struct {
		name   string
		header http.Header
		body   string
		want   bool
	}{
		{"doctype with json content type", http.Header{"Content-Type": {"application/json"}}, "  <!DOCTYPE html><html></html>", true},
		{"html tag", nil, "<HTML><body>404</body></HTML>", true},
		{"html content type with json body", http.Header{"Content-Type": {"text/html; charset=utf-8"}}, `{"token":"x"}`, true},
		{"json body", http.Header{"Content-Type": {"application/json"}}, `[{"Status":"00"}]`, false},
		{"empty", nil, "", false},
	}
	for _, tc := range cases {
		if got := IsHTMLResponse(tc.header, []byte(tc.body)); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestLooksLikeCredentialError(t *testing.T) {
	if !LooksLikeCredentialError([]byte(`{"message":"Invalid Client ID or Secret"}`)) {
		t.Fatalf("expected credential error match")
	}
	if !LooksLikeCredentialError([]byte("401 Unauthorized")) {
		t.Fatalf("expected unauthorized match")
	}
	if LooksLikeCredentialError([]byte(`{"token":"abc"}`)) {
		t.Fatalf("token body is not a credential error")
	}
}

func TestExtractToken(t *testing.T) {
	header := http.Header{}
	header.Set("Authorization", "Bearer hdr-token")
	if got := ExtractToken(header, nil); got != "hdr-token" {
		t.Fatalf("bearer header token mismatch: %q", got)
	}

	header = http.Header{}
	header.Set("TOKEN", "raw-token")
	if got := ExtractToken(header, map[string]interface{}{"token": "body"}); got != "raw-token" {
		t.Fatalf("header should win over body: %q", got)
	}

	body := DecodeBody([]byte(`{"success":true,"data":{"accessToken":"nested"}}`))
	if got := ExtractToken(http.Header{}, body); got != "nested" {
		t.Fatalf("data wrapped token mismatch: %q", got)
	}

	body = DecodeBody([]byte(`[{"Status":"00"},{"AuthToken":"arr"}]`))
	if got := ExtractToken(nil, body); got != "arr" {
		t.Fatalf("array token mismatch: %q", got)
	}

	body = DecodeBody([]byte(`{"data":{"data":{"token":"too-deep"}}}`))
	if got := ExtractToken(nil, body); got != "" {
		t.Fatalf("only one data level should be searched, got %q", got)
	}
}

func TestExtractStatusAndPaymentID(t *testing.T) {
	cases := []struct {
		name       string
		body       string
		wantStatus string
		wantID     string
	}{
		{"flat object", `{"Status":"00","PayProId":"P-1"}`, "00", "P-1"},
		{"split array", `[{"Status":"00"},{"PayProId":"P-2","Click2Pay":"https://pay/2"}]`, "00", "P-2"},
		{"array details by redirect only", `[{"Status":"00"},{"Click2Pay":"https://pay/3"}]`, "00", ""},
		{"data wrapper", `{"data":{"statusCode":"00","cpayId":"P-4"}}`, "00", "P-4"},
		{"numeric status", `{"status":0,"paymentId":"P-5"}`, "0", "P-5"},
		{"array with data wrapper", `[{"data":{"Status":"paid","PaymentId":"P-6"}}]`, "paid", "P-6"},
		{"no fields", `{"message":"ping"}`, "", ""},
	}
	for _, tc := range cases {
		status, id := ExtractStatusAndPaymentID(DecodeBody([]byte(tc.body)))
		if status != tc.wantStatus || id != tc.wantID {
			t.Fatalf("%s: got (%q,%q) want (%q,%q)", tc.name, status, id, tc.wantStatus, tc.wantID)
		}
	}
}

func TestExtractRedirectURL(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"flat object", `{"paymentUrl":"https://pay/flat"}`, "https://pay/flat"},
		{"priority", `{"url":"https://pay/low","Click2Pay":"https://pay/high"}`, "https://pay/high"},
		{"split array", `[{"Status":"00"},{"PayProId":"P","ShortClick2Pay":"https://pay/short"}]`, "https://pay/short"},
		{"data wrapper", `{"data":{"checkoutUrl":"https://pay/data"}}`, "https://pay/data"},
		{"data wrapper in array", `[{"Status":"00"},{"data":[{"redirectUrl":"https://pay/deep"}]}]`, "https://pay/deep"},
		{"missing", `{"Status":"00"}`, ""},
	}
	for _, tc := range cases {
		if got := ExtractRedirectURL(DecodeBody([]byte(tc.body))); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsSuccessStatus(t *testing.T) {
	for _, ok := range []string{"00", " 00 ", "PAID", "Success"} {
		if !IsSuccessStatus(ok) {
			t.Fatalf("%q should be success", ok)
		}
	}
	for _, bad := range []string{"", "01", "unpaid", "successful", "0"} {
		if IsSuccessStatus(bad) {
			t.Fatalf("%q should not be success", bad)
		}
	}
}

func TestIsPaidMarker(t *testing.T) {
	paid := []string{
		`[{"Status": "00"}, {"OrderStatus":"PAID"}]`,
		`{"StatusCode":"00"}`,
		`{"result":"Success"}`,
		// known fragility: the substring match also fires on unpaid
		`{"OrderStatus":"UNPAID"}`,
	}
	for _, body := range paid {
		if !IsPaidMarker([]byte(body)) {
			t.Fatalf("expected paid marker in %s", body)
		}
	}
	if IsPaidMarker([]byte(`[{"Status":"01"},{"OrderStatus":"Blocked"}]`)) {
		t.Fatalf("blocked order should not be paid")
	}
}
