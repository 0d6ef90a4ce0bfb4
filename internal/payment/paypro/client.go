package paypro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/paypro-bridge/internal/logger"
)

var (
	ErrConfigInvalid  = errors.New("paypro config invalid")
	ErrAuthFailed     = errors.New("paypro auth failed")
	ErrRequestFailed  = errors.New("paypro request failed")
	ErrGatewayFailed  = errors.New("paypro gateway error")
	ErrPaymentIDEmpty = errors.New("paypro payment id is empty")
)

const (
	defaultTimeout     = 20 * time.Second
	dueDateLayout      = "02/01/2006"
	diagnosticBodySize = 512
)

// Auth paths that have worked historically, tried after the configured one.
var fallbackAuthPaths = []string{"/v2/ppro/auth", "/ppro/auth"}

// Config PayPro connection settings
type Config struct {
	BaseURL         string
	AuthPath        string
	CreateOrderPath string
	StatusPath      string
	MerchantID      string
	ClientID        string
	ClientSecret    string
	Username        string
	OrderType       string
	DueDays         int
	ExpireSeconds   int
	Timeout         time.Duration
}

// OrderSpec is what the merchant asks PayPro to invoice.
type OrderSpec struct {
	OrderNumber     string
	Amount          int64
	CustomerName    string
	CustomerMobile  string
	CustomerEmail   string
	CustomerAddress string
}

// OrderResult create order outcome
type OrderResult struct {
	GatewayPaymentID string
	GatewayStatus    string
	RedirectURL      string
	Raw              interface{}
}

// StatusResult status query outcome
type StatusResult struct {
	Paid          bool
	GatewayStatus string
	Raw           string
}

// Client talks to the PayPro HTTP API. Tokens are never cached.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg.normalize()
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, httpClient: httpClient, now: time.Now}
}

// ValidateConfig checks the fields every call needs.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return fmt.Errorf("%w: client_id and client_secret are required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return fmt.Errorf("%w: merchant_id is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.AuthPath = normalizePath(c.AuthPath)
	c.CreateOrderPath = normalizePath(c.CreateOrderPath)
	c.StatusPath = normalizePath(c.StatusPath)
	if c.DueDays <= 0 {
		c.DueDays = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if strings.TrimSpace(c.Username) == "" {
		c.Username = c.MerchantID
	}
}

// AuthCandidates lists the token endpoints in the order they are tried: each base, then each path.
func (c *Client) AuthCandidates() []string {
	bases := []string{c.cfg.BaseURL}
	if alt := toggleWWW(c.cfg.BaseURL); alt != "" {
		bases = append(bases, alt)
	}
	paths := make([]string, 0, 1+len(fallbackAuthPaths))
	if c.cfg.AuthPath != "" {
		paths = append(paths, c.cfg.AuthPath)
	}
	paths = append(paths, fallbackAuthPaths...)

	seen := make(map[string]struct{})
	out := make([]string, 0, len(bases)*len(paths))
	for _, base := range bases {
		for _, path := range paths {
			endpoint := base + path
			if _, ok := seen[endpoint]; ok {
				continue
			}
			seen[endpoint] = struct{}{}
			out = append(out, endpoint)
		}
	}
	return out
}

// AcquireToken tries every auth candidate and returns the first token found.
func (c *Client) AcquireToken(ctx context.Context) (string, error) {
	if strings.TrimSpace(c.cfg.ClientID) == "" || strings.TrimSpace(c.cfg.ClientSecret) == "" {
		return "", fmt.Errorf("%w: client credentials missing", ErrConfigInvalid)
	}
	payload := map[string]string{
		"clientid":     c.cfg.ClientID,
		"clientsecret": c.cfg.ClientSecret,
		"clientId":     c.cfg.ClientID,
		"clientSecret": c.cfg.ClientSecret,
		"ClientId":     c.cfg.ClientID,
		"ClientSecret": c.cfg.ClientSecret,
	}

	lastDiagnostic := "no auth candidates"
	for _, endpoint := range c.AuthCandidates() {
		body, status, header, err := c.postJSON(ctx, endpoint, payload, "")
		switch {
		case err != nil:
			lastDiagnostic = fmt.Sprintf("%s: %v", endpoint, err)
		case IsHTMLResponse(header, body):
			lastDiagnostic = fmt.Sprintf("%s: html response", endpoint)
		case LooksLikeCredentialError(body):
			lastDiagnostic = fmt.Sprintf("%s: credentials rejected: %s", endpoint, truncate(body))
		case status < 200 || status >= 300:
			lastDiagnostic = fmt.Sprintf("%s: status %d: %s", endpoint, status, truncate(body))
		default:
			parsed := DecodeBody(body)
			if explicitFailure(parsed) {
				lastDiagnostic = fmt.Sprintf("%s: success=false: %s", endpoint, truncate(body))
				break
			}
			if token := ExtractToken(header, parsed); token != "" {
				logger.Debugw("paypro_auth_token_acquired", "endpoint", endpoint)
				return token, nil
			}
			lastDiagnostic = fmt.Sprintf("%s: no token in response", endpoint)
		}
		logger.Debugw("paypro_auth_candidate_skipped", "diagnostic", lastDiagnostic)
	}
	return "", fmt.Errorf("%w: %s", ErrAuthFailed, lastDiagnostic)
}

// CreateOrder registers the invoice with PayPro.
func (c *Client) CreateOrder(ctx context.Context, token string, spec OrderSpec) (*OrderResult, error) {
	if strings.TrimSpace(c.cfg.MerchantID) == "" {
		return nil, fmt.Errorf("%w: merchant_id is required", ErrConfigInvalid)
	}
	now := c.now()
	details := map[string]interface{}{
		"OrderNumber":     spec.OrderNumber,
		"OrderAmount":     spec.Amount,
		"OrderDueDate":    DueDate(now, c.cfg.DueDays),
		"OrderType":       c.cfg.OrderType,
		"IssueDate":       now.Format(dueDateLayout),
		"CustomerName":    spec.CustomerName,
		"CustomerMobile":  spec.CustomerMobile,
		"CustomerEmail":   spec.CustomerEmail,
		"CustomerAddress": spec.CustomerAddress,
	}
	if c.cfg.ExpireSeconds > 0 {
		details["OrderExpireAfterSeconds"] = c.cfg.ExpireSeconds
	}
	payload := []interface{}{
		map[string]interface{}{"MerchantId": c.cfg.MerchantID},
		details,
	}

	endpoint := c.cfg.BaseURL + c.cfg.CreateOrderPath
	body, status, header, err := c.postJSON(ctx, endpoint, payload, token)
	if err != nil {
		return nil, err
	}
	if IsHTMLResponse(header, body) {
		return nil, fmt.Errorf("%w: html response from %s, check create_order_path", ErrGatewayFailed, endpoint)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayFailed, status, truncate(body))
	}
	parsed := DecodeBody(body)
	if parsed == nil {
		return nil, fmt.Errorf("%w: response is not json: %s", ErrGatewayFailed, truncate(body))
	}

	gatewayStatus, paymentID := ExtractStatusAndPaymentID(parsed)
	if explicitFailure(parsed) || (gatewayStatus != "" && !IsSuccessStatus(gatewayStatus)) {
		desc := ExtractDescription(parsed)
		if desc == "" {
			desc = truncate(body)
		}
		return nil, fmt.Errorf("%w: status %q: %s", ErrGatewayFailed, gatewayStatus, desc)
	}
	redirectURL := ExtractRedirectURL(parsed)
	if paymentID == "" && redirectURL == "" {
		return nil, fmt.Errorf("%w: response carries neither payment id nor redirect url: %s", ErrGatewayFailed, truncate(body))
	}
	return &OrderResult{
		GatewayPaymentID: paymentID,
		GatewayStatus:    gatewayStatus,
		RedirectURL:      redirectURL,
		Raw:              parsed,
	}, nil
}

// VerifyStatus asks PayPro whether the payment has been settled.
func (c *Client) VerifyStatus(ctx context.Context, token, gatewayPaymentID string) (*StatusResult, error) {
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	if gatewayPaymentID == "" {
		return nil, ErrPaymentIDEmpty
	}
	payload := []interface{}{
		map[string]interface{}{"MerchantId": c.cfg.MerchantID},
		map[string]interface{}{"userName": c.cfg.Username, "cpayId": gatewayPaymentID},
	}
	endpoint := c.cfg.BaseURL + c.cfg.StatusPath
	body, status, header, err := c.postJSON(ctx, endpoint, payload, token)
	if err != nil {
		return nil, err
	}
	if IsHTMLResponse(header, body) {
		return nil, fmt.Errorf("%w: html response from %s, check status_path", ErrGatewayFailed, endpoint)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrGatewayFailed, status, truncate(body))
	}
	gatewayStatus, _ := ExtractStatusAndPaymentID(DecodeBody(body))
	return &StatusResult{
		Paid:          IsPaidMarker(body),
		GatewayStatus: gatewayStatus,
		Raw:           truncate(body),
	}, nil
}

// DueDate formats now plus days as DD/MM/YYYY.
func DueDate(now time.Time, days int) string {
	return now.AddDate(0, 0, days).Format(dueDateLayout)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload interface{}, token string) ([]byte, int, http.Header, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: encode payload failed", ErrRequestFailed)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		req.Header.Set("token", token)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, resp.Header, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return respBody, resp.StatusCode, resp.Header, nil
}

// withTimeout caps each upstream call; an earlier parent deadline still wins.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func toggleWWW(base string) string {
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return ""
	}
	if strings.HasPrefix(parsed.Host, "www.") {
		parsed.Host = strings.TrimPrefix(parsed.Host, "www.")
	} else {
		parsed.Host = "www." + parsed.Host
	}
	return strings.TrimRight(parsed.String(), "/")
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// truncate keeps at most diagnosticBodySize bytes without splitting a rune.
func truncate(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= diagnosticBodySize {
		return text
	}
	cut := diagnosticBodySize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
