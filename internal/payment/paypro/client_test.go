package paypro

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

type recordedRequest struct {
	URL    string
	Header http.Header
	Body   []byte
}

// routeTransport serves requests with a handler in-process and records them.
type routeTransport struct {
	mu       sync.Mutex
	handler  http.HandlerFunc
	requests []recordedRequest
}

func (rt *routeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(req.Body)
	rt.mu.Lock()
	rt.requests = append(rt.requests, recordedRequest{URL: req.URL.String(), Header: req.Header.Clone(), Body: body})
	rt.mu.Unlock()

	req.Body = io.NopCloser(strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	rt.handler(rec, req)
	return rec.Result(), nil
}

func (rt *routeTransport) urls() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]string, 0, len(rt.requests))
	for _, r := range rt.requests {
		out = append(out, r.URL)
	}
	return out
}

func newTestClient(handler http.HandlerFunc) (*Client, *routeTransport) {
	rt := &routeTransport{handler: handler}
	client := NewClient(Config{
		BaseURL:         "https://api.paypro.test/",
		AuthPath:        "auth",
		CreateOrderPath: "/v2/ppro/co",
		StatusPath:      "/v2/ppro/ggos",
		MerchantID:      "M-1",
		ClientID:        "cid",
		ClientSecret:    "secret",
		OrderType:       "Service",
		Timeout:         5 * time.Second,
	}, &http.Client{Transport: rt})
	client.now = func() time.Time { return time.Date(2026, 1, 31, 15, 0, 0, 0, time.UTC) }
	return client, rt
}

func TestAuthCandidatesOrder(t *testing.T) {
	client, _ := newTestClient(nil)
	want := []string{
		"https://api.paypro.test/auth",
		"https://api.paypro.test/v2/ppro/auth",
		"https://api.paypro.test/ppro/auth",
		"https://www.api.paypro.test/auth",
		"https://www.api.paypro.test/v2/ppro/auth",
		"https://www.api.paypro.test/ppro/auth",
	}
	got := client.AuthCandidates()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected candidates:\n got %v\nwant %v", got, want)
	}

	dup := NewClient(Config{BaseURL: "https://www.x.test", AuthPath: "/v2/ppro/auth"}, nil)
	if n := len(dup.AuthCandidates()); n != 4 {
		t.Fatalf("duplicate auth path should be collapsed, got %d candidates", n)
	}
}

func TestAcquireTokenSkipsBadCandidates(t *testing.T) {
	client, rt := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<!DOCTYPE html><p>not found</p>"))
		case "/v2/ppro/auth":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"message":"Invalid clientid"}`))
		default:
			w.Header().Set("Token", "tok-123")
			w.WriteHeader(http.StatusOK)
		}
	})

	token, err := client.AcquireToken(context.Background())
	if err != nil {
		t.Fatalf("acquire token failed: %v", err)
	}
	if token != "tok-123" {
		t.Fatalf("unexpected token: %s", token)
	}
	if n := len(rt.urls()); n != 3 {
		t.Fatalf("expected 3 attempts, got %d: %v", n, rt.urls())
	}

	var sent map[string]string
	if err := json.Unmarshal(rt.requests[0].Body, &sent); err != nil {
		t.Fatalf("decode auth body failed: %v", err)
	}
	for _, key := range []string{"clientid", "clientsecret", "clientId", "clientSecret", "ClientId", "ClientSecret"} {
		if sent[key] == "" {
			t.Fatalf("auth body missing %s: %v", key, sent)
		}
	}
}

func TestAcquireTokenExhaustsAllCandidates(t *testing.T) {
	client, rt := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Host, "www.") {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
			return
		}
		_, _ = w.Write([]byte(`{"success":false,"message":"try later"}`))
	})

	_, err := client.AcquireToken(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("error should carry last diagnostic: %v", err)
	}
	if n := len(rt.urls()); n != 6 {
		t.Fatalf("expected 2 bases x 3 paths = 6 attempts, got %d", n)
	}
}

func TestCreateOrderSplitArrayResponse(t *testing.T) {
	client, rt := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"Status":"00"},{"PayProId":"PP-77","Click2Pay":"https://pay.test/77"}]`))
	})

	res, err := client.CreateOrder(context.Background(), "tok", OrderSpec{
		OrderNumber:    "A1",
		Amount:         501,
		CustomerName:   "Ali",
		CustomerMobile: "0300",
		CustomerEmail:  "c@x.com",
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if res.GatewayPaymentID != "PP-77" || res.RedirectURL != "https://pay.test/77" || res.GatewayStatus != "00" {
		t.Fatalf("unexpected result: %+v", res)
	}

	var sent []map[string]interface{}
	if err := json.Unmarshal(rt.requests[0].Body, &sent); err != nil {
		t.Fatalf("decode create body failed: %v", err)
	}
	if len(sent) != 2 || sent[0]["MerchantId"] != "M-1" {
		t.Fatalf("unexpected payload head: %v", sent)
	}
	if sent[1]["OrderDueDate"] != "01/02/2026" || sent[1]["IssueDate"] != "31/01/2026" {
		t.Fatalf("unexpected dates: %v", sent[1])
	}
	if sent[1]["OrderAmount"] != float64(501) || sent[1]["OrderNumber"] != "A1" {
		t.Fatalf("unexpected order fields: %v", sent[1])
	}
	if _, ok := sent[1]["OrderExpireAfterSeconds"]; ok {
		t.Fatalf("expiry should be omitted when not configured")
	}
}

func TestCreateOrderFailures(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		ctype   string
		body    string
		wantErr error
		wantMsg string
	}{
		{"html route", 200, "text/html", "<html>404</html>", ErrGatewayFailed, "html response"},
		{"non 2xx", 500, "application/json", `{"error":"boom"}`, ErrGatewayFailed, "status 500"},
		{"upstream status", 200, "application/json", `[{"Status":"01","Description":"Invalid amount"}]`, ErrGatewayFailed, "Invalid amount"},
		{"success false", 200, "application/json", `{"success":false,"message":"Merchant blocked"}`, ErrGatewayFailed, "Merchant blocked"},
		{"missing fields", 200, "application/json", `[{"Status":"00"}]`, ErrGatewayFailed, "neither payment id nor redirect url"},
		{"not json", 200, "text/plain", "ok", ErrGatewayFailed, "not json"},
	}
	for _, tc := range cases {
		client, _ := newTestClient(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", tc.ctype)
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		_, err := client.CreateOrder(context.Background(), "tok", OrderSpec{OrderNumber: "A1", Amount: 10})
		if !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
		if !strings.Contains(err.Error(), tc.wantMsg) {
			t.Fatalf("%s: error %q should contain %q", tc.name, err.Error(), tc.wantMsg)
		}
	}
}

func TestCreateOrderTruncatesDiagnosticBody(t *testing.T) {
	long := strings.Repeat("x", 2000)
	client, _ := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(long))
	})
	_, err := client.CreateOrder(context.Background(), "tok", OrderSpec{OrderNumber: "A1", Amount: 10})
	if err == nil || len(err.Error()) > diagnosticBodySize+100 {
		t.Fatalf("diagnostic should be truncated, got %d bytes", len(err.Error()))
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	// 512 is not a multiple of the 3-byte rune width
	text := strings.Repeat("€", diagnosticBodySize)
	got := truncate([]byte(text))
	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid utf-8")
	}
	body := strings.TrimSuffix(got, "...")
	if len(body) > diagnosticBodySize || len(body) < diagnosticBodySize-utf8.UTFMax {
		t.Fatalf("truncated length want about %d got %d", diagnosticBodySize, len(body))
	}
	if short := truncate([]byte(" ok ")); short != "ok" {
		t.Fatalf("short body want ok got %q", short)
	}
}

func TestRequestTimeoutCapsLongParentDeadline(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://api.paypro.test", MerchantID: "M", Timeout: 50 * time.Millisecond}, &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		}),
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	_, err := client.VerifyStatus(ctx, "tok", "PP-1")
	if !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("client timeout should cap the call, took %s", elapsed)
	}
}

func TestVerifyStatus(t *testing.T) {
	client, rt := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Status":"00"},{"OrderStatus":"PAID","PayProId":"PP-1"}]`))
	})
	res, err := client.VerifyStatus(context.Background(), "tok", "PP-1")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !res.Paid || res.GatewayStatus != "00" {
		t.Fatalf("unexpected status result: %+v", res)
	}
	var sent []map[string]interface{}
	if err := json.Unmarshal(rt.requests[0].Body, &sent); err != nil {
		t.Fatalf("decode verify body failed: %v", err)
	}
	if sent[1]["cpayId"] != "PP-1" || sent[1]["userName"] != "M-1" {
		t.Fatalf("unexpected verify payload: %v", sent)
	}

	if _, err := client.VerifyStatus(context.Background(), "tok", " "); !errors.Is(err, ErrPaymentIDEmpty) {
		t.Fatalf("expected ErrPaymentIDEmpty, got %v", err)
	}
}

func TestVerifyStatusUnpaidAndUnreachable(t *testing.T) {
	client, _ := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"Status":"01"},{"OrderStatus":"Blocked"}]`))
	})
	res, err := client.VerifyStatus(context.Background(), "tok", "PP-1")
	if err != nil || res.Paid {
		t.Fatalf("expected unpaid result, got %+v err=%v", res, err)
	}

	down := NewClient(Config{BaseURL: "https://api.paypro.test", MerchantID: "M"}, &http.Client{
		Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, errors.New("dial tcp: connection refused")
		}),
	})
	if _, err := down.VerifyStatus(context.Background(), "tok", "PP-1"); !errors.Is(err, ErrRequestFailed) {
		t.Fatalf("expected ErrRequestFailed, got %v", err)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestDueDate(t *testing.T) {
	now := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	if got := DueDate(now, 1); got != "01/01/2027" {
		t.Fatalf("unexpected due date: %s", got)
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(Config{}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
	if err := ValidateConfig(Config{BaseURL: "https://x", ClientID: "a", ClientSecret: "b", MerchantID: "m"}); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
