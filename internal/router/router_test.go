package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paypro-bridge/internal/config"
	"github.com/paypro-bridge/internal/provider"

	"github.com/gin-gonic/gin"
)

func TestSetupRouterRegistersRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRouter(&config.Config{Server: config.ServerConfig{Mode: "debug"}}, &provider.Container{})

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/paypro/create",
		"POST /api/paypro/callback",
		"POST /api/paypro/callback/invoices",
		"POST /api/paypro/verify",
		"GET /api/paypro/orders/:order_id",
		"GET /healthz",
		"GET /metrics",
	} {
		if !registered[want] {
			t.Fatalf("route %s not registered", want)
		}
	}
}

func TestHealthzCompressesWhenAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := SetupRouter(&config.Config{Server: config.ServerConfig{Mode: "debug"}}, &provider.Container{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("content encoding want gzip got %q", got)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("request id header missing")
	}
}
