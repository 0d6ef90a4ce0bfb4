package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestOKAttachesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-1")

	OK(c, gin.H{"gatewayPaymentId": "PP-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["ok"] != true || body["gatewayPaymentId"] != "PP-1" || body["request_id"] != "req-1" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestErrorUsesHTTPStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, CodeBadRequest, "orderId is required")

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["ok"] != false || body["message"] != "orderId is required" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["request_id"]; ok {
		t.Fatalf("request_id should be omitted when unset")
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := WrapError(CodeInternal, "failed", base)
	if !errors.Is(err, base) || err.Error() != "failed: boom" {
		t.Fatalf("unexpected app error: %v", err)
	}
}
