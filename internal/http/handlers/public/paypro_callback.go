package public

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/paypro-bridge/internal/constants"
	"github.com/paypro-bridge/internal/http/response"
	"github.com/paypro-bridge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

const (
	maxCallbackBodyBytes  = 1 << 20
	callbackLogValueLimit = 4096
)

// invoiceForm is the credentialed invoice callback payload.
type invoiceForm struct {
	Username      string
	Password      string
	CSVInvoiceIDs string
}

// PayProCallback POST /api/paypro/callback. Form posts with csvinvoiceids are invoice
// callbacks, everything else is treated as a status callback.
func (h *Handler) PayProCallback(c *gin.Context) {
	raw, err := readCallbackBody(c)
	if err != nil {
		requestLog(c).Warnw("paypro_callback_read_failed", "error", err)
		raw = nil
	}

	if form, ok := sniffInvoiceForm(c, raw); ok {
		h.respondInvoiceCallback(c, form)
		return
	}

	requestLog(c).Infow("paypro_callback_received",
		"client_ip", c.ClientIP(),
		"content_type", strings.TrimSpace(c.GetHeader("Content-Type")),
		"body", callbackRawBodyForLog(raw),
	)
	ack := h.ReconciliationService.IngestCallback(c.Request.Context(), raw)
	body := gin.H{
		"gatewayPaymentId": ack.GatewayPaymentID,
		"status":           ack.Status,
		"paid":             ack.Paid,
	}
	if ack.OrderID != "" {
		body["orderId"] = ack.OrderID
	}
	if ack.Note != "" {
		body["note"] = ack.Note
	}
	response.OK(c, body)
}

// PayProInvoiceCallback POST /api/paypro/callback/invoices
func (h *Handler) PayProInvoiceCallback(c *gin.Context) {
	raw, err := readCallbackBody(c)
	if err != nil {
		requestLog(c).Warnw("paypro_invoice_callback_read_failed", "error", err)
	}
	form, _, err := parseInvoiceForm(c, raw)
	if err != nil {
		requestLog(c).Warnw("paypro_invoice_callback_form_invalid", "client_ip", c.ClientIP(), "error", err)
	}
	h.respondInvoiceCallback(c, form)
}

func (h *Handler) respondInvoiceCallback(c *gin.Context, form invoiceForm) {
	requestLog(c).Infow("paypro_invoice_callback_received",
		"client_ip", c.ClientIP(),
		"username", form.Username,
		"csvinvoiceids", truncateCallbackLogValue(form.CSVInvoiceIDs),
	)
	acks, err := h.ReconciliationService.IngestInvoiceCallback(c.Request.Context(), form.Username, form.Password, form.CSVInvoiceIDs)
	status := http.StatusOK
	if errors.Is(err, service.ErrCredentialInvalid) {
		status = http.StatusUnauthorized
	}
	c.JSON(status, acks)
}

func readCallbackBody(c *gin.Context) ([]byte, error) {
	if c.Request == nil || c.Request.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBodyBytes))
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	return raw, err
}

// sniffInvoiceForm reports an invoice callback: a non JSON body carrying csvinvoiceids.
func sniffInvoiceForm(c *gin.Context, raw []byte) (invoiceForm, bool) {
	if c.ContentType() == binding.MIMEJSON {
		return invoiceForm{}, false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return invoiceForm{}, false
	}
	form, present, err := parseInvoiceForm(c, raw)
	if err != nil || !present {
		return invoiceForm{}, false
	}
	return form, true
}

// parseInvoiceForm reads url encoded or multipart fields, falling back to the raw body
// for posts that omit the content type. present reports whether csvinvoiceids was sent.
func parseInvoiceForm(c *gin.Context, raw []byte) (form invoiceForm, present bool, err error) {
	values, err := callbackFormValues(c, raw)
	if err != nil {
		return invoiceForm{}, false, err
	}
	return invoiceForm{
		Username:      strings.TrimSpace(values.Get("username")),
		Password:      values.Get("password"),
		CSVInvoiceIDs: values.Get(constants.InvoiceCallbackIDsField),
	}, values.Has(constants.InvoiceCallbackIDsField), nil
}

func callbackFormValues(c *gin.Context, raw []byte) (url.Values, error) {
	contentType := c.ContentType()
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))
	if contentType == binding.MIMEMultipartPOSTForm {
		if err := c.Request.ParseMultipartForm(maxCallbackBodyBytes); err != nil {
			return nil, err
		}
	} else if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(raw))

	values := url.Values{}
	for key, vals := range c.Request.Form {
		values[key] = vals
	}
	if contentType == binding.MIMEPOSTForm || contentType == binding.MIMEMultipartPOSTForm || len(raw) == 0 {
		return values, nil
	}
	parsed, err := url.ParseQuery(string(raw))
	if err != nil {
		return values, nil
	}
	for key, vals := range parsed {
		if _, exists := values[key]; !exists {
			values[key] = vals
		}
	}
	return values, nil
}

func truncateCallbackLogValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if len(raw) <= callbackLogValueLimit {
		return raw
	}
	return raw[:callbackLogValueLimit] + "...(truncated)"
}

func callbackRawBodyForLog(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	return truncateCallbackLogValue(string(body))
}
