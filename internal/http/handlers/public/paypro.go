package public

import (
	"strings"
	"time"

	"github.com/paypro-bridge/internal/http/response"
	"github.com/paypro-bridge/internal/models"
	"github.com/paypro-bridge/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest checkout request for one internal order
type CreatePaymentRequest struct {
	OrderID            string          `json:"orderId"`
	Amount             decimal.Decimal `json:"amount"`
	Customer           CustomerRequest `json:"customer"`
	InternalAppID      string          `json:"internalAppId"`
	InternalUserID     string          `json:"internalUserId"`
	InternalDocumentID string          `json:"internalDocumentId"`
}

// CustomerRequest payer details. fullName is accepted for older clients.
type CustomerRequest struct {
	Name     string `json:"name"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

// VerifyPaymentRequest status poll request
type VerifyPaymentRequest struct {
	GatewayPaymentID string `json:"gatewayPaymentId"`
}

// OrderView is the public view of a mapping, without customer details.
type OrderView struct {
	OrderID          string     `json:"orderId"`
	GatewayPaymentID string     `json:"gatewayPaymentId,omitempty"`
	Status           string     `json:"status"`
	GatewayStatus    string     `json:"gatewayStatus,omitempty"`
	Amount           int64      `json:"amount"`
	RedirectURL      string     `json:"redirectUrl,omitempty"`
	ReceiptSent      bool       `json:"receiptSent"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
}

// CreatePayment POST /api/paypro/create
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		requestLog(c).Infow("paypro_create_bad_request", "error", err)
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	name := strings.TrimSpace(req.Customer.Name)
	if name == "" {
		name = strings.TrimSpace(req.Customer.FullName)
	}

	result, err := h.ReconciliationService.Initiate(c.Request.Context(), service.InitiateInput{
		OrderID: req.OrderID,
		Amount:  req.Amount,
		Customer: models.Customer{
			Name:    name,
			Email:   req.Customer.Email,
			Phone:   req.Customer.Phone,
			Address: req.Customer.Address,
		},
		AppID:      req.InternalAppID,
		UserID:     req.InternalUserID,
		DocumentID: req.InternalDocumentID,
	})
	if err != nil {
		respondWithMappedError(c, err, createPaymentErrorRules, response.CodeInternal, "failed to create payment")
		return
	}
	response.OK(c, gin.H{
		"orderId":          result.OrderID,
		"gatewayPaymentId": result.GatewayPaymentID,
		"redirectUrl":      result.RedirectURL,
		"amount":           result.Amount,
	})
}

// VerifyPayment POST /api/paypro/verify
func (h *Handler) VerifyPayment(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", nil)
		return
	}
	result, err := h.ReconciliationService.VerifyByPoll(c.Request.Context(), req.GatewayPaymentID)
	if err != nil {
		respondWithMappedError(c, err, verifyPaymentErrorRules, response.CodeInternal, "failed to verify payment")
		return
	}
	body := gin.H{
		"gatewayPaymentId": result.GatewayPaymentID,
		"paid":             result.Paid,
		"status":           result.Status,
	}
	if result.Mapping != nil {
		body["orderId"] = result.Mapping.InternalOrderID
	}
	if result.Note != "" {
		body["note"] = result.Note
	}
	response.OK(c, body)
}

// GetOrder GET /api/paypro/orders/:order_id
func (h *Handler) GetOrder(c *gin.Context) {
	mapping, err := h.ReconciliationService.FindOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		respondWithMappedError(c, err, getOrderErrorRules, response.CodeInternal, "failed to load order")
		return
	}
	response.OK(c, gin.H{"order": newOrderView(mapping)})
}

func newOrderView(m *models.OrderMapping) OrderView {
	return OrderView{
		OrderID:          m.InternalOrderID,
		GatewayPaymentID: m.GatewayPaymentID,
		Status:           m.Status,
		GatewayStatus:    m.GatewayStatus,
		Amount:           m.Amount,
		RedirectURL:      m.RedirectURL,
		ReceiptSent:      m.ReceiptSent,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		PaidAt:           m.PaidAt,
	}
}
