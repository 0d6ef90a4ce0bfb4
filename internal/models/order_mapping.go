package models

import (
	"encoding/json"
	"time"
)

// Customer is the payer as supplied at initiation.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	// Address is forwarded to the gateway as the billing address.
	Address string `json:"address,omitempty"`
}

// OrderMapping links an internal order to its gateway payment.
// It is persisted as a document under both the order id and the gateway payment id.
type OrderMapping struct {
	InternalOrderID      string     `json:"internalOrderId"`
	GatewayPaymentID     string     `json:"gatewayPaymentId,omitempty"`
	InternalDocumentPath string     `json:"internalDocumentPath"`
	Amount               int64      `json:"amount"`
	Customer             Customer   `json:"customer"`
	RedirectURL          string     `json:"redirectUrl,omitempty"`
	Status               string     `json:"status"`
	GatewayStatus        string     `json:"gatewayStatus,omitempty"`
	ReceiptSent          bool       `json:"receiptSent"`
	Provider             string     `json:"provider,omitempty"`
	PaidSource           string     `json:"paidSource,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
	PaidAt               *time.Time `json:"paidAt,omitempty"`
	ReceiptSentAt        *time.Time `json:"receiptSentAt,omitempty"`
	LastCallbackAt       *time.Time `json:"lastCallbackAt,omitempty"`
}

// ToJSON renders the mapping as a document body.
func (m *OrderMapping) ToJSON() (JSON, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := JSON{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OrderMappingFromJSON decodes a stored document body. Unknown fields are ignored.
func OrderMappingFromJSON(data JSON) (*OrderMapping, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var m OrderMapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
