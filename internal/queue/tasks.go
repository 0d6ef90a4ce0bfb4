package queue

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/paypro-bridge/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaidReceiptEmail sends the receipt for a paid order
	TaskPaidReceiptEmail = constants.TaskPaidReceiptEmail
)

// ErrEmptyOrderID rejects receipt tasks without an order.
var ErrEmptyOrderID = errors.New("receipt task without order id")

// PaidReceiptPayload receipt task payload
type PaidReceiptPayload struct {
	OrderID string `json:"order_id"`
}

// NewPaidReceiptTask builds the receipt task.
func NewPaidReceiptTask(payload PaidReceiptPayload) (*asynq.Task, error) {
	payload.OrderID = strings.TrimSpace(payload.OrderID)
	if payload.OrderID == "" {
		return nil, ErrEmptyOrderID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaidReceiptEmail, body), nil
}

// ParsePaidReceiptPayload decodes a receipt task body.
func ParsePaidReceiptPayload(body []byte) (PaidReceiptPayload, error) {
	var payload PaidReceiptPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, err
	}
	payload.OrderID = strings.TrimSpace(payload.OrderID)
	if payload.OrderID == "" {
		return payload, ErrEmptyOrderID
	}
	return payload, nil
}
