package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/paypro-bridge/internal/constants"
	"github.com/paypro-bridge/internal/logger"
	"github.com/paypro-bridge/internal/models"
)

// ErrMappingIncomplete is returned when a mapping lacks its order id.
var ErrMappingIncomplete = errors.New("order mapping missing internal order id")

// MappingRepository keeps the order id <-> gateway payment id association.
// Lookups return (nil, nil) when nothing is stored.
type MappingRepository interface {
	UpsertInitiated(ctx context.Context, mapping *models.OrderMapping) error
	FindByOrderID(ctx context.Context, orderID string) (*models.OrderMapping, error)
	FindByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.OrderMapping, error)
	MarkPaid(ctx context.Context, mapping *models.OrderMapping, gatewayStatus, source string, at time.Time) error
	MarkReceiptSent(ctx context.Context, mapping *models.OrderMapping, at time.Time) error
	TouchCallback(ctx context.Context, mapping *models.OrderMapping, at time.Time) error
	AttachInitiation(ctx context.Context, mapping *models.OrderMapping) error
	LoadOrderDocument(ctx context.Context, mapping *models.OrderMapping) (models.JSON, error)
}

// DocumentMappingRepository stores mappings in two DocumentStore collections.
type DocumentMappingRepository struct {
	store              DocumentStore
	ordersCollection   string
	paymentsCollection string
}

// NewMappingRepository creates the mapping repository.
func NewMappingRepository(store DocumentStore, ordersCollection, paymentsCollection string) *DocumentMappingRepository {
	if strings.TrimSpace(ordersCollection) == "" {
		ordersCollection = "paypro_orders"
	}
	if strings.TrimSpace(paymentsCollection) == "" {
		paymentsCollection = "paypro_payments"
	}
	return &DocumentMappingRepository{
		store:              store,
		ordersCollection:   ordersCollection,
		paymentsCollection: paymentsCollection,
	}
}

// UpsertInitiated writes the mapping under its order id and, once known, its gateway payment id.
func (r *DocumentMappingRepository) UpsertInitiated(ctx context.Context, mapping *models.OrderMapping) error {
	if mapping == nil || strings.TrimSpace(mapping.InternalOrderID) == "" {
		return ErrMappingIncomplete
	}
	body, err := mapping.ToJSON()
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, r.ordersCollection, mapping.InternalOrderID, body, true); err != nil {
		return err
	}
	if mapping.GatewayPaymentID == "" {
		return nil
	}
	return r.store.Set(ctx, r.paymentsCollection, mapping.GatewayPaymentID, body, true)
}

// FindByOrderID reads the primary index.
func (r *DocumentMappingRepository) FindByOrderID(ctx context.Context, orderID string) (*models.OrderMapping, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, nil
	}
	data, err := r.store.Get(ctx, r.ordersCollection, orderID)
	if err != nil {
		return nil, err
	}
	return models.OrderMappingFromJSON(data)
}

// FindByGatewayID resolves the order through the secondary index and returns the primary entry.
// Older records only exist in the primary index, so a miss falls back to the primary by the same
// key and then by the stored gateway id.
func (r *DocumentMappingRepository) FindByGatewayID(ctx context.Context, gatewayPaymentID string) (*models.OrderMapping, error) {
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	if gatewayPaymentID == "" {
		return nil, nil
	}
	data, err := r.store.Get(ctx, r.paymentsCollection, gatewayPaymentID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		if data, err = r.store.Get(ctx, r.ordersCollection, gatewayPaymentID); err != nil {
			return nil, err
		}
	}
	if data == nil {
		if data, err = r.store.FindByField(ctx, r.ordersCollection, "gatewayPaymentId", gatewayPaymentID); err != nil {
			return nil, err
		}
	}
	mapping, err := models.OrderMappingFromJSON(data)
	if err != nil || mapping == nil || mapping.InternalOrderID == "" {
		return mapping, err
	}
	// the primary entry is authoritative for state
	primary, err := r.FindByOrderID(ctx, mapping.InternalOrderID)
	if err != nil {
		return nil, err
	}
	if primary == nil || primary.GatewayPaymentID != gatewayPaymentID {
		return mapping, nil
	}
	return primary, nil
}

// MarkPaid records the paid state on both index entries and on the external order document.
// paidAt is kept when the mapping already carries one. The external write is best effort.
func (r *DocumentMappingRepository) MarkPaid(ctx context.Context, mapping *models.OrderMapping, gatewayStatus, source string, at time.Time) error {
	if mapping == nil || strings.TrimSpace(mapping.InternalOrderID) == "" {
		return ErrMappingIncomplete
	}
	paidAt := at
	if mapping.PaidAt != nil {
		paidAt = *mapping.PaidAt
	}
	patch := models.JSON{
		"status":    constants.MappingStatusPaid,
		"paidAt":    formatTime(paidAt),
		"updatedAt": formatTime(at),
	}
	if gatewayStatus != "" {
		patch["gatewayStatus"] = gatewayStatus
	}
	if source != "" {
		patch["paidSource"] = source
	}
	if err := r.writeBoth(ctx, mapping, patch); err != nil {
		return err
	}

	mapping.Status = constants.MappingStatusPaid
	mapping.PaidAt = &paidAt
	mapping.UpdatedAt = at
	if gatewayStatus != "" {
		mapping.GatewayStatus = gatewayStatus
	}
	if source != "" {
		mapping.PaidSource = source
	}

	if path := strings.TrimSpace(mapping.InternalDocumentPath); path != "" {
		external := models.JSON{
			"status":    constants.MappingStatusPaid,
			"updatedAt": formatTime(at),
			"payment": map[string]interface{}{
				"provider":         constants.PaymentProviderPayPro,
				"status":           constants.MappingStatusPaid,
				"gatewayPaymentId": mapping.GatewayPaymentID,
				"gatewayStatus":    mapping.GatewayStatus,
				"paidAt":           formatTime(paidAt),
			},
		}
		if err := r.store.SetPath(ctx, path, external, true); err != nil {
			logger.Warnw("mapping_external_document_paid_write_failed",
				"order_id", mapping.InternalOrderID,
				"document_path", path,
				"error", err,
			)
		}
	}
	return nil
}

// MarkReceiptSent flags the receipt as delivered on both index entries.
func (r *DocumentMappingRepository) MarkReceiptSent(ctx context.Context, mapping *models.OrderMapping, at time.Time) error {
	if mapping == nil || strings.TrimSpace(mapping.InternalOrderID) == "" {
		return ErrMappingIncomplete
	}
	if err := r.writeBoth(ctx, mapping, models.JSON{
		"receiptSent":   true,
		"receiptSentAt": formatTime(at),
		"updatedAt":     formatTime(at),
	}); err != nil {
		return err
	}
	mapping.ReceiptSent = true
	mapping.ReceiptSentAt = &at
	mapping.UpdatedAt = at
	return nil
}

// TouchCallback records the time of the latest callback for the mapping.
func (r *DocumentMappingRepository) TouchCallback(ctx context.Context, mapping *models.OrderMapping, at time.Time) error {
	if mapping == nil || strings.TrimSpace(mapping.InternalOrderID) == "" {
		return ErrMappingIncomplete
	}
	if err := r.writeBoth(ctx, mapping, models.JSON{"lastCallbackAt": formatTime(at)}); err != nil {
		return err
	}
	mapping.LastCallbackAt = &at
	return nil
}

// AttachInitiation marks the external order document as awaiting a PayPro payment.
func (r *DocumentMappingRepository) AttachInitiation(ctx context.Context, mapping *models.OrderMapping) error {
	if mapping == nil || strings.TrimSpace(mapping.InternalDocumentPath) == "" {
		return nil
	}
	return r.store.SetPath(ctx, mapping.InternalDocumentPath, models.JSON{
		"payment": map[string]interface{}{
			"provider":         constants.PaymentProviderPayPro,
			"status":           constants.MappingStatusInitiated,
			"gatewayPaymentId": mapping.GatewayPaymentID,
			"redirectUrl":      mapping.RedirectURL,
		},
	}, true)
}

// LoadOrderDocument reads the external order document referenced by the mapping.
func (r *DocumentMappingRepository) LoadOrderDocument(ctx context.Context, mapping *models.OrderMapping) (models.JSON, error) {
	if mapping == nil || strings.TrimSpace(mapping.InternalDocumentPath) == "" {
		return nil, nil
	}
	return r.store.GetPath(ctx, mapping.InternalDocumentPath)
}

// writeBoth patches the primary entry and then the secondary one. A missing secondary entry
// is rebuilt from the primary as it stands after the patch, never from the caller's copy.
func (r *DocumentMappingRepository) writeBoth(ctx context.Context, mapping *models.OrderMapping, patch models.JSON) error {
	if err := r.store.Set(ctx, r.ordersCollection, mapping.InternalOrderID, patch, true); err != nil {
		return err
	}
	gatewayID := strings.TrimSpace(mapping.GatewayPaymentID)
	if gatewayID == "" {
		return nil
	}
	secondary, err := r.store.Get(ctx, r.paymentsCollection, gatewayID)
	if err != nil {
		return err
	}
	if secondary != nil {
		return r.store.Set(ctx, r.paymentsCollection, gatewayID, patch, true)
	}
	primary, err := r.store.Get(ctx, r.ordersCollection, mapping.InternalOrderID)
	if err != nil {
		return err
	}
	if primary == nil {
		return r.store.Set(ctx, r.paymentsCollection, gatewayID, patch, true)
	}
	return r.store.Set(ctx, r.paymentsCollection, gatewayID, primary, true)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
