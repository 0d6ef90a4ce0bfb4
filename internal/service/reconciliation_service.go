package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paypro-bridge/internal/cache"
	"github.com/paypro-bridge/internal/constants"
	"github.com/paypro-bridge/internal/logger"
	"github.com/paypro-bridge/internal/metrics"
	"github.com/paypro-bridge/internal/models"
	"github.com/paypro-bridge/internal/payment/paypro"
	"github.com/paypro-bridge/internal/repository"

	"github.com/shopspring/decimal"
)

// GatewayClient is the upstream surface the engine needs.
type GatewayClient interface {
	AcquireToken(ctx context.Context) (string, error)
	CreateOrder(ctx context.Context, token string, spec paypro.OrderSpec) (*paypro.OrderResult, error)
	VerifyStatus(ctx context.Context, token, gatewayPaymentID string) (*paypro.StatusResult, error)
}

// ReceiptDispatcher triggers the paid receipt for an order.
type ReceiptDispatcher interface {
	DispatchPaidReceipt(ctx context.Context, orderID string)
}

// InitiateInput is a payment request for one internal order.
type InitiateInput struct {
	OrderID    string
	Amount     decimal.Decimal
	Customer   models.Customer
	AppID      string
	UserID     string
	DocumentID string
}

// InitiateResult tells the caller where to send the payer.
type InitiateResult struct {
	OrderID          string
	GatewayPaymentID string
	RedirectURL      string
	Amount           int64
	Reused           bool
}

// CallbackAck acknowledges a status callback. Note is set when nothing changed.
type CallbackAck struct {
	OrderID          string
	GatewayPaymentID string
	Status           string
	Paid             bool
	Note             string
}

// InvoiceAck is one element of the invoice callback reply. Field order is part of the contract.
type InvoiceAck struct {
	StatusCode  string  `json:"StatusCode"`
	InvoiceID   *string `json:"InvoiceID"`
	Description string  `json:"Description"`
}

// VerifyResult is the outcome of a status poll.
type VerifyResult struct {
	GatewayPaymentID string
	Paid             bool
	Status           string
	Note             string
	Mapping          *models.OrderMapping
}

// Notes returned on acknowledged callbacks that changed nothing.
const (
	NoteMissingPaymentID = "no payment id in callback"
	NoteMappingNotFound  = "no order mapped to this payment id"
	NoteNotSuccess       = "status is not a success status"
	NoteAlreadyPaid      = "order already paid"
	NoteStoreFailed      = "payment acknowledged, state update failed"
)

// Callback schema labels for metrics.
const (
	callbackSchemaStatus  = "status"
	callbackSchemaInvoice = "invoice"
)

// ReconciliationOptions tunes the engine.
type ReconciliationOptions struct {
	Gateway     GatewayClient
	Mappings    repository.MappingRepository
	Locker      cache.Locker
	Receipts    ReceiptDispatcher
	Credentials *CallbackCredentials
}

// ReconciliationService drives an order from initiation to paid.
type ReconciliationService struct {
	gateway     GatewayClient
	mappings    repository.MappingRepository
	locker      cache.Locker
	receipts    ReceiptDispatcher
	credentials *CallbackCredentials
	now         func() time.Time
}

// NewReconciliationService creates the engine.
func NewReconciliationService(opts ReconciliationOptions) *ReconciliationService {
	locker := opts.Locker
	if locker == nil {
		locker = cache.NewMemoryLocker()
	}
	return &ReconciliationService{
		gateway:     opts.Gateway,
		mappings:    opts.Mappings,
		locker:      locker,
		receipts:    opts.Receipts,
		credentials: opts.Credentials,
		now:         time.Now,
	}
}

// Initiate creates the upstream order and records the mapping. Nothing is stored when the
// gateway fails. A repeated call for an initiated order returns the stored checkout, and
// calls for the same order are serialized so only one upstream order is created.
func (s *ReconciliationService) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	input = trimInitiateInput(input)
	if input.OrderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", ErrValidation)
	}
	amount, err := normalizeAmount(input.Amount)
	if err != nil {
		return nil, err
	}
	if input.AppID == "" || input.UserID == "" || input.DocumentID == "" {
		return nil, fmt.Errorf("%w: internalAppId, internalUserId and internalDocumentId are required", ErrValidation)
	}
	if input.Customer.Email != "" && !looksLikeEmail(input.Customer.Email) {
		return nil, fmt.Errorf("%w: customer email is invalid", ErrValidation)
	}
	if s.gateway == nil {
		return nil, ErrGatewayNotReady
	}

	// one upstream invoice per order
	unlock, err := s.locker.Lock(ctx, constants.LockPrefixInitiate+input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	defer unlock()

	existing, err := s.mappings.FindByOrderID(ctx, input.OrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	if existing != nil {
		if existing.Status == constants.MappingStatusPaid {
			return nil, ErrOrderAlreadyPaid
		}
		if existing.Amount != amount {
			return nil, fmt.Errorf("%w: stored %d, requested %d", ErrAmountMismatch, existing.Amount, amount)
		}
		if existing.GatewayPaymentID != "" {
			return &InitiateResult{
				OrderID:          existing.InternalOrderID,
				GatewayPaymentID: existing.GatewayPaymentID,
				RedirectURL:      existing.RedirectURL,
				Amount:           existing.Amount,
				Reused:           true,
			}, nil
		}
	}

	start := time.Now()
	token, err := s.gateway.AcquireToken(ctx)
	metrics.ObserveUpstream("auth", start, err)
	if err != nil {
		logger.Warnw("paypro_initiate_auth_failed", "order_id", input.OrderID, "error", err)
		return nil, err
	}

	start = time.Now()
	result, err := s.gateway.CreateOrder(ctx, token, paypro.OrderSpec{
		OrderNumber:     input.OrderID,
		Amount:          amount,
		CustomerName:    input.Customer.Name,
		CustomerMobile:  input.Customer.Phone,
		CustomerEmail:   input.Customer.Email,
		CustomerAddress: input.Customer.Address,
	})
	metrics.ObserveUpstream("create", start, err)
	if err != nil {
		logger.Warnw("paypro_initiate_create_failed", "order_id", input.OrderID, "error", err)
		return nil, err
	}

	now := s.now()
	mapping := &models.OrderMapping{
		InternalOrderID:      input.OrderID,
		GatewayPaymentID:     result.GatewayPaymentID,
		InternalDocumentPath: fmt.Sprintf(constants.ExternalOrdersPattern, input.AppID, input.UserID, input.DocumentID),
		Amount:               amount,
		Customer:             input.Customer,
		RedirectURL:          result.RedirectURL,
		Status:               constants.MappingStatusInitiated,
		GatewayStatus:        result.GatewayStatus,
		Provider:             constants.PaymentProviderPayPro,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if existing != nil {
		mapping.CreatedAt = existing.CreatedAt
	}
	if err := s.mappings.UpsertInitiated(ctx, mapping); err != nil {
		logger.Errorw("paypro_initiate_mapping_write_failed",
			"order_id", input.OrderID,
			"gateway_payment_id", result.GatewayPaymentID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	if err := s.mappings.AttachInitiation(ctx, mapping); err != nil {
		logger.Warnw("paypro_initiate_document_write_failed",
			"order_id", input.OrderID,
			"document_path", mapping.InternalDocumentPath,
			"error", err,
		)
	}

	logger.Infow("paypro_order_initiated",
		"order_id", input.OrderID,
		"gateway_payment_id", result.GatewayPaymentID,
		"amount", amount,
	)
	return &InitiateResult{
		OrderID:          input.OrderID,
		GatewayPaymentID: result.GatewayPaymentID,
		RedirectURL:      result.RedirectURL,
		Amount:           amount,
	}, nil
}

// IngestCallback handles the structured status callback. It never fails for unknown or
// incomplete payloads, those are acknowledged with a note.
func (s *ReconciliationService) IngestCallback(ctx context.Context, raw []byte) *CallbackAck {
	body := paypro.DecodeBody(raw)
	status, gatewayID := paypro.ExtractStatusAndPaymentID(body)
	ack := &CallbackAck{GatewayPaymentID: gatewayID, Status: status}

	if gatewayID == "" {
		ack.Note = NoteMissingPaymentID
		metrics.ObserveCallback(callbackSchemaStatus, metrics.OutcomeIgnored)
		logger.Infow("paypro_callback_missing_payment_id", "status", status)
		return ack
	}

	mapping, err := s.mappings.FindByGatewayID(ctx, gatewayID)
	if err != nil {
		ack.Note = NoteStoreFailed
		metrics.ObserveCallback(callbackSchemaStatus, metrics.OutcomeFailed)
		logger.Errorw("paypro_callback_lookup_failed", "gateway_payment_id", gatewayID, "error", err)
		return ack
	}
	if mapping == nil {
		ack.Note = NoteMappingNotFound
		metrics.ObserveCallback(callbackSchemaStatus, metrics.OutcomeIgnored)
		logger.Warnw("paypro_callback_mapping_not_found", "gateway_payment_id", gatewayID, "status", status)
		return ack
	}
	ack.OrderID = mapping.InternalOrderID

	if err := s.mappings.TouchCallback(ctx, mapping, s.now()); err != nil {
		logger.Warnw("paypro_callback_touch_failed", "order_id", mapping.InternalOrderID, "error", err)
	}

	if !paypro.IsSuccessStatus(status) {
		ack.Paid = mapping.Status == constants.MappingStatusPaid
		ack.Note = NoteNotSuccess
		metrics.ObserveCallback(callbackSchemaStatus, metrics.OutcomeIgnored)
		logger.Infow("paypro_callback_not_success",
			"order_id", mapping.InternalOrderID,
			"gateway_payment_id", gatewayID,
			"status", status,
		)
		return ack
	}

	changed, err := s.MarkPaid(ctx, mapping, status, constants.PaidSourceCallback)
	if err != nil {
		ack.Note = NoteStoreFailed
		metrics.ObserveCallback(callbackSchemaStatus, metrics.OutcomeFailed)
		logger.Errorw("paypro_callback_mark_paid_failed", "order_id", mapping.InternalOrderID, "error", err)
		return ack
	}
	ack.Paid = true
	if !changed {
		ack.Note = NoteAlreadyPaid
	}
	metrics.ObserveCallback(callbackSchemaStatus, metrics.OutcomeOK)
	return ack
}

// IngestInvoiceCallback handles the credentialed invoice callback. Every id gets an element
// in the reply, unknown ids report 03. ErrCredentialInvalid comes with its own reply.
func (s *ReconciliationService) IngestInvoiceCallback(ctx context.Context, username, password, csvInvoiceIDs string) ([]InvoiceAck, error) {
	if !s.credentials.Verify(username, password) {
		metrics.ObserveCallback(callbackSchemaInvoice, metrics.OutcomeRejected)
		logger.Warnw("paypro_invoice_callback_credentials_rejected", "username", strings.TrimSpace(username))
		return []InvoiceAck{{
			StatusCode:  constants.InvoiceStatusInvalidInput,
			InvoiceID:   nil,
			Description: "Invalid username or password",
		}}, ErrCredentialInvalid
	}

	ids := splitInvoiceIDs(csvInvoiceIDs)
	if len(ids) == 0 {
		metrics.ObserveCallback(callbackSchemaInvoice, metrics.OutcomeIgnored)
		return []InvoiceAck{{
			StatusCode:  constants.InvoiceStatusInvalidInput,
			InvoiceID:   nil,
			Description: "Invalid data: csvinvoiceids is empty",
		}}, nil
	}

	acks := make([]InvoiceAck, 0, len(ids))
	for _, id := range ids {
		acks = append(acks, s.ingestInvoice(ctx, id))
	}
	return acks, nil
}

func (s *ReconciliationService) ingestInvoice(ctx context.Context, orderID string) InvoiceAck {
	invoiceID := orderID
	ack := InvoiceAck{InvoiceID: &invoiceID}

	mapping, err := s.mappings.FindByOrderID(ctx, orderID)
	if err != nil {
		logger.Errorw("paypro_invoice_callback_lookup_failed", "order_id", orderID, "error", err)
		metrics.ObserveCallback(callbackSchemaInvoice, metrics.OutcomeFailed)
		ack.StatusCode = constants.InvoiceStatusServiceError
		ack.Description = "Service failure"
		return ack
	}
	if mapping == nil {
		logger.Warnw("paypro_invoice_callback_mapping_not_found", "order_id", orderID)
		metrics.ObserveCallback(callbackSchemaInvoice, metrics.OutcomeIgnored)
		ack.StatusCode = constants.InvoiceStatusNoData
		ack.Description = "No data available"
		return ack
	}

	if err := s.mappings.TouchCallback(ctx, mapping, s.now()); err != nil {
		logger.Warnw("paypro_invoice_callback_touch_failed", "order_id", orderID, "error", err)
	}
	if _, err := s.MarkPaid(ctx, mapping, constants.InvoiceStatusSuccess, constants.PaidSourceInvoiceCallback); err != nil {
		logger.Errorw("paypro_invoice_callback_mark_paid_failed", "order_id", orderID, "error", err)
		metrics.ObserveCallback(callbackSchemaInvoice, metrics.OutcomeFailed)
		ack.StatusCode = constants.InvoiceStatusServiceError
		ack.Description = "Service failure"
		return ack
	}
	metrics.ObserveCallback(callbackSchemaInvoice, metrics.OutcomeOK)
	ack.StatusCode = constants.InvoiceStatusSuccess
	ack.Description = "Invoice marked as paid"
	return ack
}

// VerifyByPoll asks the gateway for the payment status and marks the order paid when it is.
func (s *ReconciliationService) VerifyByPoll(ctx context.Context, gatewayPaymentID string) (*VerifyResult, error) {
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	if gatewayPaymentID == "" {
		return nil, fmt.Errorf("%w: gatewayPaymentId is required", ErrValidation)
	}
	if s.gateway == nil {
		return nil, ErrGatewayNotReady
	}

	start := time.Now()
	token, err := s.gateway.AcquireToken(ctx)
	metrics.ObserveUpstream("auth", start, err)
	if err != nil {
		return nil, err
	}
	start = time.Now()
	status, err := s.gateway.VerifyStatus(ctx, token, gatewayPaymentID)
	metrics.ObserveUpstream("status", start, err)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		GatewayPaymentID: gatewayPaymentID,
		Paid:             status.Paid,
		Status:           status.GatewayStatus,
	}
	if !status.Paid {
		return result, nil
	}

	mapping, err := s.mappings.FindByGatewayID(ctx, gatewayPaymentID)
	if err != nil {
		logger.Errorw("paypro_verify_lookup_failed", "gateway_payment_id", gatewayPaymentID, "error", err)
		result.Note = NoteStoreFailed
		return result, nil
	}
	if mapping == nil {
		logger.Warnw("paypro_verify_mapping_not_found", "gateway_payment_id", gatewayPaymentID)
		result.Note = NoteMappingNotFound
		return result, nil
	}
	gatewayStatus := status.GatewayStatus
	if gatewayStatus == "" {
		gatewayStatus = constants.MappingStatusPaid
	}
	changed, err := s.MarkPaid(ctx, mapping, gatewayStatus, constants.PaidSourcePoll)
	if err != nil {
		logger.Errorw("paypro_verify_mark_paid_failed", "order_id", mapping.InternalOrderID, "error", err)
		result.Note = NoteStoreFailed
	} else if !changed {
		result.Note = NoteAlreadyPaid
	}
	result.Mapping = mapping
	return result, nil
}

// MarkPaid moves the mapping to paid under the per-order lock and then dispatches the receipt.
// It reports whether this call made the transition. An already paid mapping is left as is.
func (s *ReconciliationService) MarkPaid(ctx context.Context, mapping *models.OrderMapping, gatewayStatus, source string) (bool, error) {
	if mapping == nil || strings.TrimSpace(mapping.InternalOrderID) == "" {
		return false, ErrMappingNotFound
	}
	orderID := mapping.InternalOrderID

	changed, current, err := s.transitionPaid(ctx, orderID, gatewayStatus, source)
	if err != nil {
		return false, err
	}
	if current != nil {
		*mapping = *current
	}
	if changed {
		metrics.ObservePaid(source)
		logger.Infow("paypro_payment_marked_paid",
			"order_id", orderID,
			"gateway_payment_id", mapping.GatewayPaymentID,
			"gateway_status", gatewayStatus,
			"source", source,
		)
	}
	if !mapping.ReceiptSent && s.receipts != nil {
		s.receipts.DispatchPaidReceipt(ctx, orderID)
	}
	return changed, nil
}

func (s *ReconciliationService) transitionPaid(ctx context.Context, orderID, gatewayStatus, source string) (bool, *models.OrderMapping, error) {
	unlock, err := s.locker.Lock(ctx, constants.LockPrefixPaid+orderID)
	if err != nil {
		return false, nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	defer unlock()

	current, err := s.mappings.FindByOrderID(ctx, orderID)
	if err != nil {
		return false, nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	if current == nil {
		return false, nil, ErrMappingNotFound
	}
	if current.Status == constants.MappingStatusPaid {
		return false, current, nil
	}
	if err := s.mappings.MarkPaid(ctx, current, gatewayStatus, source, s.now()); err != nil {
		return false, nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	return true, current, nil
}

// FindOrder returns the stored mapping for an order id.
func (s *ReconciliationService) FindOrder(ctx context.Context, orderID string) (*models.OrderMapping, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrValidation)
	}
	mapping, err := s.mappings.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	if mapping == nil {
		return nil, ErrMappingNotFound
	}
	return mapping, nil
}

// normalizeAmount rounds half away from zero and requires a positive result.
func normalizeAmount(amount decimal.Decimal) (int64, error) {
	rounded := amount.Round(0)
	if !rounded.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be a positive number", ErrValidation)
	}
	if !rounded.IsInteger() || rounded.GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, fmt.Errorf("%w: amount is out of range", ErrValidation)
	}
	return rounded.IntPart(), nil
}

func trimInitiateInput(input InitiateInput) InitiateInput {
	input.OrderID = strings.TrimSpace(input.OrderID)
	input.AppID = strings.TrimSpace(input.AppID)
	input.UserID = strings.TrimSpace(input.UserID)
	input.DocumentID = strings.TrimSpace(input.DocumentID)
	input.Customer.Name = strings.TrimSpace(input.Customer.Name)
	input.Customer.Email = strings.TrimSpace(input.Customer.Email)
	input.Customer.Phone = strings.TrimSpace(input.Customer.Phone)
	input.Customer.Address = strings.TrimSpace(input.Customer.Address)
	return input
}

// splitInvoiceIDs splits the csv list, dropping blanks and repeats while keeping order.
func splitInvoiceIDs(csv string) []string {
	parts := strings.Split(csv, ",")
	seen := make(map[string]struct{}, len(parts))
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func looksLikeEmail(value string) bool {
	at := strings.LastIndex(value, "@")
	return at > 0 && at < len(value)-1 && !strings.ContainsAny(value, " \t\r\n")
}

// IsUpstreamError reports errors raised by the gateway client.
func IsUpstreamError(err error) bool {
	return errors.Is(err, paypro.ErrAuthFailed) ||
		errors.Is(err, paypro.ErrGatewayFailed) ||
		errors.Is(err, paypro.ErrRequestFailed) ||
		errors.Is(err, paypro.ErrPaymentIDEmpty) ||
		errors.Is(err, paypro.ErrConfigInvalid)
}
