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
	"github.com/paypro-bridge/internal/queue"
	"github.com/paypro-bridge/internal/repository"
)

// NotificationService delivers the paid receipt at most once per order.
type NotificationService struct {
	mappings    repository.MappingRepository
	locker      cache.Locker
	sender      EmailSender
	renderer    ReceiptRenderer
	queueClient *queue.Client
	now         func() time.Time
}

// NewNotificationService creates the notification service. queueClient may be nil.
func NewNotificationService(
	mappings repository.MappingRepository,
	locker cache.Locker,
	sender EmailSender,
	renderer ReceiptRenderer,
	queueClient *queue.Client,
) *NotificationService {
	if locker == nil {
		locker = cache.NewMemoryLocker()
	}
	return &NotificationService{
		mappings:    mappings,
		locker:      locker,
		sender:      sender,
		renderer:    renderer,
		queueClient: queueClient,
		now:         time.Now,
	}
}

// DispatchPaidReceipt hands the receipt to the queue when it is enabled, otherwise sends inline.
// Failures are logged and never returned.
func (s *NotificationService) DispatchPaidReceipt(ctx context.Context, orderID string) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return
	}
	if s.queueClient.Enabled() {
		err := s.queueClient.EnqueuePaidReceipt(queue.PaidReceiptPayload{OrderID: orderID})
		if err == nil {
			logger.Debugw("paypro_receipt_enqueued", "order_id", orderID)
			return
		}
		logger.Warnw("paypro_receipt_enqueue_failed_fallback_inline", "order_id", orderID, "error", err)
	}

	if _, err := s.SendPaidReceipt(context.WithoutCancel(ctx), orderID); err != nil {
		logger.Errorw("paypro_receipt_send_failed", "order_id", orderID, "error", err)
	}
}

// SendPaidReceipt sends the receipt when the order is paid and no receipt went out yet.
// It reports whether an email was sent.
func (s *NotificationService) SendPaidReceipt(ctx context.Context, orderID string) (bool, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return false, fmt.Errorf("%w: order id is empty", ErrValidation)
	}
	unlock, err := s.locker.Lock(ctx, constants.LockPrefixReceipt+orderID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	defer unlock()

	mapping, err := s.mappings.FindByOrderID(ctx, orderID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreFailed, err)
	}
	if mapping == nil {
		return false, ErrMappingNotFound
	}
	if mapping.Status != constants.MappingStatusPaid || mapping.ReceiptSent {
		return false, nil
	}
	to := strings.TrimSpace(mapping.Customer.Email)
	if to == "" {
		logger.Infow("paypro_receipt_skipped_no_email", "order_id", orderID)
		metrics.ObserveReceipt(metrics.OutcomeSkipped)
		return false, nil
	}
	if s.sender == nil || s.renderer == nil {
		logger.Debugw("paypro_receipt_skipped_no_sender", "order_id", orderID)
		metrics.ObserveReceipt(metrics.OutcomeSkipped)
		return false, nil
	}

	order, err := s.mappings.LoadOrderDocument(ctx, mapping)
	if err != nil {
		logger.Warnw("paypro_receipt_order_document_load_failed",
			"order_id", orderID,
			"document_path", mapping.InternalDocumentPath,
			"error", err,
		)
		order = nil
	}
	subject, body, err := s.renderer.Render(mapping, order)
	if err != nil {
		metrics.ObserveReceipt(metrics.OutcomeFailed)
		return false, err
	}
	if err := s.sender.Send(ctx, to, subject, body); err != nil {
		if errors.Is(err, ErrEmailServiceDisabled) {
			logger.Debugw("paypro_receipt_skipped_email_disabled", "order_id", orderID)
			metrics.ObserveReceipt(metrics.OutcomeSkipped)
			return false, nil
		}
		metrics.ObserveReceipt(metrics.OutcomeFailed)
		return false, err
	}
	metrics.ObserveReceipt(metrics.OutcomeOK)

	if err := s.mappings.MarkReceiptSent(ctx, mapping, s.now()); err != nil {
		return true, fmt.Errorf("%w: receipt sent but flag not stored: %v", ErrStoreFailed, err)
	}
	logger.Infow("paypro_receipt_sent", "order_id", orderID, "to", to)
	return true, nil
}
