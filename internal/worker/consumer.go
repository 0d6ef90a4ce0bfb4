package worker

import (
	"context"
	"errors"

	"github.com/paypro-bridge/internal/logger"
	"github.com/paypro-bridge/internal/provider"
	"github.com/paypro-bridge/internal/queue"
	"github.com/paypro-bridge/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer handles queued tasks.
type Consumer struct {
	*provider.Container
}

// NewConsumer creates the consumer.
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register binds task handlers to the mux.
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaidReceiptEmail, c.handlePaidReceipt)
}

func (c *Consumer) handlePaidReceipt(ctx context.Context, task *asynq.Task) error {
	if c == nil || c.Container == nil || c.NotificationService == nil || task == nil {
		logger.Debugw("worker_paid_receipt_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	payload, err := queue.ParsePaidReceiptPayload(task.Payload())
	if err != nil {
		logger.Warnw("worker_paid_receipt_invalid_payload", "error", err)
		return errors.Join(err, asynq.SkipRetry)
	}

	sent, err := c.NotificationService.SendPaidReceipt(ctx, payload.OrderID)
	if errors.Is(err, service.ErrMappingNotFound) {
		logger.Warnw("worker_paid_receipt_mapping_not_found", "order_id", payload.OrderID)
		return nil
	}
	if err != nil {
		logger.Errorw("worker_paid_receipt_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	logger.Debugw("worker_paid_receipt_done", "order_id", payload.OrderID, "sent", sent)
	return nil
}
