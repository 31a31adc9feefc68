package saga

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/events"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
)

// PaymentFailedReason is stored in payment_error for dead-lettered orders.
const PaymentFailedReason = "Moved to DLQ after retries (simulated payment decline)"

// DeadLetter is the terminal sink for messages that exhausted their retries.
// It never publishes; it only retries when the store itself is unavailable.
type DeadLetter struct {
	base
}

func NewDeadLetter(d Deps) *DeadLetter {
	return &DeadLetter{base: newBase(d)}
}

func (s *DeadLetter) Handle(ctx context.Context, msg queue.Message) queue.Result {
	log := logging.With(ctx, s.logger)
	log.Error("dlq_message_received",
		zap.String("queue", "InventoryReservedDLQ"),
		zap.String("message_id", msg.ID),
		zap.String("raw_body", msg.Body))

	orderID := ""
	if ev, err := events.Decode(msg.Body); err == nil {
		orderID = ev.OrderID
	}
	if orderID == "" {
		orderID = msg.Attribute(events.AttrOrderID)
	}
	if orderID == "" {
		log.Error("dlq_message_missing_order_id")
		s.count(ctx, log, metrics.DeadLetterMissingOrderID)
		return queue.Ack()
	}
	log = log.With(zap.String("order_id", orderID))

	reason := PaymentFailedReason
	err := s.store.Advance(ctx, orderID, orders.StatusPaymentFailed, orders.Fields{PaymentError: &reason}, s.now())
	var te *orders.TransitionError
	switch {
	case err == nil:
	case errors.As(err, &te):
		log.Warn("dlq_order_already_terminal", zap.String("current_status", te.From))
		return queue.Ack()
	case errors.Is(err, orders.ErrNotFound):
		log.Error("dlq_order_not_found")
		return queue.Ack()
	default:
		log.Error("dlq_order_update_failed", zap.Error(err))
		return queue.Retry(err)
	}

	log.Error("order_marked_payment_failed", zap.String("new_status", orders.StatusPaymentFailed))
	s.count(ctx, log, metrics.OrdersPaymentFailed)
	return queue.Ack()
}
