package saga

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/events"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
)

// Payment charges (simulated) for InventoryReserved events. A declined order
// is declined on every attempt; the channel's redrive ends it in the
// dead-letter stage.
type Payment struct {
	base
	publisher   queue.Publisher
	failureRate float64
}

func NewPayment(d Deps) *Payment {
	return &Payment{base: newBase(d), publisher: d.Publisher, failureRate: d.FailureRate}
}

func (s *Payment) Handle(ctx context.Context, msg queue.Message) queue.Result {
	log := logging.With(ctx, s.logger)

	ev, res, ok := s.decode(ctx, log, msg, events.TypeInventoryReserved)
	if !ok {
		return res
	}
	// the channel's receive count is the attempt number, so a crashed and
	// redelivered attempt still records the right value
	attempt := msg.ReceiveCount
	log = log.With(zap.String("order_id", ev.OrderID), zap.Int("attempt", attempt))
	log.Info("payment_attempt", zap.Float64("failure_rate", s.failureRate))

	now := s.now()
	err := s.store.Update(ctx, ev.OrderID, orders.Fields{
		PaymentAttemptCount:  &attempt,
		LastPaymentAttemptAt: &now,
	}, now)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			log.Error("order_not_found")
			return queue.DeadLetter(err)
		}
		log.Error("payment_attempt_record_failed", zap.Error(err))
		return queue.Retry(err)
	}
	s.count(ctx, log, metrics.PaymentAttempted)

	if Decide(ev.OrderID, s.failureRate) {
		log.Info("payment_declined_simulated")
		s.count(ctx, log, metrics.PaymentDeclined)
		return queue.Retry(ErrPaymentDeclined)
	}

	applied, res := s.advance(ctx, log, ev.OrderID, orders.StatusPaid, orders.Fields{})
	if !applied {
		return res
	}
	log.Info("payment_success", zap.String("new_status", orders.StatusPaid))

	next := events.PaymentSuccess(ev.OrderID, now)
	body, err := next.Encode()
	if err != nil {
		return queue.Retry(err)
	}
	if err := s.publisher.Publish(ctx, body, next.Attributes(correlation.FromContext(ctx))); err != nil {
		log.Error("payment_success_publish_failed", zap.Error(err))
		return queue.Retry(err)
	}
	log.Info("payment_success_published", zap.String("queue", "PaymentSuccessQueue"))
	s.count(ctx, log, metrics.PaymentSucceeded)
	return queue.Ack()
}
