package saga

import (
	"context"

	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/events"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
)

// Notification confirms paid orders.
type Notification struct {
	base
}

func NewNotification(d Deps) *Notification {
	return &Notification{base: newBase(d)}
}

func (s *Notification) Handle(ctx context.Context, msg queue.Message) queue.Result {
	log := logging.With(ctx, s.logger)

	ev, res, ok := s.decode(ctx, log, msg, events.TypePaymentSuccess)
	if !ok {
		return res
	}
	log = log.With(zap.String("order_id", ev.OrderID))
	log.Info("notification_start")

	applied, res := s.advance(ctx, log, ev.OrderID, orders.StatusConfirmed, orders.Fields{})
	if !applied {
		return res
	}
	log.Info("order_confirmed", zap.String("new_status", orders.StatusConfirmed))
	s.count(ctx, log, metrics.OrdersConfirmed)
	return queue.Ack()
}
