package saga

import (
	"context"

	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/events"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
)

// Inventory reserves stock (simulated) for OrderCreated events.
type Inventory struct {
	base
	publisher queue.Publisher
}

func NewInventory(d Deps) *Inventory {
	return &Inventory{base: newBase(d), publisher: d.Publisher}
}

func (s *Inventory) Handle(ctx context.Context, msg queue.Message) queue.Result {
	log := logging.With(ctx, s.logger)
	log.Info("sqs_message_received", zap.String("queue", "OrderCreatedQueue"), zap.Int("receive_count", msg.ReceiveCount))

	ev, res, ok := s.decode(ctx, log, msg, events.TypeOrderCreated)
	if !ok {
		return res
	}
	log = log.With(zap.String("order_id", ev.OrderID))
	log.Info("inventory_reserve_start")

	applied, res := s.advance(ctx, log, ev.OrderID, orders.StatusInventoryReserved, orders.Fields{})
	if !applied {
		return res
	}
	log.Info("inventory_reserved", zap.String("new_status", orders.StatusInventoryReserved))

	next := events.InventoryReserved(ev.OrderID, s.now())
	body, err := next.Encode()
	if err != nil {
		return queue.Retry(err)
	}
	if err := s.publisher.Publish(ctx, body, next.Attributes(correlation.FromContext(ctx))); err != nil {
		log.Error("inventory_reserved_publish_failed", zap.Error(err))
		return queue.Retry(err)
	}
	log.Info("inventory_reserved_published", zap.String("queue", "InventoryReservedQueue"))
	s.count(ctx, log, metrics.InventoryReserved)
	return queue.Ack()
}
