// Package saga holds the stage handlers that advance an order from PENDING to
// CONFIRMED or PAYMENT_FAILED. Each stage is stateless: everything it knows
// comes from the delivered message and the order record.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/events"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
)

// Stage names accepted by New.
const (
	StageInventory    = "inventory"
	StagePayment      = "payment"
	StageNotification = "notification"
	StageDeadLetter   = "deadletter"
)

// Deps are the clients a stage is constructed with. Publisher is the queue
// feeding the next stage; terminal stages ignore it.
type Deps struct {
	Store       orders.Store
	Publisher   queue.Publisher
	Metrics     metrics.Recorder
	Logger      *zap.Logger
	FailureRate float64
}

// New builds the handler for a stage name.
func New(stage string, d Deps) (queue.Handler, error) {
	switch stage {
	case StageInventory:
		return NewInventory(d), nil
	case StagePayment:
		return NewPayment(d), nil
	case StageNotification:
		return NewNotification(d), nil
	case StageDeadLetter:
		return NewDeadLetter(d), nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// base carries what every stage shares.
type base struct {
	store   orders.Store
	metrics metrics.Recorder
	logger  *zap.Logger
	nowFunc func() time.Time
}

func newBase(d Deps) base {
	rec := d.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{store: d.Store, metrics: rec, logger: logger, nowFunc: time.Now}
}

func (b base) now() time.Time { return b.nowFunc().UTC() }

// count never fails processing; a lost data point is only logged.
func (b base) count(ctx context.Context, log *zap.Logger, name string) {
	if err := b.metrics.Count(ctx, name); err != nil {
		log.Warn("metric_emit_failed", zap.String("metric", name), zap.Error(err))
	}
}

// decode parses the body and checks its type. ok=false means the returned
// result settles the message already (ignored type or malformed body).
func (b base) decode(ctx context.Context, log *zap.Logger, msg queue.Message, want string) (events.Event, queue.Result, bool) {
	ev, err := events.Decode(msg.Body)
	if err == nil && ev.Type != want {
		log.Debug("event_ignored", zap.String("type", ev.Type), zap.String("expected", want))
		return ev, queue.Ack(), false
	}
	if err == nil {
		err = ev.Validate()
	}
	if err != nil {
		log.Error("malformed_message", zap.String("message_id", msg.ID), zap.String("raw_body", msg.Body), zap.Error(err))
		b.count(ctx, log, metrics.MalformedMessages)
		return ev, queue.DeadLetter(err), false
	}
	return ev, queue.Result{}, true
}

// advance applies a transition and classifies the failure modes every stage
// shares. applied=false with an Ack result means the message was a duplicate.
func (b base) advance(ctx context.Context, log *zap.Logger, orderID, to string, fields orders.Fields) (bool, queue.Result) {
	err := b.store.Advance(ctx, orderID, to, fields, b.now())
	if err == nil {
		return true, queue.Ack()
	}

	var te *orders.TransitionError
	switch {
	case errors.As(err, &te):
		log.Info("transition_skipped", zap.String("current_status", te.From), zap.String("target_status", to))
		b.count(ctx, log, metrics.DuplicateDeliveries)
		return false, queue.Ack()
	case errors.Is(err, orders.ErrNotFound):
		log.Error("order_not_found", zap.String("target_status", to))
		return false, queue.DeadLetter(err)
	default:
		log.Error("order_update_failed", zap.String("target_status", to), zap.Error(err))
		return false, queue.Retry(err)
	}
}
