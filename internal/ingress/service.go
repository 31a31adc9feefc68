// Package ingress creates and reads orders on behalf of the HTTP API.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/events"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/validation"
)

// ValidationError is a client error. It is never retried.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string { return e.Message }

// Service owns order creation: persist as PENDING, then announce OrderCreated.
type Service struct {
	store     orders.Store
	publisher queue.Publisher
	metrics   metrics.Recorder
	logger    *zap.Logger
	validate  *validatorv10.Validate
	nowFunc   func() time.Time
	newID     func() string
}

func NewService(store orders.Store, publisher queue.Publisher, rec metrics.Recorder, logger *zap.Logger) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		publisher: publisher,
		metrics:   rec,
		logger:    logger,
		validate:  validation.New(),
		nowFunc:   time.Now,
		newID:     NewOrderID,
	}
}

// NewOrderID returns "ORD-" followed by 12 random hex characters.
func NewOrderID() string {
	return "ORD-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// CreateOrder persists a PENDING order and publishes OrderCreated with the
// correlation id from ctx. When the publish fails the order stays PENDING
// and the error is returned; nothing retries it.
func (s *Service) CreateOrder(ctx context.Context, req validation.CreateOrderRequest) (*orders.Order, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Message: validation.MsgInvalidOrder, Fields: validation.FieldErrors(err)}
	}
	log := logging.With(ctx, s.logger)

	now := s.nowFunc().UTC()
	order := orders.Order{
		OrderID:    s.newID(),
		CustomerID: req.CustomerID,
		Items:      req.Items,
		Status:     orders.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, order); err != nil {
		log.Error("order_create_failed", zap.String("order_id", order.OrderID), zap.Error(err))
		return nil, fmt.Errorf("create order: %w", err)
	}
	log = log.With(zap.String("order_id", order.OrderID))
	log.Info("order_created", zap.String("status", order.Status), zap.String("customer_id", order.CustomerID))

	ev := events.OrderCreated(order.OrderID, order.CustomerID, order.Items, now)
	body, err := ev.Encode()
	if err != nil {
		return nil, err
	}
	if err := s.publisher.Publish(ctx, body, ev.Attributes(correlation.FromContext(ctx))); err != nil {
		log.Error("order_publish_failed", zap.Error(err))
		return nil, fmt.Errorf("publish %s: %w", events.TypeOrderCreated, err)
	}
	log.Info("order_published_to_queue", zap.String("queue", "OrderCreatedQueue"))

	if err := s.metrics.Count(ctx, metrics.OrdersCreated); err != nil {
		log.Warn("metric_emit_failed", zap.String("metric", metrics.OrdersCreated), zap.Error(err))
	}
	return &order, nil
}

// GetOrder reads the full record. Unknown ids return orders.ErrNotFound.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, &ValidationError{Message: "order_id is required"}
	}
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return o, nil
}
