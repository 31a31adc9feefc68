package ingress

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/events"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/metrics"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/validation"
)

var orderIDPattern = regexp.MustCompile(`^ORD-[0-9a-f]{12}$`)

func newTestService() (*Service, *orders.MemoryStore, *queue.MemoryQueue, *metrics.Memory) {
	store := orders.NewMemoryStore()
	q := queue.NewMemoryQueue("OrderCreatedQueue")
	rec := metrics.NewMemory()
	s := NewService(store, q, rec, nil)
	s.nowFunc = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s, store, q, rec
}

func validRequest() validation.CreateOrderRequest {
	return validation.CreateOrderRequest{
		CustomerID: "c1",
		Items:      []interface{}{map[string]interface{}{"sku": "A", "qty": float64(1)}},
	}
}

func TestNewOrderID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewOrderID()
		assert.Regexp(t, orderIDPattern, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCreateOrder_PersistsAndPublishes(t *testing.T) {
	s, store, q, rec := newTestService()
	ctx := correlation.WithID(context.Background(), "corr-1")

	order, err := s.CreateOrder(ctx, validRequest())
	require.NoError(t, err)
	assert.Regexp(t, orderIDPattern, order.OrderID)
	assert.Equal(t, orders.StatusPending, order.Status)
	assert.Equal(t, order.CreatedAt, order.UpdatedAt)

	stored, err := store.Get(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, stored.Status)
	assert.Equal(t, "c1", stored.CustomerID)

	msgs := q.Receive(10)
	require.Len(t, msgs, 1)
	assert.Equal(t, "corr-1", msgs[0].Attribute(correlation.Attribute))
	assert.Equal(t, order.OrderID, msgs[0].Attribute(events.AttrOrderID))

	ev, err := events.Decode(msgs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, events.TypeOrderCreated, ev.Type)
	assert.Equal(t, order.OrderID, ev.OrderID)
	assert.Equal(t, "c1", ev.CustomerID)
	assert.Len(t, ev.Items, 1)
	require.NotNil(t, ev.CreatedAt)

	assert.Equal(t, 1, rec.Get(metrics.OrdersCreated))
}

func TestCreateOrder_Validation(t *testing.T) {
	s, _, q, _ := newTestService()

	for name, req := range map[string]validation.CreateOrderRequest{
		"missing customer": {Items: []interface{}{map[string]interface{}{"sku": "A"}}},
		"blank customer":   {CustomerID: "  ", Items: []interface{}{map[string]interface{}{"sku": "A"}}},
		"no items":         {CustomerID: "c1"},
		"empty items":      {CustomerID: "c1", Items: []interface{}{}},
	} {
		_, err := s.CreateOrder(context.Background(), req)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, name)
		assert.Equal(t, validation.MsgInvalidOrder, ve.Message, name)
	}
	assert.Zero(t, q.Len(), "nothing published for rejected requests")
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, []byte, map[string]string) error { return f.err }

func TestCreateOrder_PublishFailureLeavesPending(t *testing.T) {
	store := orders.NewMemoryStore()
	boom := errors.New("sqs down")
	s := NewService(store, failingPublisher{err: boom}, nil, nil)
	s.newID = func() string { return "ORD-000000000abc" }

	_, err := s.CreateOrder(context.Background(), validRequest())
	require.ErrorIs(t, err, boom)

	o, err := store.Get(context.Background(), "ORD-000000000abc")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
}

func TestCreateOrder_StoreFailure(t *testing.T) {
	s, store, q, _ := newTestService()
	s.newID = func() string { return "ORD-dup" }
	require.NoError(t, store.Create(context.Background(), orders.Order{OrderID: "ORD-dup", Status: orders.StatusPending}))

	_, err := s.CreateOrder(context.Background(), validRequest())
	require.ErrorIs(t, err, orders.ErrAlreadyExists)
	assert.Zero(t, q.Len())
}

func TestGetOrder(t *testing.T) {
	s, _, _, _ := newTestService()
	created, err := s.CreateOrder(context.Background(), validRequest())
	require.NoError(t, err)

	got, err := s.GetOrder(context.Background(), created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, got.OrderID)

	_, err = s.GetOrder(context.Background(), "ORD-unknown")
	assert.ErrorIs(t, err, orders.ErrNotFound)

	_, err = s.GetOrder(context.Background(), " ")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}
