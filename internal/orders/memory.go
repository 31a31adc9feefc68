package orders

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by the local simulation and tests.
// It enforces the same conditions as DynamoStore.
type MemoryStore struct {
	mu     sync.Mutex
	orders map[string]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: map[string]Order{}}
}

func (m *MemoryStore) Create(_ context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.OrderID]; ok {
		return ErrAlreadyExists
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	m.orders[order.OrderID] = order
	return nil
}

func (m *MemoryStore) Update(_ context.Context, orderID string, fields Fields, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	fields.apply(&o)
	o.UpdatedAt = ts.UTC()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) Advance(_ context.Context, orderID, to string, fields Fields, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(o.Status, to) {
		return &TransitionError{OrderID: orderID, From: o.Status, To: to}
	}
	fields.apply(&o)
	o.Status = to
	o.UpdatedAt = ts.UTC()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) Get(_ context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}
