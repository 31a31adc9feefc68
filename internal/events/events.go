// Package events defines the inter-stage message bodies and their attributes.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
)

// Event types
const (
	TypeOrderCreated      = "OrderCreated"
	TypeInventoryReserved = "InventoryReserved"
	TypePaymentSuccess    = "PaymentSuccess"
)

// AttrOrderID is the message attribute carrying the order id next to the body.
const AttrOrderID = "order_id"

// ErrMalformed marks a body that cannot be parsed or lacks order_id.
var ErrMalformed = errors.New("malformed event message")

// Event is the JSON body published between stages. Immutable once published.
type Event struct {
	Type       string        `json:"type"`
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id,omitempty"`
	Items      []interface{} `json:"items,omitempty"`
	CreatedAt  *time.Time    `json:"created_at,omitempty"`
	UpdatedAt  *time.Time    `json:"updated_at,omitempty"`
}

func OrderCreated(orderID, customerID string, items []interface{}, createdAt time.Time) Event {
	ts := createdAt.UTC()
	return Event{Type: TypeOrderCreated, OrderID: orderID, CustomerID: customerID, Items: items, CreatedAt: &ts}
}

func InventoryReserved(orderID string, updatedAt time.Time) Event {
	ts := updatedAt.UTC()
	return Event{Type: TypeInventoryReserved, OrderID: orderID, UpdatedAt: &ts}
}

func PaymentSuccess(orderID string, updatedAt time.Time) Event {
	ts := updatedAt.UTC()
	return Event{Type: TypePaymentSuccess, OrderID: orderID, UpdatedAt: &ts}
}

// Encode returns the JSON body.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return b, nil
}

// Attributes returns the channel-native attributes for e.
func (e Event) Attributes(correlationID string) map[string]string {
	return map[string]string{
		correlation.Attribute: correlationID,
		AttrOrderID:           e.OrderID,
	}
}

// Decode parses a body. A body that is not JSON is ErrMalformed. A missing
// order_id is only checked by Validate, because messages of foreign types are
// ignored before their payload matters.
func Decode(body string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return e, nil
}

// Validate reports ErrMalformed when the fields every stage needs are missing.
func (e Event) Validate() error {
	if e.OrderID == "" {
		return fmt.Errorf("%w: missing order_id", ErrMalformed)
	}
	return nil
}
