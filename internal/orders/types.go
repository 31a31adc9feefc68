package orders

import (
	"errors"
	"fmt"
	"time"
)

// Order statuses
const (
	StatusPending           = "PENDING"
	StatusInventoryReserved = "INVENTORY_RESERVED"
	StatusPaid              = "PAID"
	StatusConfirmed         = "CONFIRMED"
	StatusPaymentFailed     = "PAYMENT_FAILED"
)

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID              string        `dynamodbav:"order_id" json:"order_id"` // PK
	CustomerID           string        `dynamodbav:"customer_id" json:"customer_id"`
	Items                []interface{} `dynamodbav:"items" json:"items"` // opaque line items, stored as sent
	Status               string        `dynamodbav:"status" json:"status"`
	CreatedAt            time.Time     `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `dynamodbav:"updated_at" json:"updated_at"`
	PaymentAttemptCount  int           `dynamodbav:"payment_attempt_count,omitempty" json:"payment_attempt_count,omitempty"`
	LastPaymentAttemptAt *time.Time    `dynamodbav:"last_payment_attempt_at,omitempty" json:"last_payment_attempt_at,omitempty"`
	PaymentError         string        `dynamodbav:"payment_error,omitempty" json:"payment_error,omitempty"`
}

// Fields is a partial update of the mutable, non-status attributes. Nil
// pointers are left untouched.
type Fields struct {
	PaymentAttemptCount  *int
	LastPaymentAttemptAt *time.Time
	PaymentError         *string
}

// attributes maps the set fields to their stored attribute names.
func (f Fields) attributes() map[string]interface{} {
	out := map[string]interface{}{}
	if f.PaymentAttemptCount != nil {
		out["payment_attempt_count"] = *f.PaymentAttemptCount
	}
	if f.LastPaymentAttemptAt != nil {
		out["last_payment_attempt_at"] = f.LastPaymentAttemptAt.UTC()
	}
	if f.PaymentError != nil {
		out["payment_error"] = *f.PaymentError
	}
	return out
}

func (f Fields) apply(o *Order) {
	if f.PaymentAttemptCount != nil {
		o.PaymentAttemptCount = *f.PaymentAttemptCount
	}
	if f.LastPaymentAttemptAt != nil {
		t := f.LastPaymentAttemptAt.UTC()
		o.LastPaymentAttemptAt = &t
	}
	if f.PaymentError != nil {
		o.PaymentError = *f.PaymentError
	}
}

var (
	ErrNotFound      = errors.New("order not found")
	ErrAlreadyExists = errors.New("order already exists")
)

// TransitionError is returned by Advance when the stored status cannot move
// to the requested one. Stages treat it as an already-processed message.
type TransitionError struct {
	OrderID string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: transition %s -> %s rejected", e.OrderID, e.From, e.To)
}
