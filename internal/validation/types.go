package validation

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	CustomerID string        `json:"customer_id" validate:"required,notblank"` // business id for customer
	Items      []interface{} `json:"items" validate:"required,min=1"`          // opaque line items, at least one
}
