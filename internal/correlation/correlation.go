// Package correlation threads a request-scoped identifier through every
// message and log line of one causal chain.
package correlation

import (
	"context"

	"github.com/google/uuid"
)

const (
	// Header is the inbound/outbound HTTP header. Lookups are case-insensitive.
	Header = "X-Correlation-Id"
	// Attribute is the message attribute name carried on every published event.
	Attribute = "correlation-id"
)

type ctxKey struct{}

// New generates a fresh correlation id.
func New() string {
	return uuid.NewString()
}

// OrNew returns id, or a generated one when id is empty.
func OrNew(id string) string {
	if id == "" {
		return New()
	}
	return id
}

// WithID stores id in ctx.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the correlation id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}
