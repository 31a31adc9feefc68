// Package queue is the at-least-once message channel the stages talk over:
// SQS in production (Lambda event source or a long-poll consumer) and an
// in-process queue with the same redrive semantics for local runs and tests.
package queue

import (
	"context"
	"fmt"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
)

// Message is one delivery of a published message.
type Message struct {
	ID         string
	Body       string
	Attributes map[string]string
	// ReceiveCount is the channel's approximate receive count: 1 on first
	// delivery, never decreasing across redeliveries.
	ReceiveCount int
}

// Attribute returns a message attribute or "".
func (m Message) Attribute(name string) string {
	return m.Attributes[name]
}

// Outcome tells the channel what to do with a delivered message.
type Outcome int

const (
	// OutcomeAck removes the message permanently.
	OutcomeAck Outcome = iota
	// OutcomeRetry makes the message visible again, or dead-letters it once
	// the receive budget is spent.
	OutcomeRetry
	// OutcomeDeadLetter skips the remaining budget; the message can never
	// succeed.
	OutcomeDeadLetter
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRetry:
		return "retry"
	case OutcomeDeadLetter:
		return "dead_letter"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the per-message result a Handler reports.
type Result struct {
	Outcome Outcome
	Err     error
}

func Ack() Result { return Result{Outcome: OutcomeAck} }

func Retry(err error) Result { return Result{Outcome: OutcomeRetry, Err: err} }

func DeadLetter(err error) Result { return Result{Outcome: OutcomeDeadLetter, Err: err} }

// Handler processes a single message.
type Handler interface {
	Handle(ctx context.Context, msg Message) Result
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) Result

func (f HandlerFunc) Handle(ctx context.Context, msg Message) Result { return f(ctx, msg) }

// Publisher sends a message body with string attributes. Durable once it
// returns nil.
type Publisher interface {
	Publish(ctx context.Context, body []byte, attributes map[string]string) error
}

// dispatch runs h for one message with the message's correlation id in ctx.
// A panic is converted to a retry so it only affects its own message.
func dispatch(ctx context.Context, h Handler, msg Message) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Retry(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(messageContext(ctx, msg), msg)
}

// messageContext carries the message's correlation id so the handler and
// the settle logs of that message share it.
func messageContext(ctx context.Context, msg Message) context.Context {
	return correlation.WithID(ctx, msg.Attribute(correlation.Attribute))
}
