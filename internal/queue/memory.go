package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is an in-process channel with SQS-like semantics: messages are
// hidden while in flight, a failed message becomes visible again after the
// visibility delay, and once its receive count exceeds maxReceiveCount it is
// moved to the dead-letter queue instead.
type MemoryQueue struct {
	name            string
	mu              sync.Mutex
	seq             int
	ready           []*memEntry
	inflight        map[string]*memEntry
	deadLetter      *MemoryQueue
	maxReceiveCount int
	visibilityDelay time.Duration
	nowFunc         func() time.Time
}

type memEntry struct {
	msg       Message
	visibleAt time.Time
}

// MemoryOption configures a MemoryQueue.
type MemoryOption func(*MemoryQueue)

// WithRedrive routes messages whose receive count exceeds maxReceiveCount to dlq.
func WithRedrive(dlq *MemoryQueue, maxReceiveCount int) MemoryOption {
	return func(q *MemoryQueue) {
		q.deadLetter = dlq
		q.maxReceiveCount = maxReceiveCount
	}
}

// WithVisibilityDelay sets how long a failed message stays hidden.
func WithVisibilityDelay(d time.Duration) MemoryOption {
	return func(q *MemoryQueue) { q.visibilityDelay = d }
}

func withClock(now func() time.Time) MemoryOption {
	return func(q *MemoryQueue) { q.nowFunc = now }
}

func NewMemoryQueue(name string, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		name:     name,
		inflight: map[string]*memEntry{},
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Name() string { return q.name }

// Publish implements Publisher.
func (q *MemoryQueue) Publish(_ context.Context, body []byte, attributes map[string]string) error {
	attrs := make(map[string]string, len(attributes))
	for k, v := range attributes {
		if v != "" {
			attrs[k] = v
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	q.ready = append(q.ready, &memEntry{
		msg: Message{
			ID:         fmt.Sprintf("%s-%d", q.name, q.seq),
			Body:       string(body),
			Attributes: attrs,
		},
		visibleAt: q.nowFunc(),
	})
	return nil
}

// Receive returns up to max currently visible messages, in publish order, and
// hides them until they are acked or failed.
func (q *MemoryQueue) Receive(max int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.nowFunc()

	var out []Message
	remaining := q.ready[:0]
	for _, e := range q.ready {
		if len(out) < max && !e.visibleAt.After(now) {
			e.msg.ReceiveCount++
			q.inflight[e.msg.ID] = e
			out = append(out, copyMessage(e.msg))
			continue
		}
		remaining = append(remaining, e)
	}
	q.ready = remaining
	return out
}

// Ack removes an in-flight message permanently.
func (q *MemoryQueue) Ack(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[id]; !ok {
		return fmt.Errorf("ack %s: message not in flight", id)
	}
	delete(q.inflight, id)
	return nil
}

// Fail reports a processing failure. The message is redelivered after the
// visibility delay, or dead-lettered when its receive count exceeds the
// configured maximum. It reports whether the message was dead-lettered.
func (q *MemoryQueue) Fail(id string) (bool, error) {
	q.mu.Lock()
	e, ok := q.inflight[id]
	if !ok {
		q.mu.Unlock()
		return false, fmt.Errorf("fail %s: message not in flight", id)
	}
	delete(q.inflight, id)
	if q.deadLetter != nil && e.msg.ReceiveCount > q.maxReceiveCount {
		q.mu.Unlock()
		return true, q.deadLetter.Publish(context.Background(), []byte(e.msg.Body), e.msg.Attributes)
	}
	e.visibleAt = q.nowFunc().Add(q.visibilityDelay)
	q.ready = append(q.ready, e)
	q.mu.Unlock()
	return false, nil
}

// MoveToDeadLetter dead-letters an in-flight message regardless of its
// receive count. Without a dead-letter queue it behaves like Fail.
func (q *MemoryQueue) MoveToDeadLetter(id string) error {
	q.mu.Lock()
	e, ok := q.inflight[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("dead-letter %s: message not in flight", id)
	}
	if q.deadLetter == nil {
		q.mu.Unlock()
		_, err := q.Fail(id)
		return err
	}
	delete(q.inflight, id)
	q.mu.Unlock()
	return q.deadLetter.Publish(context.Background(), []byte(e.msg.Body), e.msg.Attributes)
}

// Len counts messages not yet acked or dead-lettered.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.inflight)
}

func copyMessage(m Message) Message {
	attrs := make(map[string]string, len(m.Attributes))
	for k, v := range m.Attributes {
		attrs[k] = v
	}
	m.Attributes = attrs
	return m
}

// DrainStats summarizes one Drain call.
type DrainStats struct {
	Acked        int
	Retried      int
	DeadLettered int
}

// Total is the number of deliveries handled.
func (s DrainStats) Total() int { return s.Acked + s.Retried + s.DeadLettered }

// Drain delivers batches of up to batchSize visible messages to h until none
// are visible. Each message is settled on its own, so a failure never causes
// redelivery of the other messages in its batch.
func Drain(ctx context.Context, q *MemoryQueue, h Handler, batchSize int) (DrainStats, error) {
	var stats DrainStats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch := q.Receive(batchSize)
		if len(batch) == 0 {
			return stats, nil
		}
		for _, msg := range batch {
			res := dispatch(ctx, h, msg)
			switch res.Outcome {
			case OutcomeAck:
				stats.Acked++
				if err := q.Ack(msg.ID); err != nil {
					return stats, err
				}
			case OutcomeDeadLetter:
				stats.DeadLettered++
				if err := q.MoveToDeadLetter(msg.ID); err != nil {
					return stats, err
				}
			default:
				dead, err := q.Fail(msg.ID)
				if err != nil {
					return stats, err
				}
				if dead {
					stats.DeadLettered++
				} else {
					stats.Retried++
				}
			}
		}
	}
}
