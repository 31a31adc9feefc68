package queue

import (
	"context"
	"sync"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
)

func correlationFrom(ctx context.Context) string { return correlation.FromContext(ctx) }

// recordingPublisher captures published messages.
type recordingPublisher struct {
	mu   sync.Mutex
	sent []publishedMessage
	err  error
}

type publishedMessage struct {
	body  string
	attrs map[string]string
}

func (p *recordingPublisher) Publish(_ context.Context, body []byte, attrs map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, publishedMessage{body: string(body), attrs: attrs})
	return nil
}
