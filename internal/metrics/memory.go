package metrics

import (
	"context"
	"sync"
)

// Memory keeps counts in process. The local simulation prints them at the end.
type Memory struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewMemory() *Memory {
	return &Memory{counts: map[string]int{}}
}

func (m *Memory) Count(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	return nil
}

// Get returns the current count for name.
func (m *Memory) Get(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

// Snapshot copies all counts.
func (m *Memory) Snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}
