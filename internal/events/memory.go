// internal/events/memory.go
package events

import (
	"context"
	"sync"
	"time"
)

// MemoryEmitter keeps events in memory and fans them out to subscribed
// handlers. Used in tests and single-process development runs.
type MemoryEmitter struct {
	mu       sync.Mutex
	events   []Event
	handlers []func(Event)
}

func NewMemoryEmitter() *MemoryEmitter {
	return &MemoryEmitter{}
}

func (m *MemoryEmitter) Emit(ctx context.Context, e Event) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	m.mu.Lock()
	m.events = append(m.events, e)
	handlers := append([]func(Event){}, m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(e)
	}
	return nil
}

// Subscribe registers a handler for every future event.
func (m *MemoryEmitter) Subscribe(handler func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Events returns a copy of everything emitted so far.
func (m *MemoryEmitter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MemoryEmitter) Close() error { return nil }

var _ Emitter = (*MemoryEmitter)(nil)
