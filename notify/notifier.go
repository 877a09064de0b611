package notify

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
	"github.com/maxpert/regnode/telemetry"
)

// defaultSignalBufferSize is the buffer size for subscription channels.
// Subscribers that can't keep up will have events dropped (non-blocking send).
const defaultSignalBufferSize = 16

// Publisher accepts lifecycle events
type Publisher interface {
	Publish(ev Event)
}

// subscription represents a single subscriber.
type subscription struct {
	id       uint64
	patterns []glob.Glob
	ch       chan Event
	closed   atomic.Bool
}

// matches checks if the event type matches this subscription's patterns.
func (s *subscription) matches(t EventType) bool {
	// no patterns = all events
	if len(s.patterns) == 0 {
		return true
	}

	for _, g := range s.patterns {
		if g.Match(string(t)) {
			return true
		}
	}
	return false
}

// close closes the subscription channel if not already closed.
func (s *subscription) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// Hub fans lifecycle events out to subscribers.
// Each subscriber receives events in publish order.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[uint64]*subscription
	nextID        atomic.Uint64
	bufferSize    int
}

// NewHub creates a new event hub. bufferSize <= 0 uses the default.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultSignalBufferSize
	}
	return &Hub{
		subscriptions: make(map[uint64]*subscription),
		bufferSize:    bufferSize,
	}
}

// Publish sends ev to all matching subscribers (non-blocking).
func (h *Hub) Publish(ev Event) {
	telemetry.EventsPublishedTotal.With(string(ev.Type)).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		if !sub.matches(ev.Type) {
			continue
		}

		// Non-blocking send - drop if buffer full
		select {
		case sub.ch <- ev:
		default:
			telemetry.EventsDroppedTotal.Inc()
		}
	}
}

// Subscribe creates a subscription for event types matching any of the glob
// patterns (no patterns = all events). The cancel function is idempotent and
// closes the returned channel.
func (h *Hub) Subscribe(patterns ...string) (<-chan Event, func(), error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, nil, fmt.Errorf("invalid event pattern %q: %w", p, err)
		}
		compiled = append(compiled, g)
	}

	sub := &subscription{
		id:       h.nextID.Add(1),
		patterns: compiled,
		ch:       make(chan Event, h.bufferSize),
	}

	h.mu.Lock()
	h.subscriptions[sub.id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.unsubscribe(sub.id)
	}

	return sub.ch, cancel, nil
}

// unsubscribe removes a subscription and closes its channel.
func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscriptions[id]
	if ok {
		delete(h.subscriptions, id)
	}
	h.mu.Unlock()

	if ok {
		sub.close()
	}
}
