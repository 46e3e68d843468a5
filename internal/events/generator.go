package events

import (
	"sync"
	"time"

	"mcpbridge/pkg/logging"
)

// Subscriber receives emitted events. Handlers must be fast; slow consumers
// should buffer on their own side.
type Subscriber func(Event)

// Generator fans lifecycle events out to subscribers. It keeps no event
// history and never blocks an emitter: a panicking subscriber is recovered
// and logged.
//
// A nil *Generator is safe to emit on, so components can treat event wiring
// as optional.
type Generator struct {
	mu          sync.RWMutex
	subscribers []Subscriber
}

// NewGenerator creates an event generator with no subscribers.
func NewGenerator() *Generator {
	return &Generator{}
}

// Subscribe registers a handler for all subsequent events.
func (g *Generator) Subscribe(s Subscriber) {
	if g == nil || s == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribers = append(g.subscribers, s)
}

// Emit delivers an event with the given reason to every subscriber. The
// event type (Normal or Warning) is derived from the reason.
func (g *Generator) Emit(reason EventReason, data EventData) {
	if g == nil {
		return
	}

	event := Event{
		Timestamp: time.Now(),
		Type:      eventTypeFor(reason),
		Reason:    reason,
		Data:      data,
	}

	g.mu.RLock()
	subscribers := make([]Subscriber, len(g.subscribers))
	copy(subscribers, g.subscribers)
	g.mu.RUnlock()

	for _, s := range subscribers {
		g.deliver(s, event)
	}
}

func (g *Generator) deliver(s Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Events", "Subscriber panicked handling %s: %v", event.Reason, r)
		}
	}()
	s(event)
}
