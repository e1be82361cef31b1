package event

import (
	"log"
	"runtime/debug"
	"sync"
)

// Wildcard is the subscription key that matches every event type.
const Wildcard = "*"

// Handler receives published events.
type Handler func(Event)

// binding pairs a handler with the id returned from Subscribe.
type binding struct {
	id uint64
	fn Handler
}

// Bus is the synchronous in-process channel between the pipeline stages
// and the surfaces that report on them (log sink, printer). Publish runs
// every matching handler on the caller's goroutine before returning, so
// an event is fully delivered by the time the publisher moves on.
type Bus struct {
	mu     sync.RWMutex
	byType map[string][]binding
	lastID uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{byType: make(map[string][]binding)}
}

// Subscribe registers handler for one event type and returns an id that
// Unsubscribe accepts.
func (b *Bus) Subscribe(eventType string, handler Handler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastID++
	b.byType[eventType] = append(b.byType[eventType], binding{id: b.lastID, fn: handler})
	return b.lastID
}

// SubscribeAll registers handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) uint64 {
	return b.Subscribe(Wildcard, handler)
}

// Unsubscribe drops the subscription with the given id and reports
// whether it existed.
func (b *Bus) Unsubscribe(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, bindings := range b.byType {
		for i, bd := range bindings {
			if bd.id != id {
				continue
			}
			b.byType[eventType] = append(bindings[:i], bindings[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers ev to the handlers subscribed to its type, then to the
// wildcard handlers, in registration order within each group. The binding
// lists are snapshotted before dispatch and handlers run outside the
// lock, so a handler may subscribe or unsubscribe without deadlocking;
// subscriptions made mid-publish do not see the in-flight event.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	matched := snapshot(b.byType[ev.EventType()])
	wild := snapshot(b.byType[Wildcard])
	b.mu.RUnlock()

	for _, bd := range matched {
		deliver(bd.fn, ev)
	}
	for _, bd := range wild {
		deliver(bd.fn, ev)
	}
}

func snapshot(bindings []binding) []binding {
	out := make([]binding, len(bindings))
	copy(out, bindings)
	return out
}

// deliver runs one handler, absorbing a panic so the remaining handlers
// still receive the event.
func deliver(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: handler for %s panicked: %v\n%s", ev.EventType(), r, debug.Stack())
		}
	}()
	fn(ev)
}

// Clear drops every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType = make(map[string][]binding)
}

// Subscribers returns how many handlers are bound to eventType. Wildcard
// handlers count only under Wildcard itself.
func (b *Bus) Subscribers(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byType[eventType])
}

// SubscriptionCount returns the number of live subscriptions across all
// event types.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, bindings := range b.byType {
		n += len(bindings)
	}
	return n
}
