// Package events implements the per-channel dispatcher that decouples
// the channel transport from the store, typing and notification
// consumers.
package events

import (
	"sync"

	"classwire/internal/logger"
	"classwire/pkg/types"
)

// Type names one kind of channel event.
type Type string

const (
	Message       Type = "message"
	Typing        Type = "typing"
	StoppedTyping Type = "stopped_typing"
	Reaction      Type = "reaction"
	Connected     Type = "connected"
	Disconnected  Type = "disconnected"
	Error         Type = "error"
)

// TypingUpdate is the payload of Typing / StoppedTyping events.
type TypingUpdate struct {
	UserID   int64
	Username string
}

// ReactionUpdate is the payload of Reaction events.
type ReactionUpdate struct {
	MessageID int64
	Reaction  string
	User      types.User
}

// Event is the closed payload union delivered to subscribers. Exactly
// the field matching Type is set.
type Event struct {
	Type     Type
	Scope    types.Scope
	Message  *types.Message
	Typing   *TypingUpdate
	Reaction *ReactionUpdate
	Code     int   // Disconnected close code
	Err      error // Error events
}

// Handler consumes one event.
type Handler func(Event)

type subscriber struct {
	id uint64
	fn Handler
}

// Dispatcher is an ordered per-channel callback registry. Handlers run
// synchronously in registration order; a panicking handler is logged
// and never stops the remaining handlers or the emitter.
type Dispatcher struct {
	log logger.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[Type][]subscriber
}

// NewDispatcher creates an empty registry.
func NewDispatcher(log logger.Logger) *Dispatcher {
	return &Dispatcher{
		log:  log,
		subs: make(map[Type][]subscriber),
	}
}

// On registers fn for event and returns the id used to remove it.
// Registering the same function twice yields two invocations; call Off
// first when re-registering.
func (d *Dispatcher) On(event Type, fn Handler) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.subs[event] = append(d.subs[event], subscriber{id: d.nextID, fn: fn})
	return d.nextID
}

// Off removes the subscription with the given id. Unknown ids are a
// no-op.
func (d *Dispatcher) Off(event Type, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subs[event]
	for i, s := range subs {
		if s.id == id {
			d.subs[event] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Emit invokes every handler registered for e.Type, in registration
// order.
func (d *Dispatcher) Emit(e Event) {
	d.mu.Lock()
	subs := d.subs[e.Type]
	snapshot := make([]subscriber, len(subs))
	copy(snapshot, subs)
	d.mu.Unlock()

	for _, s := range snapshot {
		d.invoke(s, e)
	}
}

func (d *Dispatcher) invoke(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event handler panic on %s: %v", e.Type, r)
		}
	}()
	s.fn(e)
}
