// Package typing coordinates typing indicators in both directions:
// debounced start/stop signaling for the local user and expiring
// per-user state for remote ones.
package typing

import (
	"sort"
	"sync"
	"time"

	"classwire/pkg/types"
)

// SendFunc queues one frame on the live channel.
type SendFunc func(frame interface{}) error

// Sender debounces the local user's keystrokes into at most one
// typing_start per idle-to-typing transition, and auto-stops after the
// idle timeout, on explicit stop, or when a message is sent.
type Sender struct {
	send        SendFunc
	idleTimeout time.Duration

	mu     sync.Mutex
	active bool
	timer  *time.Timer
	closed bool
}

// NewSender creates an idle sender.
func NewSender(send SendFunc, idleTimeout time.Duration) *Sender {
	return &Sender{send: send, idleTimeout: idleTimeout}
}

// Keystroke notes input activity. The first keystroke of a burst emits
// typing_start; every keystroke while typing only resets the idle
// timer.
func (s *Sender) Keystroke() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	wasIdle := !s.active
	s.active = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.idleTimeout, s.idleExpired)
	s.mu.Unlock()

	if wasIdle {
		_ = s.send(types.TypingFrame{Type: types.FrameTypingStart})
	}
}

// Stop ends the typing state and emits typing_stop if one was active.
func (s *Sender) Stop() {
	s.mu.Lock()
	if s.closed || !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	_ = s.send(types.TypingFrame{Type: types.FrameTypingStop})
}

// MessageSent is called after the user sends a message; sending ends
// the typing state.
func (s *Sender) MessageSent() { s.Stop() }

// Active reports whether a typing burst is in progress.
func (s *Sender) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Close cancels the idle timer without signaling. Scope teardown path.
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.active = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Sender) idleExpired() {
	s.Stop()
}

type entry struct {
	username string
	gen      uint64
	timer    *time.Timer
}

// Tracker holds which remote users are typing. An entry leaves when its
// stop signal arrives or its own expiry elapses, whichever happens
// first, so a lost stop frame cannot wedge the indicator.
type Tracker struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[int64]*entry
	closed  bool
}

// NewTracker creates an empty tracker whose entries expire after ttl.
func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{ttl: ttl, entries: make(map[int64]*entry)}
}

// Start records that userID is typing, resetting the expiry if already
// present. Each reset bumps the entry's generation so an expiry timer
// that already fired for the previous deadline cannot remove the
// refreshed entry.
func (t *Tracker) Start(userID int64, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if e, ok := t.entries[userID]; ok {
		e.timer.Stop()
		e.username = username
		e.gen++
		gen := e.gen
		e.timer = time.AfterFunc(t.ttl, func() { t.expire(userID, gen) })
		return
	}
	e := &entry{username: username}
	t.entries[userID] = e
	gen := e.gen
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(userID, gen) })
}

// Stop removes userID's entry on an explicit stop signal.
func (t *Tracker) Stop(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[userID]; ok {
		e.timer.Stop()
		delete(t.entries, userID)
	}
}

func (t *Tracker) expire(userID int64, gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[userID]; ok && e.gen == gen {
		delete(t.entries, userID)
	}
}

// Users returns the display names currently typing, sorted.
func (t *Tracker) Users() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.username)
	}
	sort.Strings(out)
	return out
}

// Close drops all entries and their timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, id)
	}
}
