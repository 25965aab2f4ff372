package channel

import (
	"context"
	"sync"

	"classwire/internal/events"
	"classwire/internal/logger"
	"classwire/pkg/types"
)

// Manager tracks at most one channel per scope. Opening a scope that is
// already open tears the previous transport down first. A Manager is
// owned by whichever view needs live updates, not shared process-wide,
// so closing it cannot leak into other views.
type Manager struct {
	opts Options
	log  logger.Logger

	mu       sync.Mutex
	channels map[types.Scope]*Channel
	closed   bool
}

// NewManager creates an empty manager using opts for every channel.
func NewManager(opts Options, log logger.Logger) *Manager {
	return &Manager{
		opts:     opts,
		log:      log,
		channels: make(map[types.Scope]*Channel),
	}
}

// Connect opens (or replaces) the channel for scope and returns it. The
// returned channel's dispatcher is where consumers subscribe.
func (m *Manager) Connect(ctx context.Context, scope types.Scope, token string) (*Channel, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrChannelClosed
	}
	if prev, ok := m.channels[scope]; ok {
		delete(m.channels, scope)
		m.mu.Unlock()
		prev.Close()
		m.mu.Lock()
	}

	ch, err := New(scope, token, m.opts, events.NewDispatcher(m.log), m.log)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.channels[scope] = ch
	m.mu.Unlock()

	if err := ch.Connect(ctx); err != nil {
		// The channel keeps retrying on its own; hand it back anyway.
		return ch, err
	}
	return ch, nil
}

// Get returns the channel for scope, if open.
func (m *Manager) Get(scope types.Scope) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[scope]
	return ch, ok
}

// Send queues frame on the scope's channel.
func (m *Manager) Send(scope types.Scope, frame interface{}) error {
	ch, ok := m.Get(scope)
	if !ok {
		m.log.Warn("send on unopened scope %v dropped", scope)
		return ErrNotConnected
	}
	return ch.Send(frame)
}

// Disconnect closes the scope's channel and forgets it.
func (m *Manager) Disconnect(scope types.Scope) {
	m.mu.Lock()
	ch, ok := m.channels[scope]
	delete(m.channels, scope)
	m.mu.Unlock()
	if ok {
		ch.Close()
	}
}

// Close tears down every channel. Used on unmount.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	channels := make([]*Channel, 0, len(m.channels))
	for _, ch := range m.channels {
		channels = append(channels, ch)
	}
	m.channels = nil
	m.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
}
