// Package poller re-fetches a conversation's first message page on a
// fixed interval. It is the fallback delivery path when push is
// disabled or not yet trusted; it feeds the same de-duplicating store
// as the live channel, so both paths are treated as unordered,
// possibly-duplicate sources.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"classwire/internal/logger"
	"classwire/internal/store"
)

// Poller periodically refreshes one conversation. Start/Stop pairs are
// tied to scope lifetime; Stop always clears the interval and a stopped
// poller never fires again.
type Poller struct {
	store    *store.Store
	interval time.Duration
	log      logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// New creates a stopped poller.
func New(st *store.Store, interval time.Duration, log logger.Logger) *Poller {
	return &Poller{store: st, interval: interval, log: log}
}

// Start begins polling conversationID until Stop or ctx cancellation.
// Starting an already-running poller restarts it on the new scope.
func (p *Poller) Start(ctx context.Context, conversationID int64) {
	p.mu.Lock()
	if p.running {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	go p.run(ctx, conversationID)
}

// Stop clears the interval. Safe to call repeatedly.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		p.cancel()
		p.running = false
	}
}

// Running reports whether the poller is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) run(ctx context.Context, conversationID int64) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Never stack requests: an in-flight load skips the tick.
			if p.store.Loading(conversationID) {
				continue
			}
			if err := p.store.FetchMessages(ctx, conversationID, 1); err != nil {
				if errors.Is(err, store.ErrLoadInFlight) || errors.Is(err, context.Canceled) {
					continue
				}
				p.log.Warn("polling conversation %d: %v", conversationID, err)
			}
		case <-ctx.Done():
			return
		}
	}
}
