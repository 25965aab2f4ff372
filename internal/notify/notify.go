// Package notify aggregates push-delivered and REST-fetched
// notifications into a bounded, time-decaying visible queue with a
// separate unread counter.
package notify

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"classwire/internal/logger"
	"classwire/internal/rest"
	"classwire/pkg/types"
)

// SoundPlayer plays the notification sound. Failures are swallowed.
type SoundPlayer interface {
	Play() error
}

// SystemNotifier raises a platform-level notification. The tag is
// derived from the origin scope so repeated notifications for one scope
// replace instead of stacking. Implementations are only installed when
// the platform permission was granted.
type SystemNotifier interface {
	Notify(tag, title, body string) error
}

// Surface is the on-screen notification queue.
type Surface struct {
	api           *rest.Client
	log           logger.Logger
	currentUserID int64
	visibleCap    int
	displayTTL    time.Duration
	sound         SoundPlayer
	system        SystemNotifier

	mu      sync.Mutex
	visible []types.Notification
	counted map[string]struct{} // ids already in the unread count
	unread  int
	timers  map[string]*time.Timer
	closed  bool
}

// New creates an empty surface. sound and system may be nil.
func New(api *rest.Client, currentUserID int64, visibleCap int, displayTTL time.Duration, sound SoundPlayer, system SystemNotifier, log logger.Logger) *Surface {
	return &Surface{
		api:           api,
		log:           log,
		currentUserID: currentUserID,
		visibleCap:    visibleCap,
		displayTTL:    displayTTL,
		sound:         sound,
		system:        system,
		counted:       make(map[string]struct{}),
		timers:        make(map[string]*time.Timer),
	}
}

// LoadUnread merges the backend's unread notifications into the
// surface. Fetch failures are logged; the surface keeps whatever it
// already shows.
func (s *Surface) LoadUnread(ctx context.Context) error {
	notifications, err := s.api.Notifications(ctx)
	if err != nil {
		s.log.Warn("loading notifications: %v", err)
		return err
	}
	for _, n := range notifications {
		if !n.Read {
			s.Push(n)
		}
	}
	return nil
}

// HandleMessage turns a pushed chat message into a notification unless
// the current user sent it.
func (s *Surface) HandleMessage(msg types.Message, scope types.Scope) {
	if msg.Sender.ID == s.currentUserID {
		return
	}
	s.Push(types.Notification{
		ID:        uuid.NewString(),
		Title:     msg.Sender.DisplayName(),
		Body:      msg.Content,
		Scope:     scope,
		CreatedAt: time.Now(),
	})
}

// Push inserts a notification at the head of the visible queue, capped
// to the most recent entries, bumps the unread counter and fires the
// side effects. The entry auto-expires from view after the display
// timeout regardless of read state. An id the surface has counted
// before is dropped even after it left the visible queue, so a
// re-fetch of still-unread backend notifications never counts one
// twice.
func (s *Surface) Push(n types.Notification) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, seen := s.counted[n.ID]; seen {
		s.mu.Unlock()
		return
	}
	s.counted[n.ID] = struct{}{}
	s.visible = append([]types.Notification{n}, s.visible...)
	if len(s.visible) > s.visibleCap {
		for _, dropped := range s.visible[s.visibleCap:] {
			s.cancelTimerLocked(dropped.ID)
		}
		s.visible = s.visible[:s.visibleCap]
	}
	s.unread++
	id := n.ID
	s.timers[id] = time.AfterFunc(s.displayTTL, func() { s.expire(id) })
	s.mu.Unlock()

	if s.sound != nil {
		// Best effort; a blocked or missing sound is not an error.
		if err := s.sound.Play(); err != nil {
			s.log.Debug("notification sound: %v", err)
		}
	}
	if s.system != nil {
		tag := "chat-" + strconv.FormatInt(n.Scope.ID, 10)
		if err := s.system.Notify(tag, n.Title, n.Body); err != nil {
			s.log.Debug("system notification: %v", err)
		}
	}
}

// Dismiss removes the entry from view without touching the unread
// counter.
func (s *Surface) Dismiss(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// MarkRead acknowledges the entry: server-side when it has a backend
// id, then locally, decrementing the unread counter.
func (s *Surface) MarkRead(ctx context.Context, id string) error {
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		if err := s.api.MarkNotificationRead(ctx, id); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
	if s.unread > 0 {
		s.unread--
	}
	return nil
}

// Visible returns a copy of the on-screen queue, newest first.
func (s *Surface) Visible() []types.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Notification, len(s.visible))
	copy(out, s.visible)
	return out
}

// Unread returns the unread counter, which only explicit MarkRead
// decrements.
func (s *Surface) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Close cancels every pending expiry timer.
func (s *Surface) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.visible = nil
}

func (s *Surface) expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Surface) removeLocked(id string) {
	s.cancelTimerLocked(id)
	for i, n := range s.visible {
		if n.ID == id {
			s.visible = append(s.visible[:i], s.visible[i+1:]...)
			return
		}
	}
}

func (s *Surface) cancelTimerLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}
