// Package store is the single source of truth for the conversation
// list and per-conversation message windows. REST fetches, the cache
// and live push all feed it; it reconciles them by message id, so the
// rendered list never holds the same message twice no matter which
// path delivered it first.
package store

import (
	"context"
	"sync"
	"time"

	"classwire/internal/cache"
	"classwire/internal/logger"
	"classwire/internal/rest"
	"classwire/pkg/types"
)

// Store holds client-side messaging state. All mutation goes through
// its methods; the channel and UI layers never touch the data directly.
type Store struct {
	api           *rest.Client
	cache         *cache.Store
	log           logger.Logger
	currentUserID int64
	convTTL       time.Duration
	msgTTL        time.Duration

	mu            sync.RWMutex
	conversations []types.Conversation
	messages      map[int64][]types.Message
	index         map[int64]map[int64]struct{} // conversation -> message id set
	hasMore       map[int64]bool
	page          map[int64]int
	loading       map[int64]bool
	convLoading   bool
	convErr       string
	msgErr        map[int64]string
}

// New creates an empty store for the given current user. cache may be
// nil when persistence is unavailable; the store then works purely
// in memory.
func New(api *rest.Client, cacheStore *cache.Store, currentUserID int64, convTTL, msgTTL time.Duration, log logger.Logger) *Store {
	return &Store{
		api:           api,
		cache:         cacheStore,
		log:           log,
		currentUserID: currentUserID,
		convTTL:       convTTL,
		msgTTL:        msgTTL,
		messages:      make(map[int64][]types.Message),
		index:         make(map[int64]map[int64]struct{}),
		hasMore:       make(map[int64]bool),
		page:          make(map[int64]int),
		loading:       make(map[int64]bool),
		msgErr:        make(map[int64]string),
	}
}

// PrimeFromCache pre-populates conversation and message state from the
// persistent cache so a remount renders immediately while the network
// fetch revalidates. A miss is silent.
func (s *Store) PrimeFromCache(conversationID int64) {
	if s.cache == nil {
		return
	}

	var convs []types.Conversation
	if ok, err := s.cache.Get(cache.ConversationsKey, s.convTTL, &convs); err == nil && ok {
		s.mu.Lock()
		if s.conversations == nil {
			s.conversations = convs
		}
		s.mu.Unlock()
	}

	if conversationID > 0 {
		var msgs []types.Message
		if ok, err := s.cache.Get(cache.MessagesKey(conversationID), s.msgTTL, &msgs); err == nil && ok {
			s.mu.Lock()
			if len(s.messages[conversationID]) == 0 {
				s.setWindowLocked(conversationID, msgs)
			}
			s.mu.Unlock()
		}
	}
}

// FetchConversations replaces the conversation list from REST. On
// failure previously loaded data stays visible and the error is
// surfaced through ConversationsError.
func (s *Store) FetchConversations(ctx context.Context) error {
	s.mu.Lock()
	if s.convLoading {
		s.mu.Unlock()
		return ErrLoadInFlight
	}
	s.convLoading = true
	s.mu.Unlock()

	page, err := s.api.Conversations(ctx)

	s.mu.Lock()
	s.convLoading = false
	if err != nil {
		s.convErr = err.Error()
		s.mu.Unlock()
		s.log.Warn("fetching conversations: %v", err)
		return err
	}
	s.conversations = page.Results
	s.convErr = ""
	s.mu.Unlock()

	if s.cache != nil {
		if cerr := s.cache.Put(cache.ConversationsKey, page.Results); cerr != nil {
			s.log.Warn("caching conversations: %v", cerr)
		}
	}
	return nil
}

// CreateConversation creates a conversation and inserts it at the head
// of the list.
func (s *Store) CreateConversation(ctx context.Context, req rest.CreateConversationRequest) (types.Conversation, error) {
	conv, err := s.api.CreateConversation(ctx, req)
	if err != nil {
		return conv, err
	}

	s.mu.Lock()
	s.conversations = append([]types.Conversation{conv}, s.conversations...)
	snapshot := make([]types.Conversation, len(s.conversations))
	copy(snapshot, s.conversations)
	s.mu.Unlock()

	if s.cache != nil {
		if cerr := s.cache.Put(cache.ConversationsKey, snapshot); cerr != nil {
			s.log.Warn("caching conversations: %v", cerr)
		}
	}
	return conv, nil
}

// FetchMessages loads one page. Page 1 replaces the visible window and
// refreshes the cache; higher pages prepend older messages. Overlapping
// loads for the same conversation are rejected so polling can never
// stack requests.
func (s *Store) FetchMessages(ctx context.Context, conversationID int64, pageNum int) error {
	if pageNum < 1 {
		pageNum = 1
	}

	s.mu.Lock()
	if s.loading[conversationID] {
		s.mu.Unlock()
		return ErrLoadInFlight
	}
	s.loading[conversationID] = true
	s.mu.Unlock()

	page, err := s.api.Messages(ctx, conversationID, pageNum)

	s.mu.Lock()
	s.loading[conversationID] = false
	if err != nil {
		s.msgErr[conversationID] = err.Error()
		s.mu.Unlock()
		s.log.Warn("fetching messages for conversation %d: %v", conversationID, err)
		return err
	}

	if pageNum == 1 {
		s.setWindowLocked(conversationID, page.Results)
	} else {
		s.prependOlderLocked(conversationID, page.Results)
	}
	s.hasMore[conversationID] = page.HasMore()
	s.page[conversationID] = pageNum
	s.msgErr[conversationID] = ""
	var snapshot []types.Message
	if pageNum == 1 {
		snapshot = make([]types.Message, len(s.messages[conversationID]))
		copy(snapshot, s.messages[conversationID])
	}
	s.mu.Unlock()

	if pageNum == 1 && s.cache != nil {
		if cerr := s.cache.Put(cache.MessagesKey(conversationID), snapshot); cerr != nil {
			s.log.Warn("caching messages for conversation %d: %v", conversationID, cerr)
		}
	}
	return nil
}

// LoadOlder fetches the next older page when the response said more
// exist.
func (s *Store) LoadOlder(ctx context.Context, conversationID int64) error {
	s.mu.RLock()
	more := s.hasMore[conversationID]
	next := s.page[conversationID] + 1
	s.mu.RUnlock()
	if !more {
		return nil
	}
	return s.FetchMessages(ctx, conversationID, next)
}

// SendMessage persists via REST and applies the returned message
// optimistically, without waiting for the push echo. The conversation's
// message cache is invalidated rather than patched: the server copy now
// owns ids and timestamps.
func (s *Store) SendMessage(ctx context.Context, req rest.SendMessageRequest) (types.Message, error) {
	msg, err := s.api.SendMessage(ctx, req)
	if err != nil {
		s.mu.Lock()
		s.msgErr[req.Conversation] = err.Error()
		s.mu.Unlock()
		return msg, err
	}

	s.ApplyIncoming(msg)

	if s.cache != nil {
		if cerr := s.cache.Delete(cache.MessagesKey(req.Conversation)); cerr != nil {
			s.log.Warn("invalidating message cache for conversation %d: %v", req.Conversation, cerr)
		}
	}
	return msg, nil
}

// ApplyIncoming merges one message delivered by push, polling or an
// optimistic send. Messages already known by id are dropped. The
// conversation's last-message snapshot always updates; unread only
// grows for messages from other users.
func (s *Store) ApplyIncoming(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.index[msg.Conversation]
	if ids == nil {
		ids = make(map[int64]struct{})
		s.index[msg.Conversation] = ids
	}
	if _, dup := ids[msg.ID]; dup {
		return
	}
	ids[msg.ID] = struct{}{}
	s.messages[msg.Conversation] = append(s.messages[msg.Conversation], msg)

	for i := range s.conversations {
		if s.conversations[i].ID != msg.Conversation {
			continue
		}
		snapshot := msg
		s.conversations[i].LastMessage = &snapshot
		if msg.Sender.ID != s.currentUserID {
			s.conversations[i].UnreadCount++
		}
		break
	}
}

// ApplyReaction records a pushed reaction on the referenced message.
func (s *Store) ApplyReaction(conversationID, messageID int64, reaction string, user types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].AddReaction(reaction, user.ID)
			return
		}
	}
}

// AddReaction persists a reaction via REST and applies it locally.
func (s *Store) AddReaction(ctx context.Context, conversationID, messageID int64, reaction string) error {
	if err := s.api.AddReaction(ctx, messageID, reaction); err != nil {
		return err
	}
	s.ApplyReaction(conversationID, messageID, reaction, types.User{ID: s.currentUserID})
	return nil
}

// MarkRead acknowledges every unread foreign message in the
// conversation and resets its unread counter. Only this explicit action
// resets the counter. A conversation the store has never seen, by list
// or by message window, reports ErrUnknownConversation.
func (s *Store) MarkRead(ctx context.Context, conversationID int64) error {
	s.mu.RLock()
	_, known := s.messages[conversationID]
	for _, c := range s.conversations {
		if c.ID == conversationID {
			known = true
			break
		}
	}
	var unread []int64
	for _, m := range s.messages[conversationID] {
		if !m.Read && m.Sender.ID != s.currentUserID {
			unread = append(unread, m.ID)
		}
	}
	s.mu.RUnlock()
	if !known {
		return ErrUnknownConversation
	}

	for _, id := range unread {
		if err := s.api.MarkMessageRead(ctx, id); err != nil {
			return err
		}
	}

	s.mu.Lock()
	msgs := s.messages[conversationID]
	for i := range msgs {
		msgs[i].Read = true
	}
	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].UnreadCount = 0
			break
		}
	}
	s.mu.Unlock()
	return nil
}

// AddParticipants updates a group conversation's membership via REST
// and mirrors it locally.
func (s *Store) AddParticipants(ctx context.Context, conversationID int64, users []types.User) error {
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	if err := s.api.AddParticipants(ctx, conversationID, ids); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].ID != conversationID {
			continue
		}
	Next:
		for _, u := range users {
			for _, existing := range s.conversations[i].Participants {
				if existing.ID == u.ID {
					continue Next
				}
			}
			s.conversations[i].Participants = append(s.conversations[i].Participants, u)
		}
		break
	}
	return nil
}

// RemoveParticipants removes users from a group conversation.
func (s *Store) RemoveParticipants(ctx context.Context, conversationID int64, userIDs []int64) error {
	if err := s.api.RemoveParticipants(ctx, conversationID, userIDs); err != nil {
		return err
	}

	drop := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].ID != conversationID {
			continue
		}
		kept := s.conversations[i].Participants[:0]
		for _, u := range s.conversations[i].Participants {
			if _, gone := drop[u.ID]; !gone {
				kept = append(kept, u)
			}
		}
		s.conversations[i].Participants = kept
		break
	}
	return nil
}

// Forget drops a conversation's message window and bookkeeping. Called
// on scope change so stale state never bleeds into the next scope.
func (s *Store) Forget(conversationID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, conversationID)
	delete(s.index, conversationID)
	delete(s.hasMore, conversationID)
	delete(s.page, conversationID)
	delete(s.loading, conversationID)
	delete(s.msgErr, conversationID)
}

// Conversations returns a copy of the conversation list.
func (s *Store) Conversations() []types.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Conversation returns one conversation by id.
func (s *Store) Conversation(id int64) (types.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conversations {
		if c.ID == id {
			return c, true
		}
	}
	return types.Conversation{}, false
}

// Messages returns a copy of the conversation's visible window, oldest
// first.
func (s *Store) Messages(conversationID int64) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	return out
}

// HasMore reports whether older pages remain.
func (s *Store) HasMore(conversationID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore[conversationID]
}

// Loading reports whether a message load is in flight.
func (s *Store) Loading(conversationID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading[conversationID]
}

// ConversationsError returns the last conversation-list fetch error, or
// empty.
func (s *Store) ConversationsError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.convErr
}

// MessagesError returns the last message fetch/send error for the
// conversation, or empty.
func (s *Store) MessagesError(conversationID int64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.msgErr[conversationID]
}

// setWindowLocked replaces the visible window, rebuilding the id index.
// Caller holds s.mu.
func (s *Store) setWindowLocked(conversationID int64, msgs []types.Message) {
	ids := make(map[int64]struct{}, len(msgs))
	window := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		window = append(window, m)
	}
	s.messages[conversationID] = window
	s.index[conversationID] = ids
}

// prependOlderLocked inserts an older page before the current window,
// skipping ids already present. Caller holds s.mu.
func (s *Store) prependOlderLocked(conversationID int64, older []types.Message) {
	ids := s.index[conversationID]
	if ids == nil {
		ids = make(map[int64]struct{})
		s.index[conversationID] = ids
	}
	fresh := make([]types.Message, 0, len(older))
	for _, m := range older {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	s.messages[conversationID] = append(fresh, s.messages[conversationID]...)
}
