package client

import (
	"context"
	"strings"

	"classwire/internal/channel"
	"classwire/internal/events"
	"classwire/internal/poller"
	"classwire/internal/rest"
	"classwire/internal/typing"
	"classwire/pkg/types"
)

// SessionOptions tunes one open scope.
type SessionOptions struct {
	// Polling enables the REST fallback alongside the live channel.
	Polling bool
}

// Session binds one active scope: its channel, typing state and
// optional polling fallback. Close is the single cancellation signal;
// after it, no timer or callback of this session can touch state for
// another scope.
type Session struct {
	client  *Client
	scope   types.Scope
	channel *channel.Channel
	sender  *typing.Sender
	tracker *typing.Tracker
	poll    *poller.Poller
	subs    map[events.Type]uint64
	cancel  context.CancelFunc
}

// Open connects a scope and wires its events into the store, typing
// tracker and notification surface. The initial page-1 fetch runs
// before connecting; its failure is surfaced through the store's error
// state, not fatal here, so a flaky network still yields a usable view
// of cached data.
func (c *Client) Open(ctx context.Context, scope types.Scope, opts SessionOptions) (*Session, error) {
	if !scope.Valid() {
		return nil, types.ErrInvalidScope
	}

	sctx, cancel := context.WithCancel(ctx)

	c.store.PrimeFromCache(scope.ID)
	if err := c.store.FetchMessages(sctx, scope.ID, 1); err != nil {
		c.log.Warn("initial fetch for scope %v: %v", scope, err)
	}

	ch, err := c.channels.Connect(sctx, scope, c.token.AccessToken())
	if err != nil && ch == nil {
		cancel()
		return nil, err
	}

	s := &Session{
		client:  c,
		scope:   scope,
		channel: ch,
		sender:  typing.NewSender(ch.Send, c.cfg.Typing.IdleTimeout),
		tracker: typing.NewTracker(2 * c.cfg.Typing.IdleTimeout),
		poll:    poller.New(c.store, c.cfg.Polling.Interval, c.log),
		subs:    make(map[events.Type]uint64),
		cancel:  cancel,
	}
	s.wire()

	if opts.Polling {
		s.poll.Start(sctx, scope.ID)
	}
	return s, nil
}

// wire subscribes the session's consumers on the channel dispatcher.
// Every handler checks against the session scope before applying,
// so a late event from a replaced transport cannot leak across scopes.
func (s *Session) wire() {
	d := s.channel.Dispatcher()
	scope := s.scope

	s.subs[events.Message] = d.On(events.Message, func(e events.Event) {
		if e.Scope != scope || e.Message == nil {
			return
		}
		msg := *e.Message
		if msg.Conversation == 0 {
			msg.Conversation = scope.ID
		}
		s.client.store.ApplyIncoming(msg)
		s.client.notify.HandleMessage(msg, scope)
	})

	s.subs[events.Typing] = d.On(events.Typing, func(e events.Event) {
		if e.Scope != scope || e.Typing == nil {
			return
		}
		s.tracker.Start(e.Typing.UserID, e.Typing.Username)
	})

	s.subs[events.StoppedTyping] = d.On(events.StoppedTyping, func(e events.Event) {
		if e.Scope != scope || e.Typing == nil {
			return
		}
		s.tracker.Stop(e.Typing.UserID)
	})

	s.subs[events.Reaction] = d.On(events.Reaction, func(e events.Event) {
		if e.Scope != scope || e.Reaction == nil {
			return
		}
		s.client.store.ApplyReaction(scope.ID, e.Reaction.MessageID, e.Reaction.Reaction, e.Reaction.User)
	})

	s.subs[events.Error] = d.On(events.Error, func(e events.Event) {
		if e.Scope != scope {
			return
		}
		s.client.log.Warn("channel %v: %v", scope, e.Err)
	})
}

// Scope returns the scope this session serves.
func (s *Session) Scope() types.Scope { return s.scope }

// State returns the live channel's connection state.
func (s *Session) State() types.ConnectionState { return s.channel.State() }

// Send persists the message over REST, applies it optimistically and
// ends the local typing state. Blank content is rejected before any
// request is made.
func (s *Session) Send(ctx context.Context, content string) (types.Message, error) {
	if strings.TrimSpace(content) == "" {
		return types.Message{}, types.ErrEmptyContent
	}
	return s.sendRequest(ctx, rest.SendMessageRequest{
		Conversation: s.scope.ID,
		Content:      content,
	})
}

// SendFile sends a file message with its metadata.
func (s *Session) SendFile(ctx context.Context, content, fileURL, fileName string, fileSize int64) (types.Message, error) {
	return s.sendRequest(ctx, rest.SendMessageRequest{
		Conversation: s.scope.ID,
		Content:      content,
		MessageType:  types.MessageTypeFile,
		FileURL:      fileURL,
		FileName:     fileName,
		FileSize:     fileSize,
	})
}

func (s *Session) sendRequest(ctx context.Context, req rest.SendMessageRequest) (types.Message, error) {
	msg, err := s.client.store.SendMessage(ctx, req)
	if err != nil {
		return msg, err
	}
	s.sender.MessageSent()
	return msg, nil
}

// Keystroke reports local input activity for the typing indicator.
func (s *Session) Keystroke() { s.sender.Keystroke() }

// StopTyping explicitly ends the local typing state.
func (s *Session) StopTyping() { s.sender.Stop() }

// TypingUsers returns who is currently typing in this scope.
func (s *Session) TypingUsers() []string { return s.tracker.Users() }

// React records a reaction over REST and signals it on the live
// channel; channel failures are logged, the REST write is authoritative.
func (s *Session) React(ctx context.Context, messageID int64, reaction string) error {
	if err := s.client.store.AddReaction(ctx, s.scope.ID, messageID, reaction); err != nil {
		return err
	}
	if err := s.channel.Send(types.ReactionFrame{
		Type:      types.FrameReaction,
		MessageID: messageID,
		Reaction:  reaction,
	}); err != nil {
		s.client.log.Debug("reaction frame for message %d not sent: %v", messageID, err)
	}
	return nil
}

// MarkRead acknowledges the conversation's unread messages.
func (s *Session) MarkRead(ctx context.Context) error {
	return s.client.store.MarkRead(ctx, s.scope.ID)
}

// Messages returns the scope's visible message window.
func (s *Session) Messages() []types.Message {
	return s.client.store.Messages(s.scope.ID)
}

// LoadOlder pages older history in.
func (s *Session) LoadOlder(ctx context.Context) error {
	return s.client.store.LoadOlder(ctx, s.scope.ID)
}

// Close tears the session down: polling stopped, typing timers
// cancelled, subscriptions removed, transport closed and the scope's
// message window dropped. Always called on unmount or before opening
// another scope.
func (s *Session) Close() {
	s.cancel()
	s.poll.Stop()
	s.sender.Close()
	s.tracker.Close()
	d := s.channel.Dispatcher()
	for evType, id := range s.subs {
		d.Off(evType, id)
	}
	s.client.channels.Disconnect(s.scope)
	s.client.store.Forget(s.scope.ID)
}
