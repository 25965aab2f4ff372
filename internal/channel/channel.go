// Package channel owns the live WebSocket transport for one scope:
// connect, framed send, bounded-backoff reconnect and clean teardown.
// It emits lifecycle and message events through the dispatcher and
// never mutates store or UI state itself.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classwire/internal/events"
	"classwire/internal/logger"
	"classwire/pkg/types"
)

// Conn is the subset of the gorilla connection the channel needs.
// Tests substitute fakes; production uses *websocket.Conn.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a transport to the given URL.
type DialFunc func(ctx context.Context, url string) (Conn, error)

func gorillaDial(ctx context.Context, u string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Options tunes one channel.
type Options struct {
	BaseURL              string
	WriteTimeout         time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	ReconnectMaxAttempts int
	Dial                 DialFunc
}

const writeBuffer = 100

// Channel maintains at most one live transport for its scope.
type Channel struct {
	scope      types.Scope
	token      string
	opts       Options
	dispatcher *events.Dispatcher
	log        logger.Logger

	mu             sync.Mutex
	state          types.ConnectionState
	conn           Conn
	writeCh        chan []byte
	done           chan struct{}
	gen            uint64
	attempts       int
	reconnectTimer *time.Timer
	closed         bool
}

// New creates a disconnected channel for scope. The access token is an
// opaque credential appended to the connection URL.
func New(scope types.Scope, token string, opts Options, dispatcher *events.Dispatcher, log logger.Logger) (*Channel, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	if opts.Dial == nil {
		opts.Dial = gorillaDial
	}
	return &Channel{
		scope:      scope,
		token:      token,
		opts:       opts,
		dispatcher: dispatcher,
		log:        log,
		state:      types.StateDisconnected,
	}, nil
}

// Scope returns the scope this channel serves.
func (c *Channel) Scope() types.Scope { return c.scope }

// Dispatcher returns the event registry consumers subscribe on.
func (c *Channel) Dispatcher() *events.Dispatcher { return c.dispatcher }

// State returns the current connection state.
func (c *Channel) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// endpoint maps the scope kind onto the backend's stream paths.
func (c *Channel) endpoint() string {
	base := c.opts.BaseURL
	var path string
	switch c.scope.Kind {
	case types.ScopeCourse:
		path = fmt.Sprintf("/chat/course/%d/", c.scope.ID)
	case types.ScopeLessonComments:
		path = fmt.Sprintf("/comments/lesson/%d/", c.scope.ID)
	default:
		path = fmt.Sprintf("/messaging/%d/", c.scope.ID)
	}
	return base + path + "?token=" + url.QueryEscape(c.token)
}

// Connect establishes the transport. Calling it while connecting or
// connected tears the previous transport down first, so there is never
// more than one per scope.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.teardownLocked(websocket.CloseNormalClosure)
	c.cancelReconnectLocked()
	c.state = types.StateConnecting
	gen := c.gen + 1
	c.gen = gen
	c.mu.Unlock()

	conn, err := c.opts.Dial(ctx, c.endpoint())

	c.mu.Lock()
	if c.gen != gen || c.closed {
		// A newer Connect or a Close won while we were dialing.
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("channel %v: dial failed: %v", c.scope, err)
		c.dispatcher.Emit(events.Event{Type: events.Error, Scope: c.scope, Err: err})
		c.scheduleReconnect()
		return err
	}

	c.conn = conn
	c.writeCh = make(chan []byte, writeBuffer)
	c.done = make(chan struct{})
	c.state = types.StateConnected
	c.attempts = 0
	writeCh, done := c.writeCh, c.done
	c.mu.Unlock()

	go c.writeLoop(conn, writeCh, done)
	go c.readLoop(conn, gen)

	c.dispatcher.Emit(events.Event{Type: events.Connected, Scope: c.scope})
	return nil
}

// Send marshals frame and queues it on the live transport. While not
// connected it logs a warning and reports ErrNotConnected; nothing is
// queued silently.
func (c *Channel) Send(frame interface{}) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}

	c.mu.Lock()
	if c.state != types.StateConnected || c.writeCh == nil {
		c.mu.Unlock()
		c.log.Warn("channel %v: send while %s dropped", c.scope, c.state)
		return ErrNotConnected
	}
	writeCh, done := c.writeCh, c.done
	c.mu.Unlock()

	select {
	case writeCh <- data:
		return nil
	case <-done:
		return ErrNotConnected
	case <-time.After(c.opts.WriteTimeout):
		return ErrWriteTimeout
	}
}

// Disconnect performs a normal-closure teardown. It cancels any pending
// reconnect and never triggers a new one.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.gen++ // invalidate in-flight dials and read loops
	c.cancelReconnectLocked()
	c.teardownLocked(websocket.CloseNormalClosure)
	c.state = types.StateDisconnected
	c.attempts = 0
	c.mu.Unlock()

	c.dispatcher.Emit(events.Event{
		Type:  events.Disconnected,
		Scope: c.scope,
		Code:  websocket.CloseNormalClosure,
	})
}

// Close disconnects and makes the channel unusable. The universal
// teardown signal on unmount or scope change.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++
	c.cancelReconnectLocked()
	c.teardownLocked(websocket.CloseNormalClosure)
	c.state = types.StateDisconnected
	c.mu.Unlock()
}

// teardownLocked closes the current transport, if any, with the given
// close code. Caller holds c.mu.
func (c *Channel) teardownLocked(code int) {
	if c.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, "")
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	_ = c.conn.Close()
	c.conn = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.writeCh = nil
}

func (c *Channel) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// writeLoop is the single writer for one transport; serializing writes
// here keeps gorilla's one-writer requirement.
func (c *Channel) writeLoop(conn Conn, writeCh <-chan []byte, done <-chan struct{}) {
	for {
		select {
		case data := <-writeCh:
			if err := conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Warn("channel %v: write failed: %v", c.scope, err)
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop consumes inbound frames until the transport dies, then
// routes the close through the reconnect policy. gen guards against a
// stale loop acting after the channel moved on.
func (c *Channel) readLoop(conn Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, closeCode(err))
			return
		}
		c.handleFrame(data)
	}
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}

// handleFrame narrows one inbound frame and emits the matching event.
// Malformed or unknown frames are logged and dropped; they never close
// the channel.
func (c *Channel) handleFrame(data []byte) {
	frame, err := types.ParseFrame(data)
	if err != nil {
		c.log.Warn("channel %v: dropping frame: %v", c.scope, err)
		return
	}

	switch f := frame.(type) {
	case types.InboundMessage:
		msg := f.Message
		c.dispatcher.Emit(events.Event{Type: events.Message, Scope: c.scope, Message: &msg})
	case types.InboundTyping:
		evType := events.Typing
		if !f.Active {
			evType = events.StoppedTyping
		}
		c.dispatcher.Emit(events.Event{
			Type:   evType,
			Scope:  c.scope,
			Typing: &events.TypingUpdate{UserID: f.UserID, Username: f.Username},
		})
	case types.InboundReaction:
		c.dispatcher.Emit(events.Event{
			Type:  events.Reaction,
			Scope: c.scope,
			Reaction: &events.ReactionUpdate{
				MessageID: f.MessageID,
				Reaction:  f.Reaction,
				User:      f.User,
			},
		})
	}
}

// handleClose reacts to a dead transport. Normal closure and explicit
// teardown stay down; anything else goes through the backoff policy.
func (c *Channel) handleClose(gen uint64, code int) {
	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		return
	}
	c.teardownLocked(websocket.CloseNormalClosure)
	intentional := code == websocket.CloseNormalClosure
	if intentional {
		c.state = types.StateDisconnected
		c.attempts = 0
	}
	c.mu.Unlock()

	c.dispatcher.Emit(events.Event{Type: events.Disconnected, Scope: c.scope, Code: code})
	if !intentional {
		c.scheduleReconnect()
	}
}

// backoffDelay returns the delay before the given 1-based attempt.
func (c *Channel) backoffDelay(attempt int) time.Duration {
	delay := c.opts.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.opts.ReconnectMaxDelay {
			return c.opts.ReconnectMaxDelay
		}
	}
	if delay > c.opts.ReconnectMaxDelay {
		return c.opts.ReconnectMaxDelay
	}
	return delay
}

// scheduleReconnect arms a single retry timer. After the attempt budget
// is spent the channel parks in the terminal failed state and emits an
// error; no further automatic retries.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	c.attempts++
	if c.attempts > c.opts.ReconnectMaxAttempts {
		c.state = types.StateFailed
		c.mu.Unlock()
		c.log.Error("channel %v: reconnect attempts exhausted", c.scope)
		c.dispatcher.Emit(events.Event{Type: events.Error, Scope: c.scope, Err: ErrReconnectExhausted})
		return
	}
	attempt := c.attempts
	delay := c.backoffDelay(attempt)
	c.state = types.StateReconnecting
	gen := c.gen
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := c.gen != gen || c.closed
		c.reconnectTimer = nil
		c.mu.Unlock()
		if stale {
			return
		}
		c.log.Info("channel %v: reconnect attempt %d/%d", c.scope, attempt, c.opts.ReconnectMaxAttempts)
		_ = c.reconnect()
	})
	c.mu.Unlock()
}

// reconnect re-dials without resetting the attempt counter the way
// Connect does for explicit calls.
func (c *Channel) reconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.state = types.StateConnecting
	gen := c.gen + 1
	c.gen = gen
	attempts := c.attempts
	c.mu.Unlock()

	conn, err := c.opts.Dial(context.Background(), c.endpoint())

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return nil
	}
	if err != nil {
		c.attempts = attempts // preserve the spent budget
		c.mu.Unlock()
		c.log.Warn("channel %v: reconnect dial failed: %v", c.scope, err)
		c.scheduleReconnect()
		return err
	}

	c.conn = conn
	c.writeCh = make(chan []byte, writeBuffer)
	c.done = make(chan struct{})
	c.state = types.StateConnected
	c.attempts = 0
	writeCh, done := c.writeCh, c.done
	c.mu.Unlock()

	go c.writeLoop(conn, writeCh, done)
	go c.readLoop(conn, gen)

	c.dispatcher.Emit(events.Event{Type: events.Connected, Scope: c.scope})
	return nil
}
