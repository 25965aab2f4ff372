package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"classwire/internal/channel"
	"classwire/internal/config"
	"classwire/internal/events"
	"classwire/internal/logger"
	"classwire/internal/rest"
	"classwire/pkg/types"
)

const currentUserID = int64(7)

type fakeConn struct {
	reads chan []byte
	once  sync.Once
	done  chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.reads:
		return websocket.TextMessage, data, nil
	case <-c.done:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error              { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// deliver pushes one inbound chat_message frame through the transport.
func (c *fakeConn) deliver(t *testing.T, msg types.Message) {
	t.Helper()
	frame, err := json.Marshal(map[string]interface{}{
		"type":    types.FrameChatMessage,
		"message": msg,
	})
	if err != nil {
		t.Fatalf("marshaling frame: %v", err)
	}
	c.reads <- frame
}

// connBook hands out one fake transport per dialed scope URL.
type connBook struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
}

func newConnBook() *connBook {
	return &connBook{conns: make(map[string]*fakeConn)}
}

func (b *connBook) dial(ctx context.Context, u string) (channel.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := newFakeConn()
	b.conns[u] = c
	return c, nil
}

func (b *connBook) forScope(t *testing.T, conversationID int64) *fakeConn {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	needle := fmt.Sprintf("/messaging/%d/", conversationID)
	for u, c := range b.conns {
		if strings.Contains(u, needle) {
			return c
		}
	}
	t.Fatalf("no transport dialed for conversation %d", conversationID)
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func newTestClient(t *testing.T, book *connBook, fetches42 *atomic.Int32) *Client {
	t.Helper()
	mux := http.NewServeMux()
	emptyPage := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [], "next": null}`))
	}
	mux.HandleFunc("GET /conversations/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []types.Conversation{{ID: 42}, {ID: 43}},
			"next":    nil,
		})
	})
	mux.HandleFunc("GET /conversations/42/messages/", func(w http.ResponseWriter, r *http.Request) {
		if fetches42 != nil {
			fetches42.Add(1)
		}
		emptyPage(w)
	})
	mux.HandleFunc("GET /conversations/43/messages/", func(w http.ResponseWriter, r *http.Request) {
		emptyPage(w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.Channel.BaseURL = "ws://backend"
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	cfg.Polling.Interval = 10 * time.Millisecond
	cfg.Typing.IdleTimeout = 50 * time.Millisecond

	user := types.User{ID: currentUserID, Username: "me"}
	c, err := New(cfg, user, rest.StaticToken("tok"), nil, nil, logger.NewStd(nil), WithDialFunc(book.dial))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	if err := c.RefreshConversations(context.Background()); err != nil {
		t.Fatalf("RefreshConversations: %v", err)
	}
	return c
}

func TestSession_PushedMessageReachesStoreAndNotifications(t *testing.T) {
	book := newConnBook()
	c := newTestClient(t, book, nil)

	sess, err := c.Open(context.Background(), types.Scope{ID: 42, Kind: types.ScopeDirect}, SessionOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	book.forScope(t, 42).deliver(t, types.Message{
		ID:           900,
		Conversation: 42,
		Sender:       types.User{ID: 8, Username: "ada"},
		Content:      "hello",
	})

	waitFor(t, time.Second, func() bool { return len(sess.Messages()) == 1 })
	if got := c.Notifications().Unread(); got != 1 {
		t.Errorf("foreign pushed message: unread notifications = %d, want 1", got)
	}
	conv, _ := c.Store().Conversation(42)
	if conv.UnreadCount != 1 {
		t.Errorf("conversation unread = %d, want 1", conv.UnreadCount)
	}
}

func TestSession_SwitchingScopesIsolatesLateWork(t *testing.T) {
	book := newConnBook()
	var fetches42 atomic.Int32
	c := newTestClient(t, book, &fetches42)

	sessA, err := c.Open(context.Background(), types.Scope{ID: 42, Kind: types.ScopeDirect}, SessionOptions{Polling: true})
	if err != nil {
		t.Fatalf("Open A: %v", err)
	}
	book.forScope(t, 42).deliver(t, types.Message{
		ID: 900, Conversation: 42, Sender: types.User{ID: 8, Username: "ada"}, Content: "a",
	})
	waitFor(t, time.Second, func() bool { return len(sessA.Messages()) == 1 })
	waitFor(t, time.Second, func() bool { return fetches42.Load() >= 2 })

	// Keep a handle on A's dispatcher to replay a late event after the
	// switch, the way a slow callback from the old transport would.
	lateDispatcher := sessA.channel.Dispatcher()
	lateScope := sessA.scope
	baseline := c.Notifications().Unread()

	sessA.Close()
	sessB, err := c.Open(context.Background(), types.Scope{ID: 43, Kind: types.ScopeDirect}, SessionOptions{})
	if err != nil {
		t.Fatalf("Open B: %v", err)
	}
	defer sessB.Close()

	late := types.Message{ID: 901, Conversation: 42, Sender: types.User{ID: 8, Username: "ada"}, Content: "late"}
	lateDispatcher.Emit(events.Event{Type: events.Message, Scope: lateScope, Message: &late})

	if got := len(c.Store().Messages(42)); got != 0 {
		t.Errorf("late event repopulated the closed scope: %d messages", got)
	}
	if got := c.Notifications().Unread(); got != baseline {
		t.Errorf("late event raised notifications: %d -> %d", baseline, got)
	}

	// B's live traffic still lands, in B's window only.
	book.forScope(t, 43).deliver(t, types.Message{
		ID: 910, Conversation: 43, Sender: types.User{ID: 8, Username: "ada"}, Content: "b",
	})
	waitFor(t, time.Second, func() bool { return len(sessB.Messages()) == 1 })
	if got := len(c.Store().Messages(42)); got != 0 {
		t.Errorf("traffic for B leaked into A's window: %d messages", got)
	}

	// A's poller is gone: its fetch count settles.
	settled := fetches42.Load()
	time.Sleep(50 * time.Millisecond)
	if got := fetches42.Load(); got != settled {
		t.Errorf("closed session still polls: %d -> %d fetches", settled, got)
	}
}

func TestSession_SendRejectsBlankContent(t *testing.T) {
	book := newConnBook()
	c := newTestClient(t, book, nil)

	sess, err := c.Open(context.Background(), types.Scope{ID: 42, Kind: types.ScopeDirect}, SessionOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := sess.Send(context.Background(), content); !errors.Is(err, types.ErrEmptyContent) {
			t.Errorf("Send(%q) = %v, want ErrEmptyContent", content, err)
		}
	}
}
