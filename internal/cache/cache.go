// Package cache persists REST responses between mounts, the way the
// browser build kept them in localStorage. Entries carry their write
// timestamp; a read past the TTL is a miss and evicts the entry.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"classwire/internal/logger"
)

// Well-known keys. Message windows are cached per conversation.
const ConversationsKey = "conversations"

// MessagesKey returns the cache key of one conversation's visible
// message window.
func MessagesKey(conversationID int64) string {
	return fmt.Sprintf("messages_%d", conversationID)
}

type writeOp struct {
	fn     func(*sql.DB) error
	result chan error
}

// Store is a TTL cache backed by SQLite. Writes funnel through a single
// goroutine so concurrent callers never contend on the database.
type Store struct {
	db      *sql.DB
	writeCh chan writeOp
	done    chan struct{}
	wg      sync.WaitGroup
	log     logger.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key       TEXT PRIMARY KEY,
	payload   BLOB NOT NULL,
	timestamp INTEGER NOT NULL
);`

// Open opens (creating if needed) the cache database at path.
func Open(path string, log logger.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "opening cache database")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating cache schema")
	}

	s := &Store{
		db:      db,
		writeCh: make(chan writeOp, 100),
		done:    make(chan struct{}),
		log:     log,
		now:     time.Now,
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.writeCh:
			op.result <- op.fn(s.db)
		case <-s.done:
			// Drain queued writes before exiting.
			for {
				select {
				case op := <-s.writeCh:
					op.result <- op.fn(s.db)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) submit(fn func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	op := writeOp{fn: fn, result: make(chan error, 1)}
	select {
	case s.writeCh <- op:
		return <-op.result
	case <-s.done:
		return ErrStoreClosed
	}
}

// Put stores value under key with the current timestamp.
func (s *Store) Put(key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshaling cache entry %q", key)
	}
	ts := s.now().UnixMilli()
	return s.submit(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO cache_entries (key, payload, timestamp) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, timestamp = excluded.timestamp`,
			key, payload, ts,
		)
		return errors.Wrapf(err, "writing cache entry %q", key)
	})
}

// Get loads key into out when a fresh entry exists. Expired or corrupt
// entries are evicted and reported as a miss, never as an error the
// caller has to fail on.
func (s *Store) Get(key string, ttl time.Duration, out interface{}) (bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false, ErrStoreClosed
	}
	s.mu.RUnlock()

	var payload []byte
	var ts int64
	err := s.db.QueryRow(
		`SELECT payload, timestamp FROM cache_entries WHERE key = ?`, key,
	).Scan(&payload, &ts)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "reading cache entry %q", key)
	}

	if s.now().Sub(time.UnixMilli(ts)) >= ttl {
		s.evict(key)
		return false, nil
	}

	if err := json.Unmarshal(payload, out); err != nil {
		s.log.Warn("cache entry %q corrupt, evicting: %v", key, err)
		s.evict(key)
		return false, nil
	}
	return true, nil
}

// Delete removes key. Invalidation after an optimistic send goes
// through here.
func (s *Store) Delete(key string) error {
	return s.submit(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
		return errors.Wrapf(err, "deleting cache entry %q", key)
	})
}

func (s *Store) evict(key string) {
	if err := s.Delete(key); err != nil && err != ErrStoreClosed {
		s.log.Warn("evicting cache entry %q: %v", key, err)
	}
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}
