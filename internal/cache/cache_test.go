package cache

import (
	"path/filepath"
	"testing"
	"time"

	"classwire/internal/logger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"), logger.NewStd(nil))
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := payload{Name: "algebra", Count: 3}
	if err := s.Put("k", want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got payload
	ok, err := s.Get("k", time.Minute, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a hit for a fresh entry")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestStore_MissingKeyIsMiss(t *testing.T) {
	s := openTestStore(t)

	var got payload
	ok, err := s.Get("absent", time.Minute, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected a miss for an absent key")
	}
}

func TestStore_ExpiredEntryIsMissAndEvicted(t *testing.T) {
	s := openTestStore(t)

	base := time.Now()
	s.now = func() time.Time { return base }
	if err := s.Put("k", payload{Name: "stale"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Step the clock past the TTL.
	s.now = func() time.Time { return base.Add(5*time.Minute + time.Second) }

	var got payload
	ok, err := s.Get("k", 5*time.Minute, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected an expired entry to read as a miss")
	}

	// Eviction means the entry stays a miss even with a generous TTL.
	s.now = time.Now
	ok, err = s.Get("k", 24*time.Hour, &got)
	if err != nil {
		t.Fatalf("Get after eviction: %v", err)
	}
	if ok {
		t.Error("expired entry was not evicted")
	}
}

func TestStore_CorruptEntryIsMissAndEvicted(t *testing.T) {
	s := openTestStore(t)

	// Write a payload that cannot unmarshal into the caller's type.
	if err := s.Put("k", "not-an-object"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got payload
	ok, err := s.Get("k", time.Minute, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected a corrupt entry to read as a miss")
	}

	var raw string
	ok, err = s.Get("k", time.Minute, &raw)
	if err != nil {
		t.Fatalf("Get after eviction: %v", err)
	}
	if ok {
		t.Error("corrupt entry was not evicted")
	}
}

func TestStore_DeleteInvalidates(t *testing.T) {
	s := openTestStore(t)

	if err := s.Put(MessagesKey(42), payload{Name: "window"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(MessagesKey(42)); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var got payload
	ok, err := s.Get(MessagesKey(42), time.Minute, &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("deleted entry still readable")
	}
}

func TestStore_ClosedStoreRejectsOperations(t *testing.T) {
	s := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.Put("k", payload{}); err != ErrStoreClosed {
		t.Errorf("Put after close: got %v, want ErrStoreClosed", err)
	}
	var got payload
	if _, err := s.Get("k", time.Minute, &got); err != ErrStoreClosed {
		t.Errorf("Get after close: got %v, want ErrStoreClosed", err)
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
