package typing

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"classwire/pkg/types"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []string
}

func (r *frameRecorder) send(frame interface{}) error {
	tf, ok := frame.(types.TypingFrame)
	if !ok {
		return nil
	}
	r.mu.Lock()
	r.frames = append(r.frames, tf.Type)
	r.mu.Unlock()
	return nil
}

func (r *frameRecorder) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.frames))
	copy(out, r.frames)
	return out
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

func TestSender_OneStartPerBurst(t *testing.T) {
	rec := &frameRecorder{}
	s := NewSender(rec.send, 50*time.Millisecond)
	defer s.Close()

	for i := 0; i < 10; i++ {
		s.Keystroke()
	}

	want := []string{types.FrameTypingStart}
	if got := rec.sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("burst of keystrokes sent %v, want %v", got, want)
	}
	if !s.Active() {
		t.Error("sender should be active mid-burst")
	}
}

func TestSender_IdleTimeoutEmitsStop(t *testing.T) {
	rec := &frameRecorder{}
	s := NewSender(rec.send, 20*time.Millisecond)
	defer s.Close()

	s.Keystroke()
	waitFor(t, time.Second, func() bool { return len(rec.sent()) == 2 })

	want := []string{types.FrameTypingStart, types.FrameTypingStop}
	if got := rec.sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if s.Active() {
		t.Error("sender should be idle after the timeout")
	}
}

func TestSender_KeystrokesExtendTheBurst(t *testing.T) {
	rec := &frameRecorder{}
	s := NewSender(rec.send, 40*time.Millisecond)
	defer s.Close()

	// Keep typing faster than the idle timeout.
	for i := 0; i < 5; i++ {
		s.Keystroke()
		time.Sleep(15 * time.Millisecond)
	}
	if got := rec.sent(); len(got) != 1 {
		t.Fatalf("continuous typing must not stop: sent %v", got)
	}

	waitFor(t, time.Second, func() bool { return len(rec.sent()) == 2 })

	// A fresh burst after the stop emits a new start.
	s.Keystroke()
	want := []string{types.FrameTypingStart, types.FrameTypingStop, types.FrameTypingStart}
	if got := rec.sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSender_MessageSentStopsTyping(t *testing.T) {
	rec := &frameRecorder{}
	s := NewSender(rec.send, time.Minute)
	defer s.Close()

	s.Keystroke()
	s.MessageSent()

	want := []string{types.FrameTypingStart, types.FrameTypingStop}
	if got := rec.sent(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// A second stop with no active burst is silent.
	s.Stop()
	if got := rec.sent(); len(got) != 2 {
		t.Errorf("redundant stop sent a frame: %v", got)
	}
}

func TestSender_CloseIsSilent(t *testing.T) {
	rec := &frameRecorder{}
	s := NewSender(rec.send, time.Minute)

	s.Keystroke()
	s.Close()

	if got := rec.sent(); !reflect.DeepEqual(got, []string{types.FrameTypingStart}) {
		t.Errorf("close must not signal: sent %v", got)
	}
	s.Keystroke()
	if got := rec.sent(); len(got) != 1 {
		t.Errorf("closed sender still sends: %v", got)
	}
}

func TestTracker_StartStop(t *testing.T) {
	tr := NewTracker(time.Minute)
	defer tr.Close()

	tr.Start(1, "ada")
	tr.Start(2, "grace")
	tr.Start(1, "ada") // repeat resets, never duplicates

	if got := tr.Users(); !reflect.DeepEqual(got, []string{"ada", "grace"}) {
		t.Errorf("Users() = %v, want [ada grace]", got)
	}

	tr.Stop(1)
	if got := tr.Users(); !reflect.DeepEqual(got, []string{"grace"}) {
		t.Errorf("after stop: %v, want [grace]", got)
	}

	// Stopping an unknown user is a no-op.
	tr.Stop(99)
}

func TestTracker_EntriesExpire(t *testing.T) {
	tr := NewTracker(20 * time.Millisecond)
	defer tr.Close()

	tr.Start(1, "ada")
	waitFor(t, time.Second, func() bool { return len(tr.Users()) == 0 })
}

func TestTracker_RestartResetsExpiry(t *testing.T) {
	tr := NewTracker(40 * time.Millisecond)
	defer tr.Close()

	tr.Start(1, "ada")
	time.Sleep(25 * time.Millisecond)
	tr.Start(1, "ada")
	time.Sleep(25 * time.Millisecond)

	// 50ms after the first start but only 25ms after the reset.
	if got := tr.Users(); !reflect.DeepEqual(got, []string{"ada"}) {
		t.Errorf("restart did not extend the entry: %v", got)
	}
}

func TestTracker_StaleExpiryDoesNotRemoveRefreshedEntry(t *testing.T) {
	tr := NewTracker(time.Minute)
	defer tr.Close()

	tr.Start(1, "ada")
	tr.Start(1, "ada")

	// A timer armed for the first deadline may fire after the refresh;
	// its generation no longer matches and it must leave the entry alone.
	tr.expire(1, 0)
	if got := tr.Users(); !reflect.DeepEqual(got, []string{"ada"}) {
		t.Fatalf("stale expiry removed a refreshed entry: %v", got)
	}

	tr.expire(1, 1)
	if got := tr.Users(); len(got) != 0 {
		t.Errorf("current-generation expiry did not remove the entry: %v", got)
	}
}

func TestTracker_CloseDropsEntries(t *testing.T) {
	tr := NewTracker(time.Minute)
	tr.Start(1, "ada")
	tr.Close()

	if got := tr.Users(); len(got) != 0 {
		t.Errorf("entries survive Close: %v", got)
	}
	tr.Start(2, "grace")
	if got := tr.Users(); len(got) != 0 {
		t.Errorf("closed tracker accepted entries: %v", got)
	}
}
