package lifetime

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScope_AfterRuns(t *testing.T) {
	s := NewScope()
	defer s.Close()

	done := make(chan struct{})
	if !s.After(5*time.Millisecond, func() { close(done) }) {
		t.Fatal("expected callback to be scheduled")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not run")
	}
	if s.Pending() != 0 {
		t.Fatalf("expected no pending callbacks, got %d", s.Pending())
	}
}

func TestScope_CloseCancelsPending(t *testing.T) {
	s := NewScope()

	var fired atomic.Int32
	s.After(20*time.Millisecond, func() { fired.Add(1) })
	s.After(20*time.Millisecond, func() { fired.Add(1) })
	s.Close()

	time.Sleep(60 * time.Millisecond)
	if n := fired.Load(); n != 0 {
		t.Fatalf("expected no callbacks after Close, got %d", n)
	}
}

func TestScope_AfterOnClosedScope(t *testing.T) {
	s := NewScope()
	s.Close()
	s.Close()

	if s.After(time.Millisecond, func() { t.Error("must not run") }) {
		t.Fatal("expected After to refuse a closed scope")
	}
	time.Sleep(10 * time.Millisecond)
}

func TestScope_CallbackMayCloseItsScope(t *testing.T) {
	s := NewScope()
	done := make(chan struct{})
	s.After(time.Millisecond, func() {
		s.Close()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback deadlocked closing its own scope")
	}
	if !s.Closed() {
		t.Fatal("expected scope to be closed")
	}
}
