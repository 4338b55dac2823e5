// Package lifetime ties delayed callbacks to the lifetime of the component
// that scheduled them.
package lifetime

import (
	"sync"
	"time"
)

// Scope owns a set of pending callbacks. Closing the scope cancels every
// callback that has not started yet; a callback scheduled on a closed scope
// never runs. A callback that has already started is not interrupted, so
// effects that must not outlive the scope re-check it under their own lock
// (see view.Router.SwitchFrom).
type Scope struct {
	mu      sync.Mutex
	closed  bool
	nextID  uint64
	pending map[uint64]*time.Timer
}

// NewScope returns an open scope.
func NewScope() *Scope {
	return &Scope{pending: make(map[uint64]*time.Timer)}
}

// After schedules fn to run once d has elapsed, unless the scope is closed
// first. It reports whether the callback was scheduled.
func (s *Scope) After(d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	id := s.nextID
	s.nextID++
	s.pending[id] = time.AfterFunc(d, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.pending, id)
		s.mu.Unlock()

		// fn may close this scope (e.g. by navigating away), so no lock is held.
		fn()
	})
	return true
}

// Pending returns the number of callbacks that have not fired yet.
func (s *Scope) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close cancels every pending callback. It is safe to call more than once.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}
