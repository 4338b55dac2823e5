package view

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ashureev/careportal/internal/domain"
	"github.com/ashureev/careportal/internal/lifetime"
)

// ErrScreenLeft is returned by SwitchFrom when the screen that owned the
// scope is no longer visible.
var ErrScreenLeft = errors.New("view: originating screen was left")

// Observer is told about every change of the visible screen.
type Observer func(prev, next domain.ViewState)

// Router drives the view machine from session changes and explicit
// switches. Each visible screen owns a lifetime.Scope that is closed as
// soon as the screen is left.
type Router struct {
	logger *slog.Logger
	nav    NavContext

	mu        sync.Mutex
	machine   Machine
	scope     *lifetime.Scope
	observers map[int]Observer
	nextID    int
}

// NewRouter creates a router in its initial state.
func NewRouter(nav NavContext, authenticated bool, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger:    logger,
		nav:       nav,
		machine:   Initial(nav, authenticated),
		scope:     lifetime.NewScope(),
		observers: make(map[int]Observer),
	}
}

// NavContext returns the context the router was started with.
func (r *Router) NavContext() NavContext {
	return r.nav
}

// Current returns the visible screen.
func (r *Router) Current() domain.ViewState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.Visible()
}

// ScreenScope returns the scope of the visible screen. Callbacks scheduled
// on it are dropped once the screen changes.
func (r *Router) ScreenScope() *lifetime.Scope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scope
}

// Subscribe registers fn and returns a function that removes it.
func (r *Router) Subscribe(fn Observer) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.observers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.observers, id)
	}
}

// SwitchTo moves to an auth screen.
func (r *Router) SwitchTo(target domain.ViewState) error {
	return r.apply(Switch(target))
}

// SwitchFrom moves to target only while scope is still the visible
// screen's scope. The check and the switch happen under one lock, so a
// screen change that closes scope wins over a late callback.
func (r *Router) SwitchFrom(scope *lifetime.Scope, target domain.ViewState) error {
	return r.applyIf(scope, Switch(target))
}

// ToLogin implements session.Navigator.
func (r *Router) ToLogin() {
	_ = r.apply(Event{Kind: EventSessionEnded})
}

// OnSession is a session.Listener.
func (r *Router) OnSession(prev, next domain.Session) {
	switch {
	case !prev.Authenticated() && next.Authenticated():
		_ = r.apply(Event{Kind: EventSessionStarted})
	case prev.Authenticated() && !next.Authenticated():
		_ = r.apply(Event{Kind: EventSessionEnded})
	}
}

// Close tears down the current screen's scope.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scope.Close()
}

func (r *Router) apply(e Event) error {
	return r.applyIf(nil, e)
}

// applyIf applies e. A non-nil guard must still be the current, open scope.
func (r *Router) applyIf(guard *lifetime.Scope, e Event) error {
	r.mu.Lock()
	if guard != nil && (guard != r.scope || guard.Closed()) {
		r.mu.Unlock()
		return ErrScreenLeft
	}
	prev := r.machine.Visible()
	next, err := Transition(r.machine, e)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.machine = next
	changed := next.Visible() != prev
	var observers []Observer
	if changed {
		r.scope.Close()
		r.scope = lifetime.NewScope()
		observers = make([]Observer, 0, len(r.observers))
		for _, fn := range r.observers {
			observers = append(observers, fn)
		}
	}
	r.mu.Unlock()

	if changed {
		r.logger.Debug("View changed", "from", prev, "to", next.Visible())
		for _, fn := range observers {
			fn(prev, next.Visible())
		}
	}
	return nil
}
