// Package view decides which top-level screen is visible.
package view

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/ashureev/careportal/internal/domain"
)

// EventKind enumerates what can move the view machine.
type EventKind int

const (
	// EventSwitch is an explicit request to show an auth screen.
	EventSwitch EventKind = iota
	// EventSessionStarted fires when a token appears.
	EventSessionStarted
	// EventSessionEnded fires on logout or a rejected token.
	EventSessionEnded
)

// Event is one input to Transition.
type Event struct {
	Kind   EventKind
	Target domain.ViewState // EventSwitch only
}

// Switch builds an EventSwitch.
func Switch(target domain.ViewState) Event {
	return Event{Kind: EventSwitch, Target: target}
}

// ErrDashboardRequiresSession is returned when a switch targets the
// dashboard directly; only a session start reaches it.
var ErrDashboardRequiresSession = errors.New("dashboard is only reachable by logging in")

// ErrSessionActive is returned when an auth screen is requested while
// logged in.
var ErrSessionActive = errors.New("log out before switching screens")

// Machine is the complete router state. The visible screen is derived.
type Machine struct {
	AuthScreen    domain.ViewState
	Authenticated bool
}

// Visible returns the screen currently shown.
func (m Machine) Visible() domain.ViewState {
	if m.Authenticated {
		return domain.ViewDashboard
	}
	return m.AuthScreen
}

// Initial returns the machine at startup: the reset screen when a reset
// token arrived with the navigation context, otherwise login.
func Initial(nav NavContext, authenticated bool) Machine {
	m := Machine{AuthScreen: domain.ViewLogin, Authenticated: authenticated}
	if nav.ResetToken != "" {
		m.AuthScreen = domain.ViewResetPassword
	}
	return m
}

// Transition applies e to m. It has no side effects.
func Transition(m Machine, e Event) (Machine, error) {
	switch e.Kind {
	case EventSessionStarted:
		m.Authenticated = true
		return m, nil
	case EventSessionEnded:
		m.Authenticated = false
		m.AuthScreen = domain.ViewLogin
		return m, nil
	case EventSwitch:
		if e.Target == domain.ViewDashboard {
			return m, ErrDashboardRequiresSession
		}
		if !e.Target.IsAuthScreen() {
			return m, fmt.Errorf("switch to %s: unknown screen", e.Target)
		}
		if m.Authenticated {
			return m, ErrSessionActive
		}
		m.AuthScreen = e.Target
		return m, nil
	default:
		return m, fmt.Errorf("unknown event kind %d", e.Kind)
	}
}

// NavContext is what the process was launched with: at most one reset
// token, read once at startup.
type NavContext struct {
	ResetToken string
}

// ParseNavContext reads the token query parameter from a reset link. An
// empty link yields an empty context.
func ParseNavContext(link string) (NavContext, error) {
	if link == "" {
		return NavContext{}, nil
	}
	u, err := url.Parse(link)
	if err != nil {
		return NavContext{}, fmt.Errorf("parse reset link: %w", err)
	}
	return NavContext{ResetToken: u.Query().Get("token")}, nil
}
