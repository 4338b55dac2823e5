// Package session owns the authenticated session: the bearer token and the
// user it belongs to, kept in memory and mirrored to durable storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/careportal/internal/domain"
	"github.com/ashureev/careportal/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

// Navigator is called by Clear to send the operator back to the login screen.
type Navigator interface {
	ToLogin()
}

// Listener observes session transitions. Listeners run synchronously on the
// mutating goroutine and must not call Set or Clear.
type Listener func(prev, next domain.Session)

// Store is the single owner of the current session.
type Store struct {
	repo   store.Repository
	logger *slog.Logger
	now    func() time.Time

	writeMu sync.Mutex // serializes Load/Set/Clear and their notifications

	mu        sync.RWMutex
	current   domain.Session
	listeners map[int]Listener
	nextID    int
	nav       Navigator
}

// NewStore creates a store backed by repo. The store starts logged out; call
// Load to restore a persisted session.
func NewStore(repo store.Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:      repo,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
}

// SetNavigator wires the explicit navigation performed by Clear.
func (s *Store) SetNavigator(nav Navigator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nav = nav
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Current returns a copy of the session.
func (s *Store) Current() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Token returns the bearer token, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Token
}

// Load restores the persisted session. A user record that cannot be parsed,
// a half-written pair, or an expired JWT degrades to logged out without an
// error; only storage failures are returned.
func (s *Store) Load(ctx context.Context) (domain.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, err := s.repo.LoadSession(ctx)
	if err != nil {
		return domain.Session{}, fmt.Errorf("load session: %w", err)
	}

	next, reason := s.decode(rec)
	if reason != "" {
		s.logger.Info("Discarding persisted session", "reason", reason)
		if err := s.repo.ClearSession(ctx); err != nil {
			s.logger.Warn("Failed to purge discarded session", "error", err)
		}
	}

	s.publish(next)
	return next.Clone(), nil
}

func (s *Store) decode(rec store.SessionRecord) (domain.Session, string) {
	if rec.Empty() {
		return domain.Session{}, ""
	}
	if rec.Token == "" || rec.User == "" {
		return domain.Session{}, "incomplete record"
	}
	var user domain.User
	if err := json.Unmarshal([]byte(rec.User), &user); err != nil || user.Identifier == "" {
		return domain.Session{}, "unreadable user record"
	}
	if tokenExpired(rec.Token, s.now()) {
		return domain.Session{}, "token expired"
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Identifier
	}
	return domain.Session{Token: rec.Token, User: &user}, ""
}

// tokenExpired reports whether token is a JWT with an exp claim in the past.
// Opaque tokens are never considered expired here; the backend decides.
func tokenExpired(token string, now time.Time) bool {
	if strings.Count(token, ".") != 2 {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	return claims.ExpiresAt != nil && !claims.ExpiresAt.After(now)
}

// Set persists token and user, then publishes them. Durable state is written
// first so memory is never ahead of disk.
func (s *Store) Set(ctx context.Context, token string, user domain.User) error {
	if token == "" {
		return errors.New("set session: empty token")
	}
	if user.Identifier == "" {
		return errors.New("set session: empty user identifier")
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Identifier
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.SaveSession(ctx, store.SessionRecord{Token: token, User: string(raw)}); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	s.publish(domain.Session{Token: token, User: &user})
	s.logger.Info("Session started", "user", user.Identifier)
	return nil
}

// Clear ends the session: durable state is removed, memory is reset,
// listeners are notified, and the navigator is sent to the login screen.
// Clearing an already logged-out store changes nothing.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	persistErr := s.repo.ClearSession(ctx)
	if persistErr != nil {
		s.logger.Error("Failed to remove persisted session", "error", persistErr)
	}

	s.mu.RLock()
	wasAuthenticated := s.current.Authenticated()
	nav := s.nav
	s.mu.RUnlock()

	if wasAuthenticated {
		s.publish(domain.Session{})
		s.logger.Info("Session ended")
		if nav != nil {
			nav.ToLogin()
		}
	}

	if persistErr != nil {
		return fmt.Errorf("clear session: %w", persistErr)
	}
	return nil
}

// publish swaps the in-memory session and notifies listeners.
// Caller holds writeMu.
func (s *Store) publish(next domain.Session) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if prev.Token == next.Token && prev.Authenticated() == next.Authenticated() {
		return
	}
	for _, fn := range listeners {
		fn(prev.Clone(), next.Clone())
	}
}
