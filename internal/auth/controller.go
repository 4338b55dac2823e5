// Package auth implements the login, signup and password-reset flows.
// Controller is the only component that starts a session.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ashureev/careportal/internal/backend"
	"github.com/ashureev/careportal/internal/domain"
	"github.com/ashureev/careportal/internal/lifetime"
)

// DefaultRole is sent on signup when none was chosen.
const DefaultRole = "Responsible Party"

// MinPasswordLength is enforced locally before a reset is sent.
const MinPasswordLength = 6

// Operator-facing messages.
const (
	msgInvalidCredentials = "Invalid username or password."
	msgLoginFailed        = "Login failed"
	msgSignupFailed       = "Signup failed. Please try again."
	msgSignupDone         = "Account created successfully! Redirecting to login..."
	msgResetSent          = "Password reset email sent!"
	msgResetRequestFailed = "Something went wrong"
	msgInvalidResetLink   = "Invalid reset link"
	msgPasswordTooShort   = "Password must be at least 6 characters"
	msgPasswordMismatch   = "Passwords do not match"
	msgResetFailed        = "Failed to reset password"
	msgResetDone          = "Password reset successful! Redirecting to login..."
	msgMissingCredentials = "Username and password are required."
	msgMissingEmail       = "Email is required."
)

// Backend is the subset of the backend client the auth flows use.
type Backend interface {
	Login(ctx context.Context, username, password string) (*backend.LoginResult, error)
	Signup(ctx context.Context, req backend.SignupRequest) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
}

// SessionWriter starts a session.
type SessionWriter interface {
	Set(ctx context.Context, token string, user domain.User) error
}

// Navigator schedules the post-success redirects.
type Navigator interface {
	ScreenScope() *lifetime.Scope
	SwitchFrom(scope *lifetime.Scope, target domain.ViewState) error
}

type operation int

const (
	opLogin operation = iota
	opSignup
	opForgot
	opReset
	opCount
)

// Controller runs the four auth operations. Each operation has its own
// loading flag; a second call while one is pending fails with a busy error.
type Controller struct {
	api      Backend
	sessions SessionWriter
	nav      Navigator
	logger   *slog.Logger

	signupDelay time.Duration
	resetDelay  time.Duration

	loading [opCount]atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithRedirectDelays sets how long the success messages stay on screen
// before returning to login.
func WithRedirectDelays(afterSignup, afterReset time.Duration) Option {
	return func(c *Controller) {
		c.signupDelay = afterSignup
		c.resetDelay = afterReset
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController creates a Controller.
func NewController(api Backend, sessions SessionWriter, nav Navigator, opts ...Option) *Controller {
	c := &Controller{
		api:         api,
		sessions:    sessions,
		nav:         nav,
		logger:      slog.Default(),
		signupDelay: 2 * time.Second,
		resetDelay:  3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Loading reports whether any operation is in flight.
func (c *Controller) Loading() bool {
	for i := range c.loading {
		if c.loading[i].Load() {
			return true
		}
	}
	return false
}

func (c *Controller) begin(op operation) error {
	if !c.loading[op].CompareAndSwap(false, true) {
		return domain.Busy()
	}
	return nil
}

func (c *Controller) end(op operation) {
	c.loading[op].Store(false)
}

// Login authenticates and starts a session. The display name is the
// username the backend returns, or the normalized identifier.
func (c *Controller) Login(ctx context.Context, identifier, secret string) (domain.User, error) {
	if err := c.begin(opLogin); err != nil {
		return domain.User{}, err
	}
	defer c.end(opLogin)

	identifier = domain.NormalizeIdentifier(identifier)
	if identifier == "" || secret == "" {
		return domain.User{}, domain.Validation(msgMissingCredentials)
	}

	res, err := c.api.Login(ctx, identifier, secret)
	if err != nil {
		c.logger.Info("Login failed", "user", identifier, "error", err)
		return domain.User{}, loginFailure(err)
	}

	user := domain.User{Identifier: identifier, DisplayName: res.Username, Role: res.Role}
	if strings.TrimSpace(user.DisplayName) == "" {
		user.DisplayName = identifier
	}
	if err := c.sessions.Set(ctx, res.AccessToken, user); err != nil {
		return domain.User{}, &domain.Failure{Kind: domain.KindBackend, Message: msgLoginFailed, Err: err}
	}
	return user, nil
}

func loginFailure(err error) error {
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &apiErr):
		msg := msgInvalidCredentials
		switch {
		case apiErr.Detail != "":
			msg = apiErr.Detail
		case len(apiErr.Fields) > 0:
			msg = msgLoginFailed
		}
		return &domain.Failure{Kind: domain.KindBackend, Message: msg, Err: err}
	default:
		return transportFailure(err)
	}
}

// Signup registers an account. On success the login screen is shown after
// the signup delay, unless the operator has already left the screen.
func (c *Controller) Signup(ctx context.Context, identifier, secret, role string) (string, error) {
	if err := c.begin(opSignup); err != nil {
		return "", err
	}
	defer c.end(opSignup)

	scope := c.nav.ScreenScope()

	identifier = domain.NormalizeIdentifier(identifier)
	if identifier == "" || secret == "" {
		return "", domain.Validation(msgMissingCredentials)
	}
	if strings.TrimSpace(role) == "" {
		role = DefaultRole
	}

	_, err := c.api.Signup(ctx, backend.SignupRequest{Username: identifier, Password: secret, Role: role})
	if err != nil {
		return "", backendFailure(err, msgSignupFailed)
	}

	c.logger.Info("Account created", "user", identifier, "role", role)
	c.redirectToLogin(scope, c.signupDelay)
	return msgSignupDone, nil
}

// RequestPasswordReset asks the backend to e-mail a reset link and returns
// the backend's message.
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if err := c.begin(opForgot); err != nil {
		return "", err
	}
	defer c.end(opForgot)

	email = domain.NormalizeIdentifier(email)
	if email == "" {
		return "", domain.Validation(msgMissingEmail)
	}

	msg, err := c.api.ForgotPassword(ctx, email)
	if err != nil {
		return "", backendFailure(err, msgResetRequestFailed)
	}
	if msg == "" {
		msg = msgResetSent
	}
	return msg, nil
}

// ResetPassword sets a new password. The token, length and confirmation
// checks all run before any request is sent.
func (c *Controller) ResetPassword(ctx context.Context, token, password, confirm string) (string, error) {
	if err := c.begin(opReset); err != nil {
		return "", err
	}
	defer c.end(opReset)

	scope := c.nav.ScreenScope()

	switch {
	case strings.TrimSpace(token) == "":
		return "", domain.Validation(msgInvalidResetLink)
	case len(password) < MinPasswordLength:
		return "", domain.Validation(msgPasswordTooShort)
	case password != confirm:
		return "", domain.Validation(msgPasswordMismatch)
	}

	if _, err := c.api.ResetPassword(ctx, token, password); err != nil {
		return "", backendFailure(err, msgResetFailed)
	}

	c.logger.Info("Password reset")
	c.redirectToLogin(scope, c.resetDelay)
	return msgResetDone, nil
}

// redirectToLogin schedules the switch on the scope of the screen that
// started the operation.
func (c *Controller) redirectToLogin(scope *lifetime.Scope, delay time.Duration) {
	scheduled := scope.After(delay, func() {
		if err := c.nav.SwitchFrom(scope, domain.ViewLogin); err != nil {
			c.logger.Debug("Skipped redirect to login", "error", err)
		}
	})
	if !scheduled {
		c.logger.Debug("Screen closed before redirect was scheduled")
	}
}

// backendFailure maps a backend error to the message shown: the decoded
// detail when there is one, otherwise fallback.
func backendFailure(err error, fallback string) error {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Detail
		if msg == "" {
			msg = fallback
		}
		return &domain.Failure{Kind: domain.KindBackend, Message: msg, Fields: apiErr.Fields, Err: err}
	}
	return transportFailure(err)
}

func transportFailure(err error) error {
	return &domain.Failure{Kind: domain.KindTransport, Message: domain.MsgConnectionFailed, Err: err}
}
