// Package app wires the client components together. Both binaries build
// one App and drive it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/careportal/internal/agreement"
	"github.com/ashureev/careportal/internal/auth"
	"github.com/ashureev/careportal/internal/backend"
	"github.com/ashureev/careportal/internal/config"
	"github.com/ashureev/careportal/internal/domain"
	"github.com/ashureev/careportal/internal/session"
	"github.com/ashureev/careportal/internal/store"
	"github.com/ashureev/careportal/internal/view"
)

// App holds one operator's client state.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      store.Repository
	Sessions   *session.Store
	Router     *view.Router
	Backend    *backend.Client
	Auth       *auth.Controller
	Agreements *agreement.Repository
	Drafts     *agreement.DraftManager

	unsubscribe []func()
}

// New opens durable state, restores any persisted session and wires the
// components.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open client state: %w", err)
	}
	a, err := NewWithStore(ctx, cfg, repo, logger)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}
	return a, nil
}

// NewWithStore is New with an already opened repository.
func NewWithStore(ctx context.Context, cfg *config.Config, repo store.Repository, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nav, err := view.ParseNavContext(cfg.ResetLink)
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore(repo, logger)
	current, err := sessions.Load(ctx)
	if err != nil {
		return nil, err
	}

	router := view.NewRouter(nav, current.Authenticated(), logger)
	sessions.SetNavigator(router)

	client := backend.NewClient(cfg.BackendURL, sessions,
		backend.WithTimeout(cfg.Timeout.Request),
		backend.WithLogger(logger))

	agreements := agreement.NewRepository(client, sessions, logger)
	drafts := agreement.NewDraftManager(agreements, logger)
	drafts.OnSession(domain.Session{}, current)

	controller := auth.NewController(client, sessions, router,
		auth.WithRedirectDelays(cfg.Redirect.AfterSignup, cfg.Redirect.AfterReset),
		auth.WithLogger(logger))

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Store:      repo,
		Sessions:   sessions,
		Router:     router,
		Backend:    client,
		Auth:       controller,
		Agreements: agreements,
		Drafts:     drafts,
	}
	a.unsubscribe = []func(){
		sessions.Subscribe(router.OnSession),
		sessions.Subscribe(agreements.OnSession),
		sessions.Subscribe(drafts.OnSession),
	}

	logger.Info("Client state restored",
		"authenticated", current.Authenticated(),
		"view", router.Current())
	return a, nil
}

// Logout ends the session. Logging out twice is not an error.
func (a *App) Logout(ctx context.Context) error {
	return a.Sessions.Clear(ctx)
}

// Close releases the router and durable state.
func (a *App) Close() error {
	for _, fn := range a.unsubscribe {
		fn()
	}
	a.Router.Close()
	return a.Store.Close()
}
