// CarePortal intake console server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ashureev/careportal/internal/api"
	"github.com/ashureev/careportal/internal/app"
	"github.com/ashureev/careportal/internal/config"
	"github.com/ashureev/careportal/internal/middleware"
	"github.com/ashureev/careportal/internal/push"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "backend", cfg.BackendURL, "dev", cfg.IsDevelopment())

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
		slog.Error("Failed to create data directory", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize client state", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("Failed to close client state", "error", closeErr)
		}
	}()

	if err := a.Store.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	// Start background workers.
	hub := push.NewHub(logger)
	go hub.Run(ctx)

	authLimiter := middleware.NewRateLimiter(cfg.RateLimit.AuthPerSecond, cfg.RateLimit.AuthBurst)
	go authLimiter.Run(ctx)

	// Initialize handlers.
	handler := api.NewHandler(a)
	origins := allowedOrigins(cfg)
	wsHandler, stopStream := handler.StreamViews(hub, originPatterns(cfg))
	defer stopStream()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(origins))

	handler.RegisterRoutes(r, authLimiter.Middleware)

	// WebSocket endpoint.
	r.Get("/ws/view", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // WebSocket streams stay open
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr, "view", a.Router.Current())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server stopped successfully")
}

// allowedOrigins lets the configured front end call the API; development
// mode accepts any origin.
func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}

// originPatterns converts the front end URL to the host pattern the
// WebSocket accept check expects.
func originPatterns(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	u, err := url.Parse(cfg.FrontendURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}
