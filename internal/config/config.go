// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	BackendURL  string
	DBPath      string
	LogLevel    string
	ResetLink   string // navigation context handed to the console at startup
	Timeout     TimeoutConfig
	Redirect    RedirectConfig
	RateLimit   RateLimitConfig
}

// TimeoutConfig bounds outbound calls.
type TimeoutConfig struct {
	Request     time.Duration
	HealthCheck time.Duration
}

// RedirectConfig holds the delayed navigations after auth successes.
type RedirectConfig struct {
	AfterSignup time.Duration
	AfterReset  time.Duration
}

// RateLimitConfig throttles the console's auth routes.
type RateLimitConfig struct {
	AuthPerSecond float64
	AuthBurst     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		BackendURL:  strings.TrimRight(getEnv("BACKEND_URL", "http://127.0.0.1:8000"), "/"),
		DBPath:      getEnv("DB_PATH", "./data/careportal.db"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		ResetLink:   getEnv("RESET_LINK", ""),
		Timeout: TimeoutConfig{
			Request:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
		},
		Redirect: RedirectConfig{
			AfterSignup: getEnvDuration("SIGNUP_REDIRECT_DELAY", 2*time.Second),
			AfterReset:  getEnvDuration("RESET_REDIRECT_DELAY", 3*time.Second),
		},
		RateLimit: RateLimitConfig{
			AuthPerSecond: getEnvFloat("AUTH_RATE_LIMIT", 2),
			AuthBurst:     getEnvInt("AUTH_RATE_BURST", 5),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", c.BackendURL)
	}
	if c.Timeout.Request <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be > 0")
	}
	if c.Timeout.HealthCheck <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be > 0")
	}
	if c.Redirect.AfterSignup < 0 || c.Redirect.AfterReset < 0 {
		return fmt.Errorf("redirect delays cannot be negative")
	}
	if c.RateLimit.AuthPerSecond <= 0 || c.RateLimit.AuthBurst <= 0 {
		return fmt.Errorf("AUTH_RATE_LIMIT and AUTH_RATE_BURST must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("3s") or bare seconds ("3").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
