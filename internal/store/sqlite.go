package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes session writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One local operator; a small pool is plenty.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS client_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LoadSession returns the persisted token and user record.
func (s *SQLiteStore) LoadSession(ctx context.Context) (SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM client_state WHERE key IN (?, ?)`, KeyToken, KeyUser)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("query session: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var rec SessionRecord
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return SessionRecord{}, fmt.Errorf("scan session row: %w", err)
		}
		switch key {
		case KeyToken:
			rec.Token = value
		case KeyUser:
			rec.User = value
		}
	}
	if err := rows.Err(); err != nil {
		return SessionRecord{}, fmt.Errorf("iterate session rows: %w", err)
	}
	return rec, nil
}

// SaveSession writes token and user atomically.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	if rec.Token == "" || rec.User == "" {
		return errors.New("save session: token and user are both required")
	}
	return s.withRetry(ctx, "save session", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			query := `
			INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at`
			now := time.Now().Unix()
			if _, err := tx.ExecContext(ctx, query, KeyToken, rec.Token, now); err != nil {
				return fmt.Errorf("upsert token: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, KeyUser, rec.User, now); err != nil {
				return fmt.Errorf("upsert user: %w", err)
			}
			return nil
		})
	})
}

// ClearSession removes the token and user atomically.
func (s *SQLiteStore) ClearSession(ctx context.Context) error {
	return s.withRetry(ctx, "clear session", func() error {
		return s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM client_state WHERE key IN (?, ?)`, KeyToken, KeyUser); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			return nil
		})
	})
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// withRetry retries fn with exponential backoff while SQLite reports lock
// contention: 50ms, 100ms, 200ms.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsConflictError reports SQLITE_BUSY or "database is locked" errors,
// both of which warrant a retry.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
