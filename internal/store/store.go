// Package store provides durable client-side state.
package store

import "context"

// Fixed keys under which the session survives a restart.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// SessionRecord is the raw persisted session. User is the serialized user
// record exactly as written; callers decide how to parse it.
type SessionRecord struct {
	Token string
	User  string
}

// Empty reports whether nothing was persisted under either key.
func (r SessionRecord) Empty() bool {
	return r.Token == "" && r.User == ""
}

// Repository defines the interface for persisting client state.
type Repository interface {
	// LoadSession returns whatever is stored under the token and user keys.
	// Missing keys come back as empty strings, not errors.
	LoadSession(ctx context.Context) (SessionRecord, error)

	// SaveSession writes token and user in a single transaction.
	SaveSession(ctx context.Context, rec SessionRecord) error

	// ClearSession removes both keys in a single transaction.
	ClearSession(ctx context.Context) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
