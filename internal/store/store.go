// Package store provides session snapshot persistence.
package store

import (
	"context"
	"time"

	"github.com/ashureev/cloud-runner/internal/domain"
)

// SessionRecord is one persisted session snapshot.
type SessionRecord struct {
	Key       string
	UserID    string
	SessionID string
	State     domain.SessionState
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Repository defines the interface for persisting session snapshots.
type Repository interface {
	// GetSession retrieves a snapshot by session key. It returns nil, nil
	// when no snapshot exists.
	GetSession(ctx context.Context, key string) (*SessionRecord, error)

	// SaveSession writes rec unless a snapshot with the same or a newer
	// version is already stored. It reports whether the write was applied.
	SaveSession(ctx context.Context, rec *SessionRecord) (bool, error)

	// DeleteSession removes a snapshot.
	DeleteSession(ctx context.Context, key string) error

	// CleanupExpiredSessions removes snapshots not updated within ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
