package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/cloud-runner/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets the snapshot writer and readers proceed concurrently.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_key TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		state_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
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

// GetSession retrieves a snapshot by session key.
func (s *SQLiteStore) GetSession(ctx context.Context, key string) (*SessionRecord, error) {
	query := `
		SELECT session_key, user_id, session_id, state_json, version, created_at, updated_at
		FROM sessions WHERE session_key = ?`

	var rec SessionRecord
	var stateJSON string
	var createdAt, updatedAt int64

	err := s.db.QueryRowContext(ctx, query, key).Scan(
		&rec.Key, &rec.UserID, &rec.SessionID,
		&stateJSON, &rec.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &rec.State); err != nil {
		return nil, fmt.Errorf("decode session state %s: %w", key, err)
	}
	rec.State = normalize(rec.State)
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.UpdatedAt = time.Unix(updatedAt, 0)

	return &rec, nil
}

// SaveSession upserts rec. Older or equal versions are discarded so that
// writes arriving out of order never roll a session back.
func (s *SQLiteStore) SaveSession(ctx context.Context, rec *SessionRecord) (bool, error) {
	stateJSON, err := json.Marshal(rec.State)
	if err != nil {
		return false, fmt.Errorf("encode session state: %w", err)
	}

	query := `
	INSERT INTO sessions (session_key, user_id, session_id, phase, state_json, version, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_key) DO UPDATE SET
		phase = excluded.phase,
		state_json = excluded.state_json,
		version = excluded.version,
		updated_at = excluded.updated_at
	WHERE excluded.version > sessions.version`

	now := time.Now()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	var applied bool
	err = withBusyRetry(ctx, "save session", func() error {
		result, err := s.db.ExecContext(ctx, query,
			rec.Key, rec.UserID, rec.SessionID, string(rec.State.Phase), string(stateJSON),
			rec.Version, rec.CreatedAt.Unix(), rec.UpdatedAt.Unix(),
		)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		applied = rows > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("upsert session %s: %w", rec.Key, err)
	}
	return applied, nil
}

// DeleteSession removes a snapshot.
func (s *SQLiteStore) DeleteSession(ctx context.Context, key string) error {
	err := withBusyRetry(ctx, "delete session", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}

// CleanupExpiredSessions removes snapshots older than TTL.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	var removed int64
	err := withBusyRetry(ctx, "cleanup sessions", func() error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return removed, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// normalize restores empty slices that JSON may have dropped as null.
func normalize(s domain.SessionState) domain.SessionState {
	if s.Logs == nil {
		s.Logs = []string{}
	}
	if s.ExecutionLogs == nil {
		s.ExecutionLogs = []string{}
	}
	if s.Interactions == nil {
		s.Interactions = []domain.InteractionMessage{}
	}
	return s
}

var _ Repository = (*SQLiteStore)(nil)
