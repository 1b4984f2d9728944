package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/cloud-runner/internal/domain"
	"github.com/ashureev/cloud-runner/internal/pipeline"
	"github.com/ashureev/cloud-runner/internal/store"
)

// Manager owns the live sessions of the process. Sessions are created on
// first use, rehydrated from the repository when a snapshot exists, and
// evicted from memory once idle.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	collab Collaborator
	repo   store.Repository
	opts   Options
	writer *snapshotWriter

	mu       sync.Mutex
	sessions map[string]*Session

	obsMu     sync.RWMutex
	observers []Observer
}

// NewManager creates a session manager. repo may be nil, in which case
// sessions live in memory only.
func NewManager(collab Collaborator, repo store.Repository, opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		ctx:      ctx,
		cancel:   cancel,
		collab:   collab,
		repo:     repo,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
	}
	if repo != nil {
		m.writer = newSnapshotWriter(repo, nil)
	}
	return m
}

// Subscribe registers obs for snapshots of every session.
func (m *Manager) Subscribe(obs Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, obs)
}

func (m *Manager) notify(snap Snapshot) {
	if m.writer != nil {
		m.writer.Enqueue(snap)
	}
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, obs := range m.observers {
		obs(snap)
	}
}

// Get returns the session for userID and sessionID, creating or
// rehydrating it as needed.
func (m *Manager) Get(ctx context.Context, userID, sessionID string) (*Session, error) {
	key := Key(userID, sessionID)

	m.mu.Lock()
	s, ok := m.sessions[key]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	// Load outside the lock so lookups of other sessions never wait on the
	// repository.
	state, version := domain.InitialState(), int64(0)
	var recovered bool
	if m.repo != nil {
		rec, err := m.repo.GetSession(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", key, err)
		}
		if rec != nil {
			state, version = rec.State, rec.Version
			recovered = needsRecovery(state)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[key]; ok {
		return existing, nil
	}

	s = newSession(m.ctx, userID, sessionID, state, version, m.collab, m.opts, m.notify)
	if recovered {
		s.mu.Lock()
		s.commitLocked(pipeline.Recover(s.state, s.opts.NewID(), s.opts.Now()))
		s.mu.Unlock()
		slog.Info("Session recovered after restart", "session_key", key, "phase", state.Phase)
	}
	m.sessions[key] = s
	return s, nil
}

// Lookup returns an in-memory session without touching the repository.
func (m *Manager) Lookup(userID, sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[Key(userID, sessionID)]
	return s, ok
}

// Len returns the number of in-memory sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle drops sessions that are not busy and have not changed within
// maxIdle. Their snapshots stay in the repository.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	cutoff := m.opts.Now().Add(-maxIdle)

	m.mu.Lock()
	var evicted []*Session
	for key, s := range m.sessions {
		if !s.retire(cutoff) {
			continue
		}
		delete(m.sessions, key)
		evicted = append(evicted, s)
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.Close()
		slog.Debug("Session evicted from memory", "session_key", s.Key())
	}
	return len(evicted)
}

// Close cancels all in-flight work and flushes pending snapshots.
func (m *Manager) Close() {
	m.cancel()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if m.writer != nil {
		m.writer.Close()
	}
}

func needsRecovery(s domain.SessionState) bool {
	return s.Running() || s.Interacting
}
