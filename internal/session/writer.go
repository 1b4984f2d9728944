package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/cloud-runner/internal/store"
)

const (
	saveTimeout     = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// snapshotWriter persists snapshots off the session lock. Pending writes
// are coalesced per key so only the newest version of a burst hits the
// database.
type snapshotWriter struct {
	repo    store.Repository
	logger  *slog.Logger
	mu      sync.Mutex
	pending map[string]Snapshot
	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func newSnapshotWriter(repo store.Repository, logger *slog.Logger) *snapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &snapshotWriter{
		repo:    repo,
		logger:  logger,
		pending: make(map[string]Snapshot),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	w.wg.Add(1)
	go w.process()
	return w
}

// Enqueue schedules snap for persistence. It never blocks.
func (w *snapshotWriter) Enqueue(snap Snapshot) {
	w.mu.Lock()
	if cur, ok := w.pending[snap.Key]; !ok || cur.Version < snap.Version {
		w.pending[snap.Key] = snap
	}
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *snapshotWriter) process() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.flush()
			return
		case <-w.wake:
			w.flush()
		}
	}
}

func (w *snapshotWriter) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]Snapshot, len(batch))
	w.mu.Unlock()

	for _, snap := range batch {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		applied, err := w.repo.SaveSession(ctx, &store.SessionRecord{
			Key:       snap.Key,
			UserID:    snap.UserID,
			SessionID: snap.SessionID,
			State:     snap.State,
			Version:   snap.Version,
		})
		cancel()
		if err != nil {
			w.logger.Error("Failed to persist session snapshot",
				"session_key", snap.Key,
				"version", snap.Version,
				"error", err,
			)
			continue
		}
		if !applied {
			w.logger.Debug("Discarded stale session snapshot", "session_key", snap.Key, "version", snap.Version)
		}
		if d := time.Since(start); d > 100*time.Millisecond {
			w.logger.Warn("Slow session snapshot write", "session_key", snap.Key, "duration_ms", d.Milliseconds())
		}
	}
}

// Close flushes pending snapshots and stops the writer.
func (w *snapshotWriter) Close() {
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		w.logger.Warn("Snapshot writer shutdown timeout")
	}
}
