package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/cloud-runner/internal/store"
)

// SweeperConfig controls the background sweep.
type SweeperConfig struct {
	Interval  time.Duration
	IdleEvict time.Duration
	TTL       time.Duration
}

// StartSweeper runs a background goroutine that periodically evicts idle
// sessions from memory and deletes snapshots older than the TTL.
func StartSweeper(ctx context.Context, m *Manager, repo store.Repository, cfg SweeperConfig) {
	ticker := time.NewTicker(cfg.Interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started",
			"interval", cfg.Interval,
			"idle_evict", cfg.IdleEvict,
			"ttl", cfg.TTL,
		)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, m, repo, cfg)
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweep(ctx context.Context, m *Manager, repo store.Repository, cfg SweeperConfig) {
	if evicted := m.EvictIdle(cfg.IdleEvict); evicted > 0 {
		slog.Info("Session sweeper evicted idle sessions", "count", evicted, "remaining", m.Len())
	}

	if repo == nil {
		return
	}
	deleted, err := repo.CleanupExpiredSessions(ctx, cfg.TTL)
	if err != nil {
		slog.Error("Session sweeper failed to clean up expired snapshots", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Session sweeper removed expired snapshots", "count", deleted)
	}
}
