package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/cloud-runner/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "runner.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func executedState() domain.SessionState {
	s := domain.InitialState()
	s.RepoURL = "https://github.com/acme/app"
	s.Phase = domain.PhaseExecuted
	s.Plan = &domain.ExecutionPlan{
		ProjectType:     "Backend",
		Language:        []string{"Go"},
		Frameworks:      []string{},
		InstallCommands: []string{"go mod download"},
		BuildCommands:   []string{"go build ./..."},
		RunCommands:     []string{"./app"},
		ExposedPort:     "8080",
		Notes:           "",
	}
	s.CurrentStep = 6
	s.ExecutionLogs = []string{"Initializing runner environment..."}
	s.Interactions = []domain.InteractionMessage{{
		ID:        "m1",
		Role:      domain.RoleUser,
		Content:   "hello",
		Kind:      domain.MessageKindNormal,
		Timestamp: time.Unix(1700000000, 0),
	}}
	return s
}

func TestSaveAndGetSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetSession(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("GetSession(missing) = %v, %v", got, err)
	}

	rec := &SessionRecord{Key: "u:s", UserID: "u", SessionID: "s", State: executedState(), Version: 3}
	applied, err := s.SaveSession(ctx, rec)
	if err != nil || !applied {
		t.Fatalf("SaveSession = %v, %v", applied, err)
	}

	got, err = s.GetSession(ctx, "u:s")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Version != 3 || got.UserID != "u" || got.SessionID != "s" {
		t.Fatalf("unexpected record %+v", got)
	}
	if diff := cmp.Diff(executedState(), got.State); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveSessionDiscardsStaleVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	newer := &SessionRecord{Key: "k", UserID: "u", SessionID: "s", State: executedState(), Version: 5}
	if _, err := s.SaveSession(ctx, newer); err != nil {
		t.Fatal(err)
	}

	for _, v := range []int64{4, 5} {
		older := &SessionRecord{Key: "k", UserID: "u", SessionID: "s", State: domain.InitialState(), Version: v}
		applied, err := s.SaveSession(ctx, older)
		if err != nil {
			t.Fatal(err)
		}
		if applied {
			t.Fatalf("version %d should not overwrite version 5", v)
		}
	}

	got, err := s.GetSession(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if got.State.Phase != domain.PhaseExecuted {
		t.Fatalf("stale write rolled state back to %s", got.State.Phase)
	}
}

func TestGetSessionRestoresEmptySlices(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	state := domain.InitialState()
	state.ExecutionLogs = nil
	state.Interactions = nil
	if _, err := s.SaveSession(ctx, &SessionRecord{Key: "k", State: state, Version: 1}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSession(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if got.State.ExecutionLogs == nil || got.State.Interactions == nil {
		t.Fatal("expected non-nil slices after load")
	}
}

func TestCleanupExpiredAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := &SessionRecord{Key: "old", State: domain.InitialState(), Version: 1, UpdatedAt: time.Now().Add(-2 * time.Hour)}
	fresh := &SessionRecord{Key: "fresh", State: domain.InitialState(), Version: 1}
	for _, rec := range []*SessionRecord{old, fresh} {
		if _, err := s.SaveSession(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := s.CleanupExpiredSessions(ctx, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	if err := s.DeleteSession(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.GetSession(ctx, "fresh"); got != nil {
		t.Fatal("expected fresh session to be deleted")
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestWithBusyRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := withBusyRetry(ctx, "test", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked (5) (SQLITE_BUSY)")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}

	calls = 0
	permanent := errors.New("constraint failed")
	if err := withBusyRetry(ctx, "test", func() error { calls++; return permanent }); !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("non-conflict errors must not retry: err = %v, calls = %d", err, calls)
	}
}
