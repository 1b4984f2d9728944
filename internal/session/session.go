// Package session runs the simulated pipeline for each user session. A
// Session owns the only mutable reference to its SessionState; every change
// goes through a pure pipeline transition applied under the session lock.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/cloud-runner/internal/agent"
	"github.com/ashureev/cloud-runner/internal/domain"
	"github.com/ashureev/cloud-runner/internal/pacing"
	"github.com/ashureev/cloud-runner/internal/pipeline"
)

// Collaborator is the AI boundary a session depends on.
type Collaborator interface {
	Name() string
	InferPlan(ctx context.Context, req agent.PlanRequest) (*domain.ExecutionPlan, error)
	SimulateReply(ctx context.Context, req agent.ReplyRequest) (string, error)
}

// Snapshot is an immutable copy of a session at one version.
type Snapshot struct {
	Key       string              `json:"key"`
	UserID    string              `json:"-"`
	SessionID string              `json:"-"`
	Version   int64               `json:"version"`
	State     domain.SessionState `json:"state"`
}

// Observer receives every committed snapshot in version order. It is
// called with the session lock held and must not block or call back into
// the session.
type Observer func(Snapshot)

// Options controls timing and identity generation.
type Options struct {
	Pacing  pacing.Table
	Sleeper pacing.Sleeper
	Now     func() time.Time
	NewID   func() string
}

func (o Options) withDefaults() Options {
	if o.Pacing == (pacing.Table{}) {
		o.Pacing = pacing.DefaultTable()
	}
	if o.Sleeper == nil {
		o.Sleeper = pacing.Timer
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = newID
	}
	return o
}

// Key joins a user and tab session id into a session key.
func Key(userID, sessionID string) string {
	return userID + ":" + sessionID
}

// Session is the runtime of one user session.
type Session struct {
	key       string
	userID    string
	sessionID string
	collab    Collaborator
	opts      Options
	base      context.Context

	mu         sync.Mutex
	state      domain.SessionState
	version    int64
	epoch      uint64
	runCtx     context.Context
	cancel     context.CancelFunc
	closed     bool
	lastActive time.Time
	observers  []Observer
	wg         sync.WaitGroup
}

func newSession(base context.Context, userID, sessionID string, state domain.SessionState, version int64, collab Collaborator, opts Options, observers ...Observer) *Session {
	s := &Session{
		key:       Key(userID, sessionID),
		userID:    userID,
		sessionID: sessionID,
		collab:    collab,
		opts:      opts.withDefaults(),
		base:      base,
		state:     state,
		version:   version,
		observers: observers,
	}
	s.runCtx, s.cancel = context.WithCancel(base)
	s.lastActive = s.opts.Now()
	return s
}

// Key returns the session key.
func (s *Session) Key() string {
	return s.key
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LastActive is the time of the last committed change.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Busy reports whether a scripted sequence or AI request is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyLocked()
}

func (s *Session) busyLocked() bool {
	return s.state.Running() || s.state.Interacting
}

// Analyze validates repoURL and starts the scripted analysis followed by one
// plan request. Invalid URLs surface an error and return it.
func (s *Session) Analyze(repoURL string) error {
	repoURL = strings.TrimSpace(repoURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return domain.ErrClosed
	case s.state.Running():
		return domain.ErrBusy
	case s.state.HasPlan():
		return domain.ErrInvalidPhase
	}

	if err := pipeline.ValidateRepoURL(repoURL); err != nil {
		s.commitLocked(pipeline.RejectURL(s.state, err))
		return err
	}

	s.commitLocked(pipeline.BeginAnalysis(s.state, repoURL))
	s.spawnLocked(func(ctx context.Context, epoch uint64) {
		s.runAnalysis(ctx, epoch, repoURL)
	})
	slog.Info("Analysis started", "session_key", s.key, "repo_url", repoURL)
	return nil
}

func (s *Session) runAnalysis(ctx context.Context, epoch uint64, repoURL string) {
	err := pacing.Replay(ctx, s.opts.Pacing.AnalysisSteps(), s.opts.Sleeper, func(i int, step pacing.Step) error {
		return s.apply(epoch, func(st domain.SessionState) domain.SessionState {
			return pipeline.RecordAnalysisStep(st, i, step.Label)
		})
	})
	if err != nil {
		s.logAbandoned("analysis", err)
		return
	}

	plan, err := s.collab.InferPlan(ctx, agent.PlanRequest{
		RepoURL:   repoURL,
		UserID:    s.userID,
		SessionID: s.sessionID,
	})
	if err != nil && ctx.Err() != nil {
		s.logAbandoned("analysis", ctx.Err())
		return
	}
	if err != nil {
		failure := domain.NewError(domain.KindAnalysis, pipeline.MsgAnalysisFailed, err)
		if applyErr := s.apply(epoch, func(st domain.SessionState) domain.SessionState {
			return pipeline.FailAnalysis(st, failure)
		}); applyErr != nil {
			s.logAbandoned("analysis", applyErr)
		}
		return
	}

	plan = pipeline.ApplyStartFallback(plan)
	if err := s.apply(epoch, func(st domain.SessionState) domain.SessionState {
		return pipeline.CompleteAnalysis(st, plan)
	}); err != nil {
		s.logAbandoned("analysis", err)
		return
	}
	slog.Info("Analysis complete", "session_key", s.key, "project_type", plan.ProjectType)
}

// Execute starts the scripted execution of the stored plan.
func (s *Session) Execute() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return domain.ErrClosed
	case s.state.Running():
		return domain.ErrBusy
	case s.state.Phase == domain.PhaseExecuting, s.state.Phase == domain.PhaseExecuted:
		return domain.ErrInvalidPhase
	}

	next, err := pipeline.BeginExecution(s.state)
	if err != nil {
		return err
	}
	s.commitLocked(next)

	repoURL, plan := next.RepoURL, next.Plan.Clone()
	s.spawnLocked(func(ctx context.Context, epoch uint64) {
		s.runExecution(ctx, epoch, repoURL, plan)
	})
	slog.Info("Execution started", "session_key", s.key, "run_command", pipeline.RunCommand(plan))
	return nil
}

func (s *Session) runExecution(ctx context.Context, epoch uint64, repoURL string, plan *domain.ExecutionPlan) {
	defer func() {
		if r := recover(); r != nil {
			s.fault(epoch, fmt.Errorf("panic: %v", r))
		}
	}()

	steps := pipeline.ExecutionScript(repoURL, plan, s.opts.Pacing)
	err := pacing.Replay(ctx, steps, s.opts.Sleeper, func(_ int, step pacing.Step) error {
		return s.apply(epoch, func(st domain.SessionState) domain.SessionState {
			return pipeline.AppendExecutionLog(st, step.Label)
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrStaleSession) || ctx.Err() != nil {
			s.logAbandoned("execution", err)
			return
		}
		s.fault(epoch, err)
		return
	}

	if err := s.apply(epoch, pipeline.CompleteExecution); err != nil {
		s.logAbandoned("execution", err)
		return
	}
	slog.Info("Execution complete", "session_key", s.key)
}

// fault records a simulation fault. The phase is left unchanged.
func (s *Session) fault(epoch uint64, cause error) {
	err := domain.NewError(domain.KindSimulationFault, pipeline.MsgCriticalError, cause)
	slog.Error("Execution simulation fault", "session_key", s.key, "error", err)
	_ = s.apply(epoch, pipeline.FaultExecution)
}

// Interact appends msg to the transcript and requests the application's
// reply. At most one request is in flight; further messages are dropped
// with ErrBusy.
func (s *Session) Interact(msg string) (domain.InteractionMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.InteractionMessage{}, domain.ErrClosed
	}
	prior := s.state.Interactions
	next, err := pipeline.BeginInteraction(s.state, s.opts.NewID(), msg, s.opts.Now())
	if err != nil {
		return domain.InteractionMessage{}, err
	}
	s.commitLocked(next)

	sent := next.Interactions[len(next.Interactions)-1]
	req := agent.ReplyRequest{
		RepoURL:    next.RepoURL,
		Plan:       next.Plan.Clone(),
		Transcript: append([]domain.InteractionMessage(nil), prior...),
		Message:    sent.Content,
		UserID:     s.userID,
		SessionID:  s.sessionID,
	}
	s.spawnLocked(func(ctx context.Context, epoch uint64) {
		s.runInteraction(ctx, epoch, req)
	})
	return sent, nil
}

func (s *Session) runInteraction(ctx context.Context, epoch uint64, req agent.ReplyRequest) {
	reply, err := s.collab.SimulateReply(ctx, req)
	id, now := s.opts.NewID(), s.opts.Now()

	transition := func(st domain.SessionState) domain.SessionState {
		return pipeline.CompleteInteraction(st, id, reply, now)
	}
	if err != nil {
		degraded := domain.NewError(domain.KindInteractionDegraded, pipeline.MsgDegradedReply, err)
		slog.Warn("Interaction degraded", "session_key", s.key, "error", degraded)
		transition = func(st domain.SessionState) domain.SessionState {
			return pipeline.DegradeInteraction(st, id, now)
		}
	}
	if err := s.apply(epoch, transition); err != nil {
		s.logAbandoned("interaction", err)
	}
}

// Reset cancels in-flight work and restores the initial state. It is
// refused while an execution is running; a faulted execution can be reset.
func (s *Session) Reset() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return s.snapshotLocked(), domain.ErrClosed
	case s.state.Phase == domain.PhaseExecuting && !s.state.Faulted:
		return s.snapshotLocked(), domain.ErrBusy
	}

	s.epoch++
	s.cancel()
	s.runCtx, s.cancel = context.WithCancel(s.base)
	s.commitLocked(pipeline.Reset(s.state))
	slog.Info("Session reset", "session_key", s.key)
	return s.snapshotLocked(), nil
}

// Close cancels in-flight work and waits for it to stop. Later operations
// fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// retire marks the session closed if it is idle and unchanged since cutoff.
// The check and the mark happen under one lock so no operation can start in
// between.
func (s *Session) retire(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.busyLocked() || s.lastActive.After(cutoff) {
		return false
	}
	s.closed = true
	s.cancel()
	return true
}

// apply runs fn on the state if epoch is still current.
func (s *Session) apply(epoch uint64, fn func(domain.SessionState) domain.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return domain.ErrStaleSession
	}
	s.commitLocked(fn(s.state))
	return nil
}

func (s *Session) commitLocked(next domain.SessionState) {
	s.state = next
	s.version++
	s.lastActive = s.opts.Now()
	snap := s.snapshotLocked()
	for _, obs := range s.observers {
		obs(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Key:       s.key,
		UserID:    s.userID,
		SessionID: s.sessionID,
		Version:   s.version,
		State:     s.state.Clone(),
	}
}

func (s *Session) spawnLocked(run func(ctx context.Context, epoch uint64)) {
	ctx, epoch := s.runCtx, s.epoch
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(ctx, epoch)
	}()
}

func (s *Session) logAbandoned(op string, err error) {
	slog.Debug("Sequence abandoned", "session_key", s.key, "op", op, "reason", err)
}
