package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/cloud-runner/internal/domain"
	"github.com/google/go-cmp/cmp"
)

func samplePlan() *domain.ExecutionPlan {
	return &domain.ExecutionPlan{
		ProjectType:     "Frontend",
		Language:        []string{"TypeScript"},
		Frameworks:      []string{"React"},
		InstallCommands: []string{"npm install"},
		BuildCommands:   []string{"npm run build"},
		RunCommands:     []string{},
		ExposedPort:     "8080",
		Notes:           "none",
	}
}

func TestValidateRepoURL(t *testing.T) {
	tests := []struct {
		url   string
		valid bool
	}{
		{"https://github.com/user/project", true},
		{"github.com/user/project", true},
		{"https://gitlab.com/user/project", false},
		{"", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		err := ValidateRepoURL(tt.url)
		if tt.valid && err != nil {
			t.Errorf("ValidateRepoURL(%q) = %v, want nil", tt.url, err)
		}
		if !tt.valid && domain.KindOf(err) != domain.KindValidation {
			t.Errorf("ValidateRepoURL(%q) = %v, want validation error", tt.url, err)
		}
	}
}

func TestRejectURLOnlySetsError(t *testing.T) {
	start := domain.InitialState()
	next := RejectURL(start, ValidateRepoURL("https://example.com"))

	if next.ErrorMessage() != MsgInvalidURL {
		t.Fatalf("error = %q", next.ErrorMessage())
	}
	next.Error = nil
	if diff := cmp.Diff(start, next); diff != "" {
		t.Fatalf("state changed beyond the error (-want +got):\n%s", diff)
	}
}

func TestSuccessfulAnalysisLog(t *testing.T) {
	s := BeginAnalysis(domain.InitialState(), "https://github.com/a/b")
	for i, label := range []string{"a", "b", "c", "d", "e", "f"} {
		s = RecordAnalysisStep(s, i, label)
	}
	s = CompleteAnalysis(s, samplePlan())

	if got, want := len(s.Logs), StepCount()+2; got != want {
		t.Fatalf("len(logs) = %d, want %d", got, want)
	}
	if s.CurrentStep != StepCount() {
		t.Fatalf("current step = %d, want %d", s.CurrentStep, StepCount())
	}
	if s.Phase != domain.PhasePlanReady || s.Plan == nil {
		t.Fatalf("expected plan_ready with a plan, got %s", s.Phase)
	}
	if s.Logs[0] != "Initiating analysis for https://github.com/a/b..." {
		t.Fatalf("unexpected start line %q", s.Logs[0])
	}
}

func TestFailAnalysisPreservesLogs(t *testing.T) {
	s := BeginAnalysis(domain.InitialState(), "https://github.com/a/b")
	s = RecordAnalysisStep(s, 0, "step")
	s = FailAnalysis(s, domain.NewError(domain.KindAnalysis, MsgAnalysisFailed, errors.New("timeout")))

	if s.Phase != domain.PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase)
	}
	if s.Plan != nil {
		t.Fatal("plan should be nil after failure")
	}
	if len(s.Logs) != 3 || s.Logs[1] != "step" {
		t.Fatalf("logs not preserved: %v", s.Logs)
	}
	if s.Logs[2] != "Error: "+MsgAnalysisFailed {
		t.Fatalf("unexpected error line %q", s.Logs[2])
	}
	if s.ErrorMessage() != MsgAnalysisFailed {
		t.Fatalf("error = %q", s.ErrorMessage())
	}
}

func TestResetIsIdempotent(t *testing.T) {
	want := domain.SessionState{
		Phase:         domain.PhaseIdle,
		Logs:          []string{domain.ReadyMessage},
		ExecutionLogs: []string{},
		CurrentStep:   -1,
		Interactions:  []domain.InteractionMessage{},
	}

	executed := CompleteExecution(mustBeginExecution(t, CompleteAnalysis(BeginAnalysis(domain.InitialState(), "https://github.com/a/b"), samplePlan())))
	states := []domain.SessionState{
		domain.InitialState(),
		BeginAnalysis(domain.InitialState(), "https://github.com/a/b"),
		executed,
		RejectURL(domain.InitialState(), nil),
	}
	for _, s := range states {
		if diff := cmp.Diff(want, Reset(s)); diff != "" {
			t.Errorf("Reset from %s mismatch (-want +got):\n%s", s.Phase, diff)
		}
		if diff := cmp.Diff(want, Reset(Reset(s))); diff != "" {
			t.Errorf("double Reset mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestBeginExecutionRequiresPlan(t *testing.T) {
	start := domain.InitialState()
	next, err := BeginExecution(start)
	if !errors.Is(err, domain.ErrNoPlan) {
		t.Fatalf("expected ErrNoPlan, got %v", err)
	}
	if diff := cmp.Diff(start, next); diff != "" {
		t.Fatalf("state changed on no-op (-want +got):\n%s", diff)
	}
}

func TestInteractionGuards(t *testing.T) {
	now := time.Unix(1700000000, 0)
	idle := domain.InitialState()
	if _, err := BeginInteraction(idle, "1", "hello", now); !errors.Is(err, domain.ErrNotExecuted) {
		t.Fatalf("expected ErrNotExecuted, got %v", err)
	}

	executed := CompleteExecution(mustBeginExecution(t, CompleteAnalysis(BeginAnalysis(idle, "https://github.com/a/b"), samplePlan())))
	if _, err := BeginInteraction(executed, "1", "   ", now); !errors.Is(err, domain.ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}

	pending, err := BeginInteraction(executed, "1", " hello ", now)
	if err != nil {
		t.Fatalf("BeginInteraction failed: %v", err)
	}
	if len(pending.Interactions) != 1 || pending.Interactions[0].Content != "hello" || pending.Interactions[0].Role != domain.RoleUser {
		t.Fatalf("unexpected transcript: %+v", pending.Interactions)
	}
	if !pending.Interacting {
		t.Fatal("interacting flag not raised")
	}
	if _, err := BeginInteraction(pending, "2", "again", now); !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	done := CompleteInteraction(pending, "3", "hi there", now)
	if done.Interacting || len(done.Interactions) != 2 || done.Interactions[1].Role != domain.RoleApp {
		t.Fatalf("unexpected completed state: %+v", done)
	}

	degraded := DegradeInteraction(pending, "3", now)
	if degraded.Interactions[1].Kind != domain.MessageKindDegraded {
		t.Fatalf("expected degraded reply, got %+v", degraded.Interactions[1])
	}
	if degraded.Interactions[0].Content != "hello" {
		t.Fatal("user message lost on degraded reply")
	}
}

func TestRecoverInterruptedAnalysis(t *testing.T) {
	s := RecordAnalysisStep(BeginAnalysis(domain.InitialState(), "https://github.com/a/b"), 0, "step")
	got := Recover(s, "r", time.Now())
	if got.Phase != domain.PhaseIdle {
		t.Fatalf("phase = %s", got.Phase)
	}
	if !strings.HasPrefix(got.Logs[len(got.Logs)-1], "Error: ") {
		t.Fatalf("expected trailing error line, got %v", got.Logs)
	}
}

func TestRecoverPendingInteraction(t *testing.T) {
	executed := CompleteExecution(mustBeginExecution(t, CompleteAnalysis(BeginAnalysis(domain.InitialState(), "https://github.com/a/b"), samplePlan())))
	pending, err := BeginInteraction(executed, "1", "hello", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	got := Recover(pending, "2", time.Now())
	if got.Interacting {
		t.Fatal("interacting flag should be cleared")
	}
	if len(got.Interactions) != 2 || got.Interactions[1].Kind != domain.MessageKindDegraded {
		t.Fatalf("expected degraded reply, got %+v", got.Interactions)
	}
}

func TestFaultExecutionStopsSequence(t *testing.T) {
	executing := mustBeginExecution(t, CompleteAnalysis(BeginAnalysis(domain.InitialState(), "https://github.com/a/b"), samplePlan()))
	if !executing.Running() {
		t.Fatal("execution should be running")
	}

	faulted := FaultExecution(executing)
	if faulted.Phase != domain.PhaseExecuting || !faulted.Faulted || faulted.Running() {
		t.Fatalf("unexpected faulted state: phase=%s faulted=%v", faulted.Phase, faulted.Faulted)
	}
	if faulted.ExecutionLogs[len(faulted.ExecutionLogs)-1] != MsgCriticalError {
		t.Fatalf("missing critical error line: %v", faulted.ExecutionLogs)
	}

	if got := Recover(faulted, "r", time.Now()); got.Phase != domain.PhaseExecuting || !got.Faulted {
		t.Fatalf("recovery should keep a faulted run as is, got phase=%s", got.Phase)
	}
	if got := Recover(executing, "r", time.Now()); got.Phase != domain.PhasePlanReady {
		t.Fatalf("interrupted run should return to plan_ready, got %s", got.Phase)
	}
	if Reset(faulted).Faulted {
		t.Fatal("reset must clear the fault")
	}
}

func mustBeginExecution(t *testing.T, s domain.SessionState) domain.SessionState {
	t.Helper()
	next, err := BeginExecution(s)
	if err != nil {
		t.Fatalf("BeginExecution failed: %v", err)
	}
	return next
}
