// Package pipeline holds the pure state transitions of the simulated
// analyse, plan, execute and interact pipeline. Every function takes a
// SessionState value and returns the next one; none of them touch the input.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/cloud-runner/internal/domain"
	"github.com/ashureev/cloud-runner/internal/pacing"
)

const (
	// HostMarker must appear in every repository URL.
	HostMarker = "github.com"

	MsgInvalidURL       = "Please enter a valid GitHub repository URL."
	MsgAnalysisFailed   = "Failed to analyze repository. Please check the URL and try again."
	MsgAnalysisComplete = "✅ Analysis complete! Execution plan generated."
	MsgInterrupted      = "Analysis was interrupted by a server restart. Please start again."
	MsgDegradedReply    = "The application did not respond to this request. Please try again."
)

// StepCount is N, the number of scripted analysis steps.
func StepCount() int {
	return len(pacing.AnalysisLabels)
}

// ValidateRepoURL rejects URLs without the host marker.
func ValidateRepoURL(url string) error {
	if !strings.Contains(url, HostMarker) {
		return domain.NewError(domain.KindValidation, MsgInvalidURL, nil)
	}
	return nil
}

// Reset returns the initial state regardless of s.
func Reset(domain.SessionState) domain.SessionState {
	return domain.InitialState()
}

// RejectURL surfaces a validation error and changes nothing else.
func RejectURL(s domain.SessionState, err error) domain.SessionState {
	next := s.Clone()
	next.Error = errorText(err, MsgInvalidURL)
	return next
}

// BeginAnalysis enters the analyzing phase for url with a fresh log.
func BeginAnalysis(s domain.SessionState, url string) domain.SessionState {
	next := s.Clone()
	next.RepoURL = url
	next.Phase = domain.PhaseAnalyzing
	next.Error = nil
	next.Plan = nil
	next.Logs = []string{fmt.Sprintf("Initiating analysis for %s...", url)}
	next.CurrentStep = 0
	return next
}

// RecordAnalysisStep appends the label of step i and advances the counter.
func RecordAnalysisStep(s domain.SessionState, i int, label string) domain.SessionState {
	next := s.Clone()
	next.CurrentStep = i
	next.Logs = append(next.Logs, label)
	return next
}

// CompleteAnalysis stores the plan and moves to plan_ready. CurrentStep is
// set to N, the completion sentinel.
func CompleteAnalysis(s domain.SessionState, plan *domain.ExecutionPlan) domain.SessionState {
	next := s.Clone()
	next.Phase = domain.PhasePlanReady
	next.Plan = plan.Clone()
	next.Logs = append(next.Logs, MsgAnalysisComplete)
	next.CurrentStep = StepCount()
	return next
}

// FailAnalysis records err, appends an error line and returns to idle. The
// log history is preserved.
func FailAnalysis(s domain.SessionState, err error) domain.SessionState {
	next := s.Clone()
	msg := errorText(err, MsgAnalysisFailed)
	next.Phase = domain.PhaseIdle
	next.Plan = nil
	next.Error = msg
	next.Logs = append(next.Logs, "Error: "+*msg)
	next.CurrentStep = -1
	return next
}

// BeginExecution enters the executing phase and seeds the provisioning lines.
// It fails with ErrNoPlan when there is nothing to run.
func BeginExecution(s domain.SessionState) (domain.SessionState, error) {
	if s.Plan == nil {
		return s, domain.ErrNoPlan
	}
	next := s.Clone()
	next.Phase = domain.PhaseExecuting
	next.Faulted = false
	next.ExecutionLogs = append([]string{}, seedLines...)
	return next, nil
}

// AppendExecutionLog adds one simulated output line.
func AppendExecutionLog(s domain.SessionState, line string) domain.SessionState {
	next := s.Clone()
	next.ExecutionLogs = append(next.ExecutionLogs, line)
	return next
}

// CompleteExecution marks the simulated service as running.
func CompleteExecution(s domain.SessionState) domain.SessionState {
	next := s.Clone()
	next.Phase = domain.PhaseExecuted
	return next
}

// FaultExecution logs a generic critical error and marks the sequence as
// stopped. The phase is left as is so the output stays on screen until reset.
func FaultExecution(s domain.SessionState) domain.SessionState {
	next := AppendExecutionLog(s, MsgCriticalError)
	next.Faulted = true
	return next
}

// BeginInteraction appends the user's message and raises the interacting
// flag. It refuses empty input, a session that is not executed, and a second
// message while a reply is pending.
func BeginInteraction(s domain.SessionState, id, text string, now time.Time) (domain.SessionState, error) {
	text = strings.TrimSpace(text)
	switch {
	case s.Phase != domain.PhaseExecuted:
		return s, domain.ErrNotExecuted
	case text == "":
		return s, domain.ErrEmptyMessage
	case s.Interacting:
		return s, domain.ErrBusy
	}
	next := s.Clone()
	next.Interacting = true
	next.Interactions = append(next.Interactions, domain.InteractionMessage{
		ID:        id,
		Role:      domain.RoleUser,
		Content:   text,
		Kind:      domain.MessageKindNormal,
		Timestamp: now,
	})
	return next, nil
}

// CompleteInteraction appends the app's reply and clears the flag.
func CompleteInteraction(s domain.SessionState, id, reply string, now time.Time) domain.SessionState {
	return appendReply(s, id, reply, domain.MessageKindNormal, now)
}

// DegradeInteraction appends a placeholder reply describing the failure so
// the transcript stays coherent.
func DegradeInteraction(s domain.SessionState, id string, now time.Time) domain.SessionState {
	return appendReply(s, id, MsgDegradedReply, domain.MessageKindDegraded, now)
}

func appendReply(s domain.SessionState, id, content string, kind domain.MessageKind, now time.Time) domain.SessionState {
	next := s.Clone()
	next.Interacting = false
	next.Interactions = append(next.Interactions, domain.InteractionMessage{
		ID:        id,
		Role:      domain.RoleApp,
		Content:   content,
		Kind:      kind,
		Timestamp: now,
	})
	return next
}

// Recover normalizes a snapshot whose in-flight work was lost, for example
// one reloaded after a restart.
func Recover(s domain.SessionState, replyID string, now time.Time) domain.SessionState {
	next := s.Clone()
	switch next.Phase {
	case domain.PhaseAnalyzing:
		msg := MsgInterrupted
		next.Phase = domain.PhaseIdle
		next.Plan = nil
		next.Error = &msg
		next.Logs = append(next.Logs, "Error: "+msg)
		next.CurrentStep = -1
	case domain.PhaseExecuting:
		if !next.Faulted {
			next.Phase = domain.PhasePlanReady
		}
	}
	if next.Plan == nil && next.Phase != domain.PhaseIdle && next.Phase != domain.PhaseAnalyzing {
		next.Phase = domain.PhaseIdle
	}
	if next.Interacting {
		next = DegradeInteraction(next, replyID, now)
	}
	return next
}

func errorText(err error, fallback string) *string {
	msg := fallback
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		msg = de.Message
	}
	return &msg
}
