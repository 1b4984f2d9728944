package domain

// Phase is the coarse position of a session in the simulated pipeline.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAnalyzing Phase = "analyzing"
	PhasePlanReady Phase = "plan_ready"
	PhaseExecuting Phase = "executing"
	PhaseExecuted  Phase = "executed"
)

// ReadyMessage is the single log line of a fresh session.
const ReadyMessage = "Ready to analyze repository. Paste a GitHub URL to begin."

// SessionState holds everything the UI renders for one user session.
// A plan is present exactly when Phase is plan_ready, executing or executed.
type SessionState struct {
	RepoURL       string               `json:"repo_url"`
	Phase         Phase                `json:"phase"`
	Faulted       bool                 `json:"faulted"`
	Interacting   bool                 `json:"interacting"`
	Error         *string              `json:"error"`
	Plan          *ExecutionPlan       `json:"plan"`
	Logs          []string             `json:"logs"`
	ExecutionLogs []string             `json:"execution_logs"`
	CurrentStep   int                  `json:"current_step"`
	Interactions  []InteractionMessage `json:"interactions"`
}

// InitialState returns the literal state of a new or reset session.
func InitialState() SessionState {
	return SessionState{
		Phase:         PhaseIdle,
		Logs:          []string{ReadyMessage},
		ExecutionLogs: []string{},
		CurrentStep:   -1,
		Interactions:  []InteractionMessage{},
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s SessionState) Clone() SessionState {
	c := s
	if s.Error != nil {
		msg := *s.Error
		c.Error = &msg
	}
	c.Plan = s.Plan.Clone()
	c.Logs = cloneStrings(s.Logs)
	c.ExecutionLogs = cloneStrings(s.ExecutionLogs)
	c.Interactions = make([]InteractionMessage, len(s.Interactions))
	copy(c.Interactions, s.Interactions)
	return c
}

// ErrorMessage returns the surfaced error or an empty string.
func (s SessionState) ErrorMessage() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

// Running reports whether a scripted sequence is still producing output.
// A faulted execution keeps its phase but is no longer running.
func (s SessionState) Running() bool {
	return s.Phase == PhaseAnalyzing || s.Phase == PhaseExecuting && !s.Faulted
}

// HasPlan reports whether a plan has been stored.
func (s SessionState) HasPlan() bool {
	return s.Plan != nil
}
