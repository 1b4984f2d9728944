// Package view projects a SessionState into the regions the UI renders.
// Nothing here mutates state; the browser only draws what Project returns.
package view

import (
	"fmt"
	"strings"

	"github.com/ashureev/cloud-runner/internal/domain"
	"github.com/ashureev/cloud-runner/internal/pipeline"
)

const (
	StatusProvisioning = "Provisioning..."
	StatusOnline       = "System Online"
	Cluster            = "ephemeral-runner-01"
	PreviewHost        = "runner-preview.internal"

	portUnset   = "N/A"
	portDynamic = "DYNAMIC"
)

// Tone is the colour class of a log line.
type Tone string

const (
	ToneNormal  Tone = "normal"
	ToneSuccess Tone = "success"
	ToneError   Tone = "error"
	ToneCommand Tone = "command"
)

// LogLine is one rendered log entry.
type LogLine struct {
	Text string `json:"text"`
	Tone Tone   `json:"tone"`
}

// CommandBlock is one numbered list of plan commands.
type CommandBlock struct {
	Title    string   `json:"title"`
	Commands []string `json:"commands"`
	CopyText string   `json:"copy_text"`
	Accent   bool     `json:"accent"`
}

// PlanSummary is the plan region.
type PlanSummary struct {
	ProjectType string         `json:"project_type"`
	Stack       []string       `json:"stack"`
	Port        string         `json:"port"`
	Notes       string         `json:"notes"`
	Blocks      []CommandBlock `json:"blocks"`
}

// Execution is the runner region.
type Execution struct {
	Status     string    `json:"status"`
	Online     bool      `json:"online"`
	Cluster    string    `json:"cluster"`
	Port       string    `json:"port"`
	Logs       []LogLine `json:"logs"`
	Processing bool      `json:"processing"`
	PreviewURL string    `json:"preview_url,omitempty"`
	PreviewMsg string    `json:"preview_message,omitempty"`
}

// View lists which regions are visible and what they show.
type View struct {
	ShowInputForm   bool         `json:"show_input_form"`
	InputDisabled   bool         `json:"input_disabled"`
	ShowProgress    bool         `json:"show_progress"`
	AnalysisLogs    []LogLine    `json:"analysis_logs"`
	Progress        int          `json:"progress"`
	ShowPlan        bool         `json:"show_plan"`
	Plan            *PlanSummary `json:"plan,omitempty"`
	ShowExecution   bool         `json:"show_execution"`
	Execution       *Execution   `json:"execution,omitempty"`
	ShowPreview     bool         `json:"show_preview"`
	ShowInteraction bool         `json:"show_interaction"`
	CanInteract     bool         `json:"can_interact"`
	Error           string       `json:"error,omitempty"`
	CanReset        bool         `json:"can_reset"`
	ResetLabel      string       `json:"reset_label"`
}

// Project computes the view of s.
func Project(s domain.SessionState) View {
	executing := s.Phase == domain.PhaseExecuting
	executed := s.Phase == domain.PhaseExecuted
	analyzing := s.Phase == domain.PhaseAnalyzing

	v := View{
		ShowInputForm: s.Plan == nil && !executing && !executed,
		InputDisabled: analyzing,
		ShowProgress:  analyzing,
		AnalysisLogs:  analysisLines(s.Logs),
		Progress:      ProgressPercent(s.CurrentStep, pipeline.StepCount()),
		Error:         s.ErrorMessage(),
		CanReset:      !executing || s.Faulted,
		ResetLabel:    "Start Over",
	}

	if s.Plan != nil && !executing && !executed {
		v.ShowPlan = true
		v.Plan = summarize(s.Plan)
	}

	if (executing || executed) && s.Plan != nil {
		v.ShowExecution = true
		v.ShowPreview = executed
		v.ShowInteraction = executed
		v.CanInteract = executed && !s.Interacting
		v.ResetLabel = "Terminate Runner"
		v.Execution = execution(s, executed)
	}
	return v
}

// ProgressPercent is (currentStep+1)/n as a percentage clamped to 0..100.
func ProgressPercent(currentStep, n int) int {
	if n <= 0 {
		return 0
	}
	p := (currentStep + 1) * 100 / n
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// PreviewURL is the simulated address of the running application.
func PreviewURL(plan *domain.ExecutionPlan) string {
	return fmt.Sprintf("https://%s:%s/", PreviewHost, pipeline.Port(plan))
}

// ExecutionTone classifies an execution log line.
func ExecutionTone(line string) Tone {
	switch {
	case strings.Contains(line, "Successfully"), strings.Contains(line, "Done"):
		return ToneSuccess
	case strings.Contains(line, "Error"), strings.Contains(line, "Failed"):
		return ToneError
	case strings.HasPrefix(line, ">"):
		return ToneCommand
	}
	return ToneNormal
}

func analysisLines(logs []string) []LogLine {
	out := make([]LogLine, len(logs))
	for i, l := range logs {
		tone := ToneNormal
		if strings.HasPrefix(l, "Error") {
			tone = ToneError
		}
		out[i] = LogLine{Text: l, Tone: tone}
	}
	return out
}

func summarize(p *domain.ExecutionPlan) *PlanSummary {
	port := p.ExposedPort
	if port == "" {
		port = portUnset
	}
	var blocks []CommandBlock
	for _, b := range []struct {
		title    string
		commands []string
		accent   bool
	}{
		{"1. Installation", p.InstallCommands, false},
		{"2. Build Process", p.BuildCommands, false},
		{"3. Execution", p.RunCommands, true},
	} {
		// Empty lists are not rendered at all.
		if len(b.commands) == 0 {
			continue
		}
		blocks = append(blocks, CommandBlock{
			Title:    b.title,
			Commands: b.commands,
			CopyText: strings.Join(b.commands, "\n"),
			Accent:   b.accent,
		})
	}
	return &PlanSummary{
		ProjectType: p.ProjectType,
		Stack:       p.Stack(),
		Port:        port,
		Notes:       p.Notes,
		Blocks:      blocks,
	}
}

func execution(s domain.SessionState, online bool) *Execution {
	port := s.Plan.ExposedPort
	if port == "" {
		port = portDynamic
	}
	logs := make([]LogLine, len(s.ExecutionLogs))
	for i, l := range s.ExecutionLogs {
		logs[i] = LogLine{Text: l, Tone: ExecutionTone(l)}
	}

	e := &Execution{
		Status:     StatusProvisioning,
		Online:     online,
		Cluster:    Cluster,
		Port:       port,
		Logs:       logs,
		Processing: !online && !s.Faulted,
	}
	if online {
		e.Status = StatusOnline
		e.PreviewURL = PreviewURL(s.Plan)
		e.PreviewMsg = fmt.Sprintf("The %s service is now responding on internal port %s.",
			strings.ToLower(s.Plan.ProjectType), pipeline.Port(s.Plan))
	}
	return e
}
