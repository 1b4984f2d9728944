package pipeline

import (
	"fmt"
	"strings"

	"github.com/ashureev/cloud-runner/internal/domain"
	"github.com/ashureev/cloud-runner/internal/pacing"
)

const (
	DefaultRunCommand = "npm start"
	DefaultPort       = "3000"
	MsgCriticalError  = "Critical error during execution simulation."
)

var seedLines = []string{
	"Initializing runner environment...",
	"Provisioning cloud-vm-0x7F...",
}

// SeedLines returns the provisioning lines every execution log starts with.
func SeedLines() []string {
	return append([]string{}, seedLines...)
}

// ExecutionScript builds the paced log sequence that follows the seed lines
// for plan. Nothing in it is ever executed.
func ExecutionScript(repoURL string, plan *domain.ExecutionPlan, t pacing.Table) []pacing.Step {
	steps := []pacing.Step{
		{Delay: t.Connect},
		{Label: "Successfully connected to ephemeral host."},
		{Label: fmt.Sprintf("Cloning repository: %s...", repoURL), Delay: t.Clone},
		{Label: "Repo cloned to /tmp/workspace."},
	}

	for _, cmd := range plan.InstallCommands {
		steps = append(steps,
			pacing.Step{Label: "> " + cmd, Delay: t.Install},
			pacing.Step{Label: fmt.Sprintf("Progress: %s packages resolved and cached.", firstToken(cmd))},
		)
	}
	steps = append(steps, pacing.Step{Label: "Installation finished."})

	for _, cmd := range plan.BuildCommands {
		steps = append(steps,
			pacing.Step{Label: "> " + cmd, Delay: t.Build},
			pacing.Step{Label: "Optimizing assets for production..."},
			pacing.Step{Label: "Build artifact generated in /dist."},
		)
	}

	return append(steps,
		pacing.Step{Label: "> " + RunCommand(plan), Delay: t.Run},
		pacing.Step{Label: "Service started. Listening on port " + Port(plan)},
		pacing.Step{Label: "Health check: OK (200)"},
	)
}

// RunCommand is the first run command, or the default when there is none.
func RunCommand(plan *domain.ExecutionPlan) string {
	if len(plan.RunCommands) > 0 && plan.RunCommands[0] != "" {
		return plan.RunCommands[0]
	}
	return DefaultRunCommand
}

// Port is the exposed port, or the default when the plan left it empty.
func Port(plan *domain.ExecutionPlan) string {
	if plan.ExposedPort != "" {
		return plan.ExposedPort
	}
	return DefaultPort
}

func firstToken(cmd string) string {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return cmd
	}
	return fields[0]
}

// ApplyStartFallback appends "npm start" to a Node plan whose run commands
// include a dev command but no start command. Plans without a dev command
// are returned unchanged.
func ApplyStartFallback(plan *domain.ExecutionPlan) *domain.ExecutionPlan {
	out := plan.Clone()
	if !out.IsNodeLike() || len(out.RunCommands) == 0 {
		return out
	}
	hasStart, hasDev := false, false
	for _, c := range out.RunCommands {
		if strings.Contains(c, DefaultRunCommand) {
			hasStart = true
		}
		if strings.Contains(c, "dev") {
			hasDev = true
		}
	}
	if hasDev && !hasStart {
		out.RunCommands = append(out.RunCommands, DefaultRunCommand)
	}
	return out
}
