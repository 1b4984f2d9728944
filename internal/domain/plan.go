// Package domain contains core domain types for the cloud runner.
package domain

import "strings"

// ExecutionPlan describes how to install, build, run and expose a repository.
// It is produced once per analysis and never mutated afterwards.
type ExecutionPlan struct {
	ProjectType     string   `json:"project_type"`
	Language        []string `json:"language"`
	Frameworks      []string `json:"frameworks"`
	InstallCommands []string `json:"install_commands"`
	BuildCommands   []string `json:"build_commands"`
	RunCommands     []string `json:"run_commands"`
	ExposedPort     string   `json:"exposed_port"`
	Notes           string   `json:"notes"`
}

// PlanFields lists the JSON keys every plan must carry.
var PlanFields = []string{
	"project_type",
	"language",
	"frameworks",
	"install_commands",
	"build_commands",
	"run_commands",
	"exposed_port",
	"notes",
}

var nodeLanguages = map[string]bool{
	"javascript": true,
	"typescript": true,
	"node":       true,
	"nodejs":     true,
}

// Clone returns a deep copy of the plan.
func (p *ExecutionPlan) Clone() *ExecutionPlan {
	if p == nil {
		return nil
	}
	c := *p
	c.Language = cloneStrings(p.Language)
	c.Frameworks = cloneStrings(p.Frameworks)
	c.InstallCommands = cloneStrings(p.InstallCommands)
	c.BuildCommands = cloneStrings(p.BuildCommands)
	c.RunCommands = cloneStrings(p.RunCommands)
	return &c
}

// IsNodeLike reports whether the plan targets the Node ecosystem, judged by
// its declared languages or its install commands.
func (p *ExecutionPlan) IsNodeLike() bool {
	for _, l := range p.Language {
		if nodeLanguages[strings.ToLower(l)] {
			return true
		}
	}
	for _, c := range p.InstallCommands {
		if strings.Contains(c, "npm") || strings.Contains(c, "yarn") || strings.Contains(c, "pnpm") {
			return true
		}
	}
	return false
}

// Stack returns languages followed by frameworks, the order the plan view
// renders its badges in.
func (p *ExecutionPlan) Stack() []string {
	out := make([]string, 0, len(p.Language)+len(p.Frameworks))
	out = append(out, p.Language...)
	return append(out, p.Frameworks...)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
