package pacing

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AnalysisLabels are the scripted progress lines shown while a repository is
// analysed, in display order.
var AnalysisLabels = []string{
	"Connecting to GitHub API metadata...",
	"Analyzing repository structure...",
	"Detecting languages and frameworks...",
	"Inferring dependency management...",
	"Generating build and run strategies...",
	"Finalizing execution plan...",
}

// Table holds the timing policy of the simulated pipeline.
type Table struct {
	AnalysisStep time.Duration `yaml:"analysis_step"`
	Connect      time.Duration `yaml:"connect"`
	Clone        time.Duration `yaml:"clone"`
	Install      time.Duration `yaml:"install"`
	Build        time.Duration `yaml:"build"`
	Run          time.Duration `yaml:"run"`
}

// DefaultTable returns the stock timings.
func DefaultTable() Table {
	return Table{
		AnalysisStep: 600 * time.Millisecond,
		Connect:      1000 * time.Millisecond,
		Clone:        1500 * time.Millisecond,
		Install:      1000 * time.Millisecond,
		Build:        1200 * time.Millisecond,
		Run:          800 * time.Millisecond,
	}
}

// LoadTable reads a YAML timing file over the defaults. Keys missing from
// the file keep their default. An empty path yields the defaults.
func LoadTable(path string) (Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Table{}, fmt.Errorf("pacing file %s does not exist", path)
		}
		return Table{}, fmt.Errorf("read pacing file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("parse pacing file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate rejects zero or negative delays.
func (t Table) Validate() error {
	for _, e := range t.entries() {
		if e.d <= 0 {
			return fmt.Errorf("pacing: %s must be > 0, got %s", e.key, e.d)
		}
	}
	return nil
}

// Milliseconds exposes the table to the frontend.
func (t Table) Milliseconds() map[string]int64 {
	out := make(map[string]int64, 6)
	for _, e := range t.entries() {
		out[e.key] = e.d.Milliseconds()
	}
	return out
}

type entry struct {
	key string
	d   time.Duration
}

func (t Table) entries() []entry {
	return []entry{
		{"analysis_step", t.AnalysisStep},
		{"connect", t.Connect},
		{"clone", t.Clone},
		{"install", t.Install},
		{"build", t.Build},
		{"run", t.Run},
	}
}

// AnalysisSteps pairs every analysis label with the analysis pause.
func (t Table) AnalysisSteps() []Step {
	steps := make([]Step, len(AnalysisLabels))
	for i, label := range AnalysisLabels {
		steps[i] = Step{Label: label, Delay: t.AnalysisStep}
	}
	return steps
}
