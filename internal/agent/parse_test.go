package agent

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ashureev/cloud-runner/internal/domain"
)

const validPlanJSON = `{
  "project_type": "Frontend",
  "language": ["TypeScript"],
  "frameworks": ["React", "Vite"],
  "install_commands": ["npm install"],
  "build_commands": ["npm run build"],
  "run_commands": [],
  "exposed_port": "5173",
  "notes": "Set VITE_API_URL if needed."
}`

func TestParsePlan(t *testing.T) {
	want := &domain.ExecutionPlan{
		ProjectType:     "Frontend",
		Language:        []string{"TypeScript"},
		Frameworks:      []string{"React", "Vite"},
		InstallCommands: []string{"npm install"},
		BuildCommands:   []string{"npm run build"},
		RunCommands:     []string{},
		ExposedPort:     "5173",
		Notes:           "Set VITE_API_URL if needed.",
	}

	for name, input := range map[string]string{
		"plain":  validPlanJSON,
		"fenced": "```json\n" + validPlanJSON + "\n```",
	} {
		t.Run(name, func(t *testing.T) {
			got, err := parsePlan(input)
			if err != nil {
				t.Fatalf("parsePlan failed: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("plan mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParsePlanRejectsIncompleteOrMalformed(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		errPart string
	}{
		{"empty", "  ", "empty"},
		{"not json", "the project uses npm", "malformed"},
		{"missing field", strings.Replace(validPlanJSON, `"notes": "Set VITE_API_URL if needed."`, `"other": ""`, 1), "notes"},
		{"null field", strings.Replace(validPlanJSON, `"run_commands": []`, `"run_commands": null`, 1), "run_commands"},
		{"wrong type", strings.Replace(validPlanJSON, `"language": ["TypeScript"]`, `"language": "TypeScript"`, 1), "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePlan(tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Fatalf("error %q does not mention %q", err, tt.errPart)
			}
		})
	}
}
