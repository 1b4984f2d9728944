package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/cloud-runner/internal/domain"
)

var errEmptyResponse = errors.New("empty model response")

// parsePlan decodes a model response into a plan. Every field must be
// present; fenced code blocks around the JSON are tolerated.
func parsePlan(text string) (*domain.ExecutionPlan, error) {
	text = stripFence(text)
	if text == "" {
		return nil, errEmptyResponse
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("malformed plan: %w", err)
	}
	var missing []string
	for _, field := range domain.PlanFields {
		v, ok := raw[field]
		if !ok || string(v) == "null" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("plan missing required fields: %s", strings.Join(missing, ", "))
	}

	var plan domain.ExecutionPlan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("malformed plan: %w", err)
	}
	return plan.Clone(), nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
