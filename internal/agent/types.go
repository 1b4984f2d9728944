// Package agent implements the external AI collaborator that infers
// execution plans and role-plays the running application.
package agent

import (
	"net/http"
	"time"

	"github.com/ashureev/cloud-runner/internal/domain"
)

// Provider names accepted by New.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderHeuristic = "heuristic"
)

// PlanRequest asks for the execution plan of one repository.
type PlanRequest struct {
	RepoURL   string `json:"repo_url"`
	UserID    string `json:"-"`
	SessionID string `json:"-"`
}

// ReplyRequest asks the collaborator to answer as the running application.
// Transcript holds the conversation so far and excludes Message.
type ReplyRequest struct {
	RepoURL    string                      `json:"repo_url"`
	Plan       *domain.ExecutionPlan       `json:"plan"`
	Transcript []domain.InteractionMessage `json:"transcript"`
	Message    string                      `json:"message"`
	UserID     string                      `json:"-"`
	SessionID  string                      `json:"-"`
}

// Config holds collaborator configuration.
type Config struct {
	Provider        string
	GeminiAPIKey    string
	GeminiModel     string
	GeminiBaseURL   string
	SearchGrounding bool
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	HTTPClient      *http.Client
}

// DefaultConfig returns default collaborator configuration.
func DefaultConfig() Config {
	return Config{
		Provider:        ProviderHeuristic,
		GeminiModel:     "gemini-3-flash-preview",
		SearchGrounding: true,
		OpenAIBaseURL:   "https://api.openai.com/v1",
		OpenAIModel:     "gpt-4o-mini",
		HTTPClient:      &http.Client{Timeout: 60 * time.Second},
	}
}
