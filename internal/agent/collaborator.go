package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/cloud-runner/internal/domain"
)

// Collaborator is the boundary to the AI model. Both calls are single-shot;
// retries, if any, are the implementation's business.
type Collaborator interface {
	// Name identifies the backing provider.
	Name() string

	// InferPlan returns a complete plan for repoURL.
	InferPlan(ctx context.Context, repoURL string) (*domain.ExecutionPlan, error)

	// SimulateReply answers req.Message in character as the application.
	SimulateReply(ctx context.Context, req ReplyRequest) (string, error)
}

var (
	_ Collaborator = (*GeminiCollaborator)(nil)
	_ Collaborator = (*OpenAICollaborator)(nil)
	_ Collaborator = (*HeuristicCollaborator)(nil)
)

// New builds the collaborator selected by cfg.Provider.
func New(ctx context.Context, cfg Config) (Collaborator, error) {
	defaults := DefaultConfig()
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = defaults.HTTPClient
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderGemini:
		return NewGemini(ctx, GeminiConfig{
			APIKey:          cfg.GeminiAPIKey,
			Model:           valueOrDefault(cfg.GeminiModel, defaults.GeminiModel),
			BaseURL:         cfg.GeminiBaseURL,
			SearchGrounding: cfg.SearchGrounding,
			HTTPClient:      cfg.HTTPClient,
		})
	case ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    valueOrDefault(cfg.OpenAIBaseURL, defaults.OpenAIBaseURL),
			Model:      valueOrDefault(cfg.OpenAIModel, defaults.OpenAIModel),
			HTTPClient: cfg.HTTPClient,
		})
	case ProviderHeuristic, "":
		return NewHeuristic(), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}

func valueOrDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
