package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/cloud-runner/internal/domain"
	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini collaborator.
type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	SearchGrounding bool
	HTTPClient      *http.Client
}

// GeminiCollaborator talks to the Gemini API with structured output.
type GeminiCollaborator struct {
	client    *genai.Client
	model     string
	grounding bool
}

// NewGemini creates a Gemini-backed collaborator.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiCollaborator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiCollaborator{
		client:    client,
		model:     cfg.Model,
		grounding: cfg.SearchGrounding,
	}, nil
}

// Name returns the provider name.
func (g *GeminiCollaborator) Name() string {
	return ProviderGemini
}

// InferPlan asks the model for a schema-constrained plan, optionally
// grounded on live search results.
func (g *GeminiCollaborator) InferPlan(ctx context.Context, repoURL string) (*domain.ExecutionPlan, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   planSchema(),
	}
	if g.grounding {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(planPrompt(repoURL)), config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate plan: %w", err)
	}
	return parsePlan(resp.Text())
}

// SimulateReply replays the transcript as chat history and asks for the
// application's next reply.
func (g *GeminiCollaborator) SimulateReply(ctx context.Context, req ReplyRequest) (string, error) {
	contents := make([]*genai.Content, 0, len(req.Transcript)+1)
	for _, m := range req.Transcript {
		var role genai.Role = genai.RoleUser
		if m.Role == domain.RoleApp {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(replySystemPrompt(req), genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini: generate reply: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

func planSchema() *genai.Schema {
	str := func() *genai.Schema { return &genai.Schema{Type: genai.TypeString} }
	list := func() *genai.Schema {
		return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"project_type":     str(),
			"language":         list(),
			"frameworks":       list(),
			"install_commands": list(),
			"build_commands":   list(),
			"run_commands":     list(),
			"exposed_port":     str(),
			"notes":            str(),
		},
		Required: domain.PlanFields,
	}
}
