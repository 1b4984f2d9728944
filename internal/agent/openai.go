package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/cloud-runner/internal/domain"
)

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OpenAICollaborator talks to any OpenAI-compatible chat completion API.
type OpenAICollaborator struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c chatCompletionResponse) FirstMessage() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(c.Choices[0].Message.Content)
}

// NewOpenAI creates an OpenAI-compatible collaborator.
func NewOpenAI(cfg OpenAIConfig) (*OpenAICollaborator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = DefaultConfig().HTTPClient
	}
	return &OpenAICollaborator{
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		model:      cfg.Model,
		httpClient: cfg.HTTPClient,
	}, nil
}

// Name returns the provider name.
func (o *OpenAICollaborator) Name() string {
	return ProviderOpenAI
}

// InferPlan requests a JSON-object completion and validates it as a plan.
func (o *OpenAICollaborator) InferPlan(ctx context.Context, repoURL string) (*domain.ExecutionPlan, error) {
	content, err := o.complete(ctx, chatCompletionRequest{
		Model:          o.model,
		Messages:       []chatMessage{{Role: "user", Content: planPrompt(repoURL)}},
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, err
	}
	return parsePlan(content)
}

// SimulateReply sends the transcript as chat history.
func (o *OpenAICollaborator) SimulateReply(ctx context.Context, req ReplyRequest) (string, error) {
	messages := make([]chatMessage, 0, len(req.Transcript)+2)
	messages = append(messages, chatMessage{Role: "system", Content: replySystemPrompt(req)})
	for _, m := range req.Transcript {
		role := "user"
		if m.Role == domain.RoleApp {
			role = "assistant"
		}
		messages = append(messages, chatMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Message})

	content, err := o.complete(ctx, chatCompletionRequest{
		Model:     o.model,
		Messages:  messages,
		MaxTokens: 512,
	})
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", errEmptyResponse
	}
	return content, nil
}

func (o *OpenAICollaborator) complete(ctx context.Context, payload chatCompletionRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("content-type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("openai: %s", resp.Status)
	}

	var decoded chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	return decoded.FirstMessage(), nil
}
