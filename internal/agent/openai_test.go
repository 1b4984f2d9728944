package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ashureev/cloud-runner/internal/domain"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAICollaborator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewOpenAI(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1/",
		Model:      "test-model",
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	return c
}

func writeCompletion(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestOpenAIInferPlan(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("expected json_object response format, got %+v", req.ResponseFormat)
		}
		if req.Model != "test-model" || len(req.Messages) != 1 {
			t.Errorf("unexpected request %+v", req)
		}
		if !strings.Contains(req.Messages[0].Content, "https://github.com/acme/app") {
			t.Errorf("prompt does not mention the repository")
		}
		writeCompletion(t, w, validPlanJSON)
	})

	plan, err := c.InferPlan(context.Background(), "https://github.com/acme/app")
	if err != nil {
		t.Fatalf("InferPlan failed: %v", err)
	}
	if plan.ExposedPort != "5173" {
		t.Fatalf("unexpected plan %+v", plan)
	}
}

func TestOpenAIInferPlanHTTPError(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})

	_, err := c.InferPlan(context.Background(), "https://github.com/acme/app")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
}

func TestOpenAISimulateReplySendsTranscript(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		roles := make([]string, len(req.Messages))
		for i, m := range req.Messages {
			roles[i] = m.Role
		}
		if got := strings.Join(roles, ","); got != "system,user,assistant,user" {
			t.Errorf("unexpected roles %s", got)
		}
		if last := req.Messages[len(req.Messages)-1].Content; last != "second" {
			t.Errorf("last message = %q", last)
		}
		writeCompletion(t, w, "  HTTP/1.1 200 OK  ")
	})

	reply, err := c.SimulateReply(context.Background(), ReplyRequest{
		RepoURL: "https://github.com/acme/app",
		Plan:    &domain.ExecutionPlan{ProjectType: "Backend", ExposedPort: "8080"},
		Transcript: []domain.InteractionMessage{
			{Role: domain.RoleUser, Content: "first"},
			{Role: domain.RoleApp, Content: "reply"},
		},
		Message: "second",
	})
	if err != nil {
		t.Fatalf("SimulateReply failed: %v", err)
	}
	if reply != "HTTP/1.1 200 OK" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestOpenAISimulateReplyEmpty(t *testing.T) {
	c := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(t, w, "")
	})
	if _, err := c.SimulateReply(context.Background(), ReplyRequest{Message: "hi"}); err == nil {
		t.Fatal("expected error for empty reply")
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{BaseURL: "http://localhost"}); err == nil {
		t.Fatal("expected error without API key")
	}
}
