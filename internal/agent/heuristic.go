package agent

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/ashureev/cloud-runner/internal/domain"
)

// HeuristicCollaborator works offline. It guesses a plan from the repository
// name and answers with canned application output, so the runner is usable
// without AI credentials.
type HeuristicCollaborator struct{}

// NewHeuristic creates the offline collaborator.
func NewHeuristic() *HeuristicCollaborator {
	return &HeuristicCollaborator{}
}

// Name returns the provider name.
func (h *HeuristicCollaborator) Name() string {
	return ProviderHeuristic
}

// InferPlan matches keywords in the repository name against common stacks.
func (h *HeuristicCollaborator) InferPlan(ctx context.Context, repoURL string) (*domain.ExecutionPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := repoTokens(repoURL)
	has := func(words ...string) bool {
		for _, w := range words {
			if tokens[w] {
				return true
			}
		}
		return false
	}

	note := "Inferred offline from the repository name; no AI provider is configured."
	switch {
	case has("next", "nextjs"):
		return nodePlan("Full-stack", []string{"Next.js", "React"}, "npm run dev", "3000", note), nil
	case has("react", "vite", "vue", "svelte", "angular", "frontend", "web"):
		return nodePlan("Frontend", []string{frontendFramework(tokens)}, "npm run dev", "5173", note), nil
	case has("django"):
		return &domain.ExecutionPlan{
			ProjectType:     "Backend",
			Language:        []string{"Python"},
			Frameworks:      []string{"Django"},
			InstallCommands: []string{"pip install -r requirements.txt"},
			BuildCommands:   []string{"python manage.py migrate"},
			RunCommands:     []string{"python manage.py runserver 0.0.0.0:8000"},
			ExposedPort:     "8000",
			Notes:           note,
		}, nil
	case has("flask", "fastapi", "python", "py"):
		return &domain.ExecutionPlan{
			ProjectType:     "Backend",
			Language:        []string{"Python"},
			Frameworks:      []string{"FastAPI"},
			InstallCommands: []string{"pip install -r requirements.txt"},
			BuildCommands:   []string{},
			RunCommands:     []string{"uvicorn main:app --host 0.0.0.0 --port 8000"},
			ExposedPort:     "8000",
			Notes:           note,
		}, nil
	case has("go", "golang"):
		return &domain.ExecutionPlan{
			ProjectType:     "Backend",
			Language:        []string{"Go"},
			Frameworks:      []string{},
			InstallCommands: []string{"go mod download"},
			BuildCommands:   []string{"go build -o app ."},
			RunCommands:     []string{"./app"},
			ExposedPort:     "8080",
			Notes:           note,
		}, nil
	case has("rust", "rs"):
		return &domain.ExecutionPlan{
			ProjectType:     "CLI",
			Language:        []string{"Rust"},
			Frameworks:      []string{},
			InstallCommands: []string{"cargo fetch"},
			BuildCommands:   []string{"cargo build --release"},
			RunCommands:     []string{"./target/release/app"},
			ExposedPort:     "",
			Notes:           note,
		}, nil
	default:
		return nodePlan("Backend", []string{"Express"}, "npm start", "3000", note), nil
	}
}

// SimulateReply produces a deterministic reply shaped like the application
// would answer.
func (h *HeuristicCollaborator) SimulateReply(ctx context.Context, req ReplyRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg := strings.TrimSpace(req.Message)
	port := "3000"
	name := "app"
	if req.Plan != nil && req.Plan.ExposedPort != "" {
		port = req.Plan.ExposedPort
	}
	if tokens := strings.Split(strings.TrimSuffix(req.RepoURL, "/"), "/"); len(tokens) > 0 {
		name = tokens[len(tokens)-1]
	}

	switch {
	case strings.HasPrefix(msg, "/"), strings.HasPrefix(strings.ToUpper(msg), "GET "):
		route := msg
		if !strings.HasPrefix(msg, "/") {
			route = strings.TrimSpace(msg[4:])
		}
		return fmt.Sprintf("HTTP/1.1 200 OK\ncontent-type: application/json\n\n{\"service\":%q,\"path\":%q,\"status\":\"ok\"}", name, route), nil
	case strings.EqualFold(msg, "help"), msg == "--help":
		return fmt.Sprintf("Usage: %s [options]\n\n  --help     show this message\n  --version  print version", name), nil
	default:
		return fmt.Sprintf("[%s @ :%s] received %q (%d prior messages)", name, port, msg, len(req.Transcript)), nil
	}
}

func nodePlan(kind string, frameworks []string, run, port, note string) *domain.ExecutionPlan {
	build := []string{"npm run build"}
	if kind == "Backend" {
		build = []string{}
	}
	return &domain.ExecutionPlan{
		ProjectType:     kind,
		Language:        []string{"TypeScript"},
		Frameworks:      frameworks,
		InstallCommands: []string{"npm install"},
		BuildCommands:   build,
		RunCommands:     []string{run},
		ExposedPort:     port,
		Notes:           note,
	}
}

func frontendFramework(tokens map[string]bool) string {
	for _, f := range []struct{ key, name string }{
		{"vue", "Vue"},
		{"svelte", "Svelte"},
		{"angular", "Angular"},
	} {
		if tokens[f.key] {
			return f.name
		}
	}
	return "React"
}

// repoTokens splits the owner and repository name on common separators.
func repoTokens(repoURL string) map[string]bool {
	p := repoURL
	if u, err := url.Parse(repoURL); err == nil && u.Host != "" {
		p = u.Path
	}
	p = strings.TrimSuffix(strings.ToLower(p), ".git")
	tokens := make(map[string]bool)
	for _, part := range strings.FieldsFunc(path.Clean(p), func(r rune) bool {
		return r == '/' || r == '-' || r == '_' || r == '.'
	}) {
		tokens[part] = true
	}
	return tokens
}
