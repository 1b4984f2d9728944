package agent

import (
	"fmt"
	"strings"
)

func planPrompt(repoURL string) string {
	return fmt.Sprintf(`You are an expert DevOps engineer and full-stack developer.
Analyze this GitHub repository URL: %s

Objective:
Determine how to build, run, and expose the project (app, backend, frontend, or website) with zero user configuration.

Tasks:
1. Detect project type (Frontend, Backend, Full-stack, CLI, Dockerized).
2. Identify languages and frameworks.
3. Infer install steps (npm, pip, pnpm, yarn, mvn, etc.).
4. Infer build steps (npm build, next build, etc.).
5. Decide the correct run commands and exposed port.
   IMPORTANT: For Node.js/JavaScript/TypeScript based projects, ALWAYS include 'npm start' in the run_commands if it is likely to be valid for the project structure.
6. Detect required environment variables and use safe defaults if possible.

Output ONLY a valid JSON object following this schema:
{
  "project_type": string,
  "language": string[],
  "frameworks": string[],
  "install_commands": string[],
  "build_commands": string[],
  "run_commands": string[],
  "exposed_port": string,
  "notes": string
}`, repoURL)
}

func replySystemPrompt(req ReplyRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the application built from %s, now running in a cloud sandbox.\n", req.RepoURL)
	if p := req.Plan; p != nil {
		fmt.Fprintf(&b, "Project type: %s\n", p.ProjectType)
		fmt.Fprintf(&b, "Stack: %s\n", strings.Join(p.Stack(), ", "))
		fmt.Fprintf(&b, "Started with: %s\n", strings.Join(p.RunCommands, " && "))
		if p.ExposedPort != "" {
			fmt.Fprintf(&b, "Listening on port %s\n", p.ExposedPort)
		}
	}
	b.WriteString(`Respond exactly as this application would to the user's input: an HTTP response, CLI output, page text, or an API payload.
Stay in character. Do not explain that you are simulating. Keep replies short.`)
	return b.String()
}
