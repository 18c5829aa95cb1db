package escalate

import (
	"context"
	"fmt"
	"strings"

	"github.com/victorarias/claude-agent-sdk-go/sdk"
	"github.com/victorarias/claude-agent-sdk-go/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

const systemPrompt = `You are a security evaluator for shell commands in a development environment. A deterministic rule engine has already handled the common cases: commands reaching you matched no rule, neither safe nor dangerous. Your job is to decide whether the command is safe to run without user confirmation.

RESPOND WITH ONLY ONE WORD: "ALLOW" or "ASK"

### ALLOW:
- Read-only inspection: file, stat, wc, od, xxd, strings, tree, du, df, diff, comm
- System info: whoami, id, hostname, uname, date, uptime, which, env, pwd, realpath
- Network inspection: ping, dig, nslookup, host, nc (read)
- Process inspection: ps, top, pgrep, lsof
- Build and run: make, go, cargo, npm, npx, yarn, pnpm, node, deno, ruby
- Containers: docker build/run/ps/logs/images/inspect, docker-compose, podman
- Archiving: tar, zip, unzip, gzip
- Process management: kill, pkill on user processes
- rm of build artifacts and temp files within the project (dist/, build/, node_modules/, __pycache__)
- cp, mv, mkdir, touch, chmod within project directories
- gh pr/issue/run/repo read operations, gh api GET

### ASK:
- rm -rf targeting ~, $HOME, /, /etc, /usr, /var, or any path outside the project
- rm -rf with wildcards at risky paths or on parent directories (../)
- chmod 777, chmod -R or chown -R with broad scope
- dd and other raw disk operations
- curl or wget piped to sh/bash
- eval or exec with untrusted input
- sudo anything
- systemctl, launchctl, service starts/stops
- Database writes: mysql, psql, sqlite3 with INSERT/UPDATE/DELETE/DROP
- gcloud/aws/az create, delete, update, deploy
- gh repo delete, gh repo edit --visibility

# Decision Guidelines

1. When in doubt, ASK
2. Read operations are almost always ALLOW
3. Local development operations (build, test, run): ALLOW
4. Cloud and infra writes: ASK unless clearly safe
5. Deleting ephemeral resources (containers, temp files): ALLOW
6. Deleting persistent resources or anything outside the project: ASK`

// Evaluator judges commands the rule engine could not classify.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvalRequest) (EvalResponse, error)
	Close() error
}

// ClaudeEvaluator wraps the Claude SDK.
type ClaudeEvaluator struct {
	model string
}

// NewClaudeEvaluator creates an evaluator using the Claude API. An empty model
// selects DefaultModel.
func NewClaudeEvaluator(model string) *ClaudeEvaluator {
	if model == "" {
		model = DefaultModel
	}
	return &ClaudeEvaluator{model: model}
}

func (e *ClaudeEvaluator) Evaluate(ctx context.Context, req EvalRequest) (EvalResponse, error) {
	prompt := FormatPrompt(req.Command, req.WorkDir)

	messages, err := sdk.RunQuery(ctx, prompt,
		types.WithModel(e.model),
		types.WithMaxTurns(1),
		types.WithSystemPrompt(systemPrompt),
	)
	if err != nil {
		return EvalResponse{Decision: "ASK", Reason: "SDK error: " + err.Error()}, nil
	}

	var responseText string
	for _, msg := range messages {
		if m, ok := msg.(*types.AssistantMessage); ok {
			responseText = m.Text()
			break
		}
	}

	if responseText == "" {
		return EvalResponse{Decision: "ASK", Reason: "empty response"}, nil
	}

	decision := ParseDecision(responseText)
	return EvalResponse{Decision: decision, Reason: strings.TrimSpace(responseText)}, nil
}

func (e *ClaudeEvaluator) Close() error {
	return nil
}

// FormatPrompt creates the evaluation prompt.
func FormatPrompt(command, workDir string) string {
	return fmt.Sprintf("Command: %s\nWorking directory: %s\n\nRespond with ALLOW or ASK.", command, workDir)
}

// ParseDecision extracts ALLOW or ASK from a response.
// Defaults to ASK (fail-safe) if unclear.
func ParseDecision(responseText string) string {
	upper := strings.ToUpper(strings.TrimSpace(responseText))
	if strings.Contains(upper, "ALLOW") {
		return "ALLOW"
	}
	return "ASK"
}
