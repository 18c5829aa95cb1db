// Package hook implements the Claude Code hook wire protocol: JSON input on
// stdin, hookSpecificOutput JSON on stdout for allow/ask decisions, stderr
// plus exit code 2 for blocks.
package hook

import (
	"encoding/json"
	"errors"
	"io"
)

// EventName values the guard handles.
const (
	EventPreToolUse  = "PreToolUse"
	EventPostToolUse = "PostToolUse"
)

// MaxInputBytes caps hook input. Oversized input fails open.
const MaxInputBytes = 10 << 20

// ErrOversized reports input beyond MaxInputBytes.
var ErrOversized = errors.New("hook input exceeds size limit")

// Input is the hook payload Claude Code sends.
type Input struct {
	SessionID    string          `json:"session_id"`
	ToolUseID    string          `json:"tool_use_id"`
	EventName    string          `json:"hook_event_name"`
	ToolName     string          `json:"tool_name"`
	ToolInput    json.RawMessage `json:"tool_input"`
	ToolResponse json.RawMessage `json:"tool_response"`
	WorkingDir   string          `json:"cwd"`
}

// ReadInput parses hook input from r, enforcing the size cap.
func ReadInput(r io.Reader) (*Input, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxInputBytes {
		return nil, ErrOversized
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	if in.EventName == "" {
		in.EventName = EventPreToolUse
	}
	return &in, nil
}

// BashCommand returns the command of a Bash tool call, or "".
func (in *Input) BashCommand() string {
	var payload struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(in.ToolInput, &payload); err != nil {
		return ""
	}
	return payload.Command
}

// FetchURL returns the url of a WebFetch tool call, or "".
func (in *Input) FetchURL() string {
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(in.ToolInput, &payload); err != nil {
		return ""
	}
	return payload.URL
}

// FilePath returns the target path of a file-oriented tool call, checking the
// field names used by Write, Edit, and NotebookEdit.
func (in *Input) FilePath() string {
	var payload struct {
		FilePath     string `json:"file_path"`
		Path         string `json:"path"`
		NotebookPath string `json:"notebook_path"`
	}
	if err := json.Unmarshal(in.ToolInput, &payload); err != nil {
		return ""
	}
	if payload.FilePath != "" {
		return payload.FilePath
	}
	if payload.Path != "" {
		return payload.Path
	}
	return payload.NotebookPath
}

// ResponseText flattens a tool_response into searchable text. Bash responses
// carry stdout/stderr fields; other tools may respond with a bare string or
// arbitrary JSON.
func (in *Input) ResponseText() string {
	if len(in.ToolResponse) == 0 {
		return ""
	}
	var bash struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
	}
	if err := json.Unmarshal(in.ToolResponse, &bash); err == nil && (bash.Stdout != "" || bash.Stderr != "") {
		return bash.Stdout + bash.Stderr
	}
	var s string
	if err := json.Unmarshal(in.ToolResponse, &s); err == nil {
		return s
	}
	return string(in.ToolResponse)
}

// Output is the hookSpecificOutput envelope for PreToolUse decisions.
type Output struct {
	HookSpecificOutput SpecificOutput `json:"hookSpecificOutput"`
}

// SpecificOutput carries one permission decision.
type SpecificOutput struct {
	HookEventName            string `json:"hookEventName"`
	PermissionDecision       string `json:"permissionDecision"`
	PermissionDecisionReason string `json:"permissionDecisionReason"`
}

// WriteDecision emits an allow/ask decision to w. Blocks never come through
// here: they are stderr text plus exit code 2.
func WriteDecision(w io.Writer, decision, reason string) error {
	return json.NewEncoder(w).Encode(Output{
		HookSpecificOutput: SpecificOutput{
			HookEventName:            EventPreToolUse,
			PermissionDecision:       decision,
			PermissionDecisionReason: reason,
		},
	})
}
