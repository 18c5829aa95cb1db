// Package rules holds the guard's rule tables: command-selection rules,
// authenticated-URL rules, and git safety rules, plus the JSON loader for
// user-defined extensions.
package rules

import "regexp"

// Action is what the guard does when a rule matches.
type Action string

const (
	ActionBlock Action = "block"
	ActionAsk   Action = "ask"
	ActionAllow Action = "allow"
)

// CommandRule matches a Bash command against a pattern. Patterns anchored
// with ^ are applied to the env-prefix-stripped command; unanchored patterns
// see the raw command. A matching exception pattern skips the rule.
type CommandRule struct {
	Name      string
	Pattern   *regexp.Regexp
	Exception *regexp.Regexp
	Guidance  string
	Action    Action
}

// Matches reports whether the rule fires for a command. normalized is the
// command with env-var prefixes stripped; raw is the original segment.
func (r CommandRule) Matches(normalized, raw string) bool {
	target := raw
	if len(r.Pattern.String()) > 0 && r.Pattern.String()[0] == '^' {
		target = normalized
	}
	if !r.Pattern.MatchString(target) {
		return false
	}
	if r.Exception != nil && r.Exception.MatchString(raw) {
		return false
	}
	return true
}

// PipeSegmentSkip names the rules that do not apply to segments after a pipe.
// These redirect to native tools (Read, Grep, Glob, Edit, Write) that cannot
// consume piped output; `grep` after a pipe is filtering, not file search.
var PipeSegmentSkip = map[string]bool{
	"cat-file":    true,
	"head-file":   true,
	"tail-file":   true,
	"grep":        true,
	"rg":          true,
	"find-name":   true,
	"ls-dir":      true,
	"sed-i":       true,
	"awk-redir":   true,
	"echo-redir":  true,
	"cat-heredoc": true,
	"echo-noop":   true,
	"printf-noop": true,
}

func block(name, pattern, exception, guidance string) CommandRule {
	var exc *regexp.Regexp
	if exception != "" {
		exc = regexp.MustCompile(exception)
	}
	return CommandRule{
		Name:      name,
		Pattern:   regexp.MustCompile(pattern),
		Exception: exc,
		Guidance:  guidance,
		Action:    ActionBlock,
	}
}

// Command is the built-in command-selection table. Order matters: the first
// matching rule decides.
var Command = []CommandRule{
	// Native tools (no Bash permission needed)
	block("cat-file", `^\s*cat\s+([^\s<]|<[^<])`, `\|`,
		"Use the Read tool instead of `cat`. It's always available -- no Bash permission needed."),
	block("head-file", `^\s*head\s+`, `\|`,
		"Use the Read tool with `limit` parameter instead of `head`."),
	block("tail-file", `^\s*tail\s+`, `\|`,
		"Use the Read tool with `offset` parameter instead of `tail`."),
	block("grep", `^\s*grep\b`, "",
		"Use the Grep tool instead of `grep`. For `| wc -l` use `output_mode: 'count'`. "+
			"For `| head` use `head_limit`."),
	block("rg", `^\s*rg\b`, "",
		"Use the Grep tool instead of `rg`. For `| wc -l` use `output_mode: 'count'`. "+
			"For `| head` use `head_limit`."),
	block("find-name", `^\s*find\b.*-name`, "",
		"Use the Glob tool -- it's auto-approved and supports patterns like '**/*.py'."),
	block("ls-dir", `^\s*ls\s`, `\|`,
		"Use the Glob tool for file listings -- it's auto-approved and supports patterns "+
			"like '**/*.py'. Use `ls` via Bash only when you need permissions/metadata."),
	block("sed-i", `^\s*sed\b.*\s-i`, "",
		"Use the Edit tool instead of `sed -i`. It's native -- no Bash permission needed."),
	block("awk-redir", `^\s*awk\b.*>\s*\S`, "",
		"Use the Edit tool instead of awk with redirect."),
	block("echo-redir", `^\s*(echo|printf)\b.*[^2]>\s*[^&/\s]`, `>\s*/dev/`,
		"Use the Write tool instead of redirect. It's native -- no permission needed."),
	block("cat-heredoc", `^\s*cat\s*<<`, "",
		"Use the Write tool for file content, or native tools (Grep/Read) "+
			"for the downstream operation."),
	block("pager", `^\s*(less|more)\b`, "",
		"Use the Read tool instead. Pagers are interactive and will hang in this environment."),
	block("editor", `^\s*(nano|vim|vi|emacs)\b`, "",
		"Use the Edit tool instead. Interactive editors will hang in this environment."),

	// Python tooling (match auto-approve patterns)
	block("python-json", `^\s*python3?\s+-c\s+.*\bjson\b`, `^\s*uv\s+run`,
		"Use `jq` for JSON processing instead of python. "+
			"Example: `jq '.key'`, `jq -r '.[]'`, `jq -r '.items[] | .name'`. "+
			"If jq can't handle the logic, use `uv run python -c '...'`."),
	block("python", `^\s*python3?\s`, `^\s*uv\s+run`,
		"Use `uv run` instead -- it's auto-approved. Example: `uv run script.py`"),
	block("pip", `^\s*pip3?\s+\w`, "",
		"Use `uv add` (install), `uv remove` (uninstall), or `uv pip` for other pip operations."),
	block("pytest", `^\s*pytest\b`, `^\s*(uvx|uv\s+run)`,
		"Check for a `make py-test` or use `uv run pytest` instead -- it's auto-approved."),
	block("black", `^\s*black\b`, "",
		"Formatting should be performed with ruff."),
	block("ruff", `^\s*ruff\b`, `^\s*(uvx|uv\s+run)`,
		"Check for a `make py-lint` or use `uv run ruff` instead -- it's auto-approved."),
	block("mypy", `^\s*mypy\b`, "",
		"Type checking should be performed with pyright."),
	block("pyright", `^\s*pyright\b`, `^\s*(uvx|uv\s+run)`,
		"Check for a `make py-lint` or use `uv run pyright` instead -- it's auto-approved."),
	block("pre-commit", `^\s*(uvx\s+|uv\s+run\s+)?pre-commit\b`, "",
		"Use `prek` instead of `pre-commit`. "+
			"Check for a `make` target or use `uvx prek run --all-files`."),
	block("prek", `^\s*(uvx\s+)?prek\b`, `^\s*make\b`,
		"Check for a `make` target (e.g. `make lint`, `make prek`) instead of "+
			"running prek directly. If no make target, use `uvx prek run --all-files`."),
	block("ipython", `^\s*ipython3?\b`, `^\s*(uvx|uv\s+run)`,
		"Use `uv run ipython` instead -- it's auto-approved."),
	block("tox", `^\s*tox\b`, `^\s*(uvx|uv\s+run)`,
		"Use `uvx tox` instead -- it's auto-approved."),
	block("isort", `^\s*isort\b`, "",
		"Import sorting should be performed with ruff."),
	block("flake8", `^\s*flake8\b`, "",
		"Linting should be performed with ruff."),

	// Rust tooling
	block("cargo-lint", `^\s*cargo\s+(check|clippy|fmt)\b`, "",
		"Check for a `make` target (e.g. `make rust-lint`, `make lint`) instead of "+
			"running cargo directly. Makefile targets handle working directory and standard flags."),
	block("cargo-test", `^\s*cargo\s+(test|nextest)\b`, "",
		"Check for a `make` target (e.g. `make rust-test`, `make test`) instead of "+
			"running cargo test directly."),
	block("cargo-build", `^\s*cargo\s+build\b`, "",
		"Check for a `make` target (e.g. `make rust-build`, `make build`) instead of "+
			"running cargo build directly."),

	// Project conventions
	block("bash-script", `^\s*(bash|sh)\s+\S+\.sh\b`, `^\s*(bash|sh)\s+-`,
		"Check for a `make` target that wraps this script. If none exists, consider creating one."),
	block("direct-script", `^\s*[\w.~/-]+\.sh\b`, "",
		"Check for a `make` target that wraps this script. If none exists, consider creating one."),
	block("tmp-path", `/tmp/`, `hack/tmp`,
		"Use `hack/tmp/` (gitignored) instead of `/tmp/` for temporary files. "+
			"Native tools (Read/Write/Edit) work without Bash permissions on local files. "+
			"Clean up when done."),

	// Simpler patterns
	block("echo-noop", `^\s*echo\s+(['"].*['"]|[^|>&;$`+"`"+`]+)\s*$`, "",
		"Output text directly in your response instead of using echo."),
	block("printf-noop", `^\s*printf\s+(['"].*['"]|[^|>&;$`+"`"+`]+)\s*$`, "",
		"Output text directly in your response instead of using printf."),

	// Interactive commands that will hang
	block("git-rebase-i", `^\s*git\s+rebase\s+.*(-i\b|--interactive\b)`, "",
		"Interactive rebase will hang. Use git-branchless: `git reword`, `git branchless move`."),
	block("git-add-interactive", `^\s*git\s+add\s+.*(-[pi]\b|--patch\b|--interactive\b)`, "",
		"Interactive git add will hang. Use `git add` with specific file paths instead."),
}
