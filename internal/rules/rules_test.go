package rules

import (
	"testing"
)

func findRule(t *testing.T, name string) CommandRule {
	t.Helper()
	for _, r := range Command {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no rule named %q", name)
	return CommandRule{}
}

// firstMatch mimics the engine's walk over the builtin table.
func firstMatch(normalized, raw string) string {
	for _, r := range Command {
		if r.Matches(normalized, raw) {
			return r.Name
		}
	}
	return ""
}

func TestCommandRuleMatching(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want string // expected rule name, "" for no match
	}{
		{"cat a file", "cat main.go", "cat-file"},
		{"cat into pipe is excepted", "cat main.go | wc -l", ""},
		{"cat heredoc", "cat <<EOF", "cat-heredoc"},
		{"cat stdin redirect", "cat < notes.txt", "cat-file"},
		{"head", "head -20 main.go", "head-file"},
		{"tail piped", "tail -f log | grep err", ""},
		{"grep", "grep -r TODO .", "grep"},
		{"rg", "rg 'func main'", "rg"},
		{"find with name", "find . -name '*.go'", "find-name"},
		{"find without name", "find / -mtime -1", ""},
		{"ls", "ls -la src", "ls-dir"},
		{"sed in place", "sed -i 's/a/b/' f.txt", "sed-i"},
		{"awk redirect", "awk '{print}' f > out", "awk-redir"},
		{"echo redirect", "echo hi > file.txt", "echo-redir"},
		{"echo to dev null", "echo hi > /dev/null", ""},
		{"pager", "less README.md", "pager"},
		{"editor", "vim main.go", "editor"},
		{"python script", "python3 script.py", "python"},
		{"uv run python excepted", "uv run python script.py", ""},
		{"python -c json", "python3 -c 'import json; print(json.load(open(\"f\")))'", "python-json"},
		{"pip install", "pip install requests", "pip"},
		{"pytest", "pytest tests/", "pytest"},
		{"uv run pytest excepted", "uv run pytest tests/", ""},
		{"black", "black .", "black"},
		{"mypy", "mypy src/", "mypy"},
		{"pre-commit via uvx still blocked", "uvx pre-commit run", "pre-commit"},
		{"prek direct", "uvx prek run --all-files", "prek"},
		{"prek make target passes", "make prek", ""},
		{"cargo clippy", "cargo clippy --all-targets", "cargo-lint"},
		{"cargo test", "cargo test -p core", "cargo-test"},
		{"cargo build", "cargo build --release", "cargo-build"},
		{"cargo run unmatched", "cargo run", ""},
		{"bash script", "bash deploy.sh --prod", "bash-script"},
		{"bash dash-flag excepted", "bash -x deploy.sh", ""},
		{"direct script", "./scripts/build.sh", "direct-script"},
		{"tmp path anywhere", "cp report.txt /tmp/report.txt", "tmp-path"},
		{"hack tmp excepted", "cp report.txt hack/tmp/report.txt", ""},
		{"echo noop", "echo 'all done'", "echo-noop"},
		{"echo with subshell not noop", "echo $(date)", ""},
		{"printf noop", "printf 'done\\n'", "printf-noop"},
		{"interactive rebase", "git rebase -i HEAD~3", "git-rebase-i"},
		{"git add patch", "git add -p", "git-add-interactive"},
		{"plain git", "git status", ""},
		{"make", "make build", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := firstMatch(tt.cmd, tt.cmd)
			if got != tt.want {
				t.Errorf("firstMatch(%q) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestAnchoredPatternUsesNormalizedCommand(t *testing.T) {
	r := findRule(t, "grep")
	// Raw command has an env prefix, so the anchored pattern only matches
	// the normalized form.
	raw := "LC_ALL=C grep foo bar.txt"
	if r.Matches(raw, raw) {
		t.Error("anchored rule should not match raw command with env prefix")
	}
	if !r.Matches("grep foo bar.txt", raw) {
		t.Error("anchored rule should match normalized command")
	}
}

func TestUnanchoredPatternUsesRawCommand(t *testing.T) {
	r := findRule(t, "tmp-path")
	if !r.Matches("mv x y", "FOO=/tmp/x mv x y") {
		t.Error("unanchored rule should match against the raw command")
	}
}
