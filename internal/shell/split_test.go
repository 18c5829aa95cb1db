package shell

import (
	"reflect"
	"testing"
)

func TestSplitCommands(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"single command", "git status", []string{"git status"}},
		{"and chain", "make build && make test", []string{"make build", "make test"}},
		{"or chain", "make lint || true", []string{"make lint", "true"}},
		{"semicolons", "cd /srv; git pull; make", []string{"cd /srv", "git pull", "make"}},
		{"newlines", "git fetch\ngit status", []string{"git fetch", "git status"}},
		{"mixed operators", "a && b; c || d", []string{"a", "b", "c", "d"}},
		{"quoted and-and", `echo "a && b"`, []string{`echo "a && b"`}},
		{"single-quoted semicolon", "echo 'a; b' && ls", []string{"echo 'a; b'", "ls"}},
		{"backslash continuation", "git log \\\n--oneline", []string{"git log", "--oneline"}},
		{"empty segments dropped", "a &&  && b", []string{"a", "b"}},
		{"trailing operator", "make build &&", []string{"make build"}},
		{"empty input", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitCommands(tt.command)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitCommands(%q) = %#v, want %#v", tt.command, got, tt.want)
			}
		})
	}
}

func TestSplitPipes(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
	}{
		{"no pipe", "git status", []string{"git status"}},
		{"single pipe", "ps aux | grep nginx", []string{"ps aux", "grep nginx"}},
		{"stderr pipe", "make 2>&1 |& tee log", []string{"make 2>&1", "tee log"}},
		{"quoted pipe", `awk '{print $1 "|" $2}' f`, []string{`awk '{print $1 "|" $2}' f`}},
		{"three segments", "cat f | sort | uniq -c", []string{"cat f", "sort", "uniq -c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitPipes(tt.command)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitPipes(%q) = %#v, want %#v", tt.command, got, tt.want)
			}
		})
	}
}

func TestStripEnvPrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FOO=bar git status", "git status"},
		{"A=1 B=2 make test", "make test"},
		{"git status", "git status"},
		{"  ENV=x ls", "ls"},
		{"result=$(ls)", "result=$(ls)"},
		{"FOO=bar", "FOO=bar"},
	}

	for _, tt := range tests {
		if got := StripEnvPrefix(tt.in); got != tt.want {
			t.Errorf("StripEnvPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripShellKeyword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"do echo hi", "echo hi"},
		{"then cat file", "cat file"},
		{"do if git status", "git status"},
		{"done", "done"},
		{"for f in *.go", "for f in *.go"},
		{"echo do-not-touch", "echo do-not-touch"},
	}

	for _, tt := range tests {
		if got := StripShellKeyword(tt.in); got != tt.want {
			t.Errorf("StripShellKeyword(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractShellWrapper(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want string
	}{
		{"single quotes", "bash -c 'ls -la'", "ls -la"},
		{"double quotes", `sh -c "git status"`, "git status"},
		{"unquoted", "bash -c whoami", "whoami"},
		{"not a wrapper", "git status", ""},
		{"bash script", "bash deploy.sh", ""},
		{"multiline inner", "bash -c 'echo a\necho b'", "echo a\necho b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractShellWrapper(tt.cmd); got != tt.want {
				t.Errorf("ExtractShellWrapper(%q) = %q, want %q", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestExtractSubshells(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		want []string
	}{
		{"none", "git status", nil},
		{"dollar paren", "echo $(git rev-parse HEAD)", []string{"git rev-parse HEAD"}},
		{"nested parens", "echo $(dirname $(which go))", []string{"dirname $(which go)", "which go"}},
		{"backticks", "echo `date`", []string{"date"}},
		{"both forms", "x=$(ls) y=`pwd`", []string{"ls", "pwd"}},
		{"unclosed", "echo $(ls", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSubshells(tt.cmd)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractSubshells(%q) = %#v, want %#v", tt.cmd, got, tt.want)
			}
		})
	}
}

func TestExtractURLs(t *testing.T) {
	got := ExtractURLs(`curl -s https://api.github.com/repos/a/b "http://example.com/x"`)
	want := []string{"https://api.github.com/repos/a/b", "http://example.com/x"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractURLs = %#v, want %#v", got, want)
	}
	if urls := ExtractURLs("no urls here"); urls != nil {
		t.Errorf("expected nil, got %#v", urls)
	}
}
