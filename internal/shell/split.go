// Package shell breaks Bash command strings into the pieces the guard
// evaluates: subcommands, pipe segments, subshells, and wrapper invocations.
// It is a scanner, not a full shell parser; quoting is respected but
// expansions are left untouched.
package shell

import (
	"regexp"
	"strings"
)

// delimiterFunc reports whether position i in runes is an unquoted delimiter.
// It returns the delimiter width in runes, or 0 if not a delimiter. current is
// the segment accumulated so far and may be modified (backslash continuation).
type delimiterFunc func(runes []rune, i int, current []rune) (int, []rune)

func splitRespectingQuotes(text string, isDelim delimiterFunc) []string {
	var parts []string
	var current []rune
	inSingle := false
	inDouble := false

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if ch == '\'' && !inDouble {
			inSingle = !inSingle
			current = append(current, ch)
			continue
		}
		if ch == '"' && !inSingle {
			inDouble = !inDouble
			current = append(current, ch)
			continue
		}
		if inSingle || inDouble {
			current = append(current, ch)
			continue
		}

		if width, updated := isDelim(runes, i, current); width > 0 {
			if seg := strings.TrimSpace(string(updated)); seg != "" {
				parts = append(parts, seg)
			}
			current = current[:0]
			i += width - 1
			continue
		}
		current = append(current, ch)
	}

	if seg := strings.TrimSpace(string(current)); seg != "" {
		parts = append(parts, seg)
	}
	return parts
}

// SplitCommands splits a command line into subcommands on unquoted &&, ||, ;
// and newline. A backslash line continuation is dropped from the segment it
// terminates, so each physical line is still checked on its own.
func SplitCommands(command string) []string {
	return splitRespectingQuotes(command, func(runes []rune, i int, current []rune) (int, []rune) {
		if i+1 < len(runes) {
			two := string(runes[i : i+2])
			if two == "&&" || two == "||" {
				return 2, current
			}
		}
		switch runes[i] {
		case ';':
			return 1, current
		case '\n':
			if n := len(current); n > 0 && current[n-1] == '\\' {
				current[n-1] = ' '
			}
			return 1, current
		}
		return 0, current
	})
}

// SplitPipes splits a command into pipe segments on unquoted | and |&.
// SplitCommands has already consumed ||, so a lone | here is always a pipe.
func SplitPipes(command string) []string {
	return splitRespectingQuotes(command, func(runes []rune, i int, current []rune) (int, []rune) {
		if runes[i] != '|' {
			return 0, current
		}
		if i+1 < len(runes) && runes[i+1] == '&' {
			return 2, current
		}
		return 1, current
	})
}

var (
	envPrefixRe    = regexp.MustCompile(`^\s*[A-Za-z_]\w*=\S*\s+`)
	shellKeywordRe = regexp.MustCompile(`^\s*(do|then|else|elif|if|while|until)\s+`)
)

// StripEnvPrefix removes leading KEY=value assignments so rules can anchor on
// the command name. `FOO=bar cmd args` becomes `cmd args`.
func StripEnvPrefix(cmd string) string {
	for {
		loc := envPrefixRe.FindStringIndex(cmd)
		if loc == nil {
			return cmd
		}
		cmd = cmd[loc[1]:]
	}
}

// StripShellKeyword removes leading shell control keywords left behind when
// compound structures are split on ';': `do echo hi` becomes `echo hi`.
// Applied repeatedly, so `do if git status` unwraps fully. Keywords that never
// prefix a command (for, case, done, fi, esac) pass through untouched.
func StripShellKeyword(cmd string) string {
	for {
		loc := shellKeywordRe.FindStringIndex(cmd)
		if loc == nil {
			return cmd
		}
		cmd = cmd[loc[1]:]
	}
}

var (
	bashCSingleRe   = regexp.MustCompile(`(?s)^\s*(?:bash|sh)\s+-c\s+'(.*)'\s*$`)
	bashCDoubleRe   = regexp.MustCompile(`(?s)^\s*(?:bash|sh)\s+-c\s+"(.*)"\s*$`)
	bashCUnquotedRe = regexp.MustCompile(`^\s*(?:bash|sh)\s+-c\s+(\S+)`)
)

// ExtractShellWrapper returns the inner command of a `bash -c '...'` or
// `sh -c "..."` invocation, or "" if cmd is not a shell wrapper.
//
// Quote matching is greedy to the final closing quote; inner commands that
// embed the same quote character may come back mangled, in which case the
// caller still checks the outer command as a whole.
func ExtractShellWrapper(cmd string) string {
	if m := bashCSingleRe.FindStringSubmatch(cmd); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bashCDoubleRe.FindStringSubmatch(cmd); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bashCUnquotedRe.FindStringSubmatch(cmd); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var backtickRe = regexp.MustCompile("`([^`]+)`")

// ExtractSubshells returns the commands embedded in $(...) and backtick
// substitutions. $() handles nesting by counting parens; backticks don't nest.
func ExtractSubshells(cmd string) []string {
	var inner []string
	for start := 0; ; {
		idx := strings.Index(cmd[start:], "$(")
		if idx < 0 {
			break
		}
		open := start + idx + 2
		depth := 1
		pos := open
		for pos < len(cmd) && depth > 0 {
			switch cmd[pos] {
			case '(':
				depth++
			case ')':
				depth--
			}
			pos++
		}
		if depth == 0 {
			if s := strings.TrimSpace(cmd[open : pos-1]); s != "" {
				inner = append(inner, s)
			}
		}
		start = open
	}
	for _, m := range backtickRe.FindAllStringSubmatch(cmd, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			inner = append(inner, s)
		}
	}
	return inner
}

var urlRe = regexp.MustCompile(`https?://[^\s"'<>]+`)

// ExtractURLs returns all http(s) URLs appearing in text.
func ExtractURLs(text string) []string {
	return urlRe.FindAllString(text, -1)
}
