package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Env vars naming JSON files with user-defined rules.
const (
	CommandRulesEnv = "COMMAND_GUARD_EXTRA_RULES"
	URLRulesEnv     = "URL_GUARD_EXTRA_RULES"
)

// ruleEntry is one element of an extra-rules JSON array.
type ruleEntry struct {
	Name      string  `json:"name"`
	Pattern   string  `json:"pattern"`
	Exception *string `json:"exception"`
	Message   string  `json:"message"`
	Action    string  `json:"action"`
}

func (e ruleEntry) action() Action {
	if e.Action == "" {
		return ActionBlock
	}
	return Action(e.Action)
}

// LoadCommandRules reads user-defined command rules from a JSON file. Any
// error yields an empty list: bad config must not break the guard. The
// validate command surfaces the problems this swallows.
func LoadCommandRules(path string) []CommandRule {
	var entries []ruleEntry
	if !loadEntries(path, &entries) {
		return nil
	}
	var out []CommandRule
	for _, e := range entries {
		if e.Name == "" || e.Pattern == "" || e.Message == "" {
			return nil
		}
		pattern, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil
		}
		var exc *regexp.Regexp
		if e.Exception != nil && *e.Exception != "" {
			if exc, err = regexp.Compile(*e.Exception); err != nil {
				return nil
			}
		}
		out = append(out, CommandRule{
			Name:      e.Name,
			Pattern:   pattern,
			Exception: exc,
			Guidance:  e.Message,
			Action:    e.action(),
		})
	}
	return out
}

// LoadURLRules reads user-defined URL rules from a JSON file, with the same
// fail-silent contract as LoadCommandRules.
func LoadURLRules(path string) []URLRule {
	var entries []ruleEntry
	if !loadEntries(path, &entries) {
		return nil
	}
	var out []URLRule
	for _, e := range entries {
		if e.Name == "" || e.Pattern == "" || e.Message == "" {
			return nil
		}
		pattern, err := regexp.Compile(e.Pattern)
		if err != nil {
			return nil
		}
		out = append(out, URLRule{
			Name:     e.Name,
			Pattern:  pattern,
			Guidance: e.Message,
			Action:   e.action(),
		})
	}
	return out
}

func loadEntries(path string, entries *[]ruleEntry) bool {
	if path == "" {
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, entries) == nil
}

var validActions = map[string]bool{"block": true, "ask": true, "allow": true}

// ValidateRulesFile checks an extra-rules JSON file and returns human-readable
// issues plus the number of entries. label names the file's source (the env
// var) in messages. URL rule files have no exception field.
func ValidateRulesFile(path, label string, isURL bool) (issues []string, count int) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []string{fmt.Sprintf("%s: file not found: %s", label, path)}, 0
	}
	if err != nil {
		return []string{fmt.Sprintf("%s: cannot read file: %v", label, err)}, 0
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		var probe any
		if json.Unmarshal(data, &probe) == nil {
			return []string{fmt.Sprintf("%s: expected JSON array", label)}, 0
		}
		return []string{fmt.Sprintf("%s: invalid JSON: %v", label, err)}, 0
	}
	if len(raw) == 0 {
		return []string{fmt.Sprintf("%s: file contains empty array (no rules)", label)}, 0
	}

	for i, item := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			issues = append(issues, fmt.Sprintf("%s[%d]: expected object", label, i))
			continue
		}
		name := fmt.Sprintf("entry %d", i)
		if s, ok := stringField(fields, "name"); ok {
			name = s
		}
		pfx := fmt.Sprintf("%s[%d] (%q)", label, i, name)

		for _, field := range []string{"name", "pattern", "message"} {
			rawField, present := fields[field]
			if !present {
				issues = append(issues, fmt.Sprintf("%s: missing required field '%s'", pfx, field))
				continue
			}
			var s string
			if json.Unmarshal(rawField, &s) != nil {
				issues = append(issues, fmt.Sprintf("%s: '%s' must be a string", pfx, field))
			}
		}

		if pattern, ok := stringField(fields, "pattern"); ok {
			if pattern == "" {
				issues = append(issues, fmt.Sprintf("%s: 'pattern' is empty (will match ALL commands/URLs)", pfx))
			} else if _, err := regexp.Compile(pattern); err != nil {
				issues = append(issues, fmt.Sprintf("%s: invalid regex in 'pattern': %v", pfx, err))
			}
		}

		if rawExc, present := fields["exception"]; !isURL && present && string(rawExc) != "null" {
			var exc string
			if json.Unmarshal(rawExc, &exc) != nil {
				issues = append(issues, fmt.Sprintf("%s: 'exception' must be a string or null", pfx))
			} else if exc == "" {
				issues = append(issues, fmt.Sprintf("%s: 'exception' is empty (matches everything, disabling this rule)", pfx))
			} else if _, err := regexp.Compile(exc); err != nil {
				issues = append(issues, fmt.Sprintf("%s: invalid regex in 'exception': %v", pfx, err))
			}
		}

		if rawAction, present := fields["action"]; present {
			var action string
			if json.Unmarshal(rawAction, &action) != nil {
				issues = append(issues, fmt.Sprintf("%s: 'action' must be a string", pfx))
			} else if !validActions[action] {
				issues = append(issues, fmt.Sprintf("%s: 'action' must be 'block', 'ask', or 'allow', got %q", pfx, action))
			}
		}
	}
	return issues, len(raw)
}

func stringField(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	return s, true
}
