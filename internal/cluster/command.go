// Package cluster inspects oc/kubectl invocations and the manifests they
// apply, classifying each operation into a risk tier.
package cluster

import (
	"strings"
)

// Command is the parsed shape of an oc/kubectl invocation.
type Command struct {
	Tool      string // "oc" or "kubectl"
	Verb      string
	Resource  string // first positional after the verb, lowercased, name suffix stripped
	Namespace string
	Filename  string // -f/--filename argument
	Flags     []string
}

// ParseCommand extracts the structured parts of an oc/kubectl command.
// Returns nil when neither tool appears in the command.
func ParseCommand(cmd string) *Command {
	parts := strings.Fields(cmd)

	toolIdx := -1
	var tool string
	for i, p := range parts {
		if p == "oc" || p == "kubectl" {
			tool = p
			toolIdx = i
			break
		}
	}
	if toolIdx < 0 {
		return nil
	}

	out := &Command{Tool: tool}
	remaining := parts[toolIdx+1:]

	for _, part := range remaining {
		if !strings.HasPrefix(part, "-") {
			out.Verb = strings.ToLower(part)
			break
		}
	}

	verbSeen := false
	for i := 0; i < len(remaining); i++ {
		arg := remaining[i]
		switch {
		case (arg == "-n" || arg == "--namespace") && i+1 < len(remaining):
			out.Namespace = remaining[i+1]
			i++
		case strings.HasPrefix(arg, "--namespace="):
			out.Namespace = strings.SplitN(arg, "=", 2)[1]
		case (arg == "-f" || arg == "--filename") && i+1 < len(remaining):
			out.Filename = remaining[i+1]
			i++
		case strings.HasPrefix(arg, "--filename="):
			out.Filename = strings.SplitN(arg, "=", 2)[1]
		case strings.HasPrefix(arg, "-"):
			out.Flags = append(out.Flags, arg)
		case !verbSeen:
			verbSeen = true
		case out.Resource == "":
			out.Resource = strings.SplitN(strings.ToLower(arg), "/", 2)[0]
		}
	}
	return out
}
