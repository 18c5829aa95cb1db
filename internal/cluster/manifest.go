package cluster

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxManifestBytes = 1 << 20

// securityFields are manifest keys that change a workload's privilege or
// host exposure. Their presence raises manifest risk to high.
var securityFields = map[string]bool{
	"privileged":                   true,
	"hostNetwork":                  true,
	"hostPID":                      true,
	"hostIPC":                      true,
	"hostPath":                     true,
	"runAsRoot":                    true,
	"allowPrivilegeEscalation":     true,
	"capabilities":                 true,
	"securityContext":              true,
	"serviceAccountName":           true,
	"automountServiceAccountToken": true,
}

// AnchorAliasField marks documents using YAML anchors or aliases, which can
// hide security fields behind a reference.
const AnchorAliasField = "_yaml_anchor_alias"

// ResourceInfo summarizes one manifest document.
type ResourceInfo struct {
	Kind           string
	Name           string
	Namespace      string
	SecurityFields []string
	Err            string // non-empty when the file could not be inspected
}

var (
	catPipeRe   = regexp.MustCompile(`^\s*cat\s+([^\s|]+)\s*\|`)
	stdinFileRe = regexp.MustCompile(`<\s*([^\s<>|]+)`)
)

// PipeSource extracts the filename feeding a command's stdin, from
// `cat file | ...` or `... < file` forms.
func PipeSource(cmd string) string {
	if m := catPipeRe.FindStringSubmatch(cmd); m != nil {
		return m[1]
	}
	if m := stdinFileRe.FindStringSubmatch(cmd); m != nil {
		return m[1]
	}
	return ""
}

// InspectManifest reads and summarizes a YAML/JSON manifest file. Files
// outside the working directory, home, and the temp directory are refused, as
// are oversized and binary files; those conditions come back as a single
// ResourceInfo carrying Err. A missing file yields nil.
func InspectManifest(path string) []ResourceInfo {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil
	}
	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = real
	} else if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if !pathAllowed(resolved) {
		return []ResourceInfo{{Err: "path outside allowed directories"}}
	}

	fi, err := os.Stat(resolved)
	if err != nil {
		return nil
	}
	if fi.Size() > maxManifestBytes {
		return []ResourceInfo{{Err: "file too large"}}
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxManifestBytes+1))
	if err != nil {
		return nil
	}
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	for _, b := range head {
		if b == 0 {
			return []ResourceInfo{{Err: "binary file"}}
		}
	}

	if strings.HasSuffix(path, ".json") {
		return parseJSONManifest(data)
	}
	return parseYAMLManifests(data)
}

func pathAllowed(resolved string) bool {
	var roots []string
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, home)
	}
	roots = append(roots, os.TempDir())

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		if rel, err := filepath.Rel(abs, resolved); err == nil &&
			rel != ".." && !strings.HasPrefix(rel, "../") {
			return true
		}
	}
	return false
}

func parseJSONManifest(data []byte) []ResourceInfo {
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	switch v := obj.(type) {
	case map[string]any:
		if v["kind"] == "List" {
			if items, ok := v["items"].([]any); ok {
				var out []ResourceInfo
				for _, item := range items {
					if m, ok := item.(map[string]any); ok {
						out = append(out, extractInfo(m))
					}
				}
				return out
			}
		}
		return []ResourceInfo{extractInfo(v)}
	case []any:
		var out []ResourceInfo
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, extractInfo(m))
			}
		}
		return out
	}
	return nil
}

var anchorAliasRe = regexp.MustCompile(`[&*]\w+`)

func parseYAMLManifests(data []byte) []ResourceInfo {
	var out []ResourceInfo
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if doc == nil {
			continue
		}
		out = append(out, extractInfo(doc))
	}
	if out == nil {
		return nil
	}
	// Decoding resolves aliases, which would hide reused security blocks.
	// Flag every document when the raw text carries anchors or aliases.
	if hasAnchors(data) {
		for i := range out {
			fields := append(out[i].SecurityFields, AnchorAliasField)
			sort.Strings(fields)
			out[i].SecurityFields = fields
		}
	}
	return out
}

func hasAnchors(data []byte) bool {
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if idx := strings.Index(trimmed, " #"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		if anchorAliasRe.MatchString(trimmed) {
			return true
		}
	}
	return false
}

func extractInfo(obj map[string]any) ResourceInfo {
	info := ResourceInfo{Kind: "Unknown"}
	if kind, ok := obj["kind"].(string); ok && kind != "" {
		info.Kind = kind
	}
	if meta, ok := obj["metadata"].(map[string]any); ok {
		if name, ok := meta["name"].(string); ok {
			info.Name = name
		}
		if ns, ok := meta["namespace"].(string); ok {
			info.Namespace = ns
		}
	}

	found := map[string]bool{}
	collectSecurityFields(obj, found, 0)
	for field := range found {
		info.SecurityFields = append(info.SecurityFields, field)
	}
	sort.Strings(info.SecurityFields)
	return info
}

func collectSecurityFields(obj any, found map[string]bool, depth int) {
	if depth > 10 {
		return
	}
	switch v := obj.(type) {
	case map[string]any:
		for key, value := range v {
			if securityFields[key] {
				found[key] = true
			}
			collectSecurityFields(value, found, depth+1)
		}
	case []any:
		for _, item := range v {
			collectSecurityFields(item, found, depth+1)
		}
	}
}

// ManifestRisk folds a set of inspected resources into a risk tier and
// reason. Security fields raise risk to high; resource kinds map through the
// tier table.
func ManifestRisk(infos []ResourceInfo) (Risk, string) {
	risk := RiskSafe
	reason := ""
	for _, info := range infos {
		if len(info.SecurityFields) > 0 && risk.Order() < RiskHigh.Order() {
			risk = RiskHigh
			reason = "manifest contains security fields: " + strings.Join(info.SecurityFields, ", ")
		}
		if level := resourceRisk(strings.ToLower(info.Kind)); level.Order() > risk.Order() {
			risk = level
			if reason == "" {
				reason = "manifest defines " + string(level) + "-risk resource: " + strings.ToLower(info.Kind)
			}
		}
	}
	return risk, reason
}
