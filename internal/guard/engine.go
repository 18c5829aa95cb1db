// Package guard wires the rule tables, shell parser, cluster introspector,
// and audit store into the decision engine behind the PreToolUse hook.
package guard

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"toolguard/internal/audit"
	"toolguard/internal/cluster"
	"toolguard/internal/hook"
	"toolguard/internal/rules"
	"toolguard/internal/shell"
)

// MaxCommandLen bounds analyzed commands. Anything bigger blocks: a command
// the guard cannot analyze is not a command it can vouch for.
const MaxCommandLen = 100_000

const bypassPrefix = "GUARD_BYPASS=1 "

// Decision is the engine's verdict for one tool call. A nil *Decision means
// the guard has no opinion and the hook exits silently.
type Decision struct {
	Action  rules.Action
	Rule    string
	Reason  string
	Segment string
	Trusted bool
}

// EscalateFunc consults an external evaluator for commands no rule matched.
// It returns ActionAllow to stay silent or ActionAsk with a reason.
type EscalateFunc func(command, workDir string) (rules.Action, string)

// Engine evaluates tool calls. Fields are set once at startup; the hook
// binary is single-shot so there is no concurrent use.
type Engine struct {
	CommandRules []rules.CommandRule
	URLRules     []rules.URLRule
	Store        *audit.Store
	Log          *zap.Logger

	// BranchLookup resolves the current git branch for the commit guard.
	// Tests inject a fake; the default shells out to git rev-parse.
	BranchLookup func(workDir string) string

	// Escalate is nil unless LLM escalation is enabled.
	Escalate EscalateFunc

	// MakefileProbe reports whether dir holds a Makefile.
	MakefileProbe func(dir string) bool

	LogAll bool // log pass-through commands too

	SessionID string
	ToolUseID string
}

// New builds an engine with the built-in tables plus extra rules from the
// given files, and the default branch lookup.
func New(store *audit.Store, log *zap.Logger, commandRulesPath, urlRulesPath string) *Engine {
	cmdRules := append([]rules.CommandRule{}, rules.Command...)
	cmdRules = append(cmdRules, rules.LoadCommandRules(commandRulesPath)...)
	urlRules := append([]rules.URLRule{}, rules.URL...)
	urlRules = append(urlRules, rules.LoadURLRules(urlRulesPath)...)

	return &Engine{
		CommandRules:  cmdRules,
		URLRules:      urlRules,
		Store:         store,
		Log:           log,
		BranchLookup:  gitCurrentBranch,
		MakefileProbe: hasMakefile,
	}
}

func gitCurrentBranch(workDir string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	if workDir != "" {
		cmd.Dir = workDir
	}
	out, err := cmd.Output()
	if err != nil {
		return "" // cannot determine branch, fail open
	}
	return strings.TrimSpace(string(out))
}

func hasMakefile(dir string) bool {
	if dir == "" {
		dir = "."
	}
	_, err := os.Stat(filepath.Join(dir, "Makefile"))
	return err == nil
}

// rawDecision is a rule match before trust resolution.
type rawDecision struct {
	action   rules.Action
	rule     string
	guidance string
	segment  string
}

// EvaluatePreToolUse runs the full decision procedure for one tool call.
// tips are advisory stdout lines that accompany a pass-through.
func (e *Engine) EvaluatePreToolUse(in *hook.Input) (dec *Decision, tips []string) {
	e.SessionID = in.SessionID
	e.ToolUseID = in.ToolUseID
	e.Store.RecordSession(in.SessionID)

	if raw := e.guardTmpPath(in); raw != nil {
		return e.finalize(raw), nil
	}
	if raw := e.guardPlanMode(in); raw != nil {
		return e.finalize(raw), nil
	}

	switch in.ToolName {
	case "WebFetch":
		return e.evaluateWebFetch(in.FetchURL()), nil
	case "Bash":
		return e.evaluateBash(strings.TrimSpace(in.BashCommand()), in.WorkingDir)
	}
	return nil, nil
}

// guardTmpPath blocks write-oriented tools targeting /tmp/ outside hack/tmp.
func (e *Engine) guardTmpPath(in *hook.Input) *rawDecision {
	switch in.ToolName {
	case "Write", "Edit", "NotebookEdit":
	default:
		return nil
	}
	path := in.FilePath()
	if path == "" || !strings.Contains(path, "/tmp/") || strings.Contains(path, "hack/tmp") {
		return nil
	}
	return &rawDecision{
		action: rules.ActionBlock,
		rule:   "tmp-path-write",
		guidance: "Use `hack/tmp/` (gitignored) instead of `/tmp/` for temporary files. " +
			"Native tools (Read/Write/Edit) work on local files without extra permissions.",
		segment: path,
	}
}

func (e *Engine) guardPlanMode(in *hook.Input) *rawDecision {
	if in.ToolName != "EnterPlanMode" {
		return nil
	}
	return &rawDecision{
		action: rules.ActionBlock,
		rule:   "plan-mode-blocked",
		guidance: "Native plan mode writes and displays the full plan at once.\n" +
			"Use the incremental-planning skill instead:\n" +
			"  Invoke Skill tool with 'dev-essentials:incremental-planning'\n\n" +
			"This skill asks clarifying questions first, writes the plan\n" +
			"incrementally to a file, and provides research context in chat\n" +
			"for informed feedback.",
		segment: "EnterPlanMode",
	}
}

func (e *Engine) evaluateWebFetch(url string) *Decision {
	if url == "" {
		return nil
	}
	if rule := rules.MatchURL(e.URLRules, url); rule != nil {
		e.logURLEvent(url, rule.Name, logAction(rule.Action), "WebFetch", "pre", nil)
		return e.finalize(&rawDecision{
			action:   rule.Action,
			rule:     rule.Name,
			guidance: rule.Guidance,
			segment:  url,
		})
	}
	e.logURLEvent(url, "", "allowed", "WebFetch", "pre", nil)
	return nil
}

var (
	fetchCmdRe      = regexp.MustCompile(`^\s*(curl|wget)\b`)
	allowFetchRe    = regexp.MustCompile(`(^|\s)ALLOW_FETCH=1(\s|$)`)
	gitFetchRe      = regexp.MustCompile(`git\s+fetch\s+(upstream|origin)\b`)
	procSubstRe     = regexp.MustCompile(`<\(`)
	multilinePyCRe  = regexp.MustCompile(`^\s*(?:uv\s+run\s+)?python3?\s+-c\s+`)
	ocKubectlLeadRe = regexp.MustCompile(`^\s*(oc|kubectl)\b`)
)

func (e *Engine) evaluateBash(command, workDir string) (*Decision, []string) {
	if command == "" {
		return nil, nil
	}
	if len(command) > MaxCommandLen {
		e.logEvent("guard", "", "oversized", command[:500], nil)
		return &Decision{
			Action: rules.ActionBlock,
			Rule:   "oversized-command",
			Reason: "Command too large for guard analysis.",
		}, nil
	}

	// Andon cord: a GUARD_BYPASS=1 prefix skips selection and ask rules.
	// Git deny rules and the URL fetch guard still apply.
	if strings.HasPrefix(command, bypassPrefix) {
		e.logEvent("bypass", "", "bypassed", command, nil)
		real := command[len(bypassPrefix):]
		if dec := e.checkFetchCommand(real); dec != nil {
			return e.finalize(dec), nil
		}
		for _, subcmd := range shell.SplitCommands(real) {
			stripped := shell.StripEnvPrefix(shell.StripShellKeyword(subcmd))
			for _, rule := range rules.GitDeny {
				if rule.Check(stripped) {
					return e.finalize(&rawDecision{
						action:   rules.ActionBlock,
						rule:     rule.Name,
						guidance: rule.Message,
						segment:  stripped,
					}), nil
				}
			}
		}
		return nil, nil
	}

	// URL guard first, then the normal walk regardless: a curl prefix must
	// not shadow a deny later in the chain.
	if dec := e.checkFetchCommand(command); dec != nil {
		return e.finalize(dec), nil
	}

	subcmds := shell.SplitCommands(command)
	fetchSeen := false
	for _, subcmd := range subcmds {
		var raw *rawDecision
		raw, fetchSeen = e.checkSubcommand(subcmd, fetchSeen, workDir)
		if raw != nil {
			return e.finalize(raw), nil
		}
	}

	if e.Escalate != nil {
		if action, reason := e.Escalate(command, workDir); action == rules.ActionAsk {
			return e.finalize(&rawDecision{
				action:   rules.ActionAsk,
				rule:     "escalation",
				guidance: reason,
				segment:  command,
			}), nil
		}
	}

	// Tips only ride along with a pass-through; a decision's stdout belongs
	// to the hook protocol.
	var tips []string
	if len(subcmds) > 1 && e.MakefileProbe != nil && e.MakefileProbe(workDir) {
		tips = append(tips, "TIP: A Makefile exists in this directory. "+
			"Check if there's a `make` target before running raw commands.")
	}

	if e.LogAll {
		e.logEvent("guard", "", "allowed", command, nil)
	}
	return nil, tips
}

// checkFetchCommand applies the URL guard to curl/wget commands. A nil result
// means the command was not a fetch, or its URLs all passed.
func (e *Engine) checkFetchCommand(command string) *rawDecision {
	normalized := shell.StripEnvPrefix(command)
	if !fetchCmdRe.MatchString(normalized) {
		return nil
	}

	// ALLOW_FETCH=1 means alternatives were considered; log and let it run.
	if allowFetchRe.MatchString(command) {
		for _, url := range shell.ExtractURLs(command) {
			e.logURLEvent(url, "", "bypassed", "Bash", "pre", nil)
		}
		return nil
	}

	for _, url := range shell.ExtractURLs(command) {
		if rule := rules.MatchURL(e.URLRules, url); rule != nil {
			e.logURLEvent(url, rule.Name, logAction(rule.Action), "Bash", "pre", nil)
			return &rawDecision{
				action: rule.Action,
				rule:   rule.Name,
				guidance: rule.Guidance + "\n" +
					"If you've confirmed raw fetch is appropriate, prefix with `ALLOW_FETCH=1`.",
				segment: command,
			}
		}
		e.logURLEvent(url, "", "allowed", "Bash", "pre", nil)
	}
	return nil
}

// checkSubcommand analyzes one subcommand: unwrap bash -c, block shell
// features that trip Claude Code's own validators, then check pipe segments
// and subshells before the full command so a deny in a segment cannot be
// shadowed by a whole-command allow rule.
func (e *Engine) checkSubcommand(subcmd string, fetchSeen bool, workDir string) (*rawDecision, bool) {
	if gitFetchRe.MatchString(subcmd) {
		fetchSeen = true
	}

	if inner := shell.ExtractShellWrapper(subcmd); inner != "" {
		for _, innerSub := range shell.SplitCommands(inner) {
			if gitFetchRe.MatchString(innerSub) {
				fetchSeen = true
			}
			if raw := e.checkRules(innerSub, fetchSeen, nil, workDir); raw != nil {
				return raw, fetchSeen
			}
		}
		// The wrapper itself causes a permission prompt even when the inner
		// command is clean.
		return &rawDecision{
			action: rules.ActionBlock,
			rule:   "bash-c-wrapper",
			guidance: fmt.Sprintf("Run the command directly without the `bash -c` wrapper -- "+
				"it causes a permission prompt. Just use: `%s`", inner),
			segment: subcmd,
		}, fetchSeen
	}

	if procSubstRe.MatchString(subcmd) {
		return &rawDecision{
			action: rules.ActionBlock,
			rule:   "process-substitution",
			guidance: "Process substitution `<(...)` triggers a Claude Code permission prompt. " +
				"Run each command separately and diff the output files instead:\n" +
				"  cmd1 > /tmp/a.txt && cmd2 > /tmp/b.txt && diff /tmp/a.txt /tmp/b.txt",
			segment: clip(subcmd, 200),
		}, fetchSeen
	}

	if multilinePyCRe.MatchString(subcmd) && strings.Contains(subcmd, "\n") {
		return &rawDecision{
			action: rules.ActionBlock,
			rule:   "multiline-python-c",
			guidance: "Multiline `python -c` triggers a Claude Code permission prompt " +
				"(inline flags hit the built-in argument validator). " +
				"Write the code to a file and run it with `uv run python3 <file>` instead.",
			segment: clip(subcmd, 200),
		}, fetchSeen
	}

	if raw := e.checkPipes(subcmd, fetchSeen, workDir); raw != nil {
		return raw, fetchSeen
	}

	for _, inner := range shell.ExtractSubshells(subcmd) {
		if gitFetchRe.MatchString(inner) {
			fetchSeen = true
		}
		if raw := e.checkRules(inner, fetchSeen, nil, workDir); raw != nil {
			return raw, fetchSeen
		}
		if raw := e.checkPipes(inner, fetchSeen, workDir); raw != nil {
			return raw, fetchSeen
		}
	}

	if raw := e.checkRules(subcmd, fetchSeen, nil, workDir); raw != nil {
		return raw, fetchSeen
	}

	// oc/kubectl introspection runs after user-defined rules, which win.
	normalized := shell.StripEnvPrefix(shell.StripShellKeyword(subcmd))
	if ocKubectlLeadRe.MatchString(normalized) {
		if raw := e.checkClusterIntrospection(subcmd); raw != nil {
			return raw, fetchSeen
		}
	}

	return nil, fetchSeen
}

// checkPipes applies the rule tables to pipe segments after the first.
// Cluster introspection stays on whole subcommands; `cat f | oc apply -f -`
// is handled there via the pipe source.
func (e *Engine) checkPipes(cmd string, fetchSeen bool, workDir string) *rawDecision {
	segments := shell.SplitPipes(cmd)
	if len(segments) <= 1 {
		return nil
	}
	for _, segment := range segments[1:] {
		if raw := e.checkRules(segment, fetchSeen, rules.PipeSegmentSkip, workDir); raw != nil {
			return raw
		}
	}
	return nil
}

// checkRules runs git safety first (deny before ask), then the command table.
func (e *Engine) checkRules(cmd string, fetchSeen bool, skip map[string]bool, workDir string) *rawDecision {
	cmd = shell.StripShellKeyword(cmd)

	if raw := e.checkGitSafety(cmd, fetchSeen, workDir); raw != nil {
		return raw
	}

	normalized := shell.StripEnvPrefix(cmd)
	for _, rule := range e.CommandRules {
		if skip != nil && skip[rule.Name] {
			continue
		}
		if rule.Matches(normalized, cmd) {
			return &rawDecision{
				action:   rule.Action,
				rule:     rule.Name,
				guidance: rule.Guidance,
				segment:  cmd,
			}
		}
	}
	return nil
}

var gitWordRe = regexp.MustCompile(`(^|\s)git\s`)
var gitCommitRe = regexp.MustCompile(`^\s*git\s+commit`)

func (e *Engine) checkGitSafety(cmd string, fetchSeen bool, workDir string) *rawDecision {
	if !gitWordRe.MatchString(cmd) {
		return nil
	}

	for _, rule := range rules.GitDeny {
		if rule.Check(cmd) {
			return &rawDecision{action: rules.ActionBlock, rule: rule.Name, guidance: rule.Message, segment: cmd}
		}
	}

	if gitCommitRe.MatchString(cmd) && e.BranchLookup != nil {
		if branch := e.BranchLookup(workDir); rules.ProtectedBranches[branch] {
			return &rawDecision{
				action: rules.ActionBlock,
				rule:   "commit-to-main",
				guidance: fmt.Sprintf("Committing directly to %s is FORBIDDEN. "+
					"Create a feature branch: git switch -c feature/name", branch),
				segment: cmd,
			}
		}
	}

	// Branching from an upstream ref is only safe after a fetch in the same
	// command chain; otherwise the local remote-tracking ref may be stale.
	if parsed := rules.ParseBranchCreation(cmd); parsed != nil &&
		parsed.Start != "" && rules.SafeRemoteRefs[parsed.Start] && !fetchSeen {
		return &rawDecision{
			action: rules.ActionAsk,
			rule:   "branch-needs-fetch",
			guidance: "No git fetch detected in this command chain. " +
				"Fetch first: git fetch upstream main && " +
				"git switch -c <name> upstream/main",
			segment: cmd,
		}
	}

	for _, rule := range rules.GitAsk {
		if rule.Check(cmd) {
			return &rawDecision{action: rules.ActionAsk, rule: rule.Name, guidance: rule.Message, segment: cmd}
		}
	}
	return nil
}

func (e *Engine) checkClusterIntrospection(cmd string) *rawDecision {
	parsed := cluster.ParseCommand(cmd)
	if parsed == nil {
		return nil
	}
	risk, reason := cluster.Classify(parsed)

	filePath := parsed.Filename
	if filePath == "" {
		filePath = cluster.PipeSource(cmd)
	}

	var infos []cluster.ResourceInfo
	if filePath != "" && filePath != "-" {
		infos = cluster.InspectManifest(filePath)
		manifestRisk, manifestReason := cluster.ManifestRisk(infos)
		if manifestRisk.Order() > risk.Order() {
			risk = manifestRisk
		}
		if reason == "" {
			reason = manifestReason
		}
	}

	if risk == cluster.RiskSafe || risk == cluster.RiskLow {
		return nil
	}

	parts := []string{reason}
	if reason == "" {
		parts = []string{string(risk) + "-risk operation"}
	}
	var resources, warnings []string
	for _, info := range infos {
		if info.Err != "" {
			warnings = append(warnings, info.Err)
			continue
		}
		resources = append(resources, info.Kind+"/"+info.Name)
	}
	if len(resources) > 5 {
		resources = resources[:5]
	}
	if len(resources) > 0 {
		parts = append(parts, "Resources: "+strings.Join(resources, ", "))
	}
	if len(warnings) > 0 {
		parts = append(parts, "Warnings: "+strings.Join(warnings, ", "))
	}

	return &rawDecision{
		action:   rules.ActionAsk,
		rule:     "oc-" + string(risk),
		guidance: fmt.Sprintf("oc/kubectl %s-risk: %s", risk, strings.Join(parts, "; ")),
		segment:  cmd,
	}
}

// finalize turns a rule match into the hook-facing decision: allow passes
// through with guidance, ask consults the trust store first, block carries
// the [rule] prefix. Every outcome lands in the audit log.
func (e *Engine) finalize(raw *rawDecision) *Decision {
	switch raw.action {
	case rules.ActionAllow:
		e.logEvent("guard", raw.rule, "allowed", raw.segment, nil)
		return &Decision{
			Action:  rules.ActionAllow,
			Rule:    raw.rule,
			Reason:  raw.guidance,
			Segment: raw.segment,
		}

	case rules.ActionAsk:
		if raw.rule != "" && e.Store.CheckTrust(raw.rule, raw.segment, e.SessionID) {
			e.logEvent("guard", raw.rule, "trusted", raw.segment, nil)
			return &Decision{
				Action:  rules.ActionAllow,
				Rule:    raw.rule,
				Reason:  fmt.Sprintf("[trusted] [%s] %s", raw.rule, raw.guidance),
				Segment: raw.segment,
				Trusted: true,
			}
		}

		parts := []string{raw.guidance}
		if raw.rule != "" {
			parts = []string{fmt.Sprintf("[%s] %s", raw.rule, raw.guidance)}
		}
		if raw.segment != "" {
			parts = append(parts, "Matched: "+raw.segment)
		}
		if raw.rule != "" {
			sidHint := ""
			if e.SessionID != "" {
				sidHint = " --session-id " + e.SessionID
			}
			parts = append(parts, fmt.Sprintf(
				"To trust: toolguard trust add %s [--match <pattern>] [--scope session%s|--scope always]",
				raw.rule, sidHint))
		}

		e.logEvent("guard", raw.rule, "ask", raw.segment, nil)
		return &Decision{
			Action:  rules.ActionAsk,
			Rule:    raw.rule,
			Reason:  strings.Join(parts, "\n"),
			Segment: raw.segment,
		}

	default:
		reason := raw.guidance
		if raw.rule != "" {
			reason = fmt.Sprintf("[%s] %s", raw.rule, raw.guidance)
		}
		e.logEvent("guard", raw.rule, "blocked", raw.segment, nil)
		return &Decision{
			Action:  rules.ActionBlock,
			Rule:    raw.rule,
			Reason:  reason,
			Segment: raw.segment,
		}
	}
}

// EvaluatePostToolUse records fetch outcomes: a 401/403 after the guard let a
// URL through is worth knowing about.
func (e *Engine) EvaluatePostToolUse(in *hook.Input) {
	e.SessionID = in.SessionID
	e.ToolUseID = in.ToolUseID
	e.Store.RecordSession(in.SessionID)

	switch in.ToolName {
	case "Bash":
		command := in.BashCommand()
		if !fetchCmdRe.MatchString(shell.StripEnvPrefix(command)) {
			return
		}
		text := in.ResponseText()
		for _, url := range shell.ExtractURLs(command) {
			e.logFetchOutcome(url, text, "Bash")
		}
	case "WebFetch":
		url := in.FetchURL()
		if url == "" {
			return
		}
		e.logFetchOutcome(url, in.ResponseText(), "WebFetch")
	}
}

func (e *Engine) logFetchOutcome(url, responseText, tool string) {
	failed, status := rules.DetectAuthFailure(responseText)
	action := "success"
	if failed {
		action = "auth_failed"
	}
	extra := map[string]any{"auth_failed": failed}
	if status != 0 {
		extra["response_code"] = status
	}
	e.logURLEvent(url, "", action, tool, "post", extra)
}

func (e *Engine) logEvent(category, rule, action, command string, detail map[string]any) {
	e.Store.LogEvent(e.SessionID, e.ToolUseID, category, rule, action, command, detailOrNil(detail))
	if e.Log != nil {
		e.Log.Debug("guard event",
			zap.String("category", category),
			zap.String("rule", rule),
			zap.String("action", action))
	}
}

func (e *Engine) logURLEvent(url, rule, action, tool, phase string, extra map[string]any) {
	detail := map[string]any{"tool": tool, "phase": phase}
	for k, v := range extra {
		detail[k] = v
	}
	e.Store.LogEvent(e.SessionID, e.ToolUseID, "url", rule, action, url, detail)
}

func detailOrNil(detail map[string]any) any {
	if detail == nil {
		return nil
	}
	return detail
}

func logAction(a rules.Action) string {
	switch a {
	case rules.ActionAsk:
		return "asked"
	case rules.ActionAllow:
		return "allowed"
	default:
		return "blocked"
	}
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// AskableRuleNames returns the rule names eligible for trust grants: built-in
// and user-defined ask rules, the introspection tiers, and branch-needs-fetch.
func (e *Engine) AskableRuleNames() []string {
	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, rule := range rules.GitAsk {
		add(rule.Name)
	}
	for _, rule := range e.CommandRules {
		if rule.Action == rules.ActionAsk {
			add(rule.Name)
		}
	}
	for _, rule := range e.URLRules {
		if rule.Action == rules.ActionAsk {
			add(rule.Name)
		}
	}
	add("oc-critical")
	add("oc-high")
	add("oc-medium")
	add("branch-needs-fetch")
	return names
}
