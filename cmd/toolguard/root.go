// Command toolguard is a Claude Code PreToolUse/PostToolUse hook that blocks
// destructive commands, redirects shell habits to native tools, and records
// every decision in a SQLite audit log. Run with no arguments it speaks the
// hook protocol on stdin/stdout; subcommands manage trust grants, rule files,
// the audit log, and the escalation daemon.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"toolguard/internal/audit"
	"toolguard/internal/config"
	"toolguard/internal/escalate"
	"toolguard/internal/guard"
	"toolguard/internal/hook"
	"toolguard/internal/logging"
	"toolguard/internal/rules"
)

type app struct {
	cfg    config.Config
	store  *audit.Store
	log    *zap.Logger
	engine *guard.Engine
}

// loadApp wires config, store, logger, and engine. A store that fails to open
// leaves auditing off but never stops the guard.
func loadApp() *app {
	cfg := config.Load()
	logger := logging.New(cfg.Debug, debugLogPath())
	store, err := audit.Open(cfg.DBPath, audit.ParseLevel(cfg.LogLevel))
	if err != nil {
		logger.Warn("audit store unavailable", zap.Error(err))
		store = nil
	}

	engine := guard.New(store, logger, cfg.CommandRules, cfg.URLRules)
	engine.LogAll = audit.ParseLevel(cfg.LogLevel) == audit.LevelAll
	if cfg.Escalation.Enabled {
		engine.Escalate = escalateFunc(cfg.Escalation)
	}

	return &app{cfg: cfg, store: store, log: logger, engine: engine}
}

func (a *app) close() {
	a.store.Close()
	a.log.Sync()
}

func debugLogPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".claude", "logs", "toolguard-debug.log")
}

// escalateFunc adapts the daemon client to the engine. Any failure means the
// guard stays silent and Claude Code's own permission flow takes over.
func escalateFunc(esc config.Escalation) guard.EscalateFunc {
	return func(command, workDir string) (rules.Action, string) {
		resp, err := escalate.Query(esc.SocketPath, escalate.EvalRequest{
			Command: command,
			WorkDir: workDir,
		})
		if err != nil || resp.Decision != "ASK" {
			return rules.ActionAllow, ""
		}
		return rules.ActionAsk, resp.Reason
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "toolguard",
		Short:         "Claude Code tool-call guard",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runHook()
		},
	}

	root.AddCommand(
		newTrustCmd(),
		newValidateCmd(),
		newLogCmd(),
		newDaemonCmd(),
	)
	return root
}

// runHook executes one hook invocation: read the payload, evaluate, emit the
// decision. Malformed or oversized input fails open; a broken guard must
// never lock Claude Code out of its tools.
func runHook() {
	a := loadApp()
	code := hookOnce(a)
	a.close()
	os.Exit(code)
}

func hookOnce(a *app) int {
	in, err := hook.ReadInput(os.Stdin)
	if err != nil {
		// Fail open: a broken guard must never lock the agent out of its tools.
		fmt.Fprintln(os.Stderr, "toolguard: ignoring unreadable hook input:", err)
		a.log.Warn("unreadable hook input", zap.Error(err))
		return 0
	}

	if in.EventName == hook.EventPostToolUse {
		a.engine.EvaluatePostToolUse(in)
		return 0
	}

	dec, tips := a.engine.EvaluatePreToolUse(in)
	for _, tip := range tips {
		fmt.Println(tip)
	}
	if dec == nil {
		return 0
	}

	switch dec.Action {
	case rules.ActionBlock:
		fmt.Fprintln(os.Stderr, dec.Reason)
		return 2
	case rules.ActionAsk:
		hook.WriteDecision(os.Stdout, "ask", dec.Reason)
	default:
		hook.WriteDecision(os.Stdout, "allow", dec.Reason)
	}
	return 0
}
