package main

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"toolguard/internal/config"
	"toolguard/internal/rules"
)

func newValidateCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check user-defined rule files for problems",
		Long: "Check the JSON rule files named by " + rules.CommandRulesEnv + " and " +
			rules.URLRulesEnv + " (or the config file). The hook loads rule files " +
			"fail-silent, so a typo quietly disables every extra rule; validate " +
			"surfaces what the hook swallows.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.CommandRules == "" && cfg.URLRules == "" {
				fmt.Println("no extra rule files configured")
				return nil
			}

			if !watch {
				if !validateAll(cfg) {
					os.Exit(2)
				}
				return nil
			}
			return watchRuleFiles(cfg)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate whenever a rule file changes")
	return cmd
}

func validateAll(cfg config.Config) (ok bool) {
	ok = true
	if cfg.CommandRules != "" {
		ok = validateOne(cfg.CommandRules, rules.CommandRulesEnv, false) && ok
	}
	if cfg.URLRules != "" {
		ok = validateOne(cfg.URLRules, rules.URLRulesEnv, true) && ok
	}
	return ok
}

func validateOne(path, label string, isURL bool) bool {
	issues, count := rules.ValidateRulesFile(path, label, isURL)
	if len(issues) == 0 {
		fmt.Printf("✓ %s: %d rule(s) OK (%s)\n", label, count, path)
		return true
	}
	fmt.Printf("✗ %s (%s):\n", label, path)
	for _, issue := range issues {
		fmt.Println("  " + issue)
	}
	return false
}

// watchRuleFiles re-validates on every change until interrupted. Editors
// replace files on save, so the paths are re-added after each event.
func watchRuleFiles(cfg config.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	paths := []string{}
	if cfg.CommandRules != "" {
		paths = append(paths, cfg.CommandRules)
	}
	if cfg.URLRules != "" {
		paths = append(paths, cfg.URLRules)
	}
	for _, p := range paths {
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
	}

	validateAll(cfg)
	fmt.Println("watching for changes (Ctrl-C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				fmt.Printf("\n%s changed:\n", event.Name)
				validateAll(cfg)
				watcher.Add(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "watch error:", err)
		}
	}
}
