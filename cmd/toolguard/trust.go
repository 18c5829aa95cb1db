package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const maxMatchPatternLen = 500

func newTrustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Manage trust grants that auto-approve ask rules",
	}
	cmd.AddCommand(newTrustListCmd(), newTrustAddCmd(), newTrustRemoveCmd())
	return cmd
}

func newTrustListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trust grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := loadApp()
			defer a.close()

			grants, err := a.store.ListTrust()
			if err != nil {
				return err
			}
			if len(grants) == 0 {
				fmt.Println("no trusted rules")
				return nil
			}
			for _, g := range grants {
				line := fmt.Sprintf("%s  scope=%s", g.RuleName, g.Scope)
				if g.MatchPattern != "" {
					line += fmt.Sprintf("  match=%q", g.MatchPattern)
				}
				if g.SessionID != "" {
					line += "  session=" + g.SessionID
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newTrustAddCmd() *cobra.Command {
	var match, scope, sessionID string

	cmd := &cobra.Command{
		Use:   "add <rule>",
		Short: "Trust an ask rule so it auto-approves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ruleName := args[0]
			a := loadApp()
			defer a.close()

			if !askable(a, ruleName) {
				return fmt.Errorf("unknown or non-askable rule %q (see: toolguard trust list)", ruleName)
			}
			if len(match) > maxMatchPatternLen {
				return fmt.Errorf("--match pattern too long (%d chars, max %d)", len(match), maxMatchPatternLen)
			}
			if scope != "session" && scope != "always" {
				return fmt.Errorf("--scope must be 'session' or 'always', got %q", scope)
			}
			if scope == "session" && sessionID == "" {
				sessionID = a.store.LastSessionID()
				if sessionID == "" {
					return fmt.Errorf("--scope session needs --session-id (no recent session recorded)")
				}
			}

			if err := a.store.AddTrust(ruleName, match, scope, sessionID); err != nil {
				return err
			}
			fmt.Printf("trusted %s (scope=%s)\n", ruleName, scope)
			return nil
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "only trust commands containing this substring")
	cmd.Flags().StringVar(&scope, "scope", "always", "grant scope: session or always")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session for --scope session (default: last seen)")
	return cmd
}

func newTrustRemoveCmd() *cobra.Command {
	var match string

	cmd := &cobra.Command{
		Use:   "remove <rule>",
		Short: "Revoke trust grants for a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := loadApp()
			defer a.close()

			hasPattern := cmd.Flags().Changed("match")
			n, err := a.store.RemoveTrust(args[0], match, hasPattern)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Println("no matching trust grants")
				return nil
			}
			fmt.Printf("removed %d trust grant(s) for %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "remove only the grant with this match pattern")
	return cmd
}

func askable(a *app, ruleName string) bool {
	for _, name := range a.engine.AskableRuleNames() {
		if name == ruleName {
			return true
		}
	}
	return false
}
