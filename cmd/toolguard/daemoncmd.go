package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"toolguard/internal/config"
	"toolguard/internal/escalate"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the escalation evaluator daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			d := escalate.NewDaemon(
				escalate.NewClaudeEvaluator(cfg.Escalation.Model),
				escalate.DaemonConfig{
					SocketPath:  cfg.Escalation.SocketPath,
					PIDPath:     cfg.Escalation.PIDPath,
					IdleTimeout: 5 * time.Minute,
				},
			)
			return d.Run()
		},
	}
	cmd.AddCommand(newDaemonStatusCmd(), newDaemonStopCmd(), newDaemonRestartCmd())
	return cmd
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			msg, err := escalate.Status(cfg.Escalation.SocketPath, cfg.Escalation.PIDPath)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			msg, err := escalate.Stop(cfg.Escalation.SocketPath, cfg.Escalation.PIDPath)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}

func newDaemonRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			escalate.Stop(cfg.Escalation.SocketPath, cfg.Escalation.PIDPath)
			time.Sleep(200 * time.Millisecond)

			if err := escalate.StartDaemonProcess(); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}

			for i := 0; i < 20; i++ {
				time.Sleep(100 * time.Millisecond)
				conn, err := net.DialTimeout("unix", cfg.Escalation.SocketPath, 100*time.Millisecond)
				if err == nil {
					conn.Close()
					fmt.Println("restarted")
					return nil
				}
			}
			fmt.Println("started but not yet accepting connections")
			return nil
		},
	}
}
