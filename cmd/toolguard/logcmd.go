package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent guard decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := loadApp()
			defer a.close()

			events, err := a.store.RecentEvents(count)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("no events")
				return nil
			}
			for _, e := range events {
				line := fmt.Sprintf("%s  %-7s %-9s", e.Timestamp, e.Category, e.Action)
				if e.Rule != "" {
					line += "  [" + e.Rule + "]"
				}
				if e.Command != "" {
					line += "  " + e.Command
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 20, "number of events to show")
	return cmd
}
