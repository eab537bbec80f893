package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jihwankim/aegis-agent/pkg/baseline"
)

func newBaselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Inspect or reset a baseline database file",
	}

	cmd.AddCommand(newBaselineShowCmd())
	cmd.AddCommand(newBaselineResetCmd())

	return cmd
}

func newBaselineShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <db_path>",
		Short: "Print the per-metric statistics stored in a baseline file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := baseline.New()
			if err := store.Load(args[0]); err != nil {
				return fmt.Errorf("load baseline: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ready: %v\n", store.Ready())
			for _, name := range baseline.Metrics() {
				v := store.View(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s count=%-8d mean=%-16.6f stddev=%.6f\n",
					name, v.Count(), v.Mean(), v.StdDev())
			}
			return nil
		},
	}
}

func newBaselineResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <db_path>",
		Short: "Delete a baseline database file so the agent relearns from scratch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.Remove(args[0]); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("reset baseline: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "baseline %s reset\n", args[0])
			return nil
		},
	}
}
