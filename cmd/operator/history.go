package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/operator/internal/report"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:     "history [request-id]",
		Aliases: []string{"status"},
		Short:   "List recorded cases, or show one in full",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) == 1 {
				run, err := a.store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("case %s: %w", args[0], err)
				}
				if run.ResultJSON != "" {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), run.ResultJSON)
					return err
				}
				return report.JSON(cmd.OutOrStdout(), run)
			}

			runs, err := a.store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return report.JSON(cmd.OutOrStdout(), runs)
			}
			printer(cmd).Runs(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "how many runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print as JSON")
	return cmd
}
