package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <dataset>",
		Short: "Move the previous run's artifacts into a timestamped archive bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, j, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer j.Close()

			summary, err := svc.Archive(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if a.output == "json" {
				return printJSON(cmd.OutOrStdout(), summary)
			}
			w := cmd.OutOrStdout()
			for _, b := range summary.Buckets {
				fmt.Fprintf(w, "%-12s moved=%d skipped=%d  %s\n", b.Category, len(b.Moved), len(b.Skipped), b.Dir)
			}
			fmt.Fprintf(w, "archived %d files (stamp %s)\n", summary.Moved(), summary.Stamp)
			return nil
		},
	}
}
