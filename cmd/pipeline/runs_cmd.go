package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ingestpipe/internal/journal"
)

func newRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recent runs, or the file outcomes of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(cmd.Context(), a.cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer j.Close()

			w := cmd.OutOrStdout()

			if len(args) == 1 {
				if _, err := j.GetRun(cmd.Context(), args[0]); err != nil {
					return err
				}
				files, err := j.RunFiles(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.output == "json" {
					return printJSON(w, files)
				}
				for _, f := range files {
					fmt.Fprintf(w, "%-14s %-9s %-30s %d %s\n", f.Stage, f.Outcome, f.File, f.Rows, f.Reason)
				}
				return nil
			}

			runs, err := j.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(w, runs)
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s  %-10s %-9s %s  %s\n",
					r.ID, r.Dataset, r.Status, r.StartedAt.Local().Format(time.DateTime), r.Error)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}
