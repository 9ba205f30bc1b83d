package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ingestpipe/internal/core"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <dataset>",
		Short: "Run the ingestion pipeline for a dataset",
		Long: "Archives the previous run's artifacts, validates the staged files, loads them " +
			"into the dataset's table and exports the table snapshot.\n\n" +
			"Datasets: " + strings.Join(core.Names(), ", "),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, j, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer j.Close()

			res, err := svc.Run(cmd.Context(), args[0])
			if res != nil {
				if a.output == "json" {
					if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
						return perr
					}
				} else {
					printRunResult(cmd.OutOrStdout(), res)
				}
			}
			return err
		},
	}
}

func printRunResult(w io.Writer, res *core.RunResult) {
	fmt.Fprintf(w, "run %s  dataset=%s  status=%s  duration=%s\n",
		res.RunID, res.Dataset, res.Status, res.Duration.Round(time.Millisecond))
	if res.Status == core.StatusSkipped {
		fmt.Fprintln(w, "no staged files")
		return
	}

	fmt.Fprintf(w, "archived: %d\n", res.Archived)
	if len(res.AddedColumns) > 0 {
		fmt.Fprintf(w, "columns added: %s\n", strings.Join(res.AddedColumns, ", "))
	}
	for _, f := range res.Loaded {
		fmt.Fprintf(w, "loaded    %-30s %d rows\n", f.File, f.Rows)
	}
	for _, f := range res.Rejected {
		fmt.Fprintf(w, "rejected  %-30s [%s] %s\n", f.File, f.Stage, f.Reason)
	}
	fmt.Fprintf(w, "rows: %d\n", res.Rows)
	if res.SnapshotPath != "" {
		fmt.Fprintf(w, "snapshot: %s (%d rows)\n", res.SnapshotPath, res.SnapshotRows)
	}
}
