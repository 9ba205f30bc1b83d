package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <dataset>",
		Short: "Rewrite the dataset's snapshot from the current table contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, j, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer j.Close()

			path, rows, err := svc.Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if a.output == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"dataset": args[0],
					"path":    path,
					"rows":    rows,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d rows)\n", path, rows)
			return nil
		},
	}
}
