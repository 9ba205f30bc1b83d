package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ingestpipe/internal/config"
	"github.com/JonMunkholm/ingestpipe/internal/core"
	"github.com/JonMunkholm/ingestpipe/internal/journal"
	"github.com/JonMunkholm/ingestpipe/internal/logging"
	"github.com/JonMunkholm/ingestpipe/internal/store"
)

var (
	version = "dev"
	commit  = "none"
)

// app carries state resolved in PersistentPreRunE to the subcommands.
type app struct {
	cfg     *config.Config
	output  string
	envFile string
}

// execute runs the CLI and returns the process exit code.
func execute(args []string) int {
	a := &app{}
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		a.printError(rootCmd.ErrOrStderr(), err)
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pipeline",
		Short:         "Dataset ingestion pipeline",
		Long:          "Validates staged delimited files, loads them into the dataset store and exports the table snapshot.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.output != "text" && a.output != "json" {
				return fmt.Errorf("unsupported output format %q: use 'text' or 'json'", a.output)
			}
			return a.loadConfig(cmd.Flags().Changed("env-file"))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.output, "output", "o", "text", "Output format (text, json)")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file to load before reading configuration")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newArchiveCmd(a))
	rootCmd.AddCommand(newExportCmd(a))
	rootCmd.AddCommand(newRunsCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))

	return rootCmd
}

// loadConfig loads the env file (Overload overwrites existing env vars),
// then reads and validates configuration. A missing default env file is not
// an error; a missing explicit one is.
func (a *app) loadConfig(explicitEnvFile bool) error {
	if err := godotenv.Overload(a.envFile); err != nil {
		if explicitEnvFile || !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", a.envFile, err)
		}
		slog.Debug("no env file found, using environment variables", "path", a.envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Debug("configuration loaded", "config", cfg.String())
	return nil
}

// openService builds the store, the journal and the service. The caller
// closes the journal.
func (a *app) openService(ctx context.Context) (*core.Service, *journal.Journal, error) {
	st, err := store.New(store.OptionsFromConfig(a.cfg.Store))
	if err != nil {
		return nil, nil, err
	}

	j, err := journal.Open(ctx, a.cfg.Journal.Path)
	if err != nil {
		return nil, nil, err
	}

	return core.NewService(*a.cfg, st, core.WithRecorder(j)), j, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printError(w io.Writer, err error) {
	msg := core.MapError(err)
	if a.output == "json" {
		_ = printJSON(w, map[string]string{
			"error":   err.Error(),
			"message": msg.Message,
			"action":  msg.Action,
			"code":    msg.Code,
		})
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	if core.IsUserFacing(err) {
		fmt.Fprintf(w, "%s\n", core.FormatUserError(err))
	}
}
