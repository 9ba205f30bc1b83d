package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/ingestpipe/internal/core"
	"github.com/JonMunkholm/ingestpipe/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger and run history API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, j, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer j.Close()

			slog.Info("datasets registered", "datasets", core.Names())

			server := web.NewServer(svc, j, a.cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if interval := a.cfg.Pipeline.ScheduleInterval; interval > 0 {
				go svc.StartRunScheduler(ctx, core.ScheduleConfig{
					Interval:  interval,
					Retention: a.cfg.Journal.Retention,
				})
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			slog.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
			defer cancel()

			// Stop accepting requests first, then let an in-flight run finish
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown error", "error", err)
			}
			if status := svc.Limiter().Status(); status.Busy {
				slog.Info("waiting for active run to complete", "active", status.Active)
				if err := svc.Limiter().WaitForDrain(shutdownCtx); err != nil {
					slog.Warn("run did not complete in time", "error", err)
					return err
				}
			}
			slog.Info("server stopped")
			return nil
		},
	}
}
