package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/bissquit/clerk-queue/internal/app"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, ingress adapters and metrics server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			application, err := app.New(cfg)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Run()
			}()

			var runErr error
			select {
			case runErr = <-errCh:
			case <-sigCtx.Done():
				slog.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := application.Shutdown(shutdownCtx); err != nil {
				slog.Error("shutdown failed", "error", err)
				if runErr == nil {
					runErr = err
				}
			}
			return runErr
		},
	}
}
