package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bcnelson/ipsync/internal/api"
	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run on the configured interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.setup()
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.Config
			ctx := cmd.Context()

			server := &http.Server{
				Addr:         cfg.Server.Addr(),
				Handler:      api.NewRouter(a.Sync, a.Metrics, cfg.Server.APIToken, a.Logger),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 10 * time.Minute, // POST /sync waits for the whole run
				IdleTimeout:  120 * time.Second,
			}

			go a.Sync.Start(ctx, cfg.Sync.Interval)

			errCh := make(chan error, 1)
			go func() {
				a.Logger.Info().
					Str("addr", cfg.Server.Addr()).
					Int("pairings", len(cfg.Pairings)).
					Dur("interval", cfg.Sync.Interval).
					Msg("Starting ipsync server")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.Logger.Info().Msg("Shutting down server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			a.Logger.Info().Msg("Server stopped")
			return nil
		},
	}
}
