package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/scoutsync/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API with background sync",
	Long: `Serve exposes the local HTTP API for the scouting UI and runs the
connectivity monitor, the reconciler and the mirror puller until interrupted.
Changes to log.level in the config file apply without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if loader.Path() != "" {
		loader.Watch(func(next *config.Config) {
			if next.Log.Level != logger.Level().String() {
				logger.SetLevel(next.Log.Level)
				logger.WithField("level", next.Log.Level).Info("Log level changed")
			}
		}, func(err error) {
			logger.WithError(err).Warn("Ignoring invalid config change")
		})
	}

	apiClient.Sync.Start(ctx)
	server := apiClient.NewServer()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen()
	}()

	if !jsonOutput {
		printSuccess("Serving on %s (backend: %s)", cfg.Server.Addr, apiClient.Backend())
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if !jsonOutput {
		printWarning("\nShutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
