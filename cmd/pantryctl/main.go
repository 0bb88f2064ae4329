// Package main is pantryctl, the operations CLI: database setup, ingestion,
// backups, scaling, scans, performance tests, cache and rate limit
// maintenance, routing and demand prediction.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pantrynav/pantrynav/internal/config"
	"github.com/pantrynav/pantrynav/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pantryctl",
		Short:         "Operations tooling for pantrynav",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return fmt.Errorf("failed to load .env: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			cobra.OnFinalize(stop)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.AddCommand(
		newSetupDBCmd(),
		newIngestCmd(),
		newResourcesCmd(),
		newBackupCmd(),
		newScaleCmd(),
		newScanCmd(),
		newPerfCmd(),
		newCacheCmd(),
		newRateLimitCmd(),
		newRouteCmd(),
		newPredictCmd(),
		newAdminTokenCmd(),
	)
	return cmd
}

// newLogger logs to stderr so that stdout only carries command output.
func newLogger(cfg config.LogConfig) *slog.Logger {
	return logging.NewWithWriter(cfg, os.Stderr)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
