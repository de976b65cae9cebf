// Command trailwatch serves the wildlife sighting API and its operational
// helpers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trailwatch.org/internal/config"
	"trailwatch.org/internal/obs"
	"trailwatch.org/internal/store"
)

var (
	version = "0.1.0"
	commit  = "dev"

	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "trailwatch",
	Short:         "Predator sighting tracking and trail alerting",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./.env if present)")
	rootCmd.AddCommand(serveCmd, migrateCmd, userCmd, tokenCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and installs the process logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := obs.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	obs.SetLogger(logger)
	return cfg, logger, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}
	return st, nil
}
