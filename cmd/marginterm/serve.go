package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/marginterm/internal/app"
	"github.com/alanyoungcy/marginterm/internal/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the backend in the configured mode",
		Long: `Run the backend in the mode named by the configuration:

  terminal  sign with the configured keypair and serve the full API
  monitor   watch a public key read-only
  archive   move settled action history to object storage and exit`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	logger := newLogger(slog.LevelInfo)
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", configPath),
			slog.String("error", err.Error()),
		)
		return err
	}

	// Set log level from config.
	logger = newLogger(parseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return err
	}

	logger.Info("marginterm starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", configPath),
		slog.String("version", version),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if !errors.Is(err, context.Canceled) {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			return fmt.Errorf("run: %w", err)
		}
		logger.Info("application shut down gracefully")
	}

	logger.Info("marginterm stopped")
	return nil
}
