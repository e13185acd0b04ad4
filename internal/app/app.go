// Package app owns the lifecycle of the margin terminal backend: it wires
// the infrastructure, picks the operating mode and tears everything down.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/alanyoungcy/marginterm/internal/config"
)

// App is the root application object.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// modeFunc runs one operating mode until ctx is cancelled or the mode is done.
type modeFunc func(ctx context.Context, deps *Dependencies) error

func (a *App) mode() (modeFunc, error) {
	switch strings.ToLower(a.cfg.Mode) {
	case config.ModeTerminal:
		return a.TerminalMode, nil
	case config.ModeMonitor:
		return a.MonitorMode, nil
	case config.ModeArchive:
		return a.ArchiveMode, nil
	}
	return nil, fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
}

// Run wires the dependencies and blocks in the configured mode. Resources
// are released by Close, not by Run.
func (a *App) Run(ctx context.Context) error {
	run, err := a.mode()
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "app: starting",
		slog.String("mode", a.cfg.Mode),
		slog.String("cluster", a.cfg.Cluster.Name),
	)
	a.logger.DebugContext(ctx, "app: effective config", slog.Any("config", config.RedactedConfig(a.cfg)))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.logger.InfoContext(ctx, "app: backends ready",
		slog.Any("backends", slices.Sorted(maps.Keys(deps.Checks))),
	)
	return run(ctx, deps)
}

// Close releases resources in reverse order. Later calls do nothing.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("app: shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
