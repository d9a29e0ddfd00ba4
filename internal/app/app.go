// Package app wires configuration, backing services, and mode runtimes into
// a runnable engine process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sumitrevolt/flasharb/internal/config"
)

// App is the engine process. Construct with New, then Run until the context
// cancels.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time
}

// New creates an App from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Run wires dependencies and executes the configured mode. It blocks until
// ctx cancels or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("engine starting",
		slog.String("mode", a.cfg.Mode),
		slog.Int("pairs", len(a.cfg.Engine.Pairs)),
		slog.Int("venues", len(a.cfg.Venues)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	switch a.cfg.Mode {
	case config.ModeDetect:
		return a.runDetect(ctx, deps)
	case config.ModeTrade:
		return a.runTrade(ctx, deps)
	case config.ModeServer:
		return a.runServer(ctx, deps)
	case config.ModeFull:
		return a.runFull(ctx, deps)
	default:
		return fmt.Errorf("app: unknown mode %q", a.cfg.Mode)
	}
}
