package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sumitrevolt/flasharb/internal/dispatch"
	"github.com/sumitrevolt/flasharb/internal/quote"
	"github.com/sumitrevolt/flasharb/internal/risk"
)

// OrchestratorConfig holds the loop intervals not owned by a component.
type OrchestratorConfig struct {
	DailyResetCheck time.Duration
}

// Orchestrator owns the engine's periodic loops: quote refresh, detection,
// the risk governor's daily-reset check, task assignment, worker health, and
// cleanup. Each runs as its own errgroup goroutine so every loop has an
// explicit start/stop boundary tied to process lifecycle.
type Orchestrator struct {
	cfg        OrchestratorConfig
	poller     *quote.Poller
	detector   *Detector
	governor   *risk.Governor
	dispatcher *dispatch.Dispatcher
	archive    func(context.Context, time.Time) error // optional cold-storage hook
	logger     *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Dispatcher and archive may be nil
// when the task layer is disabled.
func NewOrchestrator(
	cfg OrchestratorConfig,
	poller *quote.Poller,
	detector *Detector,
	governor *risk.Governor,
	dispatcher *dispatch.Dispatcher,
	archive func(context.Context, time.Time) error,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		poller:     poller,
		detector:   detector,
		governor:   governor,
		dispatcher: dispatcher,
		archive:    archive,
		logger:     logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every loop and blocks until ctx cancels or a loop fails with a
// non-context error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator starting")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.poller.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("quote poller: %w", err)
	})

	g.Go(func() error {
		err := o.detector.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("detector: %w", err)
	})

	g.Go(func() error {
		err := o.governor.RunDailyReset(ctx, o.cfg.DailyResetCheck)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("daily reset: %w", err)
	})

	if o.dispatcher != nil {
		g.Go(func() error {
			err := o.dispatcher.RunAssignment(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("assignment: %w", err)
		})
		g.Go(func() error {
			err := o.dispatcher.RunHealthSweep(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("health sweep: %w", err)
		})
		g.Go(func() error {
			err := o.dispatcher.RunCleanup(ctx, o.archive)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("cleanup: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("orchestrator stopped cleanly")
	return nil
}
