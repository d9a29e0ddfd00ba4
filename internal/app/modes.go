package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sumitrevolt/flasharb/internal/crypto"
	"github.com/sumitrevolt/flasharb/internal/dispatch"
	"github.com/sumitrevolt/flasharb/internal/domain"
	"github.com/sumitrevolt/flasharb/internal/engine"
	"github.com/sumitrevolt/flasharb/internal/executor"
	"github.com/sumitrevolt/flasharb/internal/pipeline"
	"github.com/sumitrevolt/flasharb/internal/quote"
	"github.com/sumitrevolt/flasharb/internal/risk"
	"github.com/sumitrevolt/flasharb/internal/server"
	"github.com/sumitrevolt/flasharb/internal/server/handler"
	"github.com/sumitrevolt/flasharb/internal/server/ws"
)

// runtime holds the components a mode assembled. Fields not built for the
// current mode stay nil; the server handlers tolerate that.
type runtime struct {
	poller     *quote.Poller
	detector   *pipeline.Detector
	governor   *risk.Governor
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
}

// runDetect polls quotes and records opportunities without executing.
func (a *App) runDetect(ctx context.Context, deps *Dependencies) error {
	rt, err := a.buildPipeline(ctx, deps, false, false)
	if err != nil {
		return err
	}
	orch := pipeline.NewOrchestrator(
		pipeline.OrchestratorConfig{DailyResetCheck: a.cfg.Risk.DailyResetCheck.Duration},
		rt.poller, rt.detector, rt.governor, nil, nil, a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })
	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps, rt)
	}
	return g.Wait()
}

// runTrade runs the full detect-and-execute pipeline with the task layer but
// no operator API.
func (a *App) runTrade(ctx context.Context, deps *Dependencies) error {
	rt, err := a.buildPipeline(ctx, deps, true, true)
	if err != nil {
		return err
	}
	orch := pipeline.NewOrchestrator(
		pipeline.OrchestratorConfig{DailyResetCheck: a.cfg.Risk.DailyResetCheck.Duration},
		rt.poller, rt.detector, rt.governor, rt.dispatcher, a.archiveHook(deps), a.logger,
	)
	return orch.Run(ctx)
}

// runServer serves the operator API and the task layer without the trading
// pipeline. Workers still heartbeat and receive tasks submitted over the API.
func (a *App) runServer(ctx context.Context, deps *Dependencies) error {
	governor, err := a.buildGovernor(ctx, deps)
	if err != nil {
		return err
	}
	rt := &runtime{governor: governor}
	rt.registry, rt.dispatcher = a.buildDispatch(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := governor.RunDailyReset(ctx, a.cfg.Risk.DailyResetCheck.Duration)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := rt.dispatcher.RunAssignment(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := rt.dispatcher.RunHealthSweep(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := rt.dispatcher.RunCleanup(ctx, a.archiveHook(deps))
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	a.startServer(ctx, g, deps, rt)
	return g.Wait()
}

// runFull runs everything: pipeline, task layer, and operator API.
func (a *App) runFull(ctx context.Context, deps *Dependencies) error {
	rt, err := a.buildPipeline(ctx, deps, true, true)
	if err != nil {
		return err
	}
	orch := pipeline.NewOrchestrator(
		pipeline.OrchestratorConfig{DailyResetCheck: a.cfg.Risk.DailyResetCheck.Duration},
		rt.poller, rt.detector, rt.governor, rt.dispatcher, a.archiveHook(deps), a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })
	a.startServer(ctx, g, deps, rt)
	return g.Wait()
}

// buildPipeline assembles the quote, scoring, and execution components.
func (a *App) buildPipeline(ctx context.Context, deps *Dependencies, execute, withDispatch bool) (*runtime, error) {
	cfg := a.cfg

	governor, err := a.buildGovernor(ctx, deps)
	if err != nil {
		return nil, err
	}

	sources := make([]domain.QuoteSource, 0, len(cfg.Venues))
	venueNames := make([]string, 0, len(cfg.Venues))
	gasCosts := make(map[string]float64, len(cfg.Venues))
	for _, v := range cfg.Venues {
		src := quote.NewStaticSource(v.Name, nil)
		for _, seed := range v.Seeds {
			src.SetQuoteChange(seed.Pair, seed.Price, seed.Liquidity, v.FeeRate, seed.Change24h)
		}
		sources = append(sources, quote.NewBreakerSource(src))
		venueNames = append(venueNames, v.Name)
		if v.GasCost > 0 {
			gasCosts[v.Name] = v.GasCost
		}
	}

	poller := quote.NewPoller(quote.PollerConfig{
		Pairs:        cfg.Engine.Pairs,
		PollInterval: cfg.Quotes.PollInterval.Duration,
		CallTimeout:  cfg.Quotes.CallTimeout.Duration,
	}, sources, deps.QuoteCache, deps.Metrics, a.logger)

	calc := engine.NewCalculator(engine.CalculatorConfig{
		MaxPositionSize:    cfg.Engine.MaxPositionSize,
		LiquidityFraction:  cfg.Engine.LiquidityFraction,
		ImpactCap:          cfg.Engine.MaxPriceImpact,
		FlashLoanFeeRate:   cfg.Engine.FlashLoanFeeRate,
		GasCostEstimates:   gasCosts,
		DefaultGasCost:     cfg.Engine.DefaultGasCost,
		ReferenceLiquidity: cfg.Engine.ReferenceLiquidity,
		SpreadReference:    cfg.Engine.SpreadReference,
		ExtremeSpread:      cfg.Engine.ExtremeSpread,
		FreshnessHorizon:   cfg.Engine.FreshnessHorizon.Duration,
		Confidence: engine.ConfidenceWeights{
			Spread:    0.30,
			Liquidity: 0.30,
			Freshness: 0.25,
			Baseline:  0.15,
		},
		Risk: engine.RiskWeights{
			Impact:          0.35,
			LiquidityTier:   0.25,
			SpreadExtremity: 0.20,
			GasToProfit:     0.20,
		},
	}, nil, a.logger)

	ranker := engine.NewRanker(engine.RankerConfig{
		MinProfitThreshold: cfg.Engine.MinProfitThreshold,
		MaxRiskThreshold:   cfg.Engine.MaxRiskThreshold,
		MinConfidence:      cfg.Engine.MinConfidence,
		MaxPositionSize:    cfg.Engine.MaxPositionSize,
	}, a.logger)

	var coordinator *executor.Coordinator
	if execute {
		backend := executor.NewPaperBackend(executor.PaperConfig{
			SlippageHaircut: cfg.Execution.SlippageHaircut,
			GasUsedFraction: cfg.Execution.GasUsedFraction,
		})
		coordinator = executor.NewCoordinator(
			backend, governor, deps.Executions, deps.Opportunities, deps.SignalBus,
			deps.Metrics,
			executor.CoordinatorConfig{
				ExecutionTimeout: cfg.Execution.ExecutionTimeout.Duration,
				MinProfitGuard:   cfg.Execution.MinProfitGuard,
			}, a.logger)
	}

	detector := pipeline.NewDetector(pipeline.DetectorConfig{
		Pairs:          cfg.Engine.Pairs,
		Venues:         venueNames,
		CycleInterval:  cfg.Engine.CycleInterval.Duration,
		OpportunityTTL: cfg.Engine.OpportunityTTL.Duration,
		Execute:        execute,
	}, deps.QuoteCache, calc, ranker, coordinator, deps.Opportunities, deps.SignalBus, deps.Metrics, nil, a.logger)

	rt := &runtime{
		poller:   poller,
		detector: detector,
		governor: governor,
	}
	if withDispatch {
		rt.registry, rt.dispatcher = a.buildDispatch(deps)
	}
	return rt, nil
}

func (a *App) buildGovernor(ctx context.Context, deps *Dependencies) (*risk.Governor, error) {
	governor := risk.NewGovernor(risk.GovernorConfig{
		MaxDailyLoss:           a.cfg.Risk.MaxDailyLoss,
		MaxDailyTrades:         a.cfg.Risk.MaxDailyTrades,
		MaxConsecutiveFailures: a.cfg.Risk.MaxConsecutiveFailures,
		PauseDuration:          a.cfg.Risk.PauseDuration.Duration,
	}, deps.RiskStates, deps.Metrics, deps.Notifier, nil, a.logger)
	if err := governor.Restore(ctx); err != nil {
		return nil, fmt.Errorf("app: restore risk state: %w", err)
	}
	return governor, nil
}

func (a *App) buildDispatch(deps *Dependencies) (*dispatch.Registry, *dispatch.Dispatcher) {
	registry := dispatch.NewRegistry(a.cfg.Dispatch.HeartbeatTimeout.Duration, nil)
	dispatcher := dispatch.NewDispatcher(dispatch.DispatcherConfig{
		AssignInterval:   a.cfg.Dispatch.AssignInterval.Duration,
		HealthInterval:   a.cfg.Dispatch.HealthInterval.Duration,
		CleanupInterval:  a.cfg.Dispatch.CleanupInterval.Duration,
		TaskRetention:    a.cfg.Dispatch.TaskRetention.Duration,
		StarvationAlerts: a.cfg.Dispatch.StarvationAlerts,
	}, dispatch.NewQueue(), registry, deps.Tasks, deps.SignalBus, deps.Metrics, deps.Notifier, a.logger)
	return registry, dispatcher
}

// archiveHook returns the cold-storage callback used by the cleanup loop, or
// nil when S3 is disabled. Executions are purged only after both archives
// succeed; task purging stays with the cleanup loop itself.
func (a *App) archiveHook(deps *Dependencies) func(context.Context, time.Time) error {
	if deps.Archiver == nil {
		return nil
	}
	return func(ctx context.Context, cutoff time.Time) error {
		if _, err := deps.Archiver.ArchiveTasks(ctx, cutoff); err != nil {
			return err
		}
		if _, err := deps.Archiver.ArchiveExecutions(ctx, cutoff); err != nil {
			return err
		}
		_, err := deps.Executions.DeleteBefore(ctx, cutoff)
		return err
	}
}

// bookReader converts an optional detector into the handler interface. A
// typed-nil *pipeline.Detector must become a nil interface here, otherwise
// the handler's nil check passes and Snapshot hits a nil receiver.
func bookReader(d *pipeline.Detector) handler.BookReader {
	if d == nil {
		return nil
	}
	return d
}

// startServer builds the operator API from whatever the runtime has and runs
// it on the group, shutting down when the group context cancels.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, rt *runtime) {
	checks := map[string]handler.Pinger{
		"postgres": deps.Postgres,
		"redis":    deps.Redis,
	}

	var auth *crypto.HMACAuth
	if a.cfg.Dispatch.WorkerSecret != "" {
		auth = &crypto.HMACAuth{Secret: a.cfg.Dispatch.WorkerSecret}
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(checks, a.logger),
		Opportunities: handler.NewOpportunityHandler(bookReader(rt.detector), deps.Opportunities, a.logger),
		Executions:    handler.NewExecutionHandler(deps.Executions, a.logger),
		Quotes:        handler.NewQuoteHandler(deps.QuoteCache, a.logger),
		Risk:          handler.NewRiskHandler(rt.governor, a.logger),
	}
	if rt.registry != nil {
		handlers.Status = handler.NewStatusHandler(a.cfg.Mode, a.startedAt, rt.governor, rt.registry, deps.Executions, a.logger)
		handlers.Workers = handler.NewWorkerHandler(rt.registry, auth, a.logger)
	} else {
		handlers.Status = handler.NewStatusHandler(a.cfg.Mode, a.startedAt, rt.governor, nil, deps.Executions, a.logger)
	}
	if rt.dispatcher != nil {
		handlers.Tasks = handler.NewTaskHandler(rt.dispatcher, deps.Tasks, deps.SignalBus, a.logger)
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: a.startedAt})
	srv := server.NewServer(server.Config{
		Port:                a.cfg.Server.Port,
		CORSOrigins:         a.cfg.Server.CORSOrigins,
		APIKey:              a.cfg.Server.APIKey,
		HeartbeatRateLimit:  a.cfg.Server.HeartbeatRateLimit,
		HeartbeatRateWindow: a.cfg.Server.HeartbeatRateWindow.Duration,
	}, handlers, hub, deps.Metrics, deps.RateLimiter, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := srv.Start()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}
