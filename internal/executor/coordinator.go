// Package executor submits risk-cleared opportunities to an execution
// backend and feeds the outcomes back into the risk governor.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sumitrevolt/flasharb/internal/domain"
	"github.com/sumitrevolt/flasharb/internal/metrics"
)

// ExecutionReceipt is what a backend reports after an attempt.
type ExecutionReceipt struct {
	Success     bool
	RealizedPnL float64
	GasUsed     float64
	ErrorClass  string
}

// ExecutionBackend is the external collaborator that performs the actual
// atomic swap. Production implementations live outside this engine; the
// in-repo PaperBackend is deterministic and used for tests and paper mode.
//
// minProfit is the caller's acceptance guard: a fill whose realized profit
// would fall below it must be rejected by the backend.
type ExecutionBackend interface {
	Execute(ctx context.Context, opp domain.ArbitrageOpportunity, minProfit float64) (ExecutionReceipt, error)
}

// Gate is the subset of the risk governor the coordinator depends on.
type Gate interface {
	MayExecute(ctx context.Context) bool
	RecordOutcome(ctx context.Context, success bool, realizedPnL float64)
}

// CoordinatorConfig holds execution parameters.
type CoordinatorConfig struct {
	ExecutionTimeout time.Duration
	MinProfitGuard   float64 // minimum acceptable realized profit
}

// Coordinator runs a single selected opportunity through the backend. A
// failed opportunity is never retried; the next cycle's ranking picks the
// next-best candidate.
type Coordinator struct {
	backend ExecutionBackend
	gate    Gate
	history domain.ExecutionStore
	opps    domain.OpportunityStore
	bus     domain.SignalBus
	metrics *metrics.Registry
	cfg     CoordinatorConfig
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator. The stores, bus, and metrics may be
// nil in detect-only mode and in tests.
func NewCoordinator(
	backend ExecutionBackend,
	gate Gate,
	history domain.ExecutionStore,
	opps domain.OpportunityStore,
	bus domain.SignalBus,
	m *metrics.Registry,
	cfg CoordinatorConfig,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		backend: backend,
		gate:    gate,
		history: history,
		opps:    opps,
		bus:     bus,
		metrics: m,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "coordinator")),
	}
}

// Execute submits the selected opportunity. It returns the opportunity with
// its final status, plus domain.ErrExecutionBlocked when the risk governor
// held the gate closed (a blocked outcome, not a failure: the consecutive
// failure counter is untouched).
func (c *Coordinator) Execute(ctx context.Context, opp domain.ArbitrageOpportunity) (domain.ArbitrageOpportunity, error) {
	log := c.logger.With(
		slog.String("opp_id", opp.ID),
		slog.String("pair", opp.Pair),
		slog.String("buy_venue", opp.BuyVenue),
		slog.String("sell_venue", opp.SellVenue),
	)

	if opp.Status != domain.OpportunitySelected {
		return opp, fmt.Errorf("executor: opportunity %s is %s, want selected: %w",
			opp.ID, opp.Status, domain.ErrInvalidTransition)
	}

	if !c.gate.MayExecute(ctx) {
		log.Warn("execution blocked by risk governor")
		c.record(ctx, opp, domain.ExecutionResult{
			ID:            uuid.New().String(),
			OpportunityID: opp.ID,
			Pair:          opp.Pair,
			Outcome:       domain.OutcomeBlocked,
			ErrorClass:    "circuit_breaker",
			ExecutedAt:    time.Now().UTC(),
		})
		return opp, domain.ErrExecutionBlocked
	}

	opp.Status = domain.OpportunityExecuting
	started := time.Now().UTC()

	execCtx, cancel := context.WithTimeout(ctx, c.cfg.ExecutionTimeout)
	defer cancel()

	receipt, err := c.backend.Execute(execCtx, opp, c.cfg.MinProfitGuard)
	elapsed := time.Since(started)

	res := domain.ExecutionResult{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Pair:          opp.Pair,
		RealizedPnL:   receipt.RealizedPnL,
		GasUsed:       receipt.GasUsed,
		Duration:      elapsed,
		ExecutedAt:    started,
	}

	switch {
	case err != nil:
		opp.Status = domain.OpportunityFailed
		res.Outcome = domain.OutcomeFailed
		res.RealizedPnL = 0
		res.ErrorClass = classify(err)
		c.gate.RecordOutcome(ctx, false, 0)
		log.Error("execution failed",
			slog.String("error", err.Error()),
			slog.String("class", res.ErrorClass),
			slog.Duration("duration", elapsed),
		)
	case !receipt.Success:
		opp.Status = domain.OpportunityFailed
		res.Outcome = domain.OutcomeFailed
		res.RealizedPnL = 0
		if res.ErrorClass = receipt.ErrorClass; res.ErrorClass == "" {
			res.ErrorClass = "rejected"
		}
		c.gate.RecordOutcome(ctx, false, 0)
		log.Warn("execution rejected by backend",
			slog.String("class", res.ErrorClass),
			slog.Duration("duration", elapsed),
		)
	default:
		opp.Status = domain.OpportunitySucceeded
		res.Outcome = domain.OutcomeSucceeded
		res.Success = true
		c.gate.RecordOutcome(ctx, true, receipt.RealizedPnL)
		log.Info("execution succeeded",
			slog.Float64("realized_pnl", receipt.RealizedPnL),
			slog.Float64("estimated_net", opp.NetProfit),
			slog.Duration("duration", elapsed),
		)
	}

	c.record(ctx, opp, res)

	if res.Outcome == domain.OutcomeFailed {
		return opp, fmt.Errorf("executor: %s: %w", res.ErrorClass, domain.ErrExecutionFailed)
	}
	return opp, nil
}

// record appends the result to the history log, archives the opportunity's
// terminal status, publishes the event, and bumps metrics. Persistence
// failures are logged, never escalated: no error class is fatal here.
func (c *Coordinator) record(ctx context.Context, opp domain.ArbitrageOpportunity, res domain.ExecutionResult) {
	if c.metrics != nil {
		c.metrics.Executions.WithLabelValues(string(res.Outcome)).Inc()
		if res.Success {
			c.metrics.RealizedProfit.Add(res.RealizedPnL)
		}
		if res.GasUsed > 0 {
			c.metrics.RealizedCosts.Add(res.GasUsed)
		}
	}

	if c.history != nil {
		if err := c.history.Append(ctx, res); err != nil {
			c.logger.Error("append execution result failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if c.opps != nil && opp.Status.Terminal() {
		if err := c.opps.UpdateStatus(ctx, opp.ID, opp.Status); err != nil && !errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn("archive opportunity status failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if c.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":        "execution",
			"opp_id":       opp.ID,
			"pair":         opp.Pair,
			"outcome":      res.Outcome,
			"realized_pnl": res.RealizedPnL,
			"gas_used":     res.GasUsed,
			"duration_ms":  res.Duration.Milliseconds(),
		})
		if err := c.bus.Publish(ctx, "executions", evt); err != nil {
			c.logger.Warn("publish execution event failed", slog.String("error", err.Error()))
		}
	}
}

// classify maps backend errors onto the error-class strings recorded in the
// execution history.
func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrProfitGuard):
		return "guard_violated"
	default:
		return "backend_error"
	}
}
