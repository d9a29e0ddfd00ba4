// Package risk implements the circuit-breaker state machine that gates
// execution. The governor is the single writer of the shared risk state;
// everything else reads snapshots.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sumitrevolt/flasharb/internal/domain"
	"github.com/sumitrevolt/flasharb/internal/metrics"
	"github.com/sumitrevolt/flasharb/internal/notify"
)

// GovernorConfig holds the risk limits.
type GovernorConfig struct {
	MaxDailyLoss           float64
	MaxDailyTrades         int
	MaxConsecutiveFailures int
	PauseDuration          time.Duration
}

// Governor is the two-state (active / paused) risk machine. A pause trips on
// sustained losses or consecutive failures and clears itself once the pause
// deadline passes; daily counters reset once per calendar day independently
// of pause transitions.
type Governor struct {
	cfg      GovernorConfig
	store    domain.RiskStateStore
	metrics  *metrics.Registry
	notifier *notify.Notifier
	now      func() time.Time
	logger   *slog.Logger

	mu    sync.Mutex
	state domain.RiskState
}

// NewGovernor creates a Governor with a zero state. Call Restore before the
// first cycle so persisted daily counters survive a restart. The now
// function is injectable for tests; pass nil for time.Now. The store and
// notifier may be nil (tests, detect-only mode).
func NewGovernor(cfg GovernorConfig, store domain.RiskStateStore, m *metrics.Registry, notifier *notify.Notifier, now func() time.Time, logger *slog.Logger) *Governor {
	if now == nil {
		now = time.Now
	}
	return &Governor{
		cfg:      cfg,
		store:    store,
		metrics:  m,
		notifier: notifier,
		now:      now,
		logger:   logger.With(slog.String("component", "risk_governor")),
		state:    domain.RiskState{LastReset: now().UTC()},
	}
}

// Restore loads persisted state from the store. A missing row is not an
// error: the governor starts fresh.
func (g *Governor) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	state, err := g.store.Load(ctx)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil
		}
		return fmt.Errorf("risk: load state: %w", err)
	}

	g.mu.Lock()
	g.state = state
	g.mu.Unlock()

	g.logger.Info("risk state restored",
		slog.Bool("circuit_open", state.CircuitOpen),
		slog.Int("daily_trades", state.DailyTrades),
		slog.Float64("daily_pnl", state.DailyPnL),
		slog.Int("consecutive_failures", state.ConsecutiveFailures),
	)
	return nil
}

// State returns a snapshot of the current risk state.
func (g *Governor) State() domain.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// MayExecute reports whether the coordinator may submit a trade right now.
// It performs the automatic PAUSED -> ACTIVE transition when the pause has
// elapsed (resetting the consecutive-failure counter at that moment, not at
// trip time) and applies the hard daily-trade gate, which blocks execution
// but never detection.
func (g *Governor) MayExecute(ctx context.Context) bool {
	now := g.now().UTC()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetDailyLocked(ctx, now)

	if g.state.CircuitOpen {
		if now.Before(g.state.PauseUntil) {
			return false
		}
		g.state.CircuitOpen = false
		g.state.PauseUntil = time.Time{}
		g.state.PauseReason = ""
		g.state.ConsecutiveFailures = 0
		g.persistLocked(ctx)
		if g.metrics != nil {
			g.metrics.SetCircuitOpen(false)
		}
		g.logger.Info("circuit breaker closed, execution resumed")
		g.notifyLocked(ctx, "risk_resumed", "Circuit breaker closed", "Pause window elapsed, execution resumed.")
	}

	if g.cfg.MaxDailyTrades > 0 && g.state.DailyTrades >= g.cfg.MaxDailyTrades {
		return false
	}
	return true
}

// RecordOutcome feeds one execution attempt back into the state. Success
// zeroes the consecutive-failure counter; failure increments it. Both update
// the daily trade count and PnL. Tripping the breaker is a side effect here.
func (g *Governor) RecordOutcome(ctx context.Context, success bool, realizedPnL float64) {
	now := g.now().UTC()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.resetDailyLocked(ctx, now)

	g.state.DailyTrades++
	g.state.DailyPnL += realizedPnL
	if success {
		g.state.ConsecutiveFailures = 0
	} else {
		g.state.ConsecutiveFailures++
	}
	g.state.UpdatedAt = now

	switch {
	case g.cfg.MaxConsecutiveFailures > 0 && g.state.ConsecutiveFailures >= g.cfg.MaxConsecutiveFailures:
		g.tripLocked(ctx, now, fmt.Sprintf("%d consecutive failures", g.state.ConsecutiveFailures))
	case g.cfg.MaxDailyLoss > 0 && g.state.DailyPnL <= -g.cfg.MaxDailyLoss:
		g.tripLocked(ctx, now, fmt.Sprintf("daily loss %.2f exceeds limit %.2f", -g.state.DailyPnL, g.cfg.MaxDailyLoss))
	}

	g.persistLocked(ctx)
}

// Pause trips the breaker on an explicit external request.
func (g *Governor) Pause(ctx context.Context, reason string) {
	now := g.now().UTC()

	g.mu.Lock()
	defer g.mu.Unlock()

	if reason == "" {
		reason = "operator pause request"
	}
	g.tripLocked(ctx, now, reason)
	g.persistLocked(ctx)
}

// RunDailyReset checks once per interval whether the calendar date changed
// and resets the daily counters when it has. It blocks until ctx cancels.
func (g *Governor) RunDailyReset(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			g.mu.Lock()
			g.resetDailyLocked(ctx, g.now().UTC())
			g.mu.Unlock()
		}
	}
}

// tripLocked moves ACTIVE -> PAUSED. The consecutive-failure counter is
// intentionally not reset here; it clears when the pause elapses.
func (g *Governor) tripLocked(ctx context.Context, now time.Time, reason string) {
	if g.state.CircuitOpen {
		return
	}
	g.state.CircuitOpen = true
	g.state.PauseUntil = now.Add(g.cfg.PauseDuration)
	g.state.PauseReason = reason
	g.state.UpdatedAt = now

	if g.metrics != nil {
		g.metrics.SetCircuitOpen(true)
		g.metrics.CircuitTrips.Inc()
	}
	g.logger.Warn("circuit breaker tripped",
		slog.String("reason", reason),
		slog.Time("pause_until", g.state.PauseUntil),
	)
	g.notifyLocked(ctx, "risk_paused", "Circuit breaker tripped",
		fmt.Sprintf("Reason: %s. Execution paused until %s.", reason, g.state.PauseUntil.Format(time.RFC3339)))
}

// resetDailyLocked zeroes the daily counters when the UTC date has changed.
// The pause is cleared only if it already elapsed; a pause crossing midnight
// keeps holding.
func (g *Governor) resetDailyLocked(ctx context.Context, now time.Time) {
	if g.state.SameResetDay(now) {
		return
	}
	g.logger.Info("daily risk counters reset",
		slog.Int("trades", g.state.DailyTrades),
		slog.Float64("pnl", g.state.DailyPnL),
	)
	g.state.DailyTrades = 0
	g.state.DailyPnL = 0
	g.state.LastReset = now
	if g.state.CircuitOpen && !now.Before(g.state.PauseUntil) {
		g.state.CircuitOpen = false
		g.state.PauseUntil = time.Time{}
		g.state.PauseReason = ""
		g.state.ConsecutiveFailures = 0
		if g.metrics != nil {
			g.metrics.SetCircuitOpen(false)
		}
	}
	g.state.UpdatedAt = now
	g.persistLocked(ctx)
}

func (g *Governor) persistLocked(ctx context.Context) {
	if g.store == nil {
		return
	}
	if err := g.store.Save(ctx, g.state); err != nil {
		g.logger.Error("persist risk state failed", slog.String("error", err.Error()))
	}
}

func (g *Governor) notifyLocked(ctx context.Context, event, title, message string) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Notify(ctx, event, title, message); err != nil {
		g.logger.Warn("risk notification failed", slog.String("error", err.Error()))
	}
}
