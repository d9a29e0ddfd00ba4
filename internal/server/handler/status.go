package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// RiskReader exposes the governor state needed by read-only handlers.
type RiskReader interface {
	State() domain.RiskState
}

// WorkerReader exposes the worker registry views the API needs.
type WorkerReader interface {
	List() []domain.WorkerInfo
	HealthyCount() int
}

// StatusHandler serves the engine status snapshot.
type StatusHandler struct {
	mode       string
	startedAt  time.Time
	risk       RiskReader
	workers    WorkerReader
	executions domain.ExecutionStore
	logger     *slog.Logger
}

// NewStatusHandler creates a StatusHandler. Workers and executions may be
// nil when the mode does not run them.
func NewStatusHandler(mode string, startedAt time.Time, risk RiskReader, workers WorkerReader, executions domain.ExecutionStore, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:       mode,
		startedAt:  startedAt,
		risk:       risk,
		workers:    workers,
		executions: executions,
		logger:     logger,
	}
}

// GetStatus returns mode, uptime, circuit state, worker health, and
// lifetime execution aggregates.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.risk != nil {
		state := h.risk.State()
		out["circuit_open"] = state.CircuitOpen
		out["daily_trades"] = state.DailyTrades
		out["daily_pnl"] = state.DailyPnL
	}

	if h.workers != nil {
		out["workers_total"] = len(h.workers.List())
		out["workers_healthy"] = h.workers.HealthyCount()
	}

	if h.executions != nil {
		agg, err := h.executions.Aggregates(r.Context())
		if err != nil {
			h.logger.Warn("load execution aggregates failed", slog.String("error", err.Error()))
		} else {
			out["total_trades"] = agg.TotalTrades
			out["succeeded"] = agg.Succeeded
			out["failed"] = agg.Failed
			out["success_rate"] = agg.SuccessRate()
			out["total_profit"] = agg.TotalProfit
			out["total_costs"] = agg.TotalCosts
		}
	}

	writeJSON(w, http.StatusOK, out)
}
