package handler

import (
	"log/slog"
	"net/http"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// ExecutionHandler serves the execution-history log.
type ExecutionHandler struct {
	store  domain.ExecutionStore
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler.
func NewExecutionHandler(store domain.ExecutionStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logger}
}

// ListExecutions returns recent execution results, newest first.
// GET /api/executions
func (h *ExecutionHandler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	results, err := h.store.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.Error("list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": results, "count": len(results)})
}

// GetAggregates returns lifetime execution aggregates.
// GET /api/executions/aggregates
func (h *ExecutionHandler) GetAggregates(w http.ResponseWriter, r *http.Request) {
	agg, err := h.store.Aggregates(r.Context())
	if err != nil {
		h.logger.Error("load execution aggregates failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load aggregates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_trades": agg.TotalTrades,
		"succeeded":    agg.Succeeded,
		"failed":       agg.Failed,
		"success_rate": agg.SuccessRate(),
		"total_profit": agg.TotalProfit,
		"total_costs":  agg.TotalCosts,
	})
}
