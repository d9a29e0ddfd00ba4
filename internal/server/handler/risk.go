package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// RiskController extends the read-only view with the operator pause control.
type RiskController interface {
	RiskReader
	Pause(ctx context.Context, reason string)
}

// RiskHandler serves circuit-breaker state and the manual pause control.
type RiskHandler struct {
	governor RiskController
	logger   *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(governor RiskController, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{governor: governor, logger: logger}
}

// GetRiskState returns the current circuit-breaker and daily-counter state.
// GET /api/risk
func (h *RiskHandler) GetRiskState(w http.ResponseWriter, r *http.Request) {
	state := h.governor.State()

	out := map[string]any{
		"circuit_open":         state.CircuitOpen,
		"consecutive_failures": state.ConsecutiveFailures,
		"daily_trades":         state.DailyTrades,
		"daily_pnl":            state.DailyPnL,
	}
	if state.CircuitOpen {
		out["pause_reason"] = state.PauseReason
		if !state.PauseUntil.IsZero() {
			out["pause_until"] = state.PauseUntil.UTC()
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// PauseRisk trips the circuit breaker on operator request.
// POST /api/risk/pause
func (h *RiskHandler) PauseRisk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "operator pause"
	}

	h.governor.Pause(r.Context(), reason)
	h.logger.Info("risk paused by operator", slog.String("reason", reason))

	writeJSON(w, http.StatusOK, map[string]any{
		"circuit_open": true,
		"pause_reason": reason,
	})
}
