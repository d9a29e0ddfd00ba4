package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// HistoryReader is the quote-cache surface the quote API needs.
type HistoryReader interface {
	History(ctx context.Context, pair, venue string, limit int) ([]domain.VenueQuote, error)
}

// QuoteHandler serves the rolling per-venue quote history.
type QuoteHandler struct {
	history HistoryReader
	logger  *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(history HistoryReader, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{history: history, logger: logger}
}

// GetQuoteHistory returns recent quotes for one (pair, venue), newest first.
// Pairs contain a slash, so both identifiers travel as query parameters.
// GET /api/quotes/history?pair=WETH/USDC&venue=uniswap_v3&limit=50
func (h *QuoteHandler) GetQuoteHistory(w http.ResponseWriter, r *http.Request) {
	pair := r.URL.Query().Get("pair")
	venue := r.URL.Query().Get("venue")
	if pair == "" || venue == "" {
		writeError(w, http.StatusBadRequest, "pair and venue are required")
		return
	}

	quotes, err := h.history.History(r.Context(), pair, venue, parseListOpts(r).Limit)
	if err != nil {
		h.logger.Error("quote history failed",
			slog.String("pair", pair),
			slog.String("venue", venue),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load quote history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes, "count": len(quotes)})
}
