package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// BookReader exposes the detector's live candidate book.
type BookReader interface {
	Snapshot() []domain.ArbitrageOpportunity
}

// OpportunityHandler serves live and archived opportunities.
type OpportunityHandler struct {
	book   BookReader
	store  domain.OpportunityStore
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler. Book may be nil in
// server-only mode; store may be nil when persistence is disabled.
func NewOpportunityHandler(book BookReader, store domain.OpportunityStore, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{book: book, store: store, logger: logger}
}

// ListOpportunities returns the live candidate book by default, or archived
// rows with ?source=history.
// GET /api/opportunities
func (h *OpportunityHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") == "history" {
		if h.store == nil {
			writeError(w, http.StatusNotImplemented, "opportunity history is not enabled")
			return
		}
		opts := parseListOpts(r)
		opps, err := h.store.ListRecent(r.Context(), opts.Limit)
		if err != nil {
			h.logger.Error("list opportunity history failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list opportunities")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps, "count": len(opps)})
		return
	}

	var opps []domain.ArbitrageOpportunity
	if h.book != nil {
		opps = h.book.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps, "count": len(opps)})
}

// GetOpportunity returns one archived opportunity by id.
// GET /api/opportunities/{id}
func (h *OpportunityHandler) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "opportunity history is not enabled")
		return
	}

	id := r.PathValue("id")
	opp, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "opportunity not found")
			return
		}
		h.logger.Error("get opportunity failed",
			slog.String("opp_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load opportunity")
		return
	}
	writeJSON(w, http.StatusOK, opp)
}
