package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

type fakeHistory struct {
	quotes []domain.VenueQuote
	err    error

	pair, venue string
	limit       int
}

func (f *fakeHistory) History(_ context.Context, pair, venue string, limit int) ([]domain.VenueQuote, error) {
	f.pair, f.venue, f.limit = pair, venue, limit
	return f.quotes, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQuoteHandler_GetQuoteHistory(t *testing.T) {
	t.Run("returns recent quotes", func(t *testing.T) {
		hist := &fakeHistory{quotes: []domain.VenueQuote{
			{Venue: "uniswap_v3", Pair: "WETH/USDC", Price: 3000, Timestamp: time.Now().UTC()},
			{Venue: "uniswap_v3", Pair: "WETH/USDC", Price: 2998, Timestamp: time.Now().UTC()},
		}}
		h := NewQuoteHandler(hist, discardLogger())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/quotes/history?pair=WETH/USDC&venue=uniswap_v3&limit=10", nil)
		h.GetQuoteHistory(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":2`)
		assert.Equal(t, "WETH/USDC", hist.pair)
		assert.Equal(t, "uniswap_v3", hist.venue)
		assert.Equal(t, 10, hist.limit)
	})

	t.Run("rejects a missing pair or venue", func(t *testing.T) {
		h := NewQuoteHandler(&fakeHistory{}, discardLogger())

		rec := httptest.NewRecorder()
		h.GetQuoteHistory(rec, httptest.NewRequest(http.MethodGet, "/api/quotes/history?venue=uniswap_v3", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		h.GetQuoteHistory(rec, httptest.NewRequest(http.MethodGet, "/api/quotes/history?pair=WETH/USDC", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("surfaces cache failures as 500", func(t *testing.T) {
		h := NewQuoteHandler(&fakeHistory{err: errors.New("redis down")}, discardLogger())

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/quotes/history?pair=WETH/USDC&venue=uniswap_v3", nil)
		h.GetQuoteHistory(rec, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
