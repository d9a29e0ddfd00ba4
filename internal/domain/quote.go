package domain

import (
	"context"
	"time"
)

// VenueQuote is a single venue's view of one trading pair. Quotes are
// ephemeral: each polling cycle replaces the previous one, and only a short
// rolling history is retained for freshness scoring.
type VenueQuote struct {
	Venue     string
	Pair      string
	Price     float64
	Liquidity float64 // depth available at this price, in quote units
	FeeRate   float64 // taker fee as a fraction, e.g. 0.003
	Change24h float64 // 24h price change as a fraction
	Timestamp time.Time
}

// Age returns how stale the quote is relative to now.
func (q VenueQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.Timestamp)
}

// QuoteSource is the external per-venue price feed. Implementations are
// collaborators outside this engine; StaticSource is the deterministic
// in-repo implementation used for tests and paper trading.
//
// GetQuote returns ErrQuoteUnavailable (possibly wrapped) when the venue
// cannot serve the pair this cycle. Callers bound each call with a context
// timeout.
type QuoteSource interface {
	// Name identifies the venue this source quotes for.
	Name() string
	GetQuote(ctx context.Context, pair string) (VenueQuote, error)
}
