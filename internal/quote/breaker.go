// Package quote polls venue quote sources and maintains the quote cache.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// BreakerSource wraps a QuoteSource in a per-venue circuit breaker so a
// flapping venue is skipped immediately instead of costing the full call
// timeout every polling cycle. Distinct from the risk governor, which gates
// execution; this one only protects the quote path.
type BreakerSource struct {
	inner domain.QuoteSource
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerSource wraps inner. The breaker opens after 3 consecutive
// failures or a >20% failure rate over a 60s window and probes again after
// 30s.
func NewBreakerSource(inner domain.QuoteSource) *BreakerSource {
	settings := gobreaker.Settings{
		Name:     "quotes:" + inner.Name(),
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.2
		},
	}
	return &BreakerSource{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name returns the wrapped venue's name.
func (b *BreakerSource) Name() string { return b.inner.Name() }

// GetQuote delegates through the breaker. An open breaker surfaces as
// ErrQuoteUnavailable so callers treat it exactly like a venue timeout.
func (b *BreakerSource) GetQuote(ctx context.Context, pair string) (domain.VenueQuote, error) {
	v, err := b.cb.Execute(func() (any, error) {
		return b.inner.GetQuote(ctx, pair)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.VenueQuote{}, fmt.Errorf("quote: venue %s breaker open: %w", b.inner.Name(), domain.ErrQuoteUnavailable)
		}
		return domain.VenueQuote{}, err
	}
	return v.(domain.VenueQuote), nil
}

var _ domain.QuoteSource = (*BreakerSource)(nil)
