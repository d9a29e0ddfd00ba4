package quote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// StaticSource is a deterministic QuoteSource serving fixture quotes. It
// stands in for the external venue collaborators in tests and paper mode;
// production feeds implement QuoteSource and register alongside it.
type StaticSource struct {
	name string
	now  func() time.Time

	mu     sync.RWMutex
	quotes map[string]domain.VenueQuote // keyed by pair
}

// NewStaticSource creates a StaticSource named venue. The now function is
// injectable for tests; pass nil for time.Now.
func NewStaticSource(venue string, now func() time.Time) *StaticSource {
	if now == nil {
		now = time.Now
	}
	return &StaticSource{
		name:   venue,
		now:    now,
		quotes: make(map[string]domain.VenueQuote),
	}
}

// Name returns the venue name.
func (s *StaticSource) Name() string { return s.name }

// SetQuote installs or replaces the fixture for a pair. Venue and timestamp
// are filled in; the timestamp is the source clock at call time.
func (s *StaticSource) SetQuote(pair string, price, liquidity, feeRate float64) {
	s.SetQuoteChange(pair, price, liquidity, feeRate, 0)
}

// SetQuoteChange is SetQuote with an explicit 24h price change fraction.
func (s *StaticSource) SetQuoteChange(pair string, price, liquidity, feeRate, change24h float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[pair] = domain.VenueQuote{
		Venue:     s.name,
		Pair:      pair,
		Price:     price,
		Liquidity: liquidity,
		FeeRate:   feeRate,
		Change24h: change24h,
		Timestamp: s.now().UTC(),
	}
}

// Unset removes the fixture for a pair, making the venue unavailable for it.
func (s *StaticSource) Unset(pair string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.quotes, pair)
}

// GetQuote returns the fixture with a fresh timestamp, or ErrQuoteUnavailable
// when no fixture exists for the pair.
func (s *StaticSource) GetQuote(ctx context.Context, pair string) (domain.VenueQuote, error) {
	if err := ctx.Err(); err != nil {
		return domain.VenueQuote{}, err
	}

	s.mu.RLock()
	q, ok := s.quotes[pair]
	s.mu.RUnlock()
	if !ok {
		return domain.VenueQuote{}, fmt.Errorf("quote: %s has no %s: %w", s.name, pair, domain.ErrQuoteUnavailable)
	}
	q.Timestamp = s.now().UTC()
	return q, nil
}

var _ domain.QuoteSource = (*StaticSource)(nil)
