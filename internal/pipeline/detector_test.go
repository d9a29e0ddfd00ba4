package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
	"github.com/sumitrevolt/flasharb/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeQuoteCache serves fixed quotes per pair.
type fakeQuoteCache struct {
	domain.QuoteCache
	mu     sync.Mutex
	quotes map[string][]domain.VenueQuote
}

func (f *fakeQuoteCache) set(pair string, quotes ...domain.VenueQuote) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quotes == nil {
		f.quotes = make(map[string][]domain.VenueQuote)
	}
	f.quotes[pair] = quotes
}

func (f *fakeQuoteCache) GetPairQuotes(_ context.Context, pair string, _ []string) ([]domain.VenueQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quotes[pair], nil
}

// fakeOppStore records archived opportunities.
type fakeOppStore struct {
	domain.OpportunityStore
	mu       sync.Mutex
	inserted []domain.ArbitrageOpportunity
}

func (f *fakeOppStore) Insert(_ context.Context, opp domain.ArbitrageOpportunity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, opp)
	return nil
}

func testCalculator(now func() time.Time) *engine.Calculator {
	return engine.NewCalculator(engine.CalculatorConfig{
		MaxPositionSize:    50_000,
		LiquidityFraction:  0.01,
		ImpactCap:          0.20,
		FlashLoanFeeRate:   0.0009,
		DefaultGasCost:     15,
		ReferenceLiquidity: 100_000,
		SpreadReference:    0.01,
		ExtremeSpread:      0.10,
		FreshnessHorizon:   30 * time.Second,
		Confidence:         engine.ConfidenceWeights{Spread: 0.30, Liquidity: 0.30, Freshness: 0.25, Baseline: 0.15},
		Risk:               engine.RiskWeights{Impact: 0.35, LiquidityTier: 0.25, SpreadExtremity: 0.20, GasToProfit: 0.20},
	}, now, testLogger())
}

func testRanker() *engine.Ranker {
	return engine.NewRanker(engine.RankerConfig{
		MinProfitThreshold: 10,
		MaxRiskThreshold:   0.7,
		MinConfidence:      0.3,
		MaxPositionSize:    50_000,
	}, testLogger())
}

func newTestDetector(cache domain.QuoteCache, opps domain.OpportunityStore, now func() time.Time) *Detector {
	cfg := DetectorConfig{
		Pairs:          []string{"WETH/USDC"},
		Venues:         []string{"uniswap_v3", "sushiswap", "curve"},
		CycleInterval:  time.Second,
		OpportunityTTL: 30 * time.Second,
		Execute:        false,
	}
	return NewDetector(cfg, cache, testCalculator(now), testRanker(), nil, opps, nil, nil, now, testLogger())
}

func TestDetector_Cycle(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	clock := func() time.Time { return now }

	cache := &fakeQuoteCache{}
	store := &fakeOppStore{}
	d := newTestDetector(cache, store, clock)

	cache.set("WETH/USDC",
		domain.VenueQuote{Venue: "uniswap_v3", Pair: "WETH/USDC", Price: 3000, Liquidity: 1_000_000, FeeRate: 0.003, Timestamp: base},
		domain.VenueQuote{Venue: "sushiswap", Pair: "WETH/USDC", Price: 3120, Liquidity: 1_000_000, FeeRate: 0.003, Timestamp: base},
		domain.VenueQuote{Venue: "curve", Pair: "WETH/USDC", Price: 3060, Liquidity: 1_000_000, FeeRate: 0.003, Timestamp: base},
	)

	t.Run("detects and archives the selection", func(t *testing.T) {
		d.Cycle(ctx)

		book := d.Snapshot()
		require.NotEmpty(t, book)
		assert.Equal(t, "uniswap_v3", book[0].BuyVenue)
		assert.Equal(t, "sushiswap", book[0].SellVenue)

		require.NotEmpty(t, store.inserted)
		assert.Equal(t, domain.OpportunitySelected, store.inserted[0].Status)
	})

	t.Run("snapshot is ordered best first", func(t *testing.T) {
		book := d.Snapshot()
		for i := 1; i < len(book); i++ {
			assert.GreaterOrEqual(t, book[i-1].NetProfit, book[i].NetProfit)
		}
	})

	t.Run("candidates expire after the ttl", func(t *testing.T) {
		now = base.Add(31 * time.Second)
		cache.set("WETH/USDC") // no quotes this cycle
		d.Cycle(ctx)

		assert.Empty(t, d.Snapshot())
		var expired, selected int
		for _, opp := range store.inserted {
			switch opp.Status {
			case domain.OpportunityExpired:
				expired++
			case domain.OpportunitySelected:
				selected++
			}
		}
		assert.Equal(t, 2, expired, "unselected candidates should be archived as expired")
		assert.Equal(t, 1, selected, "the selection must not be re-archived on expiry")
	})

	t.Run("a single venue yields no candidates", func(t *testing.T) {
		cache.set("WETH/USDC",
			domain.VenueQuote{Venue: "uniswap_v3", Pair: "WETH/USDC", Price: 3000, Liquidity: 250_000, FeeRate: 0.003, Timestamp: now},
		)
		d.Cycle(ctx)
		assert.Empty(t, d.Snapshot())
	})
}
