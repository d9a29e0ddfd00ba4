package quote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCache collects quotes written by the poller.
type fakeCache struct {
	domain.QuoteCache
	mu     sync.Mutex
	quotes []domain.VenueQuote
}

func (f *fakeCache) SetQuote(_ context.Context, q domain.VenueQuote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes = append(f.quotes, q)
	return nil
}

func (f *fakeCache) venues() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, q := range f.quotes {
		out = append(out, q.Venue)
	}
	return out
}

// failingSource always errors.
type failingSource struct {
	name string
	err  error
}

func (f *failingSource) Name() string { return f.name }

func (f *failingSource) GetQuote(context.Context, string) (domain.VenueQuote, error) {
	return domain.VenueQuote{}, f.err
}

func testPollerConfig() PollerConfig {
	return PollerConfig{
		Pairs:        []string{"WETH/USDC"},
		PollInterval: time.Second,
		CallTimeout:  time.Second,
	}
}

func TestPoller_PollOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("caches every available venue quote", func(t *testing.T) {
		a := NewStaticSource("uniswap_v3", nil)
		a.SetQuote("WETH/USDC", 3000, 250_000, 0.003)
		b := NewStaticSource("sushiswap", nil)
		b.SetQuote("WETH/USDC", 3012, 90_000, 0.003)

		cache := &fakeCache{}
		p := NewPoller(testPollerConfig(), []domain.QuoteSource{a, b}, cache, nil, testLogger())
		p.pollOnce(ctx)

		assert.ElementsMatch(t, []string{"uniswap_v3", "sushiswap"}, cache.venues())
	})

	t.Run("an unavailable venue is excluded, others still cached", func(t *testing.T) {
		a := NewStaticSource("uniswap_v3", nil)
		a.SetQuote("WETH/USDC", 3000, 250_000, 0.003)
		b := NewStaticSource("sushiswap", nil) // no fixture for the pair

		cache := &fakeCache{}
		p := NewPoller(testPollerConfig(), []domain.QuoteSource{a, b}, cache, nil, testLogger())
		p.pollOnce(ctx)

		assert.Equal(t, []string{"uniswap_v3"}, cache.venues())
	})

	t.Run("a broken venue never aborts the cycle", func(t *testing.T) {
		bad := &failingSource{name: "broken", err: errors.New("connection reset")}
		good := NewStaticSource("uniswap_v3", nil)
		good.SetQuote("WETH/USDC", 3000, 250_000, 0.003)

		cache := &fakeCache{}
		p := NewPoller(testPollerConfig(), []domain.QuoteSource{bad, good}, cache, nil, testLogger())
		p.pollOnce(ctx)

		assert.Equal(t, []string{"uniswap_v3"}, cache.venues())
	})
}

func TestPoller_Venues(t *testing.T) {
	a := NewStaticSource("uniswap_v3", nil)
	b := NewStaticSource("sushiswap", nil)
	p := NewPoller(testPollerConfig(), []domain.QuoteSource{a, b}, nil, nil, testLogger())
	assert.Equal(t, []string{"uniswap_v3", "sushiswap"}, p.Venues())
}

func TestStaticSource(t *testing.T) {
	ctx := context.Background()

	t.Run("serves the fixture with a fresh timestamp", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		src := NewStaticSource("uniswap_v3", func() time.Time { return now })
		src.SetQuote("WETH/USDC", 3000, 250_000, 0.003)

		q, err := src.GetQuote(ctx, "WETH/USDC")
		require.NoError(t, err)
		assert.Equal(t, "uniswap_v3", q.Venue)
		assert.Equal(t, 3000.0, q.Price)
		assert.Equal(t, now, q.Timestamp)
	})

	t.Run("carries the seeded 24h change", func(t *testing.T) {
		src := NewStaticSource("uniswap_v3", nil)
		src.SetQuoteChange("WETH/USDC", 3000, 250_000, 0.003, 0.04)

		q, err := src.GetQuote(ctx, "WETH/USDC")
		require.NoError(t, err)
		assert.Equal(t, 0.04, q.Change24h)
	})

	t.Run("unknown pair is unavailable", func(t *testing.T) {
		src := NewStaticSource("uniswap_v3", nil)
		_, err := src.GetQuote(ctx, "WBTC/USDC")
		require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	})

	t.Run("unset makes a pair unavailable", func(t *testing.T) {
		src := NewStaticSource("uniswap_v3", nil)
		src.SetQuote("WETH/USDC", 3000, 250_000, 0.003)
		src.Unset("WETH/USDC")
		_, err := src.GetQuote(ctx, "WETH/USDC")
		require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	})
}

func TestBreakerSource(t *testing.T) {
	ctx := context.Background()

	t.Run("passes quotes through while healthy", func(t *testing.T) {
		inner := NewStaticSource("uniswap_v3", nil)
		inner.SetQuote("WETH/USDC", 3000, 250_000, 0.003)
		src := NewBreakerSource(inner)

		q, err := src.GetQuote(ctx, "WETH/USDC")
		require.NoError(t, err)
		assert.Equal(t, 3000.0, q.Price)
		assert.Equal(t, "uniswap_v3", src.Name())
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		bad := &failingSource{name: "flaky", err: errors.New("timeout")}
		src := NewBreakerSource(bad)

		for i := 0; i < 3; i++ {
			_, err := src.GetQuote(ctx, "WETH/USDC")
			require.Error(t, err)
			require.NotErrorIs(t, err, domain.ErrQuoteUnavailable)
		}

		// breaker is open now: the venue error is masked as unavailability
		_, err := src.GetQuote(ctx, "WETH/USDC")
		require.ErrorIs(t, err, domain.ErrQuoteUnavailable)
	})
}
