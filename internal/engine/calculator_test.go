package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCalcConfig() CalculatorConfig {
	return CalculatorConfig{
		MaxPositionSize:    50_000,
		LiquidityFraction:  0.10,
		ImpactCap:          0.20,
		FlashLoanFeeRate:   0.0009,
		GasCostEstimates:   map[string]float64{"uniswap_v3": 18},
		DefaultGasCost:     15,
		ReferenceLiquidity: 100_000,
		SpreadReference:    0.01,
		ExtremeSpread:      0.10,
		FreshnessHorizon:   30 * time.Second,
		Confidence:         ConfidenceWeights{Spread: 0.30, Liquidity: 0.30, Freshness: 0.25, Baseline: 0.15},
		Risk:               RiskWeights{Impact: 0.35, LiquidityTier: 0.25, SpreadExtremity: 0.20, GasToProfit: 0.20},
	}
}

func quoteAt(venue, pair string, price, liquidity float64, ts time.Time) domain.VenueQuote {
	return domain.VenueQuote{
		Venue:     venue,
		Pair:      pair,
		Price:     price,
		Liquidity: liquidity,
		FeeRate:   0.003,
		Timestamp: ts,
	}
}

func TestCalculator_Detect(t *testing.T) {
	calc := NewCalculator(testCalcConfig(), func() time.Time { return testNow }, testLogger())

	t.Run("prices the cheap-to-expensive direction", func(t *testing.T) {
		quotes := []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow),
			quoteAt("sushiswap", "WETH/USDC", 102, 100_000, testNow),
		}

		opps := calc.Detect("WETH/USDC", quotes)
		require.Len(t, opps, 1)

		opp := opps[0]
		assert.Equal(t, "uniswap_v3", opp.BuyVenue)
		assert.Equal(t, "sushiswap", opp.SellVenue)
		assert.Equal(t, domain.OpportunityCandidate, opp.Status)
		assert.NotEmpty(t, opp.ID)

		// size = min(200k, 100k) * 0.10 = 10k; gross = 10k * 2/100 = 200
		assert.InDelta(t, 10_000, opp.TradeAmount, 1e-9)
		assert.InDelta(t, 200, opp.GrossProfit, 1e-9)

		// net profit is exactly gross minus the itemized costs
		assert.InDelta(t, opp.GrossProfit-opp.Costs.Total(), opp.NetProfit, 1e-9)
		assert.InDelta(t, 10_000*0.0009, opp.Costs.FlashLoanFee, 1e-9)
		assert.InDelta(t, 10_000*(0.003+0.003), opp.Costs.VenueFees, 1e-9)
	})

	t.Run("quote order does not matter", func(t *testing.T) {
		a := quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow)
		b := quoteAt("sushiswap", "WETH/USDC", 102, 100_000, testNow)

		fwd := calc.Detect("WETH/USDC", []domain.VenueQuote{a, b})
		rev := calc.Detect("WETH/USDC", []domain.VenueQuote{b, a})
		require.Len(t, fwd, 1)
		require.Len(t, rev, 1)
		assert.Equal(t, fwd[0].BuyVenue, rev[0].BuyVenue)
		assert.InDelta(t, fwd[0].NetProfit, rev[0].NetProfit, 1e-9)
	})

	t.Run("equal prices yield nothing", func(t *testing.T) {
		quotes := []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow),
			quoteAt("sushiswap", "WETH/USDC", 100, 100_000, testNow),
		}
		assert.Empty(t, calc.Detect("WETH/USDC", quotes))
	})

	t.Run("zero liquidity collapses the trade size", func(t *testing.T) {
		quotes := []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 0, testNow),
			quoteAt("sushiswap", "WETH/USDC", 102, 100_000, testNow),
		}
		assert.Empty(t, calc.Detect("WETH/USDC", quotes))
	})

	t.Run("quotes for another pair are ignored", func(t *testing.T) {
		quotes := []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow),
			quoteAt("sushiswap", "WBTC/USDC", 102, 100_000, testNow),
		}
		assert.Empty(t, calc.Detect("WETH/USDC", quotes))
	})

	t.Run("three venues produce three directional pairs", func(t *testing.T) {
		quotes := []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow),
			quoteAt("sushiswap", "WETH/USDC", 101, 100_000, testNow),
			quoteAt("curve", "WETH/USDC", 102, 150_000, testNow),
		}
		assert.Len(t, calc.Detect("WETH/USDC", quotes), 3)
	})
}

func TestCalculator_PositionSizing(t *testing.T) {
	cfg := testCalcConfig()
	calc := NewCalculator(cfg, func() time.Time { return testNow }, testLogger())

	t.Run("size is capped at max position", func(t *testing.T) {
		quotes := []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 10_000_000, testNow),
			quoteAt("sushiswap", "WETH/USDC", 102, 10_000_000, testNow),
		}
		opps := calc.Detect("WETH/USDC", quotes)
		require.Len(t, opps, 1)
		assert.InDelta(t, cfg.MaxPositionSize, opps[0].TradeAmount, 1e-9)
	})

	t.Run("price impact is capped per side", func(t *testing.T) {
		cfg := testCalcConfig()
		cfg.LiquidityFraction = 1.0 // take the whole book
		calc := NewCalculator(cfg, func() time.Time { return testNow }, testLogger())

		quotes := []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 30_000, testNow),
			quoteAt("sushiswap", "WETH/USDC", 102, 30_000, testNow),
		}
		opps := calc.Detect("WETH/USDC", quotes)
		require.Len(t, opps, 1)
		assert.InDelta(t, cfg.ImpactCap, opps[0].ImpactBuy, 1e-9)
		assert.InDelta(t, cfg.ImpactCap, opps[0].ImpactSell, 1e-9)
	})
}

func TestCalculator_GasCost(t *testing.T) {
	cfg := testCalcConfig()
	cfg.GasCostEstimates = map[string]float64{"uniswap_v3": 18, "sushiswap": 12}
	calc := NewCalculator(cfg, func() time.Time { return testNow }, testLogger())

	t.Run("higher venue estimate applies once", func(t *testing.T) {
		quotes := []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow),
			quoteAt("sushiswap", "WETH/USDC", 102, 100_000, testNow),
		}
		opps := calc.Detect("WETH/USDC", quotes)
		require.Len(t, opps, 1)
		assert.InDelta(t, 18, opps[0].Costs.GasCost, 1e-9)
	})

	t.Run("unknown venues fall back to the default", func(t *testing.T) {
		quotes := []domain.VenueQuote{
			quoteAt("balancer", "WETH/USDC", 100, 200_000, testNow),
			quoteAt("curve", "WETH/USDC", 102, 100_000, testNow),
		}
		opps := calc.Detect("WETH/USDC", quotes)
		require.Len(t, opps, 1)
		assert.InDelta(t, cfg.DefaultGasCost, opps[0].Costs.GasCost, 1e-9)
	})
}

func TestCalculator_Scoring(t *testing.T) {
	calc := NewCalculator(testCalcConfig(), func() time.Time { return testNow }, testLogger())

	fresh := []domain.VenueQuote{
		quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow),
		quoteAt("sushiswap", "WETH/USDC", 102, 100_000, testNow),
	}

	t.Run("scores stay in range", func(t *testing.T) {
		opps := calc.Detect("WETH/USDC", fresh)
		require.Len(t, opps, 1)
		assert.GreaterOrEqual(t, opps[0].Confidence, 0.0)
		assert.LessOrEqual(t, opps[0].Confidence, 1.0)
		assert.GreaterOrEqual(t, opps[0].RiskScore, 0.0)
		assert.LessOrEqual(t, opps[0].RiskScore, 1.0)
	})

	t.Run("stale quotes lower confidence", func(t *testing.T) {
		stale := []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow.Add(-time.Minute)),
			quoteAt("sushiswap", "WETH/USDC", 102, 100_000, testNow.Add(-time.Minute)),
		}
		freshOpp := calc.Detect("WETH/USDC", fresh)[0]
		staleOpp := calc.Detect("WETH/USDC", stale)[0]
		assert.Less(t, staleOpp.Confidence, freshOpp.Confidence)
	})

	t.Run("extreme spreads raise risk", func(t *testing.T) {
		normal := calc.Detect("WETH/USDC", fresh)[0]
		wide := calc.Detect("WETH/USDC", []domain.VenueQuote{
			quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow),
			quoteAt("sushiswap", "WETH/USDC", 125, 100_000, testNow),
		})[0]
		assert.Greater(t, wide.RiskScore, normal.RiskScore)
	})

	t.Run("reported volatility tempers spread extremity", func(t *testing.T) {
		wideQuotes := func(change float64) []domain.VenueQuote {
			buy := quoteAt("uniswap_v3", "WETH/USDC", 100, 200_000, testNow)
			sell := quoteAt("sushiswap", "WETH/USDC", 125, 100_000, testNow)
			buy.Change24h = change
			sell.Change24h = change
			return []domain.VenueQuote{buy, sell}
		}
		flatDay := calc.Detect("WETH/USDC", wideQuotes(0))[0]
		volatileDay := calc.Detect("WETH/USDC", wideQuotes(0.15))[0]
		assert.Less(t, volatileDay.RiskScore, flatDay.RiskScore)
	})

	t.Run("identical inputs score identically", func(t *testing.T) {
		a := calc.Detect("WETH/USDC", fresh)[0]
		b := calc.Detect("WETH/USDC", fresh)[0]
		assert.Equal(t, a.NetProfit, b.NetProfit)
		assert.Equal(t, a.Confidence, b.Confidence)
		assert.Equal(t, a.RiskScore, b.RiskScore)
	})
}
