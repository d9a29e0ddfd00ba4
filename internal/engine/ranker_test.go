package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

func testRankerConfig() RankerConfig {
	return RankerConfig{
		MinProfitThreshold: 10,
		MaxRiskThreshold:   0.7,
		MinConfidence:      0.3,
		MaxPositionSize:    50_000,
	}
}

func candidate(buyVenue string, net, confidence, riskScore float64) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:          buyVenue + "-cand",
		Pair:        "WETH/USDC",
		Status:      domain.OpportunityCandidate,
		BuyVenue:    buyVenue,
		BuyPrice:    100,
		SellVenue:   "sushiswap",
		SellPrice:   102,
		TradeAmount: 10_000,
		NetProfit:   net,
		Confidence:  confidence,
		RiskScore:   riskScore,
	}
}

func TestRanker_Rank(t *testing.T) {
	ranker := NewRanker(testRankerConfig(), testLogger())

	t.Run("filters below-threshold candidates", func(t *testing.T) {
		in := []domain.ArbitrageOpportunity{
			candidate("a", 5, 0.9, 0.1),    // profit too low
			candidate("b", 50, 0.1, 0.1),   // confidence too low
			candidate("c", 50, 0.9, 0.9),   // risk too high
			candidate("d", 50, 0.9, 0.1),   // passes
		}
		out := ranker.Rank(in)
		require.Len(t, out, 1)
		assert.Equal(t, "d", out[0].BuyVenue)
	})

	t.Run("rejects oversized positions", func(t *testing.T) {
		big := candidate("a", 50, 0.9, 0.1)
		big.TradeAmount = 60_000
		assert.Empty(t, ranker.Rank([]domain.ArbitrageOpportunity{big}))
	})

	t.Run("rejects inverted price pairs", func(t *testing.T) {
		inv := candidate("a", 50, 0.9, 0.1)
		inv.BuyPrice, inv.SellPrice = 102, 100
		assert.Empty(t, ranker.Rank([]domain.ArbitrageOpportunity{inv}))
	})

	t.Run("orders by net profit then confidence then risk", func(t *testing.T) {
		in := []domain.ArbitrageOpportunity{
			candidate("low", 20, 0.9, 0.1),
			candidate("high", 80, 0.5, 0.5),
			candidate("risky", 40, 0.8, 0.6),
			candidate("safe", 40, 0.8, 0.2),
		}
		out := ranker.Rank(in)
		require.Len(t, out, 4)
		assert.Equal(t, "high", out[0].BuyVenue)
		assert.Equal(t, "safe", out[1].BuyVenue)
		assert.Equal(t, "risky", out[2].BuyVenue)
		assert.Equal(t, "low", out[3].BuyVenue)
	})

	t.Run("full ties break on venue names", func(t *testing.T) {
		in := []domain.ArbitrageOpportunity{
			candidate("zeta", 40, 0.8, 0.2),
			candidate("alpha", 40, 0.8, 0.2),
		}
		out := ranker.Rank(in)
		require.Len(t, out, 2)
		assert.Equal(t, "alpha", out[0].BuyVenue)
		assert.Equal(t, "zeta", out[1].BuyVenue)
	})
}

func TestRanker_Select(t *testing.T) {
	ranker := NewRanker(testRankerConfig(), testLogger())

	t.Run("promotes the top survivor", func(t *testing.T) {
		in := []domain.ArbitrageOpportunity{
			candidate("low", 20, 0.9, 0.1),
			candidate("high", 80, 0.5, 0.5),
		}
		top, ok := ranker.Select(in)
		require.True(t, ok)
		assert.Equal(t, "high", top.BuyVenue)
		assert.Equal(t, domain.OpportunitySelected, top.Status)
	})

	t.Run("reports no selection when nothing passes", func(t *testing.T) {
		_, ok := ranker.Select([]domain.ArbitrageOpportunity{
			candidate("a", 1, 0.1, 0.9),
		})
		assert.False(t, ok)
	})
}
