// Package engine turns per-venue quotes into ranked arbitrage opportunities.
package engine

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// ConfidenceWeights weight the four confidence terms. They must sum to 1.
type ConfidenceWeights struct {
	Spread    float64
	Liquidity float64
	Freshness float64
	Baseline  float64
}

// RiskWeights weight the four risk terms. They must sum to 1.
type RiskWeights struct {
	Impact          float64
	LiquidityTier   float64
	SpreadExtremity float64
	GasToProfit     float64
}

// CalculatorConfig holds the tunable parameters of the profit/risk model.
type CalculatorConfig struct {
	MaxPositionSize   float64 // hard cap on trade size, quote units
	LiquidityFraction float64 // fraction of the thinner side's depth we take
	ImpactCap         float64 // per-side price impact cap, e.g. 0.20
	FlashLoanFeeRate  float64 // e.g. 0.0009 for Aave
	GasCostEstimates  map[string]float64 // network -> flat cost estimate
	DefaultGasCost    float64            // used when a network has no entry

	ReferenceLiquidity float64       // normalizes the liquidity term
	SpreadReference    float64       // spread at which the spread term saturates
	ExtremeSpread      float64       // spreads beyond this are treated as suspect
	FreshnessHorizon   time.Duration // quote age at which freshness reaches zero

	Confidence ConfidenceWeights
	Risk       RiskWeights
}

// Calculator converts one pair's venue quotes into scored opportunity
// candidates. It is deterministic: identical quote sets produce identical
// profit, confidence, and risk values.
type Calculator struct {
	cfg    CalculatorConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewCalculator creates a Calculator. The now function is injectable so the
// freshness term is testable; pass nil for time.Now.
func NewCalculator(cfg CalculatorConfig, now func() time.Time, logger *slog.Logger) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{
		cfg:    cfg,
		now:    now,
		logger: logger.With(slog.String("component", "calculator")),
	}
}

// Detect examines every venue pair in quotes and returns candidates for each
// direction where the sell price exceeds the buy price. Quotes for other
// pairs are the caller's bug and are ignored via the pair filter.
func (c *Calculator) Detect(pair string, quotes []domain.VenueQuote) []domain.ArbitrageOpportunity {
	now := c.now()

	var out []domain.ArbitrageOpportunity
	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			buy, sell := quotes[i], quotes[j]
			if sell.Price < buy.Price {
				buy, sell = sell, buy
			}
			if buy.Pair != pair || sell.Pair != pair {
				continue
			}
			if sell.Price <= buy.Price {
				continue
			}
			opp, ok := c.build(pair, buy, sell, now)
			if !ok {
				continue
			}
			out = append(out, opp)
		}
	}

	if len(out) > 0 {
		c.logger.Debug("candidates computed",
			slog.String("pair", pair),
			slog.Int("venues", len(quotes)),
			slog.Int("candidates", len(out)),
		)
	}
	return out
}

// build prices a single buy/sell direction. It returns ok=false when the
// trade size collapses to zero (insufficient liquidity); that condition is
// recovered locally and never surfaced as an error.
func (c *Calculator) build(pair string, buy, sell domain.VenueQuote, now time.Time) (domain.ArbitrageOpportunity, bool) {
	size := math.Min(buy.Liquidity, sell.Liquidity) * c.cfg.LiquidityFraction
	size = math.Min(size, c.cfg.MaxPositionSize)
	if size <= 0 {
		return domain.ArbitrageOpportunity{}, false
	}

	impactBuy := priceImpact(size, buy.Liquidity, c.cfg.ImpactCap)
	impactSell := priceImpact(size, sell.Liquidity, c.cfg.ImpactCap)

	gross := size * (sell.Price - buy.Price) / buy.Price

	costs := domain.CostBreakdown{
		FlashLoanFee: size * c.cfg.FlashLoanFeeRate,
		VenueFees:    size * (buy.FeeRate + sell.FeeRate),
		GasCost:      c.gasCost(buy.Venue, sell.Venue),
		SlippageCost: size * (impactBuy + impactSell),
	}
	net := gross - costs.Total()

	opp := domain.ArbitrageOpportunity{
		ID:          uuid.New().String(),
		Pair:        pair,
		Status:      domain.OpportunityCandidate,
		BuyVenue:    buy.Venue,
		BuyPrice:    buy.Price,
		SellVenue:   sell.Venue,
		SellPrice:   sell.Price,
		TradeAmount: size,
		ImpactBuy:   impactBuy,
		ImpactSell:  impactSell,
		GrossProfit: gross,
		Costs:       costs,
		NetProfit:   net,
		CreatedAt:   now,
	}
	opp.Confidence = c.confidence(opp, buy, sell, now)
	opp.RiskScore = c.risk(opp, buy, sell, gross)
	return opp, true
}

// gasCost looks up the network estimate for the two venues involved. Both
// legs settle in one atomic flash-loan transaction, so the higher of the two
// venue networks' estimates applies once.
func (c *Calculator) gasCost(buyVenue, sellVenue string) float64 {
	cost := c.cfg.DefaultGasCost
	if v, ok := c.cfg.GasCostEstimates[buyVenue]; ok && v > cost {
		cost = v
	}
	if v, ok := c.cfg.GasCostEstimates[sellVenue]; ok && v > cost {
		cost = v
	}
	return cost
}

// confidence is the weighted sum of spread size, liquidity, data freshness,
// and a baseline term for having quotes at all. Each term is clamped to
// [0,1] before weighting, and the weights sum to 1, so the result needs no
// final clamp; one is applied anyway to guard degenerate weight configs.
func (c *Calculator) confidence(opp domain.ArbitrageOpportunity, buy, sell domain.VenueQuote, now time.Time) float64 {
	w := c.cfg.Confidence

	spreadTerm := clamp01(opp.Spread() / c.cfg.SpreadReference)

	minLiq := math.Min(buy.Liquidity, sell.Liquidity)
	liqTerm := clamp01(minLiq / c.cfg.ReferenceLiquidity)

	age := maxDuration(buy.Age(now), sell.Age(now))
	freshTerm := 0.0
	if c.cfg.FreshnessHorizon > 0 && age < c.cfg.FreshnessHorizon {
		freshTerm = clamp01(1 - float64(age)/float64(c.cfg.FreshnessHorizon))
	}

	score := w.Spread*spreadTerm + w.Liquidity*liqTerm + w.Freshness*freshTerm + w.Baseline*1.0
	return clamp01(score)
}

// risk is the weighted average of total price impact, a discrete liquidity
// tier, spread extremity (very wide spreads are likely stale or erroneous
// data), and the gas-to-profit ratio. The extremity threshold is widened by
// the venues' reported 24h movement: a spread the pair's own volatility
// explains is less suspect than the same spread on a flat day.
func (c *Calculator) risk(opp domain.ArbitrageOpportunity, buy, sell domain.VenueQuote, gross float64) float64 {
	w := c.cfg.Risk

	impactTerm := clamp01((opp.ImpactBuy + opp.ImpactSell) / (2 * c.cfg.ImpactCap))

	tierTerm := liquidityTier(opp.TradeAmount)

	extremityTerm := 0.0
	threshold := c.cfg.ExtremeSpread + math.Max(math.Abs(buy.Change24h), math.Abs(sell.Change24h))
	if spread := opp.Spread(); c.cfg.ExtremeSpread > 0 && spread > threshold {
		extremityTerm = clamp01(spread/threshold - 1)
	}

	gasTerm := 1.0
	if gross > 0 {
		gasTerm = clamp01(opp.Costs.GasCost / gross)
	}

	score := w.Impact*impactTerm + w.LiquidityTier*tierTerm + w.SpreadExtremity*extremityTerm + w.GasToProfit*gasTerm
	return clamp01(score)
}

// liquidityTier buckets trade amounts into discrete risk tiers: tiny trades
// suggest thin books, very large trades carry settlement risk.
func liquidityTier(amount float64) float64 {
	switch {
	case amount < 1_000:
		return 0.8
	case amount < 10_000:
		return 0.5
	case amount < 100_000:
		return 0.2
	default:
		return 0.4
	}
}

func priceImpact(size, liquidity, cap float64) float64 {
	if liquidity <= 0 {
		return cap
	}
	return math.Min(size/liquidity, cap)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
