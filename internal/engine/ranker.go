package engine

import (
	"log/slog"
	"sort"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// RankerConfig holds the filter thresholds applied before ordering.
type RankerConfig struct {
	MinProfitThreshold float64
	MaxRiskThreshold   float64
	MinConfidence      float64
	MaxPositionSize    float64
}

// Ranker filters candidates against policy thresholds and orders the
// survivors: net profit descending, then confidence descending, then risk
// ascending, then (buy venue, sell venue) lexicographic so the order is
// total and deterministic.
type Ranker struct {
	cfg    RankerConfig
	logger *slog.Logger
}

// NewRanker creates a Ranker.
func NewRanker(cfg RankerConfig, logger *slog.Logger) *Ranker {
	return &Ranker{cfg: cfg, logger: logger.With(slog.String("component", "ranker"))}
}

// Rank returns the surviving candidates in selection order. The caller marks
// the head of the slice selected; everything else stays candidate until TTL.
func (r *Ranker) Rank(candidates []domain.ArbitrageOpportunity) []domain.ArbitrageOpportunity {
	kept := make([]domain.ArbitrageOpportunity, 0, len(candidates))
	for _, opp := range candidates {
		if !r.passes(opp) {
			continue
		}
		kept = append(kept, opp)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.NetProfit != b.NetProfit {
			return a.NetProfit > b.NetProfit
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.RiskScore != b.RiskScore {
			return a.RiskScore < b.RiskScore
		}
		if a.BuyVenue != b.BuyVenue {
			return a.BuyVenue < b.BuyVenue
		}
		return a.SellVenue < b.SellVenue
	})

	if len(kept) > 0 {
		r.logger.Debug("candidates ranked",
			slog.Int("in", len(candidates)),
			slog.Int("out", len(kept)),
			slog.Float64("top_net_profit", kept[0].NetProfit),
		)
	}
	return kept
}

// Select ranks candidates and promotes the top survivor to selected. It
// returns the selected opportunity and true, or false when nothing passes.
func (r *Ranker) Select(candidates []domain.ArbitrageOpportunity) (domain.ArbitrageOpportunity, bool) {
	ranked := r.Rank(candidates)
	if len(ranked) == 0 {
		return domain.ArbitrageOpportunity{}, false
	}
	top := ranked[0]
	top.Status = domain.OpportunitySelected
	return top, true
}

func (r *Ranker) passes(opp domain.ArbitrageOpportunity) bool {
	if opp.NetProfit < r.cfg.MinProfitThreshold {
		return false
	}
	if opp.RiskScore > r.cfg.MaxRiskThreshold {
		return false
	}
	if opp.Confidence < r.cfg.MinConfidence {
		return false
	}
	if opp.TradeAmount > r.cfg.MaxPositionSize {
		return false
	}
	// A selected opportunity must be a genuine cross: the invariant holds by
	// construction in the calculator, but re-checked here so a bad caller
	// cannot promote an inverted pair.
	return opp.SellPrice > opp.BuyPrice
}
