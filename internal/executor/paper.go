package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// ErrProfitGuard is returned when a fill would land under the caller's
// minimum-acceptable-profit guard.
var ErrProfitGuard = errors.New("realized profit below acceptance guard")

// PaperConfig tunes the deterministic fill model.
type PaperConfig struct {
	// SlippageHaircut shaves this fraction off the estimated net profit to
	// model real-world slippage. Deterministic: no randomness.
	SlippageHaircut float64
	// GasUsedFraction of the estimated gas cost is reported as consumed.
	GasUsedFraction float64
}

// PaperBackend is the in-repo execution collaborator: it fills every trade
// at the opportunity's estimated prices minus a fixed haircut. Used in paper
// mode and in tests; production backends are registered from outside.
type PaperBackend struct {
	cfg PaperConfig
}

// NewPaperBackend creates a PaperBackend.
func NewPaperBackend(cfg PaperConfig) *PaperBackend {
	if cfg.GasUsedFraction <= 0 {
		cfg.GasUsedFraction = 1
	}
	return &PaperBackend{cfg: cfg}
}

// Execute fills deterministically. The profit guard is honored: a haircut
// that drags realized profit under minProfit rejects the attempt.
func (p *PaperBackend) Execute(ctx context.Context, opp domain.ArbitrageOpportunity, minProfit float64) (ExecutionReceipt, error) {
	if err := ctx.Err(); err != nil {
		return ExecutionReceipt{}, err
	}

	realized := opp.NetProfit * (1 - p.cfg.SlippageHaircut)
	gasUsed := opp.Costs.GasCost * p.cfg.GasUsedFraction

	if realized < minProfit {
		return ExecutionReceipt{
			Success:    false,
			GasUsed:    gasUsed,
			ErrorClass: "guard_violated",
		}, fmt.Errorf("paper: realized %.4f < guard %.4f: %w", realized, minProfit, ErrProfitGuard)
	}

	return ExecutionReceipt{
		Success:     true,
		RealizedPnL: realized,
		GasUsed:     gasUsed,
	}, nil
}
