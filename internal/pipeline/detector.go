// Package pipeline owns the engine's periodic loops and ties the quote,
// engine, risk, and executor layers together.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sumitrevolt/flasharb/internal/domain"
	"github.com/sumitrevolt/flasharb/internal/engine"
	"github.com/sumitrevolt/flasharb/internal/executor"
	"github.com/sumitrevolt/flasharb/internal/metrics"
)

// DetectorConfig holds detection-cycle parameters.
type DetectorConfig struct {
	Pairs          []string
	Venues         []string
	CycleInterval  time.Duration
	OpportunityTTL time.Duration
	Execute        bool // false in detect-only mode
}

// Detector runs the detection/ranking/execution cycle. Candidates are owned
// by this loop alone: within one cycle they are processed in the ranker's
// total order, and a later cycle supersedes an earlier one's candidates once
// they expire. Executions are never carried across cycles.
type Detector struct {
	cfg         DetectorConfig
	cache       domain.QuoteCache
	calculator  *engine.Calculator
	ranker      *engine.Ranker
	coordinator *executor.Coordinator
	opps        domain.OpportunityStore
	bus         domain.SignalBus
	metrics     *metrics.Registry
	now         func() time.Time
	logger      *slog.Logger

	// candidate book for TTL accounting, keyed by opportunity id.
	// Guarded by mu so API handlers can snapshot it mid-cycle.
	mu   sync.RWMutex
	book map[string]domain.ArbitrageOpportunity
}

// NewDetector creates a Detector. Coordinator may be nil when cfg.Execute is
// false; store, bus, and metrics may be nil in tests.
func NewDetector(
	cfg DetectorConfig,
	cache domain.QuoteCache,
	calc *engine.Calculator,
	ranker *engine.Ranker,
	coord *executor.Coordinator,
	opps domain.OpportunityStore,
	bus domain.SignalBus,
	m *metrics.Registry,
	now func() time.Time,
	logger *slog.Logger,
) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{
		cfg:         cfg,
		cache:       cache,
		calculator:  calc,
		ranker:      ranker,
		coordinator: coord,
		opps:        opps,
		bus:         bus,
		metrics:     m,
		now:         now,
		logger:      logger.With(slog.String("component", "detector")),
		book:        make(map[string]domain.ArbitrageOpportunity),
	}
}

// Run executes one cycle per tick until ctx cancels.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("detection loop started",
		slog.Int("pairs", len(d.cfg.Pairs)),
		slog.Bool("execute", d.cfg.Execute),
		slog.Duration("interval", d.cfg.CycleInterval),
	)
	defer d.logger.Info("detection loop stopped")

	ticker := time.NewTicker(d.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Cycle(ctx)
		}
	}
}

// Cycle runs one full detection pass: expire stale candidates, compute fresh
// ones per pair, rank, and (when enabled) execute the top selection.
func (d *Detector) Cycle(ctx context.Context) {
	d.expire(ctx)

	for _, pair := range d.cfg.Pairs {
		quotes, err := d.cache.GetPairQuotes(ctx, pair, d.cfg.Venues)
		if err != nil {
			d.logger.Warn("read pair quotes failed",
				slog.String("pair", pair),
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(quotes) < 2 {
			continue
		}

		candidates := d.calculator.Detect(pair, quotes)
		if d.metrics != nil {
			d.metrics.OpportunitiesDetected.Add(float64(len(candidates)))
		}
		d.mu.Lock()
		for _, opp := range candidates {
			d.book[opp.ID] = opp
		}
		d.mu.Unlock()

		selected, ok := d.ranker.Select(candidates)
		if !ok {
			continue
		}
		d.mu.Lock()
		d.book[selected.ID] = selected
		d.mu.Unlock()
		if d.metrics != nil {
			d.metrics.OpportunitiesSelected.Inc()
		}
		d.publish(ctx, selected)
		d.archive(ctx, selected)

		if !d.cfg.Execute || d.coordinator == nil {
			continue
		}
		final, err := d.coordinator.Execute(ctx, selected)
		switch {
		case err == nil:
			// succeeded; coordinator recorded everything
		case errors.Is(err, domain.ErrExecutionBlocked):
			d.logger.Info("cycle blocked by risk governor", slog.String("pair", pair))
		case errors.Is(err, domain.ErrExecutionFailed):
			// counted by the governor; no retry of this opportunity
		default:
			d.logger.Error("execution error",
				slog.String("opp_id", selected.ID),
				slog.String("error", err.Error()),
			)
		}
		if final.Status.Terminal() {
			d.mu.Lock()
			delete(d.book, final.ID)
			d.mu.Unlock()
		}
	}
}

// Snapshot returns the live candidate book ordered by net profit, best first.
func (d *Detector) Snapshot() []domain.ArbitrageOpportunity {
	d.mu.RLock()
	opps := make([]domain.ArbitrageOpportunity, 0, len(d.book))
	for _, opp := range d.book {
		opps = append(opps, opp)
	}
	d.mu.RUnlock()

	sort.Slice(opps, func(i, j int) bool {
		if opps[i].NetProfit != opps[j].NetProfit {
			return opps[i].NetProfit > opps[j].NetProfit
		}
		return opps[i].ID < opps[j].ID
	})
	return opps
}

// expire walks the candidate book and retires entries past their TTL.
// Candidates are not persisted while live, so an expired one is archived here
// with its terminal status; the selected opportunity was already inserted and
// is skipped.
func (d *Detector) expire(ctx context.Context) {
	now := d.now().UTC()

	d.mu.Lock()
	var expired []domain.ArbitrageOpportunity
	for id, opp := range d.book {
		if opp.Expired(now, d.cfg.OpportunityTTL) {
			delete(d.book, id)
			expired = append(expired, opp)
		}
	}
	d.mu.Unlock()

	for _, opp := range expired {
		if opp.Status != domain.OpportunityCandidate {
			continue
		}
		if d.metrics != nil {
			d.metrics.OpportunitiesExpired.Inc()
		}
		if d.opps == nil {
			continue
		}
		opp.Status = domain.OpportunityExpired
		if err := d.opps.Insert(ctx, opp); err != nil {
			d.logger.Warn("archive expired candidate failed",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (d *Detector) archive(ctx context.Context, opp domain.ArbitrageOpportunity) {
	if d.opps == nil {
		return
	}
	if err := d.opps.Insert(ctx, opp); err != nil {
		d.logger.Warn("archive opportunity failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Detector) publish(ctx context.Context, opp domain.ArbitrageOpportunity) {
	if d.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":      "opportunity_selected",
		"opp_id":     opp.ID,
		"pair":       opp.Pair,
		"buy_venue":  opp.BuyVenue,
		"sell_venue": opp.SellVenue,
		"net_profit": opp.NetProfit,
		"confidence": opp.Confidence,
		"risk_score": opp.RiskScore,
	})
	if err := d.bus.Publish(ctx, "opportunities", evt); err != nil {
		d.logger.Warn("publish opportunity failed", slog.String("error", err.Error()))
	}
}
