package quote

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sumitrevolt/flasharb/internal/domain"
	"github.com/sumitrevolt/flasharb/internal/metrics"
)

// PollerConfig holds the refresh-loop parameters.
type PollerConfig struct {
	Pairs        []string
	PollInterval time.Duration
	CallTimeout  time.Duration // per-venue GetQuote bound, e.g. 5s
}

// Poller fans out over every (pair, venue) combination each cycle and writes
// the results into the quote cache. A venue that cannot quote this cycle is
// excluded and the cycle continues; nothing here aborts the loop.
type Poller struct {
	cfg     PollerConfig
	sources []domain.QuoteSource
	cache   domain.QuoteCache
	metrics *metrics.Registry
	logger  *slog.Logger
}

// NewPoller creates a Poller over the given venue sources.
func NewPoller(cfg PollerConfig, sources []domain.QuoteSource, cache domain.QuoteCache, m *metrics.Registry, logger *slog.Logger) *Poller {
	return &Poller{
		cfg:     cfg,
		sources: sources,
		cache:   cache,
		metrics: m,
		logger:  logger.With(slog.String("component", "quote_poller")),
	}
}

// Venues returns the venue names the poller covers, in source order.
func (p *Poller) Venues() []string {
	names := make([]string, 0, len(p.sources))
	for _, s := range p.sources {
		names = append(names, s.Name())
	}
	return names
}

// Run polls immediately and then on every tick until ctx cancels.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("quote poller started",
		slog.Int("pairs", len(p.cfg.Pairs)),
		slog.Int("venues", len(p.sources)),
		slog.Duration("interval", p.cfg.PollInterval),
	)
	defer p.logger.Info("quote poller stopped")

	p.pollOnce(ctx)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	for _, pair := range p.cfg.Pairs {
		for _, src := range p.sources {
			p.fetch(ctx, pair, src)
		}
	}
}

func (p *Poller) fetch(ctx context.Context, pair string, src domain.QuoteSource) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()

	q, err := src.GetQuote(callCtx, pair)
	if err != nil {
		if p.metrics != nil {
			p.metrics.QuoteFetches.WithLabelValues(src.Name(), "error").Inc()
		}
		// Venue-level conditions recover locally and never escalate.
		if errors.Is(err, domain.ErrQuoteUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			p.logger.Debug("venue excluded this cycle",
				slog.String("pair", pair),
				slog.String("venue", src.Name()),
			)
			return
		}
		p.logger.Warn("quote fetch failed",
			slog.String("pair", pair),
			slog.String("venue", src.Name()),
			slog.String("error", err.Error()),
		)
		return
	}

	if p.metrics != nil {
		p.metrics.QuoteFetches.WithLabelValues(src.Name(), "ok").Inc()
	}
	if err := p.cache.SetQuote(ctx, q); err != nil {
		p.logger.Warn("cache quote failed",
			slog.String("pair", pair),
			slog.String("venue", src.Name()),
			slog.String("error", err.Error()),
		)
	}
}
