package domain

import (
	"context"
	"time"
)

// QuoteCache stores the latest quote per (pair, venue) plus a short rolling
// history used for freshness and confidence scoring.
type QuoteCache interface {
	SetQuote(ctx context.Context, quote VenueQuote) error
	GetQuote(ctx context.Context, pair, venue string) (VenueQuote, error)
	// GetPairQuotes returns the latest quote from every venue that has one
	// for the pair. Venues with no cached quote are simply absent.
	GetPairQuotes(ctx context.Context, pair string, venues []string) ([]VenueQuote, error)
	History(ctx context.Context, pair, venue string, limit int) ([]VenueQuote, error)
}

// TaskEventStream is the durable stream carrying task lifecycle events. The
// dispatcher appends to it; the task API reads it back for audit.
const TaskEventStream = "tasks:events"

// StreamMessage is a single entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out plus durable ordered streams. The
// engine publishes opportunity, execution, risk, and task events on it; the
// WebSocket hub and workers subscribe.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter provides distributed request rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
