package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// quoteTTL bounds how long a stale quote survives in the cache when its
// venue stops publishing. Detection treats missing venues as excluded, so
// letting dead keys expire is the right behavior.
const quoteTTL = 5 * time.Minute

// historyMaxLen is the number of quotes retained per (pair, venue) history
// list, enforced with LTRIM on every append.
const historyMaxLen = 500

// QuoteCache implements domain.QuoteCache. The latest quote per (pair, venue)
// lives at "quote:{pair}:{venue}" as JSON with a TTL; a rolling history list
// lives at "quote:hist:{pair}:{venue}".
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(pair, venue string) string {
	return "quote:" + pair + ":" + venue
}

func historyKey(pair, venue string) string {
	return "quote:hist:" + pair + ":" + venue
}

// SetQuote stores the latest quote and prepends it to the rolling history.
func (qc *QuoteCache) SetQuote(ctx context.Context, quote domain.VenueQuote) error {
	data, err := json.Marshal(quote)
	if err != nil {
		return fmt.Errorf("redis: marshal quote %s/%s: %w", quote.Pair, quote.Venue, err)
	}

	pipe := qc.rdb.Pipeline()
	pipe.Set(ctx, quoteKey(quote.Pair, quote.Venue), data, quoteTTL)
	pipe.LPush(ctx, historyKey(quote.Pair, quote.Venue), data)
	pipe.LTrim(ctx, historyKey(quote.Pair, quote.Venue), 0, historyMaxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", quote.Pair, quote.Venue, err)
	}
	return nil
}

// GetQuote retrieves the latest quote for a (pair, venue). It returns
// domain.ErrNotFound when the venue has no live quote for the pair.
func (qc *QuoteCache) GetQuote(ctx context.Context, pair, venue string) (domain.VenueQuote, error) {
	data, err := qc.rdb.Get(ctx, quoteKey(pair, venue)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.VenueQuote{}, domain.ErrNotFound
		}
		return domain.VenueQuote{}, fmt.Errorf("redis: get quote %s/%s: %w", pair, venue, err)
	}

	var quote domain.VenueQuote
	if err := json.Unmarshal(data, &quote); err != nil {
		return domain.VenueQuote{}, fmt.Errorf("redis: unmarshal quote %s/%s: %w", pair, venue, err)
	}
	return quote, nil
}

// GetPairQuotes fetches the latest quotes across venues using a pipeline.
// Venues with no cached quote are simply absent from the result.
func (qc *QuoteCache) GetPairQuotes(ctx context.Context, pair string, venues []string) ([]domain.VenueQuote, error) {
	if len(venues) == 0 {
		return nil, nil
	}

	pipe := qc.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, len(venues))
	for i, venue := range venues {
		cmds[i] = pipe.Get(ctx, quoteKey(pair, venue))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get pair quotes %s: %w", pair, err)
	}

	quotes := make([]domain.VenueQuote, 0, len(venues))
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var quote domain.VenueQuote
		if err := json.Unmarshal(data, &quote); err != nil {
			return nil, fmt.Errorf("redis: unmarshal quote %s/%s: %w", pair, venues[i], err)
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// History returns the most recent quotes for a (pair, venue), newest first.
func (qc *QuoteCache) History(ctx context.Context, pair, venue string, limit int) ([]domain.VenueQuote, error) {
	if limit <= 0 || limit > historyMaxLen {
		limit = historyMaxLen
	}

	entries, err := qc.rdb.LRange(ctx, historyKey(pair, venue), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: quote history %s/%s: %w", pair, venue, err)
	}

	quotes := make([]domain.VenueQuote, 0, len(entries))
	for _, entry := range entries {
		var quote domain.VenueQuote
		if err := json.Unmarshal([]byte(entry), &quote); err != nil {
			return nil, fmt.Errorf("redis: unmarshal quote history %s/%s: %w", pair, venue, err)
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
