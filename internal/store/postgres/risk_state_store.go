package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// RiskStateStore implements domain.RiskStateStore using a single-row table
// so daily counters and pause deadlines survive restarts.
type RiskStateStore struct {
	pool *pgxpool.Pool
}

// NewRiskStateStore creates a new RiskStateStore.
func NewRiskStateStore(pool *pgxpool.Pool) *RiskStateStore {
	return &RiskStateStore{pool: pool}
}

// Load reads the singleton row. Returns domain.ErrNotFound when the engine
// has never persisted state.
func (s *RiskStateStore) Load(ctx context.Context) (domain.RiskState, error) {
	var (
		state      domain.RiskState
		pauseUntil *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT circuit_open, pause_until, pause_reason, consecutive_failures,
		       daily_trades, daily_pnl, last_reset, updated_at
		FROM risk_state WHERE id = 1`,
	).Scan(
		&state.CircuitOpen, &pauseUntil, &state.PauseReason, &state.ConsecutiveFailures,
		&state.DailyTrades, &state.DailyPnL, &state.LastReset, &state.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RiskState{}, domain.ErrNotFound
		}
		return domain.RiskState{}, fmt.Errorf("postgres: load risk state: %w", err)
	}
	if pauseUntil != nil {
		state.PauseUntil = *pauseUntil
	}
	return state, nil
}

// Save upserts the singleton row.
func (s *RiskStateStore) Save(ctx context.Context, state domain.RiskState) error {
	var pauseUntil *time.Time
	if !state.PauseUntil.IsZero() {
		pauseUntil = &state.PauseUntil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO risk_state (id, circuit_open, pause_until, pause_reason, consecutive_failures, daily_trades, daily_pnl, last_reset, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			circuit_open = EXCLUDED.circuit_open,
			pause_until = EXCLUDED.pause_until,
			pause_reason = EXCLUDED.pause_reason,
			consecutive_failures = EXCLUDED.consecutive_failures,
			daily_trades = EXCLUDED.daily_trades,
			daily_pnl = EXCLUDED.daily_pnl,
			last_reset = EXCLUDED.last_reset,
			updated_at = EXCLUDED.updated_at`,
		state.CircuitOpen, pauseUntil, state.PauseReason, state.ConsecutiveFailures,
		state.DailyTrades, state.DailyPnL, state.LastReset, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save risk state: %w", err)
	}
	return nil
}

var _ domain.RiskStateStore = (*RiskStateStore)(nil)
