package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Append inserts one execution result. Rows are never updated afterwards.
func (s *ExecutionStore) Append(ctx context.Context, res domain.ExecutionResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_results (id, opportunity_id, pair, outcome, success, realized_pnl, gas_used, error_class, duration_ms, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		res.ID, res.OpportunityID, res.Pair, string(res.Outcome), res.Success,
		res.RealizedPnL, res.GasUsed, res.ErrorClass, res.Duration.Milliseconds(), res.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution result: %w", err)
	}
	return nil
}

// ListRecent returns the newest results first.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, pair, outcome, success, realized_pnl, gas_used, error_class, duration_ms, executed_at
		FROM execution_results
		ORDER BY executed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// ListBefore returns results executed before cutoff, oldest first, for
// archival.
func (s *ExecutionStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExecutionResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, pair, outcome, success, realized_pnl, gas_used, error_class, duration_ms, executed_at
		FROM execution_results
		WHERE executed_at < $1
		ORDER BY executed_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions before: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// DeleteBefore purges results executed before cutoff.
func (s *ExecutionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM execution_results WHERE executed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Aggregates computes the running totals over the whole history log.
func (s *ExecutionStore) Aggregates(ctx context.Context) (domain.EngineMetrics, error) {
	var m domain.EngineMetrics
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE outcome <> 'blocked'),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE outcome = 'failed'),
			COALESCE(SUM(realized_pnl) FILTER (WHERE success), 0),
			COALESCE(SUM(gas_used), 0)
		FROM execution_results`,
	).Scan(&m.TotalTrades, &m.Succeeded, &m.Failed, &m.TotalProfit, &m.TotalCosts)
	if err != nil {
		return domain.EngineMetrics{}, fmt.Errorf("postgres: execution aggregates: %w", err)
	}
	return m, nil
}

func scanExecutions(rows pgx.Rows) ([]domain.ExecutionResult, error) {
	var out []domain.ExecutionResult
	for rows.Next() {
		var (
			res        domain.ExecutionResult
			outcome    string
			durationMs int64
		)
		if err := rows.Scan(
			&res.ID, &res.OpportunityID, &res.Pair, &outcome, &res.Success,
			&res.RealizedPnL, &res.GasUsed, &res.ErrorClass, &durationMs, &res.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan execution result: %w", err)
		}
		res.Outcome = domain.ExecutionOutcome(outcome)
		res.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate execution results: %w", err)
	}
	return out, nil
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)
