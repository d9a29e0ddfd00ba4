package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sumitrevolt/flasharb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates a new OpportunityStore.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

// Insert archives an opportunity. Re-inserting the same id updates the
// status only (a selected opportunity is inserted once, then finalized).
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO opportunities (
			id, pair, status, buy_venue, buy_price, sell_venue, sell_price,
			trade_amount, impact_buy, impact_sell, gross_profit,
			flash_loan_fee, venue_fees, gas_cost, slippage_cost,
			net_profit, confidence, risk_score, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status`,
		opp.ID, opp.Pair, string(opp.Status), opp.BuyVenue, opp.BuyPrice,
		opp.SellVenue, opp.SellPrice, opp.TradeAmount, opp.ImpactBuy, opp.ImpactSell,
		opp.GrossProfit, opp.Costs.FlashLoanFee, opp.Costs.VenueFees,
		opp.Costs.GasCost, opp.Costs.SlippageCost,
		opp.NetProfit, opp.Confidence, opp.RiskScore, opp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity: %w", err)
	}
	return nil
}

// UpdateStatus moves an archived opportunity to a new status.
func (s *OpportunityStore) UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update opportunity status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a single opportunity.
func (s *OpportunityStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	row := s.pool.QueryRow(ctx, selectOpportunity+` WHERE id = $1`, id)
	opp, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbitrageOpportunity{}, domain.ErrNotFound
		}
		return domain.ArbitrageOpportunity{}, err
	}
	return opp, nil
}

// ListRecent returns the newest archived opportunities first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	rows, err := s.pool.Query(ctx, selectOpportunity+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbitrageOpportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return out, nil
}

const selectOpportunity = `
	SELECT id, pair, status, buy_venue, buy_price, sell_venue, sell_price,
	       trade_amount, impact_buy, impact_sell, gross_profit,
	       flash_loan_fee, venue_fees, gas_cost, slippage_cost,
	       net_profit, confidence, risk_score, created_at
	FROM opportunities`

func scanOpportunity(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var (
		opp    domain.ArbitrageOpportunity
		status string
	)
	err := row.Scan(
		&opp.ID, &opp.Pair, &status, &opp.BuyVenue, &opp.BuyPrice,
		&opp.SellVenue, &opp.SellPrice, &opp.TradeAmount, &opp.ImpactBuy, &opp.ImpactSell,
		&opp.GrossProfit, &opp.Costs.FlashLoanFee, &opp.Costs.VenueFees,
		&opp.Costs.GasCost, &opp.Costs.SlippageCost,
		&opp.NetProfit, &opp.Confidence, &opp.RiskScore, &opp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbitrageOpportunity{}, err
		}
		return domain.ArbitrageOpportunity{}, fmt.Errorf("postgres: scan opportunity: %w", err)
	}
	opp.Status = domain.OpportunityStatus(status)
	return opp, nil
}

var _ domain.OpportunityStore = (*OpportunityStore)(nil)
