package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// TradePlanStore implements domain.TradePlanStore using PostgreSQL. The
// ladder, stop-loss, and trailing definitions are stored as JSONB columns so
// plan evolution never needs a schema migration.
type TradePlanStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradePlanStore = (*TradePlanStore)(nil)

// NewTradePlanStore creates a TradePlanStore backed by the given pool.
func NewTradePlanStore(pool *pgxpool.Pool) *TradePlanStore {
	return &TradePlanStore{pool: pool}
}

// Put inserts or replaces the plan for a position.
func (s *TradePlanStore) Put(ctx context.Context, plan domain.TradePlan) error {
	if len(plan.Levels) > domain.MaxTakeProfitLevels {
		return fmt.Errorf("postgres: plan for %s has %d levels, max %d",
			plan.PositionID, len(plan.Levels), domain.MaxTakeProfitLevels)
	}

	levels, err := json.Marshal(plan.Levels)
	if err != nil {
		return fmt.Errorf("postgres: marshal plan levels: %w", err)
	}
	var stopLoss, trailing []byte
	if plan.StopLoss != nil {
		if stopLoss, err = json.Marshal(plan.StopLoss); err != nil {
			return fmt.Errorf("postgres: marshal stop loss: %w", err)
		}
	}
	if plan.Trailing != nil {
		if trailing, err = json.Marshal(plan.Trailing); err != nil {
			return fmt.Errorf("postgres: marshal trailing stop: %w", err)
		}
	}

	const query = `
		INSERT INTO trade_plans (position_id, levels, stop_loss, trailing, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (position_id) DO UPDATE SET
			levels     = EXCLUDED.levels,
			stop_loss  = EXCLUDED.stop_loss,
			trailing   = EXCLUDED.trailing,
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, plan.PositionID, levels, stopLoss, trailing); err != nil {
		return fmt.Errorf("postgres: put trade plan for %s: %w", plan.PositionID, err)
	}
	return nil
}

// GetByPosition loads the plan for a position. Returns ErrPlanMissing when
// the position has none.
func (s *TradePlanStore) GetByPosition(ctx context.Context, positionID string) (domain.TradePlan, error) {
	var levels, stopLoss, trailing []byte

	err := s.pool.QueryRow(ctx,
		`SELECT levels, stop_loss, trailing FROM trade_plans WHERE position_id = $1`,
		positionID,
	).Scan(&levels, &stopLoss, &trailing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TradePlan{}, domain.ErrPlanMissing
		}
		return domain.TradePlan{}, fmt.Errorf("postgres: get trade plan for %s: %w", positionID, err)
	}

	plan := domain.TradePlan{PositionID: positionID}
	if err := json.Unmarshal(levels, &plan.Levels); err != nil {
		return domain.TradePlan{}, fmt.Errorf("postgres: unmarshal plan levels: %w", err)
	}
	if len(stopLoss) > 0 {
		plan.StopLoss = &domain.StopLossRule{}
		if err := json.Unmarshal(stopLoss, plan.StopLoss); err != nil {
			return domain.TradePlan{}, fmt.Errorf("postgres: unmarshal stop loss: %w", err)
		}
	}
	if len(trailing) > 0 {
		plan.Trailing = &domain.TrailingStop{}
		if err := json.Unmarshal(trailing, plan.Trailing); err != nil {
			return domain.TradePlan{}, fmt.Errorf("postgres: unmarshal trailing stop: %w", err)
		}
	}
	return plan, nil
}
