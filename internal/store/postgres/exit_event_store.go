package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// ExitEventStore implements domain.ExitEventStore using PostgreSQL.
type ExitEventStore struct {
	pool *pgxpool.Pool
}

var _ domain.ExitEventStore = (*ExitEventStore)(nil)

// NewExitEventStore creates an ExitEventStore backed by the given pool.
func NewExitEventStore(pool *pgxpool.Pool) *ExitEventStore {
	return &ExitEventStore{pool: pool}
}

const exitEventSelectCols = `id, position_id, symbol, kind, level,
	trigger_price, units_closed, realized_pnl, stop_raise, full_close, created_at`

func scanExitEvents(rows pgx.Rows) ([]domain.ExitEvent, error) {
	var events []domain.ExitEvent
	for rows.Next() {
		var e domain.ExitEvent
		var kind string
		if err := rows.Scan(
			&e.ID, &e.PositionID, &e.Symbol, &kind, &e.Level,
			&e.TriggerPrice, &e.UnitsClosed, &e.RealizedPnL,
			&e.StopRaise, &e.FullClose, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.Kind = domain.ExitKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Append records one applied exit.
func (s *ExitEventStore) Append(ctx context.Context, e domain.ExitEvent) error {
	const query = `
		INSERT INTO exit_events (
			id, position_id, symbol, kind, level,
			trigger_price, units_closed, realized_pnl, stop_raise, full_close, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.PositionID, e.Symbol, string(e.Kind), e.Level,
		e.TriggerPrice, e.UnitsClosed, e.RealizedPnL, e.StopRaise, e.FullClose, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append exit event for %s: %w", e.PositionID, err)
	}
	return nil
}

// ListByPosition returns a position's exit trail in order.
func (s *ExitEventStore) ListByPosition(ctx context.Context, positionID string) ([]domain.ExitEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+exitEventSelectCols+` FROM exit_events
		 WHERE position_id = $1 ORDER BY created_at`, positionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exit events for %s: %w", positionID, err)
	}
	defer rows.Close()

	events, err := scanExitEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan exit events: %w", err)
	}
	return events, nil
}

// ListBetween returns every exit recorded inside [since, until).
func (s *ExitEventStore) ListBetween(ctx context.Context, since, until time.Time) ([]domain.ExitEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+exitEventSelectCols+` FROM exit_events
		 WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`, since, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list exit events: %w", err)
	}
	defer rows.Close()

	events, err := scanExitEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan exit events: %w", err)
	}
	return events, nil
}
