package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, user_id, idea_id, status, mode, instrument, symbol,
	contract, option_side, strike, expiration, quantity, multiplier,
	tp_hit_level, sl_hit, closed_units, realized_pnl,
	entry_price, exit_price, highest_price, opened_at, closed_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status, mode, instrument string
	var ideaID, contract, side, expiration *string
	var strike *float64

	err := row.Scan(
		&p.ID, &p.UserID, &ideaID, &status, &mode, &instrument, &p.Symbol,
		&contract, &side, &strike, &expiration, &p.Quantity, &p.Multiplier,
		&p.TPHitLevel, &p.SLHit, &p.ClosedUnits, &p.RealizedPnL,
		&p.EntryPrice, &p.ExitPrice, &p.HighestPrice, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	p.Mode = domain.TrackingMode(mode)
	p.Instrument = domain.Instrument(instrument)
	if ideaID != nil {
		p.IdeaID = *ideaID
	}
	if contract != nil {
		p.Contract = *contract
	}
	if side != nil {
		p.OptionSide = domain.OptionSide(*side)
	}
	if strike != nil {
		p.Strike = *strike
	}
	if expiration != nil {
		p.Expiration = *expiration
	}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, user_id, idea_id, status, mode, instrument, symbol,
			contract, option_side, strike, expiration, quantity, multiplier,
			tp_hit_level, sl_hit, closed_units, realized_pnl,
			entry_price, exit_price, highest_price, opened_at, closed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21, $22, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.UserID, nullable(p.IdeaID), string(p.Status), string(p.Mode),
		string(p.Instrument), p.Symbol,
		nullable(p.Contract), nullable(string(p.OptionSide)), p.Strike,
		nullable(p.Expiration), p.Quantity, p.Multiplier,
		p.TPHitLevel, p.SLHit, p.ClosedUnits, p.RealizedPnL,
		p.EntryPrice, p.ExitPrice, p.HighestPrice, p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// GetByID retrieves a single position by its ID.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpenAuto returns open positions under automatic tracking.
func (s *PositionStore) ListOpenAuto(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open' AND mode = 'auto'
		 ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open auto positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open auto positions: %w", err)
	}
	return positions, nil
}

// ListOpen returns all open positions regardless of mode.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListHistory returns positions for the given user with pagination and
// optional time filtering.
func (s *PositionStore) ListHistory(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}

// ListClosedBetween returns positions closed inside [since, until).
func (s *PositionStore) ListClosedBetween(ctx context.Context, since, until time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed' AND closed_at >= $1 AND closed_at < $2
		 ORDER BY closed_at`, since, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// ApplyExit commits an exit mutation guarded by the tracking state the
// caller observed. A zero-row update means another writer advanced the
// position first and the caller must re-read and re-evaluate.
func (s *PositionStore) ApplyExit(ctx context.Context, u domain.ExitUpdate) error {
	const query = `
		UPDATE positions SET
			tp_hit_level = $3,
			sl_hit       = $4,
			closed_units = $5,
			realized_pnl = $6,
			status       = $7,
			exit_price   = $8,
			closed_at    = $9,
			updated_at   = NOW()
		WHERE id = $1
		  AND status = 'open'
		  AND tp_hit_level = $2
		  AND sl_hit = FALSE`

	tag, err := s.pool.Exec(ctx, query,
		u.ID, u.ExpectTPHitLevel,
		u.TPHitLevel, u.SLHit, u.ClosedUnits, u.RealizedPnL,
		string(u.Status), u.ExitPrice, u.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply exit to position %s: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

// RaiseHighestPrice persists a new trailing-stop peak. The guard makes the
// write monotonic, so stale observers can never lower the stored peak.
func (s *PositionStore) RaiseHighestPrice(ctx context.Context, id string, price float64) error {
	const query = `
		UPDATE positions SET
			highest_price = $2,
			updated_at    = NOW()
		WHERE id = $1
		  AND status = 'open'
		  AND (highest_price IS NULL OR highest_price < $2)`

	if _, err := s.pool.Exec(ctx, query, id, price); err != nil {
		return fmt.Errorf("postgres: raise highest price for %s: %w", id, err)
	}
	return nil
}
