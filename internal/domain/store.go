package domain

import (
	"context"
	"time"
)

// ExitUpdate is the compare-and-set mutation an applied exit writes to a
// position. ExpectTPHitLevel is the level the writer observed; the update is
// rejected with ErrConflict when another writer advanced the position first.
type ExitUpdate struct {
	ID               string
	ExpectTPHitLevel int

	TPHitLevel  int
	SLHit       bool
	ClosedUnits int
	RealizedPnL float64
	Status      PositionStatus
	ExitPrice   *float64
	ClosedAt    *time.Time
}

// ListOpts paginates history queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore is durable, queryable persistence for positions.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	// ListOpenAuto returns every open position tracked by the scheduler.
	ListOpenAuto(ctx context.Context) ([]Position, error)
	// ListOpen returns all open positions regardless of mode.
	ListOpen(ctx context.Context) ([]Position, error)
	ListHistory(ctx context.Context, userID string, opts ListOpts) ([]Position, error)
	// ListClosedBetween returns positions closed inside [since, until).
	ListClosedBetween(ctx context.Context, since, until time.Time) ([]Position, error)
	// ApplyExit commits an exit mutation if and only if the position is still
	// open, at the expected TP level, and not stop-loss-hit. Returns
	// ErrConflict when the guard fails.
	ApplyExit(ctx context.Context, u ExitUpdate) error
	// RaiseHighestPrice persists a new trailing-stop peak. The write is
	// monotonic: it only applies while the position is open and the new peak
	// exceeds the stored one.
	RaiseHighestPrice(ctx context.Context, id string, price float64) error
}

// TradePlanStore persists the typed per-position trade plan.
type TradePlanStore interface {
	Put(ctx context.Context, plan TradePlan) error
	GetByPosition(ctx context.Context, positionID string) (TradePlan, error)
}

// ExitEventStore appends and queries the exit audit trail.
type ExitEventStore interface {
	Append(ctx context.Context, e ExitEvent) error
	ListByPosition(ctx context.Context, positionID string) ([]ExitEvent, error)
	ListBetween(ctx context.Context, since, until time.Time) ([]ExitEvent, error)
}
