// Package service holds the position tracking, exit, selection, and
// reconciliation logic.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/crownedlabs/tradetrack/internal/domain"
	"github.com/crownedlabs/tradetrack/internal/notify"
)

// exitStream is the signal bus stream applied exits are published to.
const exitStream = "tradetrack:exits"

// ExitRequest describes a triggered exit the caller wants applied. Position
// and Plan are the state the caller observed when the trigger fired; the
// processor re-reads the position and re-validates before committing.
type ExitRequest struct {
	Position domain.Position
	Plan     domain.TradePlan
	Kind     domain.ExitKind
	Level    int     // 1-based take-profit level; ignored for stop-loss exits
	Price    float64 // trigger/exit price
}

// ExitProcessor applies take-profit and stop-loss exits: it re-validates the
// position against the store, computes the close-out, notifies, and commits
// with a compare-and-set guard. Notification happens before the commit so an
// exit is never recorded silently; a delivery failure aborts the attempt and
// the next tracking pass retries the whole exit.
type ExitProcessor struct {
	positions domain.PositionStore
	events    domain.ExitEventStore
	notifier  *notify.Notifier
	bus       domain.SignalBus
	dryRun    bool
	logger    *slog.Logger
}

// NewExitProcessor creates an ExitProcessor. bus may be nil.
func NewExitProcessor(positions domain.PositionStore, events domain.ExitEventStore, notifier *notify.Notifier, bus domain.SignalBus, dryRun bool, logger *slog.Logger) *ExitProcessor {
	return &ExitProcessor{
		positions: positions,
		events:    events,
		notifier:  notifier,
		bus:       bus,
		dryRun:    dryRun,
		logger:    logger.With(slog.String("component", "exit_processor")),
	}
}

// Apply executes one exit end to end. It returns the recorded event, or
// ErrConflict when another writer advanced the position first. An already
// closed or already advanced position is a silent no-op, not an error:
// whoever advanced it already handled the exit.
func (ep *ExitProcessor) Apply(ctx context.Context, req ExitRequest) (domain.ExitEvent, error) {
	// Refresh from the store: the observed state may be stale by the time
	// the trigger fires.
	p, err := ep.positions.GetByID(ctx, req.Position.ID)
	if err != nil {
		return domain.ExitEvent{}, fmt.Errorf("service: exit refresh %s: %w", req.Position.ID, err)
	}
	if p.Status != domain.PositionStatusOpen || p.SLHit {
		ep.logger.Info("exit skipped, position already advanced",
			slog.String("position", p.ID), slog.String("status", string(p.Status)))
		return domain.ExitEvent{}, nil
	}
	if req.Kind == domain.ExitTakeProfit && req.Level != p.TPHitLevel+1 {
		ep.logger.Info("exit skipped, take-profit level already advanced",
			slog.String("position", p.ID),
			slog.Int("level", req.Level), slog.Int("tp_hit_level", p.TPHitLevel))
		return domain.ExitEvent{}, nil
	}

	event, update := ep.compute(p, req)

	if ep.dryRun {
		ep.logger.Info("dry run, exit not applied",
			slog.String("position", p.ID),
			slog.String("kind", string(event.Kind)),
			slog.Int("level", event.Level),
			slog.Float64("price", event.TriggerPrice),
			slog.Int("units", event.UnitsClosed))
		return event, nil
	}

	// Notify before committing. A failed delivery aborts the exit; the
	// trigger still holds next pass so nothing is lost.
	if ep.notifier.HasSenders() {
		if err := ep.notifier.Send(ctx, exitMessage(p, event)); err != nil {
			return domain.ExitEvent{}, fmt.Errorf("service: exit notify %s: %w", p.ID, domain.ErrNotifyFail)
		}
	}

	if err := ep.positions.ApplyExit(ctx, update); err != nil {
		return domain.ExitEvent{}, fmt.Errorf("service: exit commit %s: %w", p.ID, err)
	}

	// The exit is committed; the audit trail and bus are best-effort.
	if err := ep.events.Append(ctx, event); err != nil {
		ep.logger.Error("exit event append failed",
			slog.String("position", p.ID), slog.String("error", err.Error()))
	}
	ep.publish(ctx, event)

	ep.logger.Info("exit applied",
		slog.String("position", p.ID),
		slog.String("symbol", p.Symbol),
		slog.String("kind", string(event.Kind)),
		slog.Int("level", event.Level),
		slog.Float64("price", event.TriggerPrice),
		slog.Int("units_closed", event.UnitsClosed),
		slog.Bool("full_close", event.FullClose))
	return event, nil
}

// compute derives the close-out math and the guarded store mutation from the
// refreshed position state.
func (ep *ExitProcessor) compute(p domain.Position, req ExitRequest) (domain.ExitEvent, domain.ExitUpdate) {
	remaining := p.RemainingUnits()

	// A stop-loss or the final take-profit level closes out everything that
	// is left; intermediate levels close a fraction of the remaining size.
	fullClose := req.Kind == domain.ExitStopLoss || req.Level >= len(req.Plan.Levels)

	var units int
	var stopRaise string
	if req.Kind == domain.ExitTakeProfit {
		if lvl := req.Level; lvl >= 1 && lvl <= len(req.Plan.Levels) {
			stopRaise = describeRaise(req.Plan.Levels[lvl-1].RaiseStop)
		}
	}
	if fullClose {
		units = remaining
	} else {
		takeoff := decimal.NewFromFloat(req.Plan.TakeoffPct(req.Level))
		units = int(decimal.NewFromInt(int64(remaining)).
			Mul(takeoff).Div(decimal.NewFromInt(100)).
			Round(0).IntPart())
		if units >= remaining {
			units = remaining
			fullClose = true
		}
	}

	price := decimal.NewFromFloat(req.Price)
	entry := decimal.NewFromFloat(p.EntryPrice)
	pnlDelta := price.Sub(entry).Mul(decimal.NewFromInt(int64(units))).InexactFloat64()

	now := time.Now().UTC()
	event := domain.ExitEvent{
		ID:           uuid.New().String(),
		PositionID:   p.ID,
		Symbol:       p.Symbol,
		Kind:         req.Kind,
		Level:        req.Level,
		TriggerPrice: req.Price,
		UnitsClosed:  units,
		RealizedPnL:  pnlDelta,
		StopRaise:    stopRaise,
		FullClose:    fullClose,
		CreatedAt:    now,
	}

	update := domain.ExitUpdate{
		ID:               p.ID,
		ExpectTPHitLevel: p.TPHitLevel,
		TPHitLevel:       p.TPHitLevel,
		SLHit:            p.SLHit,
		ClosedUnits:      p.ClosedUnits + units,
		RealizedPnL:      p.RealizedPnL + pnlDelta,
		Status:           domain.PositionStatusOpen,
	}
	if req.Kind == domain.ExitTakeProfit {
		update.TPHitLevel = req.Level
	} else {
		update.SLHit = true
	}
	if fullClose {
		update.Status = domain.PositionStatusClosed
		exitPrice := req.Price
		update.ExitPrice = &exitPrice
		closedAt := now
		update.ClosedAt = &closedAt
	}
	return event, update
}

func (ep *ExitProcessor) publish(ctx context.Context, event domain.ExitEvent) {
	if ep.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := ep.bus.Publish(ctx, exitStream, payload); err != nil {
		ep.logger.Warn("exit publish failed",
			slog.String("position", event.PositionID), slog.String("error", err.Error()))
	}
}

func exitMessage(p domain.Position, e domain.ExitEvent) notify.Message {
	title := fmt.Sprintf("TP%d hit: %s", e.Level, p.Symbol)
	if e.Kind == domain.ExitStopLoss {
		title = "Stop loss hit: " + p.Symbol
	}
	if e.FullClose {
		title += " (position closed)"
	}

	fields := []notify.Field{
		{Name: "Symbol", Value: p.Symbol, Inline: true},
		{Name: "Price", Value: fmt.Sprintf("%.2f", e.TriggerPrice), Inline: true},
		{Name: "Entry", Value: fmt.Sprintf("%.2f", p.EntryPrice), Inline: true},
		{Name: "Units closed", Value: fmt.Sprintf("%d", e.UnitsClosed), Inline: true},
		{Name: "Realized PnL", Value: fmt.Sprintf("%+.2f", e.RealizedPnL), Inline: true},
	}
	if p.Contract != "" {
		fields = append(fields, notify.Field{Name: "Contract", Value: p.Contract, Inline: true})
	}
	if e.StopRaise != "" {
		fields = append(fields, notify.Field{Name: "Stop raised", Value: e.StopRaise, Inline: true})
	}
	return notify.Message{Title: title, Fields: fields}
}

func describeRaise(r *domain.StopRaise) string {
	if r == nil {
		return ""
	}
	switch r.Target {
	case domain.RaiseToEntry:
		return "to entry"
	case domain.RaiseToPrice:
		return fmt.Sprintf("to %.2f", r.Value)
	case domain.RaiseToOffset:
		return fmt.Sprintf("to entry %+.1f%%", r.Value)
	default:
		return ""
	}
}
