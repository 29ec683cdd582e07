package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crownedlabs/tradetrack/internal/domain"
	"github.com/crownedlabs/tradetrack/internal/notify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pct(v float64) *float64 { return &v }

// openOptionPosition is 1 call contract at multiplier 100: 100 display
// units, entry 100.00.
func openOptionPosition(id string) domain.Position {
	return domain.Position{
		ID:         id,
		UserID:     "u1",
		Status:     domain.PositionStatusOpen,
		Mode:       domain.ModeAuto,
		Instrument: domain.InstrumentOptions,
		Symbol:     "AAPL",
		Contract:   "O:AAPL260116C00190000",
		OptionSide: domain.Call,
		Quantity:   1,
		Multiplier: 100,
		EntryPrice: 100,
		OpenedAt:   time.Now().UTC(),
	}
}

func twoLevelPlan(id string) domain.TradePlan {
	return domain.TradePlan{
		PositionID: id,
		Levels: []domain.TakeProfitLevel{
			{Kind: domain.TPPercent, Value: 20, TakeoffPct: pct(50)},
			{Kind: domain.TPPercent, Value: 40},
		},
		StopLoss: &domain.StopLossRule{Kind: domain.StopPercent, Value: 10},
	}
}

func newTestProcessor(store *fakePositionStore, sender *fakeSender, dryRun bool) (*ExitProcessor, *fakeEventStore, *fakeBus) {
	events := &fakeEventStore{}
	bus := newFakeBus()
	var senders []notify.Sender
	if sender != nil {
		senders = []notify.Sender{sender}
	}
	notifier := notify.NewNotifier(senders, testLogger())
	return NewExitProcessor(store, events, notifier, bus, dryRun, testLogger()), events, bus
}

func TestApplyPartialTakeProfit(t *testing.T) {
	p := openOptionPosition("p1")
	store := newFakePositionStore(p)
	sender := &fakeSender{}
	proc, events, bus := newTestProcessor(store, sender, false)

	event, err := proc.Apply(context.Background(), ExitRequest{
		Position: p,
		Plan:     twoLevelPlan("p1"),
		Kind:     domain.ExitTakeProfit,
		Level:    1,
		Price:    120,
	})
	require.NoError(t, err)

	// 50% of 100 remaining units at +20.00 each.
	assert.Equal(t, 50, event.UnitsClosed)
	assert.InDelta(t, 1000.0, event.RealizedPnL, 1e-9)
	assert.False(t, event.FullClose)

	got := store.get("p1")
	assert.Equal(t, 1, got.TPHitLevel)
	assert.Equal(t, 50, got.ClosedUnits)
	assert.InDelta(t, 1000.0, got.RealizedPnL, 1e-9)
	assert.Equal(t, domain.PositionStatusOpen, got.Status)
	assert.Nil(t, got.ExitPrice)

	assert.Equal(t, 1, sender.count())
	assert.Len(t, events.events, 1)
	assert.Len(t, bus.payloads[exitStream], 1)
}

func TestApplyFinalLevelClosesPosition(t *testing.T) {
	p := openOptionPosition("p1")
	p.TPHitLevel = 1
	p.ClosedUnits = 50
	p.RealizedPnL = 1000
	store := newFakePositionStore(p)
	proc, _, _ := newTestProcessor(store, &fakeSender{}, false)

	event, err := proc.Apply(context.Background(), ExitRequest{
		Position: p,
		Plan:     twoLevelPlan("p1"),
		Kind:     domain.ExitTakeProfit,
		Level:    2,
		Price:    140,
	})
	require.NoError(t, err)

	assert.Equal(t, 50, event.UnitsClosed)
	assert.InDelta(t, 2000.0, event.RealizedPnL, 1e-9)
	assert.True(t, event.FullClose)

	got := store.get("p1")
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
	assert.Equal(t, 100, got.ClosedUnits)
	assert.InDelta(t, 3000.0, got.RealizedPnL, 1e-9)
	require.NotNil(t, got.ExitPrice)
	assert.InDelta(t, 140.0, *got.ExitPrice, 1e-9)
	assert.NotNil(t, got.ClosedAt)
}

func TestApplyStopLossClosesRemaining(t *testing.T) {
	p := openOptionPosition("p1")
	p.TPHitLevel = 1
	p.ClosedUnits = 50
	p.RealizedPnL = 1000
	store := newFakePositionStore(p)
	proc, _, _ := newTestProcessor(store, &fakeSender{}, false)

	event, err := proc.Apply(context.Background(), ExitRequest{
		Position: p,
		Plan:     twoLevelPlan("p1"),
		Kind:     domain.ExitStopLoss,
		Price:    90,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.ExitStopLoss, event.Kind)
	assert.Equal(t, 50, event.UnitsClosed)
	assert.InDelta(t, -500.0, event.RealizedPnL, 1e-9)
	assert.True(t, event.FullClose)

	got := store.get("p1")
	assert.True(t, got.SLHit)
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
	assert.InDelta(t, 500.0, got.RealizedPnL, 1e-9, "stop loss nets against banked profit")
}

func TestApplySkipsClosedPosition(t *testing.T) {
	p := openOptionPosition("p1")
	p.Status = domain.PositionStatusClosed
	store := newFakePositionStore(p)
	sender := &fakeSender{}
	proc, events, _ := newTestProcessor(store, sender, false)

	event, err := proc.Apply(context.Background(), ExitRequest{
		Position: p,
		Plan:     twoLevelPlan("p1"),
		Kind:     domain.ExitTakeProfit,
		Level:    1,
		Price:    120,
	})
	require.NoError(t, err)
	assert.Empty(t, event.ID)
	assert.Equal(t, 0, sender.count())
	assert.Empty(t, events.events)
}

func TestApplySkipsAdvancedLevel(t *testing.T) {
	p := openOptionPosition("p1")
	p.TPHitLevel = 1
	store := newFakePositionStore(p)
	proc, events, _ := newTestProcessor(store, &fakeSender{}, false)

	// The caller observed level 0 and wants level 1, but the store already
	// shows level 1 hit.
	event, err := proc.Apply(context.Background(), ExitRequest{
		Position: openOptionPosition("p1"),
		Plan:     twoLevelPlan("p1"),
		Kind:     domain.ExitTakeProfit,
		Level:    1,
		Price:    120,
	})
	require.NoError(t, err)
	assert.Empty(t, event.ID)
	assert.Empty(t, events.events)
}

func TestApplyNotifyFailureAbortsCommit(t *testing.T) {
	p := openOptionPosition("p1")
	store := newFakePositionStore(p)
	sender := &fakeSender{fail: true}
	proc, events, _ := newTestProcessor(store, sender, false)

	_, err := proc.Apply(context.Background(), ExitRequest{
		Position: p,
		Plan:     twoLevelPlan("p1"),
		Kind:     domain.ExitTakeProfit,
		Level:    1,
		Price:    120,
	})
	require.ErrorIs(t, err, domain.ErrNotifyFail)

	got := store.get("p1")
	assert.Equal(t, 0, got.TPHitLevel, "nothing committed")
	assert.Equal(t, 0, got.ClosedUnits)
	assert.Empty(t, events.events)
}

func TestApplyConflictSurfaces(t *testing.T) {
	p := openOptionPosition("p1")
	store := newFakePositionStore(p)
	store.failApply = domain.ErrConflict
	proc, events, _ := newTestProcessor(store, &fakeSender{}, false)

	_, err := proc.Apply(context.Background(), ExitRequest{
		Position: p,
		Plan:     twoLevelPlan("p1"),
		Kind:     domain.ExitTakeProfit,
		Level:    1,
		Price:    120,
	})
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, events.events)
}

func TestApplyDryRunCommitsNothing(t *testing.T) {
	p := openOptionPosition("p1")
	store := newFakePositionStore(p)
	sender := &fakeSender{}
	proc, events, _ := newTestProcessor(store, sender, true)

	event, err := proc.Apply(context.Background(), ExitRequest{
		Position: p,
		Plan:     twoLevelPlan("p1"),
		Kind:     domain.ExitTakeProfit,
		Level:    1,
		Price:    120,
	})
	require.NoError(t, err)
	assert.Equal(t, 50, event.UnitsClosed, "math still computed")

	got := store.get("p1")
	assert.Equal(t, 0, got.TPHitLevel)
	assert.Equal(t, 0, sender.count())
	assert.Empty(t, events.events)
}
