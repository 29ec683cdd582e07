package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

func newTestTracker(store *fakePositionStore, plans *fakePlanStore, market *fakeMarket, locks *fakeLockManager) (*Tracker, *fakeSender, *fakeEventStore) {
	sender := &fakeSender{}
	proc, events, _ := newTestProcessor(store, sender, false)
	tracker := NewTracker(store, plans, market, newFakeQuoteCache(), locks, proc, TrackerConfig{
		Interval:    30 * time.Second,
		QuoteTTL:    5 * time.Second,
		LockTTL:     2 * time.Minute,
		MarketOpen:  "09:30",
		MarketClose: "16:00",
		Timezone:    "America/New_York",
	}, testLogger())
	return tracker, sender, events
}

func TestTickFiresTakeProfit(t *testing.T) {
	p := openOptionPosition("p1")
	store := newFakePositionStore(p)
	plans := newFakePlanStore(twoLevelPlan("p1"))
	// The print overshoots the 120 target; the exit still books at 120.
	market := &fakeMarket{options: map[string]float64{p.Contract: 121}}
	tracker, sender, events := newTestTracker(store, plans, market, &fakeLockManager{})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 1, res.Exits)

	got := store.get("p1")
	assert.Equal(t, 1, got.TPHitLevel)
	assert.Equal(t, 50, got.ClosedUnits)
	assert.InDelta(t, 1000.0, got.RealizedPnL, 1e-9, "(120-100)*50, not (121-100)*50")
	assert.Equal(t, 1, sender.count())

	require.Len(t, events.events, 1)
	assert.InDelta(t, 120.0, events.events[0].TriggerPrice, 1e-9, "level target, not the observed print")
}

func TestTickFiresStaticStopLoss(t *testing.T) {
	p := openOptionPosition("p1")
	store := newFakePositionStore(p)
	plans := newFakePlanStore(twoLevelPlan("p1"))
	// Entry 100, 10% stop: reference is 90. Observed 85 breaches it.
	market := &fakeMarket{options: map[string]float64{p.Contract: 85}}
	tracker, _, events := newTestTracker(store, plans, market, &fakeLockManager{})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exits)

	got := store.get("p1")
	assert.True(t, got.SLHit)
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
	require.NotNil(t, got.ExitPrice)
	assert.InDelta(t, 90.0, *got.ExitPrice, 1e-9, "stop reference, not the observed print")

	require.Len(t, events.events, 1)
	assert.Equal(t, domain.ExitStopLoss, events.events[0].Kind)
}

func TestTickTrailingStopTakesPrecedence(t *testing.T) {
	p := openOptionPosition("p1")
	peak := 150.0
	p.HighestPrice = &peak
	store := newFakePositionStore(p)

	plan := twoLevelPlan("p1")
	plan.Trailing = &domain.TrailingStop{Trigger: domain.TrailFromEntry, Percent: 15}
	plans := newFakePlanStore(plan)

	// Floor = 150 * 0.85 = 127.50. Observed 126 breaches the floor while
	// sitting far above the static 90 stop and above the TP1 target.
	market := &fakeMarket{options: map[string]float64{p.Contract: 126}}
	tracker, _, events := newTestTracker(store, plans, market, &fakeLockManager{})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exits)

	got := store.get("p1")
	assert.True(t, got.SLHit)
	require.NotNil(t, got.ExitPrice)
	assert.InDelta(t, 127.50, *got.ExitPrice, 1e-9)

	require.Len(t, events.events, 1)
	assert.Equal(t, domain.ExitStopLoss, events.events[0].Kind)
	assert.Equal(t, 0, events.events[0].Level)
}

func TestTickTrailingFloorBoundary(t *testing.T) {
	newFixture := func(price float64) (*Tracker, *fakePositionStore) {
		p := openOptionPosition("p1")
		peak := 150.0
		p.HighestPrice = &peak
		store := newFakePositionStore(p)

		plan := twoLevelPlan("p1")
		plan.StopLoss = nil
		plan.Levels = plan.Levels[:1]
		plan.Levels[0].Value = 200 // out of reach
		plan.Trailing = &domain.TrailingStop{Trigger: domain.TrailFromEntry, Percent: 15}
		plans := newFakePlanStore(plan)

		market := &fakeMarket{options: map[string]float64{p.Contract: price}}
		tracker, _, _ := newTestTracker(store, plans, market, &fakeLockManager{})
		return tracker, store
	}

	// Floor = 150 * 0.85 = 127.50. A print just above must hold.
	tracker, store := newFixture(128)
	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exits)
	assert.Equal(t, domain.PositionStatusOpen, store.get("p1").Status)

	// A print just below fires at the floor.
	tracker, store = newFixture(127)
	res, err = tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exits)
	got := store.get("p1")
	assert.True(t, got.SLHit)
	require.NotNil(t, got.ExitPrice)
	assert.InDelta(t, 127.50, *got.ExitPrice, 1e-9)
}

func TestTickRaisesPeakWithoutExit(t *testing.T) {
	p := openOptionPosition("p1")
	store := newFakePositionStore(p)

	plan := twoLevelPlan("p1")
	plan.StopLoss = nil
	plan.Levels = plan.Levels[:1]
	plan.Levels[0].Value = 200 // out of reach
	plan.Trailing = &domain.TrailingStop{Trigger: domain.TrailFromEntry, Percent: 15}
	plans := newFakePlanStore(plan)

	market := &fakeMarket{options: map[string]float64{p.Contract: 110}}
	tracker, _, _ := newTestTracker(store, plans, market, &fakeLockManager{})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exits)

	got := store.get("p1")
	require.NotNil(t, got.HighestPrice)
	assert.InDelta(t, 110.0, *got.HighestPrice, 1e-9, "new peak persisted")
	assert.Equal(t, domain.PositionStatusOpen, got.Status)
}

func TestTickTrailingInactiveBeforeTriggerLevel(t *testing.T) {
	p := openOptionPosition("p1")
	peak := 150.0
	p.HighestPrice = &peak
	store := newFakePositionStore(p)

	plan := twoLevelPlan("p1")
	plan.StopLoss = nil
	plan.Levels = plan.Levels[:1]
	plan.Levels[0].Value = 200 // out of reach
	plan.Trailing = &domain.TrailingStop{Trigger: domain.TrailFromTP, TriggerLevel: 1, Percent: 15}
	plans := newFakePlanStore(plan)

	// 126 would breach the trailing floor, but no TP level has been hit yet
	// so the trail is not armed, and the TP target sits out of reach.
	market := &fakeMarket{options: map[string]float64{p.Contract: 126}}
	tracker, _, _ := newTestTracker(store, plans, market, &fakeLockManager{})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exits)
	assert.Equal(t, domain.PositionStatusOpen, store.get("p1").Status)
}

func TestTickRaisedStopAfterLevelHit(t *testing.T) {
	p := openOptionPosition("p1")
	p.TPHitLevel = 1
	p.ClosedUnits = 50
	p.RealizedPnL = 1000
	store := newFakePositionStore(p)

	plan := twoLevelPlan("p1")
	plan.Levels[0].RaiseStop = &domain.StopRaise{Target: domain.RaiseToEntry}
	plans := newFakePlanStore(plan)

	// 98 sits above the original 90 stop but below the raised-to-entry 100.
	market := &fakeMarket{options: map[string]float64{p.Contract: 98}}
	tracker, _, _ := newTestTracker(store, plans, market, &fakeLockManager{})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Exits)

	got := store.get("p1")
	assert.True(t, got.SLHit)
	require.NotNil(t, got.ExitPrice)
	assert.InDelta(t, 100.0, *got.ExitPrice, 1e-9)
}

func TestTickSkippedWhenLockHeld(t *testing.T) {
	store := newFakePositionStore(openOptionPosition("p1"))
	plans := newFakePlanStore(twoLevelPlan("p1"))
	market := &fakeMarket{options: map[string]float64{"O:AAPL260116C00190000": 121}}
	tracker, _, _ := newTestTracker(store, plans, market, &fakeLockManager{held: true})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, res.Evaluated)
}

func TestTickMemoizesQuotesPerSymbol(t *testing.T) {
	a := openOptionPosition("p1")
	b := openOptionPosition("p2")
	store := newFakePositionStore(a, b)

	// Quiet plans, no triggers at 105.
	planA := twoLevelPlan("p1")
	planB := twoLevelPlan("p2")
	plans := newFakePlanStore(planA, planB)

	market := &fakeMarket{options: map[string]float64{a.Contract: 105}}
	tracker, _, _ := newTestTracker(store, plans, market, &fakeLockManager{})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 0, res.Exits)
	assert.Equal(t, 1, market.calls, "second position served from the cache")
}

func TestTickMissingQuoteSkipsPosition(t *testing.T) {
	p := openOptionPosition("p1")
	store := newFakePositionStore(p)
	plans := newFakePlanStore(twoLevelPlan("p1"))
	market := &fakeMarket{options: map[string]float64{}}
	tracker, _, _ := newTestTracker(store, plans, market, &fakeLockManager{})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, 0, res.Exits)
	assert.Equal(t, 0, res.Errors, "a missing quote is a skip, not an error")
}

func TestTickMissingPlanSkipsPosition(t *testing.T) {
	p := openOptionPosition("p1")
	store := newFakePositionStore(p)
	market := &fakeMarket{options: map[string]float64{p.Contract: 121}}
	tracker, _, _ := newTestTracker(store, newFakePlanStore(), market, &fakeLockManager{})

	res, err := tracker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Exits)
	assert.Equal(t, 0, res.Errors)
}

func TestMarketOpen(t *testing.T) {
	tracker, _, _ := newTestTracker(newFakePositionStore(), newFakePlanStore(), &fakeMarket{}, &fakeLockManager{})

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Wednesday mid-session.
	assert.True(t, tracker.marketOpen(time.Date(2025, 6, 4, 12, 0, 0, 0, ny)))
	// Wednesday pre-open and post-close.
	assert.False(t, tracker.marketOpen(time.Date(2025, 6, 4, 9, 0, 0, 0, ny)))
	assert.False(t, tracker.marketOpen(time.Date(2025, 6, 4, 16, 30, 0, 0, ny)))
	// Saturday.
	assert.False(t, tracker.marketOpen(time.Date(2025, 6, 7, 12, 0, 0, 0, ny)))
}
