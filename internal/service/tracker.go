package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// tickLockKey guards a whole tracking pass so a scheduled tick and a
// manually triggered one never evaluate positions concurrently.
const tickLockKey = "tracker:tick"

// TrackerConfig tunes the tracking loop.
type TrackerConfig struct {
	Interval    time.Duration
	QuoteTTL    time.Duration
	LockTTL     time.Duration
	MarketOpen  string // "09:30"
	MarketClose string // "16:00"
	Timezone    string // IANA name, e.g. "America/New_York"
}

// TickResult summarizes one tracking pass.
type TickResult struct {
	Evaluated int
	Exits     int
	Errors    int
	Skipped   bool // another pass held the lock
}

// Tracker walks every open auto-tracked position on a schedule, compares the
// current price against the position's trade plan, and hands triggered exits
// to the ExitProcessor. Evaluation order per position is trailing stop,
// then static stop-loss, then the next take-profit level; at most one exit
// fires per position per pass.
type Tracker struct {
	positions domain.PositionStore
	plans     domain.TradePlanStore
	market    domain.MarketDataProvider
	quotes    domain.QuoteCache
	locks     domain.LockManager
	exits     *ExitProcessor
	cfg       TrackerConfig
	logger    *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(
	positions domain.PositionStore,
	plans domain.TradePlanStore,
	market domain.MarketDataProvider,
	quotes domain.QuoteCache,
	locks domain.LockManager,
	exits *ExitProcessor,
	cfg TrackerConfig,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		positions: positions,
		plans:     plans,
		market:    market,
		quotes:    quotes,
		locks:     locks,
		exits:     exits,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "tracker")),
	}
}

// Run ticks at the configured interval until ctx is cancelled, skipping
// passes outside market hours.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	t.logger.Info("tracker started", slog.Duration("interval", t.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("tracker stopped")
			return ctx.Err()
		case <-ticker.C:
			if !t.marketOpen(time.Now()) {
				continue
			}
			res, err := t.Tick(ctx)
			if err != nil {
				t.logger.Error("tracking pass failed", slog.String("error", err.Error()))
				continue
			}
			if res.Skipped {
				continue
			}
			t.logger.Info("tracking pass complete",
				slog.Int("evaluated", res.Evaluated),
				slog.Int("exits", res.Exits),
				slog.Int("errors", res.Errors))
		}
	}
}

// Tick runs one tracking pass over every open auto-tracked position. Manual
// invocations ignore market hours; the lock still serializes them against
// the scheduler.
func (t *Tracker) Tick(ctx context.Context) (TickResult, error) {
	unlock, err := t.locks.Acquire(ctx, tickLockKey, t.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			t.logger.Info("tracking pass skipped, another pass in progress")
			return TickResult{Skipped: true}, nil
		}
		return TickResult{}, fmt.Errorf("service: tick lock: %w", err)
	}
	defer unlock()

	positions, err := t.positions.ListOpenAuto(ctx)
	if err != nil {
		return TickResult{}, fmt.Errorf("service: list positions: %w", err)
	}

	var res TickResult
	for _, p := range positions {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Evaluated++

		applied, err := t.evaluate(ctx, p)
		if err != nil {
			res.Errors++
			t.logger.Error("position evaluation failed",
				slog.String("position", p.ID),
				slog.String("symbol", p.Symbol),
				slog.String("error", err.Error()))
			continue
		}
		if applied {
			res.Exits++
		}
	}
	return res, nil
}

// evaluate checks one position's triggers and applies at most one exit.
func (t *Tracker) evaluate(ctx context.Context, p domain.Position) (bool, error) {
	plan, err := t.plans.GetByPosition(ctx, p.ID)
	if err != nil {
		if errors.Is(err, domain.ErrPlanMissing) {
			t.logger.Warn("open position has no trade plan",
				slog.String("position", p.ID), slog.String("symbol", p.Symbol))
			return false, nil
		}
		return false, err
	}

	price, err := t.currentPrice(ctx, p)
	if err != nil {
		if errors.Is(err, domain.ErrNoQuote) {
			t.logger.Warn("no quote, position skipped",
				slog.String("position", p.ID), slog.String("symbol", p.Symbol))
			return false, nil
		}
		return false, err
	}

	// Trailing stop first. The peak is persisted before the floor check so
	// a crash between the two never loses a high.
	if plan.TrailingActive(p.TPHitLevel) {
		peak := p.EntryPrice
		if p.HighestPrice != nil && *p.HighestPrice > peak {
			peak = *p.HighestPrice
		}
		if price > peak {
			if err := t.positions.RaiseHighestPrice(ctx, p.ID, price); err != nil {
				return false, err
			}
			peak = price
		}
		floor := plan.TrailingFloor(peak)
		if price <= floor {
			return t.applyExit(ctx, p, plan, domain.ExitStopLoss, 0, floor)
		}
	}

	// Static stop-loss, after any raise-stop instructions from hit levels.
	if stop, ok := plan.EffectiveStop(p.EntryPrice, p.TPHitLevel); ok && price <= stop {
		return t.applyExit(ctx, p, plan, domain.ExitStopLoss, 0, stop)
	}

	// Next take-profit level. The exit books at the level target, not the
	// observed print; any overshoot stays unrealized in the remainder.
	next := p.TPHitLevel + 1
	if target, ok := plan.LevelPrice(next, p.EntryPrice); ok && price >= target {
		return t.applyExit(ctx, p, plan, domain.ExitTakeProfit, next, target)
	}
	return false, nil
}

func (t *Tracker) applyExit(ctx context.Context, p domain.Position, plan domain.TradePlan, kind domain.ExitKind, level int, price float64) (bool, error) {
	event, err := t.exits.Apply(ctx, ExitRequest{
		Position: p,
		Plan:     plan,
		Kind:     kind,
		Level:    level,
		Price:    price,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			t.logger.Info("exit conflict, position advanced by another writer",
				slog.String("position", p.ID))
			return false, nil
		}
		return false, err
	}
	return event.ID != "", nil
}

// currentPrice resolves the quote for a position, memoized in the quote
// cache so several positions on the same instrument share one provider call
// per pass. The stream feeds the same cache, so a healthy stream means most
// lookups never touch the REST API.
func (t *Tracker) currentPrice(ctx context.Context, p domain.Position) (float64, error) {
	key := p.Symbol
	if p.Instrument == domain.InstrumentOptions && p.Contract != "" {
		key = p.Contract
	}

	if price, found, err := t.quotes.Get(ctx, key); err == nil && found {
		return price, nil
	} else if err != nil {
		t.logger.Warn("quote cache read failed", slog.String("error", err.Error()))
	}

	var price float64
	var err error
	if p.Instrument == domain.InstrumentOptions && p.Contract != "" {
		price, err = t.market.OptionQuote(ctx, p.Contract)
	} else {
		price, err = t.market.SharePrice(ctx, p.Symbol)
	}
	if err != nil {
		return 0, err
	}

	if err := t.quotes.Set(ctx, key, price, t.cfg.QuoteTTL); err != nil {
		t.logger.Warn("quote cache write failed", slog.String("error", err.Error()))
	}
	return price, nil
}

// marketOpen reports whether now falls inside the configured session in the
// configured timezone, weekends excluded. Misconfiguration fails open so
// tracking never silently stops.
func (t *Tracker) marketOpen(now time.Time) bool {
	loc, err := time.LoadLocation(t.cfg.Timezone)
	if err != nil {
		return true
	}
	open, err1 := time.Parse("15:04", t.cfg.MarketOpen)
	close_, err2 := time.Parse("15:04", t.cfg.MarketClose)
	if err1 != nil || err2 != nil {
		return true
	}

	local := now.In(loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	openMin := open.Hour()*60 + open.Minute()
	closeMin := close_.Hour()*60 + close_.Minute()
	return minutes >= openMin && minutes < closeMin
}
