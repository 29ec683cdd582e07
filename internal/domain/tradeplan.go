package domain

import "github.com/shopspring/decimal"

// MaxTakeProfitLevels bounds the ordered take-profit ladder of a TradePlan.
const MaxTakeProfitLevels = 4

// TPLevelKind distinguishes the two take-profit level variants.
type TPLevelKind string

const (
	// TPPercent triggers at entry_price * (1 + value/100).
	TPPercent TPLevelKind = "percent"
	// TPPrice triggers at an absolute stock/contract price peg.
	TPPrice TPLevelKind = "price"
)

// StopRaiseTarget says where a raise-stop instruction moves the stop.
type StopRaiseTarget string

const (
	RaiseToEntry  StopRaiseTarget = "entry"
	RaiseToPrice  StopRaiseTarget = "price"
	RaiseToOffset StopRaiseTarget = "offset" // percent above entry
)

// StopRaise is an optional instruction attached to a take-profit level: when
// that level fires, the position's effective stop reference moves.
type StopRaise struct {
	Target StopRaiseTarget `json:"target"`
	Value  float64         `json:"value,omitempty"` // price or percent, unused for entry
}

// TakeProfitLevel is one rung of the take-profit ladder.
type TakeProfitLevel struct {
	Kind       TPLevelKind `json:"kind"`
	Value      float64     `json:"value"`                 // percent offset or pegged price
	TakeoffPct *float64    `json:"takeoff_pct,omitempty"` // fraction of remaining size to close; nil = default
	RaiseStop  *StopRaise  `json:"raise_stop,omitempty"`
}

// StopKind distinguishes stop-loss definitions.
type StopKind string

const (
	StopPrice   StopKind = "price"
	StopPercent StopKind = "percent" // percent below entry
)

// StopLossRule is the single static stop-loss definition of a plan.
type StopLossRule struct {
	Kind  StopKind `json:"kind"`
	Value float64  `json:"value"`
}

// TrailTrigger says when a trailing stop becomes active.
type TrailTrigger string

const (
	TrailFromEntry TrailTrigger = "entry"
	TrailFromTP    TrailTrigger = "tp" // active once TPHitLevel >= TriggerLevel
)

// TrailingStop is the optional trailing-stop definition of a plan.
type TrailingStop struct {
	Trigger      TrailTrigger `json:"trigger"`
	TriggerLevel int          `json:"trigger_level,omitempty"` // TP level for TrailFromTP
	Percent      float64      `json:"percent"`                 // floor = peak * (1 - percent/100)
}

// TradePlan is the typed per-trade configuration: an ordered ladder of up to
// MaxTakeProfitLevels take-profit levels, one stop-loss definition, and an
// optional trailing stop.
type TradePlan struct {
	PositionID string
	Levels     []TakeProfitLevel
	StopLoss   *StopLossRule
	Trailing   *TrailingStop
}

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// LevelPrice returns the trigger price for the 1-based take-profit level n,
// or false when the plan has no such level.
func (p TradePlan) LevelPrice(n int, entry float64) (float64, bool) {
	if n < 1 || n > len(p.Levels) {
		return 0, false
	}
	lvl := p.Levels[n-1]
	switch lvl.Kind {
	case TPPrice:
		return lvl.Value, true
	case TPPercent:
		e := decimal.NewFromFloat(entry)
		pct := decimal.NewFromFloat(lvl.Value)
		return e.Mul(one.Add(pct.Div(hundred))).InexactFloat64(), true
	default:
		return 0, false
	}
}

// TakeoffPct returns the fraction (0-100) of the remaining size to close when
// level n fires. Unset levels default to 50%, except the last configured
// level which defaults to 100% and fully closes the position.
func (p TradePlan) TakeoffPct(n int) float64 {
	if n < 1 || n > len(p.Levels) {
		return 0
	}
	lvl := p.Levels[n-1]
	if lvl.TakeoffPct != nil {
		return *lvl.TakeoffPct
	}
	if n == len(p.Levels) {
		return 100
	}
	return 50
}

// StopPrice resolves the static stop-loss definition against the entry price.
// Returns 0, false when no stop-loss is configured.
func (p TradePlan) StopPrice(entry float64) (float64, bool) {
	if p.StopLoss == nil || p.StopLoss.Value <= 0 {
		return 0, false
	}
	switch p.StopLoss.Kind {
	case StopPrice:
		return p.StopLoss.Value, true
	case StopPercent:
		e := decimal.NewFromFloat(entry)
		pct := decimal.NewFromFloat(p.StopLoss.Value)
		return e.Mul(one.Sub(pct.Div(hundred))).InexactFloat64(), true
	default:
		return 0, false
	}
}

// EffectiveStop is the stop reference after applying the raise-stop
// instructions of every already-hit take-profit level. The latest hit level
// carrying an instruction wins. Returns 0, false when no stop applies.
func (p TradePlan) EffectiveStop(entry float64, tpHitLevel int) (float64, bool) {
	price, ok := p.StopPrice(entry)
	if tpHitLevel > len(p.Levels) {
		tpHitLevel = len(p.Levels)
	}
	for n := 1; n <= tpHitLevel; n++ {
		r := p.Levels[n-1].RaiseStop
		if r == nil {
			continue
		}
		switch r.Target {
		case RaiseToEntry:
			price, ok = entry, true
		case RaiseToPrice:
			if r.Value > 0 {
				price, ok = r.Value, true
			}
		case RaiseToOffset:
			e := decimal.NewFromFloat(entry)
			pct := decimal.NewFromFloat(r.Value)
			price, ok = e.Mul(one.Add(pct.Div(hundred))).InexactFloat64(), true
		}
	}
	return price, ok
}

// TrailingActive reports whether the trailing stop is live for a position
// that has hit tpHitLevel take-profit levels so far.
func (p TradePlan) TrailingActive(tpHitLevel int) bool {
	t := p.Trailing
	if t == nil || t.Percent <= 0 {
		return false
	}
	switch t.Trigger {
	case TrailFromEntry:
		return true
	case TrailFromTP:
		return t.TriggerLevel > 0 && tpHitLevel >= t.TriggerLevel
	default:
		return false
	}
}

// TrailingFloor computes the trailing stop floor for the given peak price.
func (p TradePlan) TrailingFloor(peak float64) float64 {
	if p.Trailing == nil {
		return 0
	}
	pk := decimal.NewFromFloat(peak)
	pct := decimal.NewFromFloat(p.Trailing.Percent)
	return pk.Mul(one.Sub(pct.Div(hundred))).InexactFloat64()
}
