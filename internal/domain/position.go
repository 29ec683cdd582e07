package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// TrackingMode controls whether the scheduler evaluates a position.
type TrackingMode string

const (
	ModeAuto   TrackingMode = "auto"
	ModeManual TrackingMode = "manual"
)

// Instrument is the traded instrument class.
type Instrument string

const (
	InstrumentShares  Instrument = "shares"
	InstrumentOptions Instrument = "options"
)

// OptionSide is the option right, call or put.
type OptionSide string

const (
	Call OptionSide = "call"
	Put  OptionSide = "put"
)

// Position is one trade instance created from a published trade idea. Closed
// positions are never deleted; they back history and leaderboards.
//
// Tracking-state invariants: TPHitLevel and ClosedUnits never decrease; SLHit
// is set at most once; HighestPrice, once tracking begins, never decreases;
// ClosedUnits never exceeds DisplayUnits; once Status is closed no field
// changes again.
type Position struct {
	ID     string
	UserID string
	IdeaID string // originating trade idea, optional

	Status PositionStatus
	Mode   TrackingMode

	Instrument Instrument
	Symbol     string

	// Options metadata, used when Instrument == InstrumentOptions.
	Contract   string // listed contract identifier, e.g. O:AAPL260116C00190000
	OptionSide OptionSide
	Strike     float64
	Expiration string // YYYY-MM-DD

	Quantity   int // lots or contracts
	Multiplier int // shares = 1, standard options = 100

	TPHitLevel  int // 0 = no TP hit yet
	SLHit       bool
	ClosedUnits int
	RealizedPnL float64

	EntryPrice   float64
	ExitPrice    *float64 // set only on full close
	HighestPrice *float64 // peak seen while a trailing stop is active

	OpenedAt time.Time
	ClosedAt *time.Time
}

// DisplayUnits is the canonical position size used for all percentage math:
// shares for share positions, contracts*multiplier for options.
func (p Position) DisplayUnits() int {
	q := p.Quantity
	if q < 1 {
		q = 1
	}
	m := p.Multiplier
	if m < 1 {
		m = 1
	}
	return q * m
}

// RemainingUnits is the still-open portion of the position in display units.
func (p Position) RemainingUnits() int {
	r := p.DisplayUnits() - p.ClosedUnits
	if r < 0 {
		return 0
	}
	return r
}

// OrderQuantity converts display units to broker order terms: share count for
// shares, contract count for options.
func (p Position) OrderQuantity(displayUnits int) int {
	m := p.Multiplier
	if p.Instrument == InstrumentShares || m <= 1 {
		if displayUnits < 1 {
			return 1
		}
		return displayUnits
	}
	q := (displayUnits + m/2) / m
	if q < 1 {
		return 1
	}
	return q
}
