package domain

import "time"

// ExitKind classifies an applied exit. Trailing-stop exits are SL-kind.
type ExitKind string

const (
	ExitTakeProfit ExitKind = "tp"
	ExitStopLoss   ExitKind = "sl"
)

// ExitEvent is the durable record of one applied exit, kept for audit and
// exported to cold storage alongside closed positions.
type ExitEvent struct {
	ID           string
	PositionID   string
	Symbol       string
	Kind         ExitKind
	Level        int // TP level that fired; 0 for SL exits
	TriggerPrice float64
	UnitsClosed  int
	RealizedPnL  float64 // delta realized by this exit
	StopRaise    string  // human-readable raise instruction for the next leg, if any
	FullClose    bool
	CreatedAt    time.Time
}
