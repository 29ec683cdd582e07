package domain

import "time"

// Horizon is the trade's intended holding-period class. It parameterizes the
// contract-selection thresholds.
type Horizon string

const (
	HorizonScalp Horizon = "scalp" // same-day to a couple of days
	HorizonSwing Horizon = "swing" // multi-week
	HorizonLeap  Horizon = "leap"  // long-dated, ~a year out
)

// ContractCandidate is an ephemeral option-chain entry produced by the market
// data provider. Candidates are ranked by the selector and never persisted.
type ContractCandidate struct {
	Contract     string
	Underlying   string
	Side         OptionSide
	Strike       float64
	Expiration   time.Time
	Delta        float64 // signed; selectors compare on magnitude
	OpenInterest int
	Bid          float64
	Ask          float64
}

// Mid is the quote midpoint, falling back to whichever side is present.
func (c ContractCandidate) Mid() float64 {
	switch {
	case c.Bid > 0 && c.Ask > 0:
		return (c.Bid + c.Ask) / 2
	case c.Ask > 0:
		return c.Ask
	default:
		return c.Bid
	}
}

// Spread is the bid/ask spread in price terms.
func (c ContractCandidate) Spread() float64 {
	s := c.Ask - c.Bid
	if s < 0 {
		return 0
	}
	return s
}

// DTE is the number of calendar days until expiration, measured from now.
// Same-day expiration is 0.
func (c ContractCandidate) DTE(now time.Time) int {
	y1, m1, d1 := now.UTC().Date()
	y2, m2, d2 := c.Expiration.UTC().Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
