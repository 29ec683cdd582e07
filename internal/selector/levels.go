package selector

import "github.com/crownedlabs/tradetrack/internal/domain"

// DTEWindow is one allowed days-to-expiration range. Windows within a level
// are tried in preference order; a later window is only considered when every
// earlier one produced no survivors.
type DTEWindow struct {
	Min int
	Max int
}

// Level is one rung of the progressive-relaxation ladder. Level 0 is the
// strictest; each later level loosens every criterion.
type Level struct {
	DeltaMin        float64     // minimum |delta|
	DeltaMax        float64     // maximum |delta|
	MinOpenInterest int         // open-interest floor
	MaxSpread       float64     // bid/ask spread ceiling, exclusive
	DTEWindows      []DTEWindow // allowed expiration windows, in preference order
	// MoneynessBandPct is the ±percent strike band around the underlying used
	// by swing/leap ranking; offsets beyond the band are penalized. 0 = the
	// horizon does not rank on moneyness (scalp).
	MoneynessBandPct float64
}

// Ladder maps each horizon to its ordered severity levels.
type Ladder map[domain.Horizon][]Level

// DefaultLadder returns the baseline relaxation tables. These are seed values
// for configuration, not fixed policy; operators tune them per deployment.
func DefaultLadder() Ladder {
	return Ladder{
		domain.HorizonScalp: {
			{DeltaMin: 0.35, DeltaMax: 0.60, MinOpenInterest: 500, MaxSpread: 0.10, DTEWindows: []DTEWindow{{0, 0}}},
			{DeltaMin: 0.30, DeltaMax: 0.65, MinOpenInterest: 300, MaxSpread: 0.12, DTEWindows: []DTEWindow{{0, 0}, {0, 1}}},
			{DeltaMin: 0.25, DeltaMax: 0.70, MinOpenInterest: 200, MaxSpread: 0.15, DTEWindows: []DTEWindow{{0, 1}}},
			{DeltaMin: 0.20, DeltaMax: 0.70, MinOpenInterest: 100, MaxSpread: 0.20, DTEWindows: []DTEWindow{{0, 2}}},
		},
		domain.HorizonSwing: {
			{DeltaMin: 0.40, DeltaMax: 0.60, MinOpenInterest: 1000, MaxSpread: 0.05, DTEWindows: []DTEWindow{{13, 25}, {6, 15}}, MoneynessBandPct: 2},
			{DeltaMin: 0.35, DeltaMax: 0.65, MinOpenInterest: 500, MaxSpread: 0.08, DTEWindows: []DTEWindow{{10, 35}, {6, 15}}, MoneynessBandPct: 4},
			{DeltaMin: 0.30, DeltaMax: 0.70, MinOpenInterest: 300, MaxSpread: 0.12, DTEWindows: []DTEWindow{{6, 60}}, MoneynessBandPct: 6},
			{DeltaMin: 0.25, DeltaMax: 0.75, MinOpenInterest: 200, MaxSpread: 0.15, DTEWindows: []DTEWindow{{6, 90}}, MoneynessBandPct: 8},
		},
		domain.HorizonLeap: {
			{DeltaMin: 0.50, DeltaMax: 0.80, MinOpenInterest: 500, MaxSpread: 0.05, DTEWindows: []DTEWindow{{330, 395}}, MoneynessBandPct: 2},
			{DeltaMin: 0.45, DeltaMax: 0.85, MinOpenInterest: 300, MaxSpread: 0.08, DTEWindows: []DTEWindow{{270, 460}}, MoneynessBandPct: 4},
			{DeltaMin: 0.40, DeltaMax: 0.85, MinOpenInterest: 200, MaxSpread: 0.12, DTEWindows: []DTEWindow{{180, 500}}, MoneynessBandPct: 6},
			{DeltaMin: 0.35, DeltaMax: 0.90, MinOpenInterest: 100, MaxSpread: 0.15, DTEWindows: []DTEWindow{{120, 550}}, MoneynessBandPct: 8},
		},
	}
}

// leapDTETarget is the preferred days-to-expiration for long-dated contracts.
const leapDTETarget = 365

// moneynessTargetPct is the preferred strike offset from the underlying:
// +2% for calls, -2% for puts.
const moneynessTargetPct = 2.0
