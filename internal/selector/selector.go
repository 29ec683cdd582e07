// Package selector ranks option-chain candidates for a trade horizon and
// returns the single best contract, or reports that none qualifies.
//
// Selection walks a progressive-relaxation ladder: the strictest level is
// evaluated first and the best survivor of the first non-empty level wins
// outright. More relaxed levels are consulted only when every stricter level
// filtered the chain down to nothing. Exhausting the ladder is a normal
// outcome; the caller falls back to manual contract entry.
package selector

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// Selector scores option-chain candidates against a relaxation ladder.
type Selector struct {
	ladder Ladder
	logger *slog.Logger
}

// New creates a Selector. A nil or incomplete ladder falls back to the
// defaults for any missing horizon.
func New(ladder Ladder, logger *slog.Logger) *Selector {
	defaults := DefaultLadder()
	if ladder == nil {
		ladder = defaults
	}
	for h, levels := range defaults {
		if len(ladder[h]) == 0 {
			ladder[h] = levels
		}
	}
	return &Selector{
		ladder: ladder,
		logger: logger.With(slog.String("component", "selector")),
	}
}

// DTEBounds returns the widest days-to-expiration span any level of the
// horizon's ladder can accept, so chain fetches cover the whole ladder in
// one request.
func (s *Selector) DTEBounds(horizon domain.Horizon) (min, max int, ok bool) {
	levels, found := s.ladder[horizon]
	if !found || len(levels) == 0 {
		return 0, 0, false
	}
	first := true
	for _, lvl := range levels {
		for _, win := range lvl.DTEWindows {
			if first || win.Min < min {
				min = win.Min
			}
			if first || win.Max > max {
				max = win.Max
			}
			first = false
		}
	}
	return min, max, !first
}

// Result is a successful selection, annotated with the ladder position that
// produced it.
type Result struct {
	Candidate domain.ContractCandidate
	Level     int // severity level that produced the match
	Window    int // DTE window index within the level
}

// Select returns the best candidate for the horizon, or false when the whole
// ladder is exhausted. now anchors days-to-expiration.
func (s *Selector) Select(
	candidates []domain.ContractCandidate,
	underlying float64,
	side domain.OptionSide,
	horizon domain.Horizon,
	now time.Time,
) (Result, bool) {
	levels, ok := s.ladder[horizon]
	if !ok || len(candidates) == 0 || underlying <= 0 {
		return Result{}, false
	}

	for li, lvl := range levels {
		for wi, win := range lvl.DTEWindows {
			survivors := filter(candidates, lvl, win, side, now)
			if len(survivors) == 0 {
				continue
			}
			best := rank(survivors, lvl, underlying, side, horizon, now)
			s.logger.Debug("contract selected",
				slog.String("horizon", string(horizon)),
				slog.Int("level", li),
				slog.Int("window", wi),
				slog.Int("survivors", len(survivors)),
				slog.String("contract", best.Contract),
			)
			return Result{Candidate: best, Level: li, Window: wi}, true
		}
		s.logger.Debug("relaxation level exhausted",
			slog.String("horizon", string(horizon)),
			slog.Int("level", li),
		)
	}
	return Result{}, false
}

// filter keeps candidates that satisfy every hard criterion of the level for
// one DTE window. The moneyness band is a soft criterion handled in ranking.
func filter(candidates []domain.ContractCandidate, lvl Level, win DTEWindow, side domain.OptionSide, now time.Time) []domain.ContractCandidate {
	var out []domain.ContractCandidate
	for _, c := range candidates {
		if c.Side != side {
			continue
		}
		d := math.Abs(c.Delta)
		if d < lvl.DeltaMin || d > lvl.DeltaMax {
			continue
		}
		if c.OpenInterest < lvl.MinOpenInterest {
			continue
		}
		if c.Spread() >= lvl.MaxSpread {
			continue
		}
		dte := c.DTE(now)
		if dte < win.Min || dte > win.Max {
			continue
		}
		out = append(out, c)
	}
	return out
}

// moneynessOffset is the strike's signed percent distance from the
// underlying.
func moneynessOffset(strike, underlying float64) float64 {
	return (strike - underlying) / underlying * 100
}

// moneynessScore is the distance of the candidate's strike offset from the
// preferred offset (+2% calls, -2% puts), with a penalty once the absolute
// offset leaves the level's band. The penalty keeps far-from-the-money
// strikes from winning on other criteria while still allowing them through
// when nothing inside the band survived the hard filters.
func moneynessScore(c domain.ContractCandidate, lvl Level, underlying float64, side domain.OptionSide) float64 {
	target := moneynessTargetPct
	if side == domain.Put {
		target = -moneynessTargetPct
	}
	off := moneynessOffset(c.Strike, underlying)
	score := math.Abs(off - target)
	if excess := math.Abs(off) - lvl.MoneynessBandPct; excess > 0 {
		score += excess + lvl.MoneynessBandPct
	}
	return score
}

// rank orders survivors by the horizon's composite key and returns the best.
//
// Scalp: |delta - 0.50|, then spread, then open interest.
// Swing: moneyness score, then spread, then open interest.
// Leap:  moneyness score, then |DTE - 365|, then spread, then open interest.
func rank(survivors []domain.ContractCandidate, lvl Level, underlying float64, side domain.OptionSide, horizon domain.Horizon, now time.Time) domain.ContractCandidate {
	ranked := make([]domain.ContractCandidate, len(survivors))
	copy(ranked, survivors)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]

		var pa, pb float64
		switch horizon {
		case domain.HorizonScalp:
			pa = math.Abs(math.Abs(a.Delta) - 0.50)
			pb = math.Abs(math.Abs(b.Delta) - 0.50)
		default:
			pa = moneynessScore(a, lvl, underlying, side)
			pb = moneynessScore(b, lvl, underlying, side)
		}
		if pa != pb {
			return pa < pb
		}

		if horizon == domain.HorizonLeap {
			da := math.Abs(float64(a.DTE(now) - leapDTETarget))
			db := math.Abs(float64(b.DTE(now) - leapDTETarget))
			if da != db {
				return da < db
			}
		}

		if sa, sb := a.Spread(), b.Spread(); sa != sb {
			return sa < sb
		}
		return a.OpenInterest > b.OpenInterest
	})

	return ranked[0]
}
