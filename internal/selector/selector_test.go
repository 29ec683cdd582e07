package selector

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

var testNow = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// cand builds a call candidate expiring dte days from testNow.
func cand(contract string, strike, delta float64, oi int, bid, ask float64, dte int) domain.ContractCandidate {
	return domain.ContractCandidate{
		Contract:     contract,
		Underlying:   "AAPL",
		Side:         domain.Call,
		Strike:       strike,
		Expiration:   testNow.AddDate(0, 0, dte),
		Delta:        delta,
		OpenInterest: oi,
		Bid:          bid,
		Ask:          ask,
	}
}

func TestSelectScalpLevelZero(t *testing.T) {
	s := New(nil, testLogger())

	// First candidate passes L0 (delta .35-.60, OI>=500, spread<.10, 0 DTE);
	// second fails OI and spread.
	candidates := []domain.ContractCandidate{
		cand("O:AAPL250602C00200000", 200, 0.45, 600, 2.00, 2.05, 0),
		cand("O:AAPL250602C00205000", 205, 0.55, 400, 1.00, 1.20, 0),
	}

	res, ok := s.Select(candidates, 201.50, domain.Call, domain.HorizonScalp, testNow)
	require.True(t, ok)
	assert.Equal(t, "O:AAPL250602C00200000", res.Candidate.Contract)
	assert.Equal(t, 0, res.Level)
}

func TestSelectScalpPrefersDeltaNearestHalf(t *testing.T) {
	s := New(nil, testLogger())

	candidates := []domain.ContractCandidate{
		cand("far", 210, 0.38, 900, 1.00, 1.05, 0),
		cand("near", 205, 0.52, 700, 1.00, 1.05, 0),
	}

	res, ok := s.Select(candidates, 205, domain.Call, domain.HorizonScalp, testNow)
	require.True(t, ok)
	assert.Equal(t, "near", res.Candidate.Contract)
}

func TestSelectProgressiveFallback(t *testing.T) {
	ladder := Ladder{
		domain.HorizonScalp: {
			{DeltaMin: 0.45, DeltaMax: 0.55, MinOpenInterest: 5000, MaxSpread: 0.01, DTEWindows: []DTEWindow{{0, 0}}},
			{DeltaMin: 0.40, DeltaMax: 0.60, MinOpenInterest: 2000, MaxSpread: 0.05, DTEWindows: []DTEWindow{{0, 0}}},
			{DeltaMin: 0.30, DeltaMax: 0.65, MinOpenInterest: 500, MaxSpread: 0.10, DTEWindows: []DTEWindow{{0, 1}}},
			{DeltaMin: 0.10, DeltaMax: 0.90, MinOpenInterest: 0, MaxSpread: 1.00, DTEWindows: []DTEWindow{{0, 5}}},
		},
	}
	s := New(ladder, testLogger())

	// Survives level 2 only (OI too low for 0/1) but would also pass level 3.
	l2 := cand("level2", 100, 0.50, 600, 1.00, 1.05, 1)
	// Passes level 3 only. Better delta, so it would win if level 3 were
	// (incorrectly) reached.
	l3 := cand("level3", 100, 0.50, 10, 1.00, 1.50, 3)

	res, ok := s.Select([]domain.ContractCandidate{l3, l2}, 100, domain.Call, domain.HorizonScalp, testNow)
	require.True(t, ok)
	assert.Equal(t, "level2", res.Candidate.Contract, "must stop at the first non-empty level")
	assert.Equal(t, 2, res.Level)
}

func TestSelectExhaustionReturnsNone(t *testing.T) {
	s := New(nil, testLogger())

	// Delta far outside every scalp band.
	candidates := []domain.ContractCandidate{
		cand("deep-otm", 300, 0.02, 10000, 0.01, 0.02, 0),
	}

	_, ok := s.Select(candidates, 200, domain.Call, domain.HorizonScalp, testNow)
	assert.False(t, ok)
}

func TestSelectSwingDTEWindowPreference(t *testing.T) {
	s := New(nil, testLogger())

	// Both pass swing L0 hard filters; only the 20-DTE one is inside the
	// preferred 13-25 window, so the 8-DTE fallback window is never reached.
	inPreferred := cand("preferred", 102, 0.50, 2000, 3.00, 3.04, 20)
	inFallback := cand("fallback", 102, 0.50, 2000, 3.00, 3.04, 8)

	res, ok := s.Select([]domain.ContractCandidate{inFallback, inPreferred}, 100, domain.Call, domain.HorizonSwing, testNow)
	require.True(t, ok)
	assert.Equal(t, "preferred", res.Candidate.Contract)
	assert.Equal(t, 0, res.Window)
}

func TestSelectSwingMoneynessTarget(t *testing.T) {
	s := New(nil, testLogger())

	// Call target offset is +2%: strike 102 on a 100 underlying should beat
	// strike 99 even though both pass the hard filters.
	atTarget := cand("plus2", 102, 0.50, 2000, 3.00, 3.04, 20)
	below := cand("minus1", 99, 0.50, 2000, 3.00, 3.04, 20)

	res, ok := s.Select([]domain.ContractCandidate{below, atTarget}, 100, domain.Call, domain.HorizonSwing, testNow)
	require.True(t, ok)
	assert.Equal(t, "plus2", res.Candidate.Contract)
}

func TestSelectSwingPutMoneynessTarget(t *testing.T) {
	s := New(nil, testLogger())

	put := func(contract string, strike float64) domain.ContractCandidate {
		c := cand(contract, strike, -0.50, 2000, 3.00, 3.04, 20)
		c.Side = domain.Put
		return c
	}

	// Put target offset is -2%.
	res, ok := s.Select([]domain.ContractCandidate{put("plus2", 102), put("minus2", 98)}, 100, domain.Put, domain.HorizonSwing, testNow)
	require.True(t, ok)
	assert.Equal(t, "minus2", res.Candidate.Contract)
}

func TestSelectSwingOutOfBandPenalty(t *testing.T) {
	s := New(nil, testLogger())

	// 7% offset is outside swing L0's 2% band; the in-band strike wins even
	// though the out-of-band one has a tighter spread and more OI.
	inBand := cand("in-band", 101, 0.50, 1500, 3.00, 3.04, 20)
	outBand := cand("out-band", 107, 0.50, 9000, 3.00, 3.01, 20)

	res, ok := s.Select([]domain.ContractCandidate{outBand, inBand}, 100, domain.Call, domain.HorizonSwing, testNow)
	require.True(t, ok)
	assert.Equal(t, "in-band", res.Candidate.Contract)
}

func TestSelectLeapPrefersDTENearTarget(t *testing.T) {
	s := New(nil, testLogger())

	near := cand("near365", 102, 0.60, 800, 10.00, 10.04, 360)
	far := cand("far390", 102, 0.60, 800, 10.00, 10.04, 390)

	res, ok := s.Select([]domain.ContractCandidate{far, near}, 100, domain.Call, domain.HorizonLeap, testNow)
	require.True(t, ok)
	assert.Equal(t, "near365", res.Candidate.Contract)
}

func TestSelectTieBreakSpreadThenOpenInterest(t *testing.T) {
	s := New(nil, testLogger())

	tight := cand("tight", 102, 0.50, 1500, 3.00, 3.02, 20)
	wide := cand("wide", 102, 0.50, 4000, 3.00, 3.04, 20)

	res, ok := s.Select([]domain.ContractCandidate{wide, tight}, 100, domain.Call, domain.HorizonSwing, testNow)
	require.True(t, ok)
	assert.Equal(t, "tight", res.Candidate.Contract, "tighter spread wins before open interest")

	// Equal spreads: higher open interest wins.
	a := cand("lowOI", 102, 0.50, 1500, 3.00, 3.02, 20)
	b := cand("highOI", 102, 0.50, 4000, 3.00, 3.02, 20)
	res, ok = s.Select([]domain.ContractCandidate{a, b}, 100, domain.Call, domain.HorizonSwing, testNow)
	require.True(t, ok)
	assert.Equal(t, "highOI", res.Candidate.Contract)
}

func TestSelectIgnoresWrongSide(t *testing.T) {
	s := New(nil, testLogger())

	p := cand("put", 100, -0.50, 2000, 3.00, 3.04, 0)
	p.Side = domain.Put

	_, ok := s.Select([]domain.ContractCandidate{p}, 100, domain.Call, domain.HorizonScalp, testNow)
	assert.False(t, ok)
}
