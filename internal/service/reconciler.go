package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// driftStream is the signal bus stream drift reports are published to.
const driftStream = "tradetrack:drift"

// DriftKind classifies one reconciliation finding.
type DriftKind string

const (
	DriftMissingAtBroker DriftKind = "missing_at_broker" // tracked here, absent at the broker
	DriftUntracked       DriftKind = "untracked"         // held at the broker, not tracked here
	DriftSizeMismatch    DriftKind = "size_mismatch"
)

// Drift is one per-symbol discrepancy between tracked state and the broker.
type Drift struct {
	Kind         DriftKind `json:"kind"`
	Symbol       string    `json:"symbol"`
	TrackedUnits int       `json:"tracked_units"`
	BrokerUnits  float64   `json:"broker_units"`
}

// DriftReport is the outcome of one reconciliation pass.
type DriftReport struct {
	GeneratedAt   time.Time `json:"generated_at"`
	BrokerHealthy bool      `json:"broker_healthy"`
	Tracked       int       `json:"tracked"`
	BrokerHeld    int       `json:"broker_held"`
	Drifts        []Drift   `json:"drifts,omitempty"`
}

// Clean reports whether the pass found no discrepancies.
func (r DriftReport) Clean() bool {
	return r.BrokerHealthy && len(r.Drifts) == 0
}

// Reconciler compares open tracked positions against the broker's view and
// reports drift. It is read-only: it never mutates positions, it only
// surfaces mismatches for a human to resolve.
type Reconciler struct {
	positions domain.PositionStore
	broker    domain.BrokerClient
	bus       domain.SignalBus
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler. bus may be nil.
func NewReconciler(positions domain.PositionStore, broker domain.BrokerClient, bus domain.SignalBus, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		positions: positions,
		broker:    broker,
		bus:       bus,
		logger:    logger.With(slog.String("component", "reconciler")),
	}
}

// Run executes one reconciliation pass. Tracked sizes are compared in
// display units, so a 2-contract option position is expected to appear as
// 200 units of exposure at the broker.
func (r *Reconciler) Run(ctx context.Context) (DriftReport, error) {
	report := DriftReport{GeneratedAt: time.Now().UTC()}

	if !r.broker.Healthy(ctx) {
		r.logger.Warn("broker gateway unhealthy, reconciliation skipped")
		return report, nil
	}
	report.BrokerHealthy = true

	open, err := r.positions.ListOpen(ctx)
	if err != nil {
		return report, fmt.Errorf("service: reconcile list open: %w", err)
	}

	brokerPositions, err := r.broker.Positions(ctx)
	if err != nil {
		return report, fmt.Errorf("service: reconcile broker positions: %w", err)
	}

	tracked := make(map[string]int)
	for _, p := range open {
		key := p.Symbol
		if p.Instrument == domain.InstrumentOptions && p.Contract != "" {
			key = p.Contract
		}
		tracked[key] += p.RemainingUnits()
	}
	held := make(map[string]float64)
	for _, bp := range brokerPositions {
		held[bp.Symbol] += bp.Quantity
	}
	report.Tracked = len(tracked)
	report.BrokerHeld = len(held)

	for symbol, units := range tracked {
		broker, ok := held[symbol]
		if !ok || broker == 0 {
			report.Drifts = append(report.Drifts, Drift{
				Kind: DriftMissingAtBroker, Symbol: symbol, TrackedUnits: units,
			})
			continue
		}
		if math.Abs(broker-float64(units)) > 0.5 {
			report.Drifts = append(report.Drifts, Drift{
				Kind: DriftSizeMismatch, Symbol: symbol,
				TrackedUnits: units, BrokerUnits: broker,
			})
		}
	}
	for symbol, qty := range held {
		if _, ok := tracked[symbol]; !ok && qty != 0 {
			report.Drifts = append(report.Drifts, Drift{
				Kind: DriftUntracked, Symbol: symbol, BrokerUnits: qty,
			})
		}
	}
	sort.Slice(report.Drifts, func(i, j int) bool {
		return report.Drifts[i].Symbol < report.Drifts[j].Symbol
	})

	if report.Clean() {
		r.logger.Info("reconciliation clean", slog.Int("tracked", report.Tracked))
	} else {
		r.logger.Warn("reconciliation found drift",
			slog.Int("tracked", report.Tracked),
			slog.Int("broker_held", report.BrokerHeld),
			slog.Int("drifts", len(report.Drifts)))
		r.publish(ctx, report)
	}
	return report, nil
}

func (r *Reconciler) publish(ctx context.Context, report DriftReport) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := r.bus.Publish(ctx, driftStream, payload); err != nil {
		r.logger.Warn("drift publish failed", slog.String("error", err.Error()))
	}
}
