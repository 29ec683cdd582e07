package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// OpenRequest creates a tracked position from a published trade idea.
type OpenRequest struct {
	UserID     string
	IdeaID     string
	Mode       domain.TrackingMode
	Instrument domain.Instrument
	Symbol     string

	// Options fields. When Contract is empty but Strike and Expiration are
	// set, the nearest listed contract is resolved automatically.
	Contract   string
	OptionSide domain.OptionSide
	Strike     float64
	Expiration string

	Quantity   int
	Multiplier int
	EntryPrice float64

	Plan domain.TradePlan
}

// PositionService opens positions with their trade plans and serves queries.
type PositionService struct {
	positions domain.PositionStore
	plans     domain.TradePlanStore
	events    domain.ExitEventStore
	contracts *ContractService
	logger    *slog.Logger
}

// NewPositionService creates a PositionService. contracts may be nil, in
// which case automatic strike resolution is unavailable.
func NewPositionService(positions domain.PositionStore, plans domain.TradePlanStore, events domain.ExitEventStore, contracts *ContractService, logger *slog.Logger) *PositionService {
	return &PositionService{
		positions: positions,
		plans:     plans,
		events:    events,
		contracts: contracts,
		logger:    logger.With(slog.String("component", "positions")),
	}
}

// Open validates the request, resolves the contract if needed, and persists
// the position together with its plan.
func (ps *PositionService) Open(ctx context.Context, req OpenRequest) (domain.Position, error) {
	if err := validateOpen(req); err != nil {
		return domain.Position{}, err
	}

	p := domain.Position{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		IdeaID:     req.IdeaID,
		Status:     domain.PositionStatusOpen,
		Mode:       req.Mode,
		Instrument: req.Instrument,
		Symbol:     req.Symbol,
		Contract:   req.Contract,
		OptionSide: req.OptionSide,
		Strike:     req.Strike,
		Expiration: req.Expiration,
		Quantity:   req.Quantity,
		Multiplier: req.Multiplier,
		EntryPrice: req.EntryPrice,
		OpenedAt:   time.Now().UTC(),
	}
	if p.Mode == "" {
		p.Mode = domain.ModeAuto
	}
	if p.Multiplier == 0 {
		if p.Instrument == domain.InstrumentOptions {
			p.Multiplier = 100
		} else {
			p.Multiplier = 1
		}
	}

	if p.Instrument == domain.InstrumentOptions && p.Contract == "" {
		if ps.contracts == nil {
			return domain.Position{}, fmt.Errorf("service: open position: contract resolution unavailable")
		}
		contract, strike, err := ps.contracts.Nearest(ctx, p.Symbol, p.Expiration, p.OptionSide, p.Strike)
		if err != nil {
			return domain.Position{}, err
		}
		p.Contract = contract
		p.Strike = strike
	}

	if err := ps.positions.Create(ctx, p); err != nil {
		return domain.Position{}, err
	}

	plan := req.Plan
	plan.PositionID = p.ID
	if err := ps.plans.Put(ctx, plan); err != nil {
		return domain.Position{}, fmt.Errorf("service: open position plan: %w", err)
	}

	ps.logger.Info("position opened",
		slog.String("position", p.ID),
		slog.String("symbol", p.Symbol),
		slog.String("instrument", string(p.Instrument)),
		slog.String("mode", string(p.Mode)),
		slog.Int("display_units", p.DisplayUnits()))
	return p, nil
}

// Get returns a position with its plan and exit trail.
func (ps *PositionService) Get(ctx context.Context, id string) (domain.Position, domain.TradePlan, []domain.ExitEvent, error) {
	p, err := ps.positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, domain.TradePlan{}, nil, err
	}
	plan, err := ps.plans.GetByPosition(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrPlanMissing) {
		return domain.Position{}, domain.TradePlan{}, nil, err
	}
	events, err := ps.events.ListByPosition(ctx, id)
	if err != nil {
		return domain.Position{}, domain.TradePlan{}, nil, err
	}
	return p, plan, events, nil
}

// ListOpen returns all open positions.
func (ps *PositionService) ListOpen(ctx context.Context) ([]domain.Position, error) {
	return ps.positions.ListOpen(ctx)
}

// History returns a user's positions, newest first.
func (ps *PositionService) History(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	return ps.positions.ListHistory(ctx, userID, opts)
}

func validateOpen(req OpenRequest) error {
	switch {
	case req.UserID == "":
		return fmt.Errorf("service: open position: user id is required")
	case req.Symbol == "":
		return fmt.Errorf("service: open position: symbol is required")
	case req.EntryPrice <= 0:
		return fmt.Errorf("service: open position: entry price must be positive")
	case req.Quantity < 1:
		return fmt.Errorf("service: open position: quantity must be at least 1")
	case req.Instrument != domain.InstrumentShares && req.Instrument != domain.InstrumentOptions:
		return fmt.Errorf("service: open position: invalid instrument %q", req.Instrument)
	case len(req.Plan.Levels) > domain.MaxTakeProfitLevels:
		return fmt.Errorf("service: open position: at most %d take-profit levels", domain.MaxTakeProfitLevels)
	}
	if req.Instrument == domain.InstrumentOptions {
		if req.OptionSide != domain.Call && req.OptionSide != domain.Put {
			return fmt.Errorf("service: open position: invalid option side %q", req.OptionSide)
		}
		if req.Contract == "" && (req.Strike <= 0 || req.Expiration == "") {
			return fmt.Errorf("service: open position: contract, or strike and expiration, required")
		}
	}
	for i, lvl := range req.Plan.Levels {
		if lvl.Value <= 0 {
			return fmt.Errorf("service: open position: take-profit level %d value must be positive", i+1)
		}
		if lvl.TakeoffPct != nil && (*lvl.TakeoffPct <= 0 || *lvl.TakeoffPct > 100) {
			return fmt.Errorf("service: open position: take-profit level %d takeoff must be in (0, 100]", i+1)
		}
		// The final level always closes the remainder, so a partial takeoff
		// there would never be honored.
		if i == len(req.Plan.Levels)-1 && lvl.TakeoffPct != nil && *lvl.TakeoffPct < 100 {
			return fmt.Errorf("service: open position: final take-profit level must take off 100%%")
		}
	}
	return nil
}
