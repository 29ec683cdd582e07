package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crownedlabs/tradetrack/internal/domain"
	"github.com/crownedlabs/tradetrack/internal/selector"
)

// strikeBandPct bounds the strike range requested from the chain snapshot.
// Nothing the ladder can accept lies further from the money than this.
const strikeBandPct = 30.0

// SelectionRequest asks for the best listed contract for a trade idea.
type SelectionRequest struct {
	Underlying string
	Side       domain.OptionSide
	Horizon    domain.Horizon
}

// Selection is a completed contract pick.
type Selection struct {
	Contract        domain.ContractCandidate
	UnderlyingPrice float64
	Level           int
	Window          int
}

// ContractService fetches option chains and runs the selection ladder.
type ContractService struct {
	market   domain.MarketDataProvider
	selector *selector.Selector
	logger   *slog.Logger
}

// NewContractService creates a ContractService.
func NewContractService(market domain.MarketDataProvider, sel *selector.Selector, logger *slog.Logger) *ContractService {
	return &ContractService{
		market:   market,
		selector: sel,
		logger:   logger.With(slog.String("component", "contracts")),
	}
}

// Pick fetches the chain spanning the horizon's whole relaxation ladder and
// returns the best contract. Returns ErrNoContract when the ladder is
// exhausted; the caller falls back to manual contract entry.
func (cs *ContractService) Pick(ctx context.Context, req SelectionRequest) (Selection, error) {
	if req.Side != domain.Call && req.Side != domain.Put {
		return Selection{}, fmt.Errorf("service: pick contract: invalid side %q", req.Side)
	}

	minDTE, maxDTE, ok := cs.selector.DTEBounds(req.Horizon)
	if !ok {
		return Selection{}, fmt.Errorf("service: pick contract: unknown horizon %q", req.Horizon)
	}

	underlying, err := cs.market.SharePrice(ctx, req.Underlying)
	if err != nil {
		return Selection{}, fmt.Errorf("service: underlying price %s: %w", req.Underlying, err)
	}

	now := time.Now().UTC()
	band := underlying * strikeBandPct / 100
	candidates, err := cs.market.OptionChain(ctx, domain.ChainFilter{
		Underlying:    req.Underlying,
		Side:          req.Side,
		ExpirationGTE: now.AddDate(0, 0, minDTE),
		ExpirationLTE: now.AddDate(0, 0, maxDTE),
		StrikeGTE:     underlying - band,
		StrikeLTE:     underlying + band,
	})
	if err != nil {
		return Selection{}, fmt.Errorf("service: option chain %s: %w", req.Underlying, err)
	}

	res, found := cs.selector.Select(candidates, underlying, req.Side, req.Horizon, now)
	if !found {
		cs.logger.Info("selection ladder exhausted",
			slog.String("underlying", req.Underlying),
			slog.String("horizon", string(req.Horizon)),
			slog.Int("candidates", len(candidates)))
		return Selection{}, domain.ErrNoContract
	}

	cs.logger.Info("contract selected",
		slog.String("underlying", req.Underlying),
		slog.String("horizon", string(req.Horizon)),
		slog.String("contract", res.Candidate.Contract),
		slog.Int("level", res.Level))
	return Selection{
		Contract:        res.Candidate,
		UnderlyingPrice: underlying,
		Level:           res.Level,
		Window:          res.Window,
	}, nil
}

// Nearest finds the listed contract whose strike is closest to target for an
// exact expiration date, used when an idea names a strike that is not listed.
func (cs *ContractService) Nearest(ctx context.Context, underlying, expiration string, side domain.OptionSide, target float64) (string, float64, error) {
	contract, strike, err := cs.market.NearestContract(ctx, underlying, expiration, side, target)
	if err != nil {
		return "", 0, fmt.Errorf("service: nearest contract %s %s: %w", underlying, expiration, err)
	}
	if strike != target {
		cs.logger.Info("strike adjusted to nearest listed",
			slog.String("underlying", underlying),
			slog.Float64("requested", target),
			slog.Float64("listed", strike))
	}
	return contract, strike, nil
}
