package domain

import (
	"context"
	"time"
)

// ChainFilter narrows an option-chain snapshot request.
type ChainFilter struct {
	Underlying    string
	Side          OptionSide
	ExpirationGTE time.Time
	ExpirationLTE time.Time
	StrikeGTE     float64 // 0 = unbounded
	StrikeLTE     float64 // 0 = unbounded
}

// MarketDataProvider supplies current prices and option-chain snapshots.
// Implementations must paginate chain requests internally and cap the total
// number of pages fetched. A missing quote is ErrNoQuote, not a hard failure.
type MarketDataProvider interface {
	// SharePrice returns the best-effort current price for a stock symbol.
	SharePrice(ctx context.Context, symbol string) (float64, error)
	// OptionQuote returns the best-effort current price for a single listed
	// option contract.
	OptionQuote(ctx context.Context, contract string) (float64, error)
	// OptionChain returns candidate contracts matching the filter.
	OptionChain(ctx context.Context, f ChainFilter) ([]ContractCandidate, error)
	// NearestContract finds the listed contract whose strike is closest to
	// target for the given underlying, expiration, and side.
	NearestContract(ctx context.Context, underlying, expiration string, side OptionSide, target float64) (contract string, strike float64, err error)
}

// BrokerPosition is one position as reported by the external broker, used
// only for read-only drift reporting.
type BrokerPosition struct {
	Symbol     string
	AssetClass string
	Quantity   float64 // positive long, negative short
	AvgCost    float64
	Account    string
}

// BrokerClient reads positions from the external broker. Best-effort: the
// core tracking loop never depends on it.
type BrokerClient interface {
	Positions(ctx context.Context) ([]BrokerPosition, error)
	Healthy(ctx context.Context) bool
}
