// Package polygon is the Polygon.io market data client: REST quotes and
// option chains, plus a supervised websocket stream.
package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// defaultMaxChainPages caps chain pagination when the caller does not.
const defaultMaxChainPages = 5

// ClientConfig holds REST client parameters.
type ClientConfig struct {
	APIKey        string
	BaseURL       string // e.g. "https://api.polygon.io"
	Timeout       time.Duration
	MaxChainPages int
}

// Client is the Polygon REST client. It implements domain.MarketDataProvider.
type Client struct {
	apiKey        string
	baseURL       string
	maxChainPages int
	httpClient    *http.Client
}

var _ domain.MarketDataProvider = (*Client)(nil)

// NewClient creates a Polygon REST client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pages := cfg.MaxChainPages
	if pages <= 0 {
		pages = defaultMaxChainPages
	}
	return &Client{
		apiKey:        cfg.APIKey,
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		maxChainPages: pages,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

// SharePrice returns the latest trade price for a stock symbol, falling back
// to the previous close when there is no trade today.
func (c *Client) SharePrice(ctx context.Context, symbol string) (float64, error) {
	var trade lastTradeResponse
	err := c.doGet(ctx, "/v2/last/trade/"+url.PathEscape(symbol), &trade)
	if err == nil && trade.Results.Price > 0 {
		return trade.Results.Price, nil
	}

	price, prevErr := c.prevClose(ctx, symbol)
	if prevErr == nil {
		return price, nil
	}
	if err == nil {
		err = prevErr
	}
	return 0, fmt.Errorf("polygon: share price %s: %w: %w", symbol, domain.ErrNoQuote, err)
}

// OptionQuote returns the best-effort current price for a listed contract.
//
// Fallback order: NBBO midpoint, ask alone, bid alone, snapshot day close,
// previous close. Illiquid contracts often quote one-sided, so every rung
// matters.
func (c *Client) OptionQuote(ctx context.Context, contract string) (float64, error) {
	var quotes quotesResponse
	err := c.doGet(ctx, "/v3/quotes/"+url.PathEscape(contract)+"?limit=1&sort=timestamp&order=desc", &quotes)
	if err == nil && len(quotes.Results) > 0 {
		q := quotes.Results[0]
		switch {
		case q.BidPrice > 0 && q.AskPrice > 0:
			return (q.BidPrice + q.AskPrice) / 2, nil
		case q.AskPrice > 0:
			return q.AskPrice, nil
		case q.BidPrice > 0:
			return q.BidPrice, nil
		}
	}

	if underlying, ok := underlyingOf(contract); ok {
		var snap snapshotResponse
		snapErr := c.doGet(ctx, "/v3/snapshot/options/"+url.PathEscape(underlying)+"/"+url.PathEscape(contract), &snap)
		if snapErr == nil && snap.Results.Day.Close > 0 {
			return snap.Results.Day.Close, nil
		}
	}

	if price, prevErr := c.prevClose(ctx, contract); prevErr == nil {
		return price, nil
	}
	return 0, fmt.Errorf("polygon: option quote %s: %w", contract, domain.ErrNoQuote)
}

// OptionChain returns candidate contracts matching the filter, paginating
// the snapshot endpoint up to the configured page cap.
func (c *Client) OptionChain(ctx context.Context, f domain.ChainFilter) ([]domain.ContractCandidate, error) {
	params := url.Values{}
	params.Set("limit", "250")
	if f.Side != "" {
		params.Set("contract_type", string(f.Side))
	}
	if !f.ExpirationGTE.IsZero() {
		params.Set("expiration_date.gte", f.ExpirationGTE.Format("2006-01-02"))
	}
	if !f.ExpirationLTE.IsZero() {
		params.Set("expiration_date.lte", f.ExpirationLTE.Format("2006-01-02"))
	}
	if f.StrikeGTE > 0 {
		params.Set("strike_price.gte", fmt.Sprintf("%g", f.StrikeGTE))
	}
	if f.StrikeLTE > 0 {
		params.Set("strike_price.lte", fmt.Sprintf("%g", f.StrikeLTE))
	}

	path := "/v3/snapshot/options/" + url.PathEscape(f.Underlying) + "?" + params.Encode()

	var candidates []domain.ContractCandidate
	for page := 0; path != "" && page < c.maxChainPages; page++ {
		var chain chainResponse
		if err := c.doGet(ctx, path, &chain); err != nil {
			return nil, fmt.Errorf("polygon: option chain %s: %w", f.Underlying, err)
		}

		for _, snap := range chain.Results {
			cand, ok := toCandidate(snap, f.Underlying)
			if !ok {
				continue
			}
			candidates = append(candidates, cand)
		}

		path = relativeURL(chain.NextURL, c.baseURL)
	}
	return candidates, nil
}

// NearestContract finds the listed contract whose strike is closest to
// target for the given underlying, expiration date, and side.
func (c *Client) NearestContract(ctx context.Context, underlying, expiration string, side domain.OptionSide, target float64) (string, float64, error) {
	exp, err := time.Parse("2006-01-02", expiration)
	if err != nil {
		return "", 0, fmt.Errorf("polygon: nearest contract: bad expiration %q: %w", expiration, err)
	}

	candidates, err := c.OptionChain(ctx, domain.ChainFilter{
		Underlying:    underlying,
		Side:          side,
		ExpirationGTE: exp,
		ExpirationLTE: exp,
	})
	if err != nil {
		return "", 0, err
	}
	if len(candidates) == 0 {
		return "", 0, domain.ErrNoContract
	}

	best := candidates[0]
	for _, cand := range candidates[1:] {
		if math.Abs(cand.Strike-target) < math.Abs(best.Strike-target) {
			best = cand
		}
	}
	return best.Contract, best.Strike, nil
}

func (c *Client) prevClose(ctx context.Context, ticker string) (float64, error) {
	var prev prevCloseResponse
	if err := c.doGet(ctx, "/v2/aggs/ticker/"+url.PathEscape(ticker)+"/prev", &prev); err != nil {
		return 0, err
	}
	if len(prev.Results) == 0 || prev.Results[0].Close <= 0 {
		return 0, domain.ErrNoQuote
	}
	return prev.Results[0].Close, nil
}

func (c *Client) doGet(ctx context.Context, path string, out any) error {
	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func toCandidate(snap optionSnapshot, underlying string) (domain.ContractCandidate, bool) {
	exp, err := time.Parse("2006-01-02", snap.Details.ExpirationDate)
	if err != nil {
		return domain.ContractCandidate{}, false
	}
	side := domain.OptionSide(snap.Details.ContractType)
	if side != domain.Call && side != domain.Put {
		return domain.ContractCandidate{}, false
	}
	return domain.ContractCandidate{
		Contract:     snap.Details.Ticker,
		Underlying:   underlying,
		Side:         side,
		Strike:       snap.Details.StrikePrice,
		Expiration:   exp,
		Delta:        snap.Greeks.Delta,
		OpenInterest: int(snap.OpenInterest),
		Bid:          snap.LastQuote.Bid,
		Ask:          snap.LastQuote.Ask,
	}, true
}

// underlyingOf extracts the underlying symbol from an OCC-style option
// ticker like O:AAPL260116C00190000.
func underlyingOf(contract string) (string, bool) {
	s := strings.TrimPrefix(contract, "O:")
	if s == contract {
		return "", false
	}
	// The symbol runs until the 6-digit date block.
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if i == 0 {
				return "", false
			}
			return s[:i], true
		}
	}
	return "", false
}

// relativeURL strips the base from a next_url so pagination reuses doGet's
// auth handling. Returns "" when there is no next page.
func relativeURL(next, base string) string {
	if next == "" {
		return ""
	}
	return strings.TrimPrefix(next, base)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
