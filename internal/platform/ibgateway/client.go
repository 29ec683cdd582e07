// Package ibgateway is a read-only client for the Interactive Brokers
// Client Portal gateway, used for reconciliation drift reports.
package ibgateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/crownedlabs/tradetrack/internal/domain"
)

// ClientConfig holds gateway connection parameters.
type ClientConfig struct {
	BaseURL string // e.g. "https://localhost:5000/v1/api"
	Account string
	Timeout time.Duration
}

// Client implements domain.BrokerClient against a locally running gateway.
type Client struct {
	baseURL    string
	account    string
	httpClient *http.Client
}

var _ domain.BrokerClient = (*Client)(nil)

// NewClient creates a gateway client. The gateway serves a self-signed
// certificate on localhost, so verification is skipped.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		account: cfg.Account,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

type apiPosition struct {
	ContractDesc string  `json:"contractDesc"`
	Ticker       string  `json:"ticker"`
	AssetClass   string  `json:"assetClass"`
	Position     float64 `json:"position"`
	AvgCost      float64 `json:"avgCost"`
	AcctID       string  `json:"acctId"`
}

// Positions returns every position in the configured account, walking the
// gateway's zero-based result pages.
func (c *Client) Positions(ctx context.Context) ([]domain.BrokerPosition, error) {
	var out []domain.BrokerPosition
	for page := 0; ; page++ {
		path := fmt.Sprintf("/portfolio/%s/positions/%d", url.PathEscape(c.account), page)

		body, err := c.doGet(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("ibgateway: positions page %d: %w", page, err)
		}

		var positions []apiPosition
		if err := json.Unmarshal(body, &positions); err != nil {
			return nil, fmt.Errorf("ibgateway: decode positions: %w", err)
		}
		if len(positions) == 0 {
			break
		}

		for _, p := range positions {
			symbol := p.Ticker
			if symbol == "" {
				symbol = p.ContractDesc
			}
			out = append(out, domain.BrokerPosition{
				Symbol:     symbol,
				AssetClass: p.AssetClass,
				Quantity:   p.Position,
				AvgCost:    p.AvgCost,
				Account:    p.AcctID,
			})
		}
	}
	return out, nil
}

// Healthy reports whether the gateway session is live.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tickle", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return body, nil
}
