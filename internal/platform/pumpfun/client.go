// Package pumpfun is a minimal client for the pump.fun coin API, used as the
// valuation source for open positions.
package pumpfun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// DefaultBaseURL is the public pump.fun frontend API.
const DefaultBaseURL = "https://frontend-api-v3.pump.fun"

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Coin is the subset of the coin payload the bot reads.
type Coin struct {
	Mint         string           `json:"mint"`
	Name         string           `json:"name"`
	Symbol       string           `json:"symbol"`
	MarketCap    *decimal.Decimal `json:"market_cap"`
	USDMarketCap *decimal.Decimal `json:"usd_market_cap"`
	Complete     bool             `json:"complete"`
}

// Client fetches coin data over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetCoin returns the coin for mint. A coin the API does not know is
// reported as domain.ErrValuationUnavailable.
func (c *Client) GetCoin(ctx context.Context, mint string) (Coin, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coins/"+url.PathEscape(mint), nil)
	if err != nil {
		return Coin{}, fmt.Errorf("pumpfun: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Coin{}, fmt.Errorf("pumpfun: get coin %s: %w", mint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Coin{}, fmt.Errorf("pumpfun: read coin %s: %w", mint, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Coin{}, fmt.Errorf("pumpfun: coin %s: %w", mint, domain.ErrValuationUnavailable)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Coin{}, fmt.Errorf("pumpfun: get coin %s: status %d: %s", mint, resp.StatusCode, snippet(body))
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return Coin{}, fmt.Errorf("pumpfun: coin %s: %w", mint, domain.ErrValuationUnavailable)
	}

	var coin Coin
	if err := json.Unmarshal(body, &coin); err != nil {
		return Coin{}, fmt.Errorf("pumpfun: decode coin %s: %w", mint, err)
	}
	return coin, nil
}

// Value implements domain.ValuationClient using the coin's USD market cap.
func (c *Client) Value(ctx context.Context, assetID string) (decimal.Decimal, error) {
	coin, err := c.GetCoin(ctx, assetID)
	if err != nil {
		return decimal.Zero, err
	}
	if coin.USDMarketCap == nil || !coin.USDMarketCap.IsPositive() {
		return decimal.Zero, fmt.Errorf("pumpfun: coin %s has no market cap: %w", assetID, domain.ErrValuationUnavailable)
	}
	return *coin.USDMarketCap, nil
}

func snippet(b []byte) string {
	const n = 200
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

var _ domain.ValuationClient = (*Client)(nil)
