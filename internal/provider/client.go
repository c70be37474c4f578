package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"gamma-trading-bot/internal/gamma"
	"gamma-trading-bot/internal/logging"
)

// Client talks to the options-data provider over REST
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *logging.Logger
}

func NewClient(baseURL, apiKey string, requestsPerMinute int) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: NewRateLimiter(requestsPerMinute),
		logger:  logging.Default().WithComponent("provider"),
	}
}

// FetchChain retrieves and normalizes the full options chain for symbol.
// Contracts missing a required field are dropped and counted; a chain where
// every contract is unusable is an error rather than an empty snapshot.
func (c *Client) FetchChain(ctx context.Context, symbol string) (*gamma.OptionChainSnapshot, error) {
	var resp chainResponse
	if err := c.getJSON(ctx, "/v1/chain", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return nil, fmt.Errorf("fetch chain for %s: %w", symbol, err)
	}

	snapshot := &gamma.OptionChainSnapshot{
		Symbol:     symbol,
		ObservedAt: time.UnixMilli(resp.UpdatedAt).UTC(),
	}
	if resp.UpdatedAt == 0 {
		snapshot.ObservedAt = time.Now().UTC()
	}

	dropped := 0
	for _, wc := range resp.Contracts {
		contract, ok := normalizeContract(wc)
		if !ok {
			dropped++
			continue
		}
		snapshot.Contracts = append(snapshot.Contracts, contract)
	}

	if dropped > 0 {
		c.logger.Warn("dropped contracts with missing fields",
			"symbol", symbol, "dropped", dropped, "kept", len(snapshot.Contracts))
	}
	if len(resp.Contracts) > 0 && len(snapshot.Contracts) == 0 {
		return nil, fmt.Errorf("chain for %s: all %d contracts unusable", symbol, dropped)
	}
	return snapshot, nil
}

// FetchQuote retrieves the current spot quote for symbol
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	var resp quoteResponse
	if err := c.getJSON(ctx, "/v1/quote", url.Values{"symbol": {symbol}}, &resp); err != nil {
		return nil, fmt.Errorf("fetch quote for %s: %w", symbol, err)
	}
	if resp.Last == nil || !isFinite(*resp.Last) || *resp.Last <= 0 {
		return nil, fmt.Errorf("quote for %s: missing or invalid last price", symbol)
	}

	q := &Quote{
		Symbol:    symbol,
		Price:     *resp.Last,
		Timestamp: time.UnixMilli(resp.Timestamp).UTC(),
	}
	if resp.Volume != nil && isFinite(*resp.Volume) {
		q.Volume = *resp.Volume
	}
	if resp.AvgVolume != nil && isFinite(*resp.AvgVolume) {
		q.AvgVolume = *resp.AvgVolume
	}
	if resp.Timestamp == 0 {
		q.Timestamp = time.Now().UTC()
	}
	return q, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("provider rate limit hit (status 429)")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return json.Unmarshal(body, out)
}

// normalizeContract converts one wire contract, rejecting anything with a
// missing or non-finite required field instead of coercing to zero
func normalizeContract(wc wireContract) (gamma.OptionContract, bool) {
	if wc.Strike == nil || wc.OpenInterest == nil || wc.Gamma == nil {
		return gamma.OptionContract{}, false
	}
	if !isFinite(*wc.Strike) || !isFinite(*wc.Gamma) {
		return gamma.OptionContract{}, false
	}

	var kind gamma.OptionKind
	switch wc.Type {
	case "call", "CALL", "C":
		kind = gamma.Call
	case "put", "PUT", "P":
		kind = gamma.Put
	default:
		return gamma.OptionContract{}, false
	}

	contract := gamma.OptionContract{
		Strike:       *wc.Strike,
		Kind:         kind,
		OpenInterest: *wc.OpenInterest,
		Gamma:        *wc.Gamma,
	}
	if wc.Volume != nil {
		contract.Volume = *wc.Volume
	}
	return contract, true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
