// Package marketdata talks to the external market-data API that resolves
// condition ids into market metadata.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/polysync-labs/reconciler/internal/core/domain"
	"github.com/polysync-labs/reconciler/internal/recon/metrics"
)

const (
	defaultBaseURL   = "https://api.domeapi.io/v1"
	defaultTimeout   = 10 * time.Second
	defaultBatchSize = 100 // API limit on condition_id params per request
)

// Config holds market-data API client configuration.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	BatchSize int           `yaml:"batch_size"`
}

// Client fetches market metadata over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new market-data client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// FetchMarkets fetches market metadata for the given condition ids, splitting
// the request into API-sized batches. Ids the API does not know are simply
// absent from the result.
func (c *Client) FetchMarkets(
	ctx context.Context,
	conditionIDs []string,
) ([]*domain.Market, error) {
	var markets []*domain.Market
	for i := 0; i < len(conditionIDs); i += c.cfg.BatchSize {
		end := min(i+c.cfg.BatchSize, len(conditionIDs))
		batch, err := c.fetchBatch(ctx, conditionIDs[i:end])
		if err != nil {
			return nil, err
		}
		markets = append(markets, batch...)
	}
	return markets, nil
}

// fetchBatch calls the markets endpoint once, retrying rate limits and
// server errors with exponential backoff.
func (c *Client) fetchBatch(ctx context.Context, ids []string) ([]*domain.Market, error) {
	b := retry.NewExponential(500 * time.Millisecond)
	b = retry.WithCappedDuration(10*time.Second, b)
	b = retry.WithMaxRetries(4, b)

	var markets []*domain.Market
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		ms, err := c.doFetch(ctx, ids)
		if err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		markets = ms
		return nil
	})
	if err != nil {
		return nil, err
	}
	return markets, nil
}

type apiError struct {
	status int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("market-data api returned status %d", e.status)
}

func isRetryable(err error) bool {
	apiErr, ok := err.(*apiError)
	if !ok {
		// Network-level failures are retryable.
		return true
	}
	return apiErr.status == http.StatusTooManyRequests || apiErr.status >= 500
}

// FetchTrades lists fills for one wallet, newest pages first, following the
// API's pagination cursor until it runs out or limit trades are collected.
func (c *Client) FetchTrades(
	ctx context.Context,
	wallet string,
	limit int,
) ([]*domain.Trade, error) {
	if limit <= 0 {
		limit = 1000
	}

	var trades []*domain.Trade
	seen := make(map[string]bool)
	cursor := ""

	for len(trades) < limit {
		page, err := c.fetchTradePage(ctx, wallet, limit-len(trades), cursor)
		if err != nil {
			return nil, err
		}

		for _, p := range page.Orders {
			id := p.OrderHash
			if id == "" {
				id = p.TxHash
			}
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true

			t := &domain.Trade{
				ID:          id,
				ConditionID: p.ConditionID,
				Wallet:      p.User,
				Side:        p.Side,
				Price:       p.Price,
				Shares:      p.Shares,
				TokenID:     p.TokenID,
				TxHash:      p.TxHash,
			}
			if t.Wallet == "" {
				t.Wallet = wallet
			}
			if p.Timestamp > 0 {
				t.ExecutedAt = time.Unix(p.Timestamp, 0).UTC()
			}
			trades = append(trades, t)
		}

		if !page.Pagination.HasMore || page.Pagination.PaginationKey == "" ||
			len(page.Orders) == 0 {
			break
		}
		cursor = page.Pagination.PaginationKey
	}
	return trades, nil
}

// fetchTradePage calls the orders endpoint once, with the same retry policy
// as market fetches.
func (c *Client) fetchTradePage(
	ctx context.Context,
	wallet string,
	limit int,
	cursor string,
) (*tradePage, error) {
	b := retry.NewExponential(500 * time.Millisecond)
	b = retry.WithCappedDuration(10*time.Second, b)
	b = retry.WithMaxRetries(4, b)

	var page *tradePage
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		p, err := c.doFetchTrades(ctx, wallet, limit, cursor)
		if err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

type tradePayload struct {
	OrderHash   string  `json:"order_hash"`
	TxHash      string  `json:"tx_hash"`
	ConditionID string  `json:"condition_id"`
	User        string  `json:"user"`
	Side        string  `json:"side"`
	Price       float64 `json:"price"`
	Shares      float64 `json:"shares_normalized"`
	TokenID     string  `json:"token_id"`
	Timestamp   int64   `json:"timestamp"`
}

type tradePage struct {
	Orders     []tradePayload `json:"orders"`
	Pagination struct {
		HasMore       bool   `json:"has_more"`
		PaginationKey string `json:"pagination_key"`
	} `json:"pagination"`
}

func (c *Client) doFetchTrades(
	ctx context.Context,
	wallet string,
	limit int,
	cursor string,
) (*tradePage, error) {
	start := time.Now()

	params := url.Values{}
	params.Set("user", wallet)
	params.Set("limit", fmt.Sprintf("%d", limit))
	if cursor != "" {
		params.Set("pagination_key", cursor)
	}
	endpoint := fmt.Sprintf("%s/polymarket/orders?%s", c.cfg.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market-data call: %w", err)
	}
	defer resp.Body.Close()

	metrics.MarketDataLatency.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &apiError{status: resp.StatusCode}
	}

	var page tradePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &page, nil
}

type marketPayload struct {
	ConditionID string `json:"condition_id"`
	Question    string `json:"question"`
	EventSlug   string `json:"event_slug"`
	Status      string `json:"status"`
	CloseTime   string `json:"close_time"`
}

func (c *Client) doFetch(ctx context.Context, ids []string) ([]*domain.Market, error) {
	start := time.Now()

	params := url.Values{}
	for _, id := range ids {
		params.Add("condition_id", id)
	}
	endpoint := fmt.Sprintf("%s/polymarket/markets?%s", c.cfg.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market-data call: %w", err)
	}
	defer resp.Body.Close()

	metrics.MarketDataLatency.Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &apiError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	// The endpoint returns either a bare array or an object wrapping one.
	var payloads []marketPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		var wrapper struct {
			Markets []marketPayload `json:"markets"`
		}
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		payloads = wrapper.Markets
	}

	markets := make([]*domain.Market, 0, len(payloads))
	for _, p := range payloads {
		if p.ConditionID == "" {
			continue
		}
		m := &domain.Market{
			ConditionID: p.ConditionID,
			Question:    p.Question,
			EventSlug:   p.EventSlug,
			Status:      p.Status,
		}
		if p.CloseTime != "" {
			if t, err := time.Parse(time.RFC3339, p.CloseTime); err == nil {
				m.CloseTime = &t
			}
		}
		markets = append(markets, m)
	}
	return markets, nil
}
