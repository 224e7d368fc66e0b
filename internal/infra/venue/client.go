// Package venue talks to the external order-matching venue and classifies
// its responses for the escalation tracker.
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/polysync-labs/reconciler/internal/core/domain"
)

const defaultTimeout = 10 * time.Second

// Config holds matching-venue API client configuration.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client polls order state over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new venue client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
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

// Poll fetches the venue-side state of an order and classifies the response.
// Only an explicit 404 counts as not found; transport failures and other
// status codes are classified other_error since they carry no evidence about
// the order itself.
func (c *Client) Poll(
	ctx context.Context,
	venueOrderID string,
) (domain.PollOutcome, *domain.VenueOrder, error) {
	endpoint := fmt.Sprintf("%s/orders/%s", c.cfg.BaseURL, venueOrderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.OutcomeOtherError, nil, fmt.Errorf("create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.OutcomeOtherError, nil, fmt.Errorf("venue call: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return domain.OutcomeNotFound, nil, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var order domain.VenueOrder
		if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
			return domain.OutcomeOtherError, nil, fmt.Errorf("decode order: %w", err)
		}
		return domain.OutcomeFound, &order, nil
	default:
		io.Copy(io.Discard, resp.Body)
		return domain.OutcomeOtherError, nil, fmt.Errorf(
			"venue returned status %d", resp.StatusCode)
	}
}
