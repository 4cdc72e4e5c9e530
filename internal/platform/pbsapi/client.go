// Package pbsapi is a client for the PBS schedule data API: fee schedules,
// items, and item dispensing-rule relationships.
//
// Every read goes through one resilience.Policy. Only 429 responses are
// retried; 401 and every other non-2xx response fail on the spot.
package pbsapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/televita/rxprice/internal/platform/resilience"
)

// DefaultBaseURL is the production v3 API.
const DefaultBaseURL = "https://data-api.health.gov.au/pbs/api/v3"

const subscriptionKeyHeader = "subscription-key"

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRetryPolicy overrides the 429 backoff policy. The policy's Retryable
// predicate is always replaced with IsRateLimited.
func WithRetryPolicy(p resilience.Policy) Option {
	return func(cl *Client) { cl.policy = p }
}

// WithLogger sets the logger used for retry and failure events.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithClock overrides the clock used to pick the current schedule month.
func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

// Client reads from the PBS API. It holds no per-request state and is safe
// for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     resilience.Policy
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a Client. By default it allows 3 attempts with a 1s
// backoff that doubles on every 429.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		policy:     resilience.ExponentialPolicy(3, time.Second, nil),
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.policy.Retryable = IsRateLimited
	return c
}

// list issues a GET against endpoint and returns the envelope's data array,
// retrying on 429 according to the client policy.
func (c *Client) list(ctx context.Context, endpoint string, params url.Values) ([]json.RawMessage, error) {
	p := c.policy
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("pbs api rate limited, backing off")
	}

	var data []json.RawMessage
	err := p.Do(ctx, func(ctx context.Context) error {
		d, err := c.get(ctx, endpoint, params)
		if err != nil {
			return err
		}
		data = d
		return nil
	})
	if err != nil {
		c.logger.Error().Str("endpoint", endpoint).Err(err).Msg("pbs api request failed")
		return nil, err
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]json.RawMessage, error) {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("pbs %s: building request: %w", endpoint, err)
	}
	req.Header.Set(subscriptionKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pbs %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w for %s", ErrUnauthorized, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("pbs %s: decoding response: %w", endpoint, err)
	}
	return env.Data, nil
}
