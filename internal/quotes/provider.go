package quotes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Provider fetches one quote from an external source. Implementations map
// transport failures onto the FetchError taxonomy; the aggregator decides
// what a failure means for provider selection.
type Provider interface {
	Name() string
	FetchQuote(ctx context.Context, category string) (*Quote, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// ProviderConfig is the shared knob set for the HTTP providers. Zero
// fields get defaults in newHTTPClient.
type ProviderConfig struct {
	BaseURL            string  `yaml:"base_url"`
	Weight             float64 `yaml:"weight"`
	RateLimitPerMinute int     `yaml:"rate_limit_per_minute"`
	TimeoutMs          int     `yaml:"timeout_ms"`
	MaxRetries         int     `yaml:"max_retries"`
	BackoffBaseMs      int     `yaml:"backoff_base_ms"`
}

func (c ProviderConfig) withDefaults(baseURL string) ProviderConfig {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.RateLimitPerMinute <= 0 {
		c.RateLimitPerMinute = 30
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 5000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBaseMs <= 0 {
		c.BackoffBaseMs = 250
	}
	return c
}

// httpClient bundles the pieces every HTTP provider shares: a bounded
// client, a courtesy limiter against the remote API, and retry policy.
type httpClient struct {
	name        string
	client      *http.Client
	rateLimiter *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
}

func newHTTPClient(name string, cfg ProviderConfig) *httpClient {
	return &httpClient{
		name: name,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60), 1),
		maxRetries:  cfg.MaxRetries,
		backoffBase: time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
	}
}

// getJSON fetches url with retries and hands the body to parse. Retries
// use exponential backoff; 429 maps to rate_limited, other non-200 status
// to provider_error.
func (hc *httpClient) getJSON(ctx context.Context, url string, parse func(body io.Reader) (*Quote, error)) (*Quote, error) {
	if err := hc.rateLimiter.Wait(ctx); err != nil {
		return nil, NewRateLimitedError(hc.name, fmt.Sprintf("limiter wait cancelled: %v", err))
	}

	var lastErr error
	for attempt := 0; attempt < hc.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := hc.backoffBase * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return nil, NewUnknownError(hc.name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, NewProviderError(hc.name, "failed to build request", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := hc.client.Do(req)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, NewTimeoutError(hc.name, "request deadline exceeded")
			}
			lastErr = NewProviderError(hc.name, "request failed", err)
			continue
		}

		quote, err := hc.readResponse(resp, parse)
		if err != nil {
			lastErr = err
			continue
		}
		return quote, nil
	}

	return nil, lastErr
}

func (hc *httpClient) readResponse(resp *http.Response, parse func(body io.Reader) (*Quote, error)) (*Quote, error) {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, NewRateLimitedError(hc.name, "remote API rate limit")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewProviderError(hc.name, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)), nil)
	}

	quote, err := parse(resp.Body)
	if err != nil {
		return nil, err
	}
	quote.Source = hc.name
	quote.FetchedAt = time.Now()
	if err := ValidateQuote(quote); err != nil {
		return nil, NewProviderError(hc.name, "invalid payload", err)
	}
	return quote, nil
}
