package quotes

import (
	"context"
	"encoding/json"
	"io"
)

// ZenQuotesProvider fetches from the ZenQuotes API. The free endpoint has
// no category filter; the requested category is stamped on the result so
// cache keys stay consistent.
type ZenQuotesProvider struct {
	cfg ProviderConfig
	hc  *httpClient
}

func NewZenQuotesProvider(cfg ProviderConfig) *ZenQuotesProvider {
	cfg = cfg.withDefaults("https://zenquotes.io/api")
	return &ZenQuotesProvider{
		cfg: cfg,
		hc:  newHTTPClient("zenquotes", cfg),
	}
}

func (p *ZenQuotesProvider) Name() string { return "zenquotes" }

func (p *ZenQuotesProvider) FetchQuote(ctx context.Context, category string) (*Quote, error) {
	return p.hc.getJSON(ctx, p.cfg.BaseURL+"/random", func(body io.Reader) (*Quote, error) {
		var payload []struct {
			Q string `json:"q"`
			A string `json:"a"`
		}
		if err := json.NewDecoder(body).Decode(&payload); err != nil {
			return nil, NewProviderError(p.Name(), "failed to parse response", err)
		}
		if len(payload) == 0 {
			return nil, NewProviderError(p.Name(), "empty response array", nil)
		}
		// ZenQuotes signals throttling inside a 200 body.
		if payload[0].A == "zenquotes.io" {
			return nil, NewRateLimitedError(p.Name(), payload[0].Q)
		}
		return &Quote{
			Text:     payload[0].Q,
			Author:   payload[0].A,
			Category: category,
		}, nil
	})
}

func (p *ZenQuotesProvider) HealthCheck(ctx context.Context) error {
	_, err := p.FetchQuote(ctx, "")
	return err
}

func (p *ZenQuotesProvider) Close() error {
	p.hc.client.CloseIdleConnections()
	return nil
}
