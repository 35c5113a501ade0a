package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
)

// QuotableProvider fetches from the Quotable API. It is the only provider
// with real category (tag) filtering.
type QuotableProvider struct {
	cfg ProviderConfig
	hc  *httpClient
}

func NewQuotableProvider(cfg ProviderConfig) *QuotableProvider {
	cfg = cfg.withDefaults("https://api.quotable.io")
	return &QuotableProvider{
		cfg: cfg,
		hc:  newHTTPClient("quotable", cfg),
	}
}

func (p *QuotableProvider) Name() string { return "quotable" }

func (p *QuotableProvider) FetchQuote(ctx context.Context, category string) (*Quote, error) {
	endpoint := p.cfg.BaseURL + "/quotes/random?limit=1"
	if category != "" {
		endpoint += "&tags=" + url.QueryEscape(category)
	}
	return p.hc.getJSON(ctx, endpoint, func(body io.Reader) (*Quote, error) {
		return p.parseRandom(body, category)
	})
}

func (p *QuotableProvider) parseRandom(body io.Reader, category string) (*Quote, error) {
	var payload []struct {
		Content string   `json:"content"`
		Author  string   `json:"author"`
		Tags    []string `json:"tags"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, NewProviderError(p.Name(), "failed to parse response", err)
	}
	if len(payload) == 0 {
		return nil, NewProviderError(p.Name(), fmt.Sprintf("no quotes returned for tag %q", category), nil)
	}
	q := payload[0]
	return &Quote{
		Text:     q.Content,
		Author:   q.Author,
		Category: category,
	}, nil
}

func (p *QuotableProvider) HealthCheck(ctx context.Context) error {
	_, err := p.FetchQuote(ctx, "")
	return err
}

func (p *QuotableProvider) Close() error {
	p.hc.client.CloseIdleConnections()
	return nil
}
