package quotes

import (
	"context"
	"encoding/json"
	"io"
)

// FavQsProvider fetches the public quote-of-the-day from FavQs. The qotd
// endpoint needs no API key; category filtering is not supported there.
type FavQsProvider struct {
	cfg ProviderConfig
	hc  *httpClient
}

func NewFavQsProvider(cfg ProviderConfig) *FavQsProvider {
	cfg = cfg.withDefaults("https://favqs.com/api")
	return &FavQsProvider{
		cfg: cfg,
		hc:  newHTTPClient("favqs", cfg),
	}
}

func (p *FavQsProvider) Name() string { return "favqs" }

func (p *FavQsProvider) FetchQuote(ctx context.Context, category string) (*Quote, error) {
	return p.hc.getJSON(ctx, p.cfg.BaseURL+"/qotd", func(body io.Reader) (*Quote, error) {
		var payload struct {
			Quote struct {
				Body   string `json:"body"`
				Author string `json:"author"`
			} `json:"quote"`
			ErrorCode int    `json:"error_code"`
			Message   string `json:"message"`
		}
		if err := json.NewDecoder(body).Decode(&payload); err != nil {
			return nil, NewProviderError(p.Name(), "failed to parse response", err)
		}
		if payload.ErrorCode != 0 {
			return nil, NewProviderError(p.Name(), payload.Message, nil)
		}
		return &Quote{
			Text:     payload.Quote.Body,
			Author:   payload.Quote.Author,
			Category: category,
		}, nil
	})
}

func (p *FavQsProvider) HealthCheck(ctx context.Context) error {
	_, err := p.FetchQuote(ctx, "")
	return err
}

func (p *FavQsProvider) Close() error {
	p.hc.client.CloseIdleConnections()
	return nil
}
