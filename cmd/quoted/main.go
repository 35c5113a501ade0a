package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dailymotiv/quote-service/internal/config"
	"github.com/dailymotiv/quote-service/internal/observ"
	"github.com/dailymotiv/quote-service/internal/quotes"
	"github.com/dailymotiv/quote-service/internal/service"
	"github.com/dailymotiv/quote-service/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config (empty: built-in defaults)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			observ.Log("config_load_error", map[string]any{
				"path":  *configPath,
				"error": err.Error(),
			})
			os.Exit(1)
		}
		cfg = loaded
	}

	store, err := storage.NewFileStore(cfg.Storage.Path,
		time.Duration(cfg.Storage.FlushIntervalMs)*time.Millisecond)
	if err != nil {
		observ.Log("storage_open_error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	registry := service.NewRegistry()
	agg := buildAggregator(cfg, registry, store)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /quote", func(w http.ResponseWriter, r *http.Request) {
		res := agg.FetchQuote(r.Context(), r.URL.Query().Get("category"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("GET /health/providers", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(agg.GetHealthStatus())
	})
	mux.HandleFunc("GET /metrics/service", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(agg.PerformanceMetrics())
	})
	mux.HandleFunc("POST /weights", func(w http.ResponseWriter, r *http.Request) {
		var weights map[string]float64
		if err := json.NewDecoder(r.Body).Decode(&weights); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := agg.UpdateSourceWeights(weights); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /cache/clear", func(w http.ResponseWriter, r *http.Request) {
		agg.ClearCache()
		w.WriteHeader(http.StatusNoContent)
	})
	mux.Handle("/healthz", observ.HealthHandler())
	mux.Handle("/livez", observ.Health())
	mux.Handle("/metrics", observ.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		observ.Log("server_listening", map[string]any{"addr": cfg.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observ.Log("server_error", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	observ.Log("shutdown_started", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)

	registry.DestroyAll()
	if err := store.Close(); err != nil {
		observ.Log("storage_close_error", map[string]any{"error": err.Error()})
	}
	observ.Log("shutdown_complete", nil)
}

// buildAggregator wires the quote aggregator through the registry so the
// process holds exactly one instance per logical service name.
func buildAggregator(cfg config.Root, registry *service.Registry, store storage.Store) *quotes.Aggregator {
	svc := registry.Create("quotes", func() service.Service {
		agg := quotes.NewAggregator("quotes",
			quotes.AggregatorConfig{
				Breaker: quotes.BreakerConfig{
					ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
					Cooldown:            time.Duration(cfg.Breaker.CooldownSeconds) * time.Second,
				},
				HealthCheckInterval: 2 * time.Minute,
			},
			service.Config{
				CacheEnabled:         cfg.Service.CacheEnabled,
				CacheTTL:             time.Duration(cfg.Service.CacheTTLSeconds) * time.Second,
				RetryAttempts:        cfg.Service.RetryAttempts,
				Timeout:              time.Duration(cfg.Service.TimeoutMs) * time.Millisecond,
				MonitoringEnabled:    cfg.Service.MonitoringEnabled,
				HighLatencyThreshold: time.Duration(cfg.Service.HighLatencyThresholdMs) * time.Millisecond,
				ErrorRateThreshold:   cfg.Service.ErrorRateThreshold,
			},
			store,
		)

		register := func(p quotes.Provider, pc config.Provider) {
			agg.RegisterProvider(p, quotes.ProviderOptions{
				Weight:        pc.Weight,
				Window:        time.Duration(pc.WindowSeconds) * time.Second,
				WindowMaxReqs: pc.WindowMaxRequests,
			})
		}
		if pc := cfg.Providers.Quotable; pc.Enabled {
			register(quotes.NewQuotableProvider(providerConfig(pc)), pc)
		}
		if pc := cfg.Providers.ZenQuotes; pc.Enabled {
			register(quotes.NewZenQuotesProvider(providerConfig(pc)), pc)
		}
		if pc := cfg.Providers.FavQs; pc.Enabled {
			register(quotes.NewFavQsProvider(providerConfig(pc)), pc)
		}
		return agg
	})
	return svc.(*quotes.Aggregator)
}

func providerConfig(pc config.Provider) quotes.ProviderConfig {
	return quotes.ProviderConfig{
		BaseURL:            pc.BaseURL,
		Weight:             pc.Weight,
		RateLimitPerMinute: pc.RateLimitPerMinute,
		TimeoutMs:          pc.TimeoutMs,
		MaxRetries:         pc.MaxRetries,
		BackoffBaseMs:      pc.BackoffBaseMs,
	}
}
