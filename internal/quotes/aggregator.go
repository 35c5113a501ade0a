// Package quotes implements the provider aggregation layer: weighted
// selection across external quote APIs with per-provider circuit breakers
// and rate windows, backed by the generic execution wrapper and a bundled
// local fallback dataset.
package quotes

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dailymotiv/quote-service/internal/observ"
	"github.com/dailymotiv/quote-service/internal/service"
	"github.com/dailymotiv/quote-service/internal/storage"
)

const weightsStorageKey = "quotes:source_weights"

// AggregatorConfig tunes the aggregator's own policy; executor policy
// (cache, timeout, retries) is configured separately on construction.
type AggregatorConfig struct {
	Breaker             BreakerConfig
	PruneInterval       time.Duration // rate-window pruning, default 30s
	HealthCheckInterval time.Duration // provider probing, 0 disables
}

func (c AggregatorConfig) withDefaults() AggregatorConfig {
	if c.PruneInterval <= 0 {
		c.PruneInterval = 30 * time.Second
	}
	return c
}

// ProviderOptions describe one registered provider.
type ProviderOptions struct {
	Weight        float64
	Window        time.Duration
	WindowMaxReqs int
}

type providerState struct {
	provider Provider
	breaker  *Breaker
	window   *RateWindow
	weight   float64
}

// ProviderHealth is the read-only per-provider view from GetHealthStatus.
type ProviderHealth struct {
	State               CircuitState `json:"circuit_state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	RateLimited         bool         `json:"rate_limited"`
	Weight              float64      `json:"weight"`
	WindowUsed          int          `json:"window_used"`
	WindowMax           int          `json:"window_max"`
}

// Aggregator fans a quote request out across registered providers. A
// provider failure is absorbed: it feeds that provider's breaker and the
// next eligible provider is tried. Once local fallback data exists this
// path never returns an error to the caller.
type Aggregator struct {
	mu        sync.RWMutex
	name      string
	cfg       AggregatorConfig
	providers map[string]*providerState
	order     []string // registration order, for deterministic health maps

	executor *service.Executor
	store    storage.Store
	fallback *FallbackSource

	rngMu sync.Mutex
	rng   *rand.Rand

	stopCh  chan struct{}
	wg      sync.WaitGroup
	destroy sync.Once
}

// NewAggregator builds an aggregator owning its executor. Persisted source
// weights, when present in the store, override registration-time weights.
func NewAggregator(name string, cfg AggregatorConfig, execCfg service.Config, store storage.Store) *Aggregator {
	a := &Aggregator{
		name:      name,
		cfg:       cfg.withDefaults(),
		providers: make(map[string]*providerState),
		executor:  service.NewExecutor(name, execCfg),
		store:     store,
		fallback:  NewFallbackSource(),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:    make(chan struct{}),
	}

	a.wg.Add(1)
	go a.pruneLoop()
	if a.cfg.HealthCheckInterval > 0 {
		a.wg.Add(1)
		go a.healthLoop()
	}

	observ.Log("aggregator_created", map[string]any{
		"service":        name,
		"breaker_limit":  a.cfg.Breaker.withDefaults().ConsecutiveFailures,
		"prune_interval": a.cfg.PruneInterval.String(),
	})
	return a
}

// RegisterProvider adds a provider with its weight and rate window. A
// weight persisted through UpdateSourceWeights wins over opts.Weight.
func (a *Aggregator) RegisterProvider(p Provider, opts ProviderOptions) {
	if opts.Weight <= 0 {
		opts.Weight = 1
	}

	weight := opts.Weight
	var persisted map[string]float64
	if a.store != nil && storage.GetJSON(a.store, weightsStorageKey, &persisted) {
		if w, ok := persisted[p.Name()]; ok && w > 0 {
			weight = w
		}
	}

	a.mu.Lock()
	a.providers[p.Name()] = &providerState{
		provider: p,
		breaker:  NewBreaker(p.Name(), a.cfg.Breaker),
		window:   NewRateWindow(opts.Window, opts.WindowMaxReqs),
		weight:   weight,
	}
	a.order = append(a.order, p.Name())
	total := len(a.providers)
	a.mu.Unlock()

	observ.SetGauge("provider_circuit_state", circuitStateGauge(CircuitClosed), map[string]string{
		"provider": p.Name(),
	})
	observ.Log("provider_registered", map[string]any{
		"provider": p.Name(),
		"weight":   weight,
		"total":    total,
	})
}

// FetchQuote returns a quote for category. The provider fan-out runs under
// the execution wrapper (cache, deadline, metrics); when the wrapped fetch
// fails outright the bundled fallback answers instead, uncached, so a
// recovering provider is retried on the next request.
func (a *Aggregator) FetchQuote(ctx context.Context, category string) service.Result[Quote] {
	cacheKey := "quote:" + category
	res := service.Execute(ctx, a.executor, "fetch_quote", cacheKey, func(ctx context.Context) (Quote, error) {
		q, err := a.fetchFromProviders(ctx, category)
		if err != nil {
			return Quote{}, err
		}
		return *q, nil
	}, service.Options{})

	if res.Success {
		return res
	}

	q := a.fallback.Pick(category)
	observ.IncCounter("fallback_served_total", map[string]string{
		"category": category,
	})
	observ.Log("fallback_served", map[string]any{
		"category": category,
		"reason":   res.Err,
	})
	return service.Result[Quote]{Success: true, Data: q, Cached: false, Source: a.name}
}

// fetchFromProviders walks eligible providers in weighted-random order
// until one answers. Failures are recorded against the failing provider's
// breaker and never propagate past this function boundary other than as
// the final "all providers failed" error.
func (a *Aggregator) fetchFromProviders(ctx context.Context, category string) (*Quote, error) {
	tried := make(map[string]bool)
	var lastErr error

	for {
		candidate := a.pickProvider(tried)
		if candidate == nil {
			if lastErr != nil {
				return nil, lastErr
			}
			if name, ok := a.openCircuitProvider(); ok {
				return nil, NewCircuitOpenError(name)
			}
			return nil, fmt.Errorf("no eligible quote providers remain for category %q", category)
		}
		name := candidate.provider.Name()
		tried[name] = true

		if !candidate.window.TryAcquire() {
			observ.IncCounter("provider_rate_limited_total", map[string]string{
				"provider": name,
			})
			continue
		}
		if !candidate.breaker.Allow() {
			// Lost the half-open trial race or the breaker re-opened
			// between shortlist and claim.
			lastErr = NewCircuitOpenError(name)
			observ.IncCounter("provider_short_circuited_total", map[string]string{
				"provider": name,
			})
			continue
		}

		start := time.Now()
		quote, err := candidate.provider.FetchQuote(ctx, category)
		elapsed := time.Since(start)

		observ.IncCounter("provider_requests_total", map[string]string{"provider": name})
		observ.RecordDuration("provider_fetch_latency", elapsed, map[string]string{"provider": name})

		if err != nil {
			lastErr = err
			candidate.breaker.RecordFailure()
			observ.IncCounter("provider_errors_total", map[string]string{
				"provider": name,
				"kind":     errKind(err),
			})
			observ.Log("provider_fetch_failed", map[string]any{
				"provider": name,
				"category": category,
				"error":    err.Error(),
			})
			continue
		}

		candidate.breaker.RecordSuccess()
		observ.IncCounter("provider_successes_total", map[string]string{"provider": name})
		return quote, nil
	}
}

// pickProvider runs one weighted-random draw over not-yet-tried providers
// whose breaker and window both look passable. Returns nil when none
// remain. Weights are snapshotted under the read lock: UpdateSourceWeights
// mutates them concurrently, so the draw must not touch ps.weight after
// the lock is released.
func (a *Aggregator) pickProvider(tried map[string]bool) *providerState {
	type candidate struct {
		ps     *providerState
		weight float64
	}

	a.mu.RLock()
	candidates := make([]candidate, 0, len(a.providers))
	var totalWeight float64
	for _, name := range a.order {
		ps := a.providers[name]
		if tried[name] || !ps.breaker.CanAttempt() {
			continue
		}
		candidates = append(candidates, candidate{ps: ps, weight: ps.weight})
		totalWeight += ps.weight
	}
	a.mu.RUnlock()

	if len(candidates) == 0 {
		return nil
	}

	a.rngMu.Lock()
	r := a.rng.Float64() * totalWeight
	a.rngMu.Unlock()

	for _, c := range candidates {
		r -= c.weight
		if r < 0 {
			return c.ps
		}
	}
	return candidates[len(candidates)-1].ps
}

// openCircuitProvider finds a provider currently short-circuited, so an
// exhausted fan-out can report circuit_open instead of a generic failure.
func (a *Aggregator) openCircuitProvider() (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, name := range a.order {
		if state, _ := a.providers[name].breaker.State(); state == CircuitOpen {
			return name, true
		}
	}
	return "", false
}

func errKind(err error) string {
	if fe, ok := err.(*FetchError); ok {
		return fe.Kind
	}
	return ErrKindUnknown
}

// GetHealthStatus reports circuit state, failure count and throttle status
// per provider. Read-only observability; mutating selection state from
// here is not possible.
func (a *Aggregator) GetHealthStatus() map[string]ProviderHealth {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]ProviderHealth, len(a.providers))
	for name, ps := range a.providers {
		state, failures := ps.breaker.State()
		used, max := ps.window.Usage()
		out[name] = ProviderHealth{
			State:               state,
			ConsecutiveFailures: failures,
			RateLimited:         used >= max,
			Weight:              ps.weight,
			WindowUsed:          used,
			WindowMax:           max,
		}
	}
	return out
}

// UpdateSourceWeights applies new provider weights and persists the full
// weight map through the storage collaborator so they survive restarts.
// Unknown provider names are rejected; non-positive weights are rejected.
func (a *Aggregator) UpdateSourceWeights(weights map[string]float64) error {
	a.mu.Lock()
	for name, w := range weights {
		if _, ok := a.providers[name]; !ok {
			a.mu.Unlock()
			return fmt.Errorf("unknown provider %q", name)
		}
		if w <= 0 {
			a.mu.Unlock()
			return fmt.Errorf("weight for %q must be positive, got %v", name, w)
		}
	}
	merged := make(map[string]float64, len(a.providers))
	for name, ps := range a.providers {
		if w, ok := weights[name]; ok {
			ps.weight = w
		}
		merged[name] = ps.weight
	}
	a.mu.Unlock()

	if a.store != nil {
		if err := storage.SetJSON(a.store, weightsStorageKey, merged); err != nil {
			return fmt.Errorf("persist weights: %w", err)
		}
	}
	observ.Log("source_weights_updated", map[string]any{"weights": merged})
	return nil
}

// PerformanceMetrics exposes the executor's call accounting.
func (a *Aggregator) PerformanceMetrics() service.Metrics {
	return a.executor.Metrics()
}

// IsHealthy reflects the executor's health verdict.
func (a *Aggregator) IsHealthy() bool { return a.executor.IsHealthy() }

// ClearCache empties the scoped response cache.
func (a *Aggregator) ClearCache() { a.executor.ClearCache() }

// Destroy stops background loops, tears down the executor and closes all
// providers. Idempotent; satisfies service.Service.
func (a *Aggregator) Destroy() {
	a.destroy.Do(func() {
		close(a.stopCh)
		a.wg.Wait()
		a.executor.Destroy()

		a.mu.Lock()
		defer a.mu.Unlock()
		for name, ps := range a.providers {
			if err := ps.provider.Close(); err != nil {
				observ.Log("provider_close_error", map[string]any{
					"provider": name,
					"error":    err.Error(),
				})
			}
		}
		observ.Log("aggregator_destroyed", map[string]any{"service": a.name})
	})
}

func (a *Aggregator) pruneLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.mu.RLock()
			for _, ps := range a.providers {
				ps.window.Prune()
			}
			a.mu.RUnlock()
		}
	}
}

// healthLoop probes providers in the background and feeds gauges only;
// probe failures do not trip breakers, live traffic does.
func (a *Aggregator) healthLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.mu.RLock()
			states := make(map[string]Provider, len(a.providers))
			for name, ps := range a.providers {
				states[name] = ps.provider
			}
			a.mu.RUnlock()

			for name, p := range states {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := p.HealthCheck(ctx)
				cancel()
				healthy := 1.0
				if err != nil {
					healthy = 0.0
				}
				observ.SetGauge("provider_healthy", healthy, map[string]string{
					"provider": name,
				})
			}
		}
	}
}
