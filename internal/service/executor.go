// Package service implements the generic execution layer shared by every
// concrete fetch service: a scoped TTL cache, per-instance call metrics,
// timeout-bounded execution with bounded retry, and a named registry of
// live service instances.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dailymotiv/quote-service/internal/observ"
)

// Config controls one executor instance. Immutable after construction;
// zero fields get the documented defaults.
type Config struct {
	CacheEnabled         bool
	CacheTTL             time.Duration // default 5m
	RetryAttempts        int           // extra attempts after the first, default 2
	Timeout              time.Duration // per-call deadline, default 8s
	MonitoringEnabled    bool
	HighLatencyThreshold time.Duration // isHealthy latency ceiling, default 5s
	ErrorRateThreshold   float64       // isHealthy error-rate ceiling, default 0.10
}

func (c Config) withDefaults() Config {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 8 * time.Second
	}
	if c.HighLatencyThreshold <= 0 {
		c.HighLatencyThreshold = 5 * time.Second
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = 0.10
	}
	return c
}

// FetchFunc produces one value. It must honor ctx cancellation; the
// executor imposes the configured timeout through ctx.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Options tune a single Execute call. Zero values defer to the instance
// config.
type Options struct {
	UseCache     *bool         // nil: instance CacheEnabled
	TTL          time.Duration // 0: instance CacheTTL
	RetryOnError bool          // default off
}

// Bool is a convenience for Options.UseCache.
func Bool(v bool) *bool { return &v }

// Result is the only outcome type Execute produces; it never panics and
// never returns a Go error. Success implies Data is set and Err is empty.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Err     string `json:"error,omitempty"`
	Cached  bool   `json:"cached"`
	Source  string `json:"source"`
}

// Executor orchestrates cache lookup, deadline-bounded fetch, retry and
// metrics for one named service. Construct with NewExecutor; a nil
// Executor is not usable.
type Executor struct {
	name    string
	cfg     Config
	cache   *Cache
	metrics *recorder

	stopCh  chan struct{}
	wg      sync.WaitGroup
	destroy sync.Once
}

// Service is what the registry owns: anything with a Destroy.
type Service interface {
	Destroy()
}

const sweepInterval = time.Minute

// NewExecutor creates an executor and starts its cache sweep loop.
func NewExecutor(name string, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	e := &Executor{
		name:    name,
		cfg:     cfg,
		cache:   NewCache(),
		metrics: newRecorder(name, cfg.MonitoringEnabled),
		stopCh:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.sweepLoop()

	if cfg.MonitoringEnabled {
		observ.Log("executor_created", map[string]any{
			"service":        name,
			"cache_enabled":  cfg.CacheEnabled,
			"cache_ttl":      cfg.CacheTTL.String(),
			"retry_attempts": cfg.RetryAttempts,
			"timeout":        cfg.Timeout.String(),
		})
	}
	return e
}

// Name returns the service name stamped on every result.
func (e *Executor) Name() string { return e.name }

// Config returns the effective (default-filled) configuration.
func (e *Executor) Config() Config { return e.cfg }

// Execute runs fetch under the executor's policy: cache short-circuit,
// per-attempt deadline, optional retry with increasing delay, one metrics
// record per call. All failures come back as Result values.
func Execute[T any](ctx context.Context, e *Executor, operation, cacheKey string, fetch FetchFunc[T], opts Options) Result[T] {
	useCache := e.cfg.CacheEnabled
	if opts.UseCache != nil {
		useCache = *opts.UseCache
	}
	ttl := e.cfg.CacheTTL
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	if useCache && cacheKey != "" {
		if raw, ok := e.cache.Get(cacheKey); ok {
			if data, ok := raw.(T); ok {
				e.metrics.RecordCacheHit()
				return Result[T]{Success: true, Data: data, Cached: true, Source: e.name}
			}
			// Type drift under a reused key: drop the entry and refetch.
			e.cache.Delete(cacheKey)
		}
		e.metrics.RecordCacheMiss()
	}

	attempts := 1
	if opts.RetryOnError {
		attempts += e.cfg.RetryAttempts
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryDelay(attempt)); err != nil {
				lastErr = err
				break
			}
			if e.cfg.MonitoringEnabled {
				observ.IncCounter("service_retries_total", map[string]string{
					"service": e.name, "operation": operation,
				})
			}
		}

		data, err := runAttempt(ctx, e, operation, fetch)
		if err != nil {
			lastErr = err
			continue
		}

		if useCache && cacheKey != "" {
			e.cache.Set(cacheKey, data, ttl)
		}
		e.metrics.RecordSuccess(time.Since(start))
		return Result[T]{Success: true, Data: data, Cached: false, Source: e.name}
	}

	e.metrics.RecordError(time.Since(start))
	if e.cfg.MonitoringEnabled {
		observ.Log("execute_failed", map[string]any{
			"service":   e.name,
			"operation": operation,
			"attempts":  attempts,
			"error":     lastErr.Error(),
		})
	}
	return Result[T]{Success: false, Err: lastErr.Error(), Source: e.name}
}

// runAttempt races one fetch against the configured timeout. An abandoned
// fetch keeps running until its context fires, then its result is
// discarded; the buffered channel keeps the goroutine from leaking.
func runAttempt[T any](ctx context.Context, e *Executor, operation string, fetch FetchFunc[T]) (T, error) {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	type outcome struct {
		data T
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := fetch(tctx)
		done <- outcome{data: data, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.err != nil {
			return zero, out.err
		}
		return out.data, nil
	case <-tctx.Done():
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s cancelled: %v", operation, ctx.Err())
		}
		return zero, fmt.Errorf("%s timeout after %v", operation, e.cfg.Timeout)
	}
}

// retryDelay grows the wait between attempts: 100ms, 200ms, 400ms, capped
// at 2s.
func retryDelay(attempt int) time.Duration {
	d := 100 * time.Millisecond << (attempt - 1)
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsHealthy derives a verdict from accumulated metrics: unhealthy once the
// error rate reaches the configured threshold or the average response time
// exceeds the latency ceiling. Zero calls is healthy.
func (e *Executor) IsHealthy() bool {
	m := e.metrics.Snapshot()
	if m.TotalCalls == 0 {
		return true
	}
	if float64(m.ErrorCalls)/float64(m.TotalCalls) >= e.cfg.ErrorRateThreshold {
		return false
	}
	if m.AverageResponseTime > float64(e.cfg.HighLatencyThreshold.Milliseconds()) {
		return false
	}
	return true
}

// Metrics returns a snapshot of this instance's call accounting.
func (e *Executor) Metrics() Metrics { return e.metrics.Snapshot() }

// ClearCache empties the scoped cache.
func (e *Executor) ClearCache() { e.cache.Clear() }

// CacheStats exposes entry count plus the metrics-derived hit rate.
func (e *Executor) CacheStats() (CacheStats, float64) {
	return e.cache.Stats(), e.metrics.Snapshot().CacheHitRate
}

// Destroy stops the sweep loop and releases the cache. Idempotent.
func (e *Executor) Destroy() {
	e.destroy.Do(func() {
		close(e.stopCh)
		e.wg.Wait()
		e.cache.Clear()
		if e.cfg.MonitoringEnabled {
			observ.Log("executor_destroyed", map[string]any{"service": e.name})
		}
	})
}

func (e *Executor) sweepLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if removed := e.cache.Sweep(); removed > 0 && e.cfg.MonitoringEnabled {
				observ.IncCounterBy("quote_cache_evictions_total", map[string]string{
					"service": e.name,
				}, float64(removed))
			}
		}
	}
}
