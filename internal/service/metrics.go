package service

import (
	"sync"
	"time"

	"github.com/dailymotiv/quote-service/internal/observ"
)

// Metrics is a snapshot of one service instance's call accounting.
// TotalCalls == SuccessCalls + ErrorCalls holds after every completed call;
// a cache hit counts as one total call and one success call.
type Metrics struct {
	TotalCalls          int64     `json:"total_calls"`
	SuccessCalls        int64     `json:"success_calls"`
	ErrorCalls          int64     `json:"error_calls"`
	CacheHits           int64     `json:"cache_hits"`
	AverageResponseTime float64   `json:"average_response_time_ms"`
	CacheHitRate        float64   `json:"cache_hit_rate"`
	LastCallTime        time.Time `json:"last_call_time"`
}

// recorder accumulates metrics for a single named service. All updates are
// serialized behind the mutex so concurrent Execute calls never lose
// counter increments.
type recorder struct {
	mu sync.Mutex

	service      string
	monitoring   bool
	totalCalls   int64
	successCalls int64
	errorCalls   int64
	cacheHits    int64
	// Running mean over timed fetches only; cache hits carry no latency.
	timedCalls int64
	avgMs      float64
	lastCall   time.Time
}

func newRecorder(service string, monitoring bool) *recorder {
	return &recorder{service: service, monitoring: monitoring}
}

// RecordSuccess accounts one successful timed call.
func (r *recorder) RecordSuccess(elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalCalls++
	r.successCalls++
	r.observeLatency(elapsed)
	r.lastCall = time.Now()
	if r.monitoring {
		observ.IncCounter("service_calls_total", map[string]string{
			"service": r.service, "result": "success",
		})
	}
}

// RecordError accounts one failed timed call. elapsed covers the whole
// attempt sequence, not individual retries.
func (r *recorder) RecordError(elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalCalls++
	r.errorCalls++
	r.observeLatency(elapsed)
	r.lastCall = time.Now()
	if r.monitoring {
		observ.IncCounter("service_calls_total", map[string]string{
			"service": r.service, "result": "error",
		})
	}
}

// RecordCacheHit accounts a call answered from cache. It counts toward
// total and success so the counter invariant holds, but contributes no
// latency sample.
func (r *recorder) RecordCacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalCalls++
	r.successCalls++
	r.cacheHits++
	r.lastCall = time.Now()
	if r.monitoring {
		observ.IncCounter("quote_cache_hits_total", map[string]string{
			"service": r.service,
		})
	}
}

// RecordCacheMiss only feeds the observ registry; the subsequent
// success/error record carries the call accounting.
func (r *recorder) RecordCacheMiss() {
	if !r.monitoring {
		return
	}
	observ.IncCounter("quote_cache_misses_total", map[string]string{
		"service": r.service,
	})
}

// observeLatency folds elapsed into the incremental running mean:
// avg' = avg + (elapsed - avg) / n'. Called with the lock held.
func (r *recorder) observeLatency(elapsed time.Duration) {
	r.timedCalls++
	ms := float64(elapsed.Milliseconds())
	r.avgMs += (ms - r.avgMs) / float64(r.timedCalls)
	if r.monitoring {
		observ.RecordDuration("service_call_latency", elapsed, map[string]string{
			"service": r.service,
		})
	}
}

// Snapshot derives the hit rate at read time rather than storing it
// incrementally, so it cannot drift from the counters.
func (r *recorder) Snapshot() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := Metrics{
		TotalCalls:          r.totalCalls,
		SuccessCalls:        r.successCalls,
		ErrorCalls:          r.errorCalls,
		CacheHits:           r.cacheHits,
		AverageResponseTime: r.avgMs,
		LastCallTime:        r.lastCall,
	}
	if r.totalCalls > 0 {
		m.CacheHitRate = float64(r.cacheHits) / float64(r.totalCalls)
	}
	return m
}
