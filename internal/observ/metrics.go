package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1.0)
}

func IncCounterBy(name string, labels map[string]string, value float64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	k := canonLabels(labels)
	m[k] += int64(value)
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	k := canonLabels(labels)
	m[k] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a duration observation in milliseconds
func RecordDuration(name string, duration time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(duration.Milliseconds()), labels)
}

// Basic text/JSON dump for quick checks (not Prometheus format on purpose)
func Handler() http.Handler {
	type dump struct {
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{Counters: reg.counters, Gauges: reg.gauges, Hist: reg.hist})
	})
}

// HealthStatus is the payload served by HealthHandler.
type HealthStatus struct {
	Status    string        `json:"status"` // "healthy", "degraded", "failed"
	Timestamp string        `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Version   string        `json:"version"`
	Metrics   HealthMetrics `json:"metrics"`
}

// HealthMetrics summarizes the fetch pipeline for dashboards.
type HealthMetrics struct {
	SuccessRate     float64 `json:"success_rate"`     // provider fetch success rate
	CacheHitRate    float64 `json:"cache_hit_rate"`   // scoped cache hit rate
	FallbackServed  int64   `json:"fallback_served"`  // quotes served from local data
	OpenCircuits    int64   `json:"open_circuits"`    // providers currently short-circuited
	LatencyP95Ms    int64   `json:"latency_p95_ms"`   // P95 provider fetch latency
	ProvidersTotal  int64   `json:"providers_total"`  // registered providers
	RequestsTotal   int64   `json:"requests_total"`   // provider fetch attempts
	RateLimitedHits int64   `json:"rate_limited_hits"`
}

var (
	startTime = time.Now()
	version   = "dev" // Set via build flags
)

// SetVersion sets the version string for health reports
func SetVersion(v string) {
	version = v
}

// HealthHandler serves an overall health verdict derived from the metric
// registry: failed when every provider circuit is open, degraded when any
// circuit is open or the fetch error rate crosses 10%.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()

		m := healthMetricsLocked()
		status := "healthy"
		if m.ProvidersTotal > 0 && m.OpenCircuits >= m.ProvidersTotal {
			status = "failed"
		} else if m.OpenCircuits > 0 || (m.RequestsTotal > 20 && m.SuccessRate < 0.9) {
			status = "degraded"
		}

		statusCode := http.StatusOK
		switch status {
		case "degraded":
			statusCode = http.StatusPartialContent
		case "failed":
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		_ = json.NewEncoder(w).Encode(HealthStatus{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).String(),
			Version:   version,
			Metrics:   m,
		})
	})
}

func healthMetricsLocked() HealthMetrics {
	m := HealthMetrics{}

	m.RequestsTotal = sumCounter("provider_requests_total")
	successes := sumCounter("provider_successes_total")
	if m.RequestsTotal > 0 {
		m.SuccessRate = float64(successes) / float64(m.RequestsTotal)
	}

	hits := sumCounter("quote_cache_hits_total")
	misses := sumCounter("quote_cache_misses_total")
	if hits+misses > 0 {
		m.CacheHitRate = float64(hits) / float64(hits+misses)
	}

	m.FallbackServed = sumCounter("fallback_served_total")
	m.RateLimitedHits = sumCounter("provider_rate_limited_total")

	// provider_circuit_state gauge: 0 closed, 1 half-open, 2 open
	if states, ok := reg.gauges["provider_circuit_state"]; ok {
		for _, v := range states {
			m.ProvidersTotal++
			if v >= 2 {
				m.OpenCircuits++
			}
		}
	}

	if samples, ok := reg.hist["provider_fetch_latency_ms"]; ok {
		all := make([]float64, 0, 64)
		for _, s := range samples {
			all = append(all, s...)
		}
		if len(all) > 0 {
			sort.Float64s(all)
			idx := int(float64(len(all)) * 0.95)
			if idx >= len(all) {
				idx = len(all) - 1
			}
			m.LatencyP95Ms = int64(all[idx])
		}
	}

	return m
}

func sumCounter(name string) int64 {
	var total int64
	if counts, ok := reg.counters[name]; ok {
		for _, c := range counts {
			total += c
		}
	}
	return total
}

// Simple liveness handler
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
