package quotes

import (
	"sync"
	"time"
)

// RateWindow is a trailing-window request counter per provider: a
// best-effort local throttle, not a guarantee against the remote API's own
// limits. Timestamps outside the window are pruned on every check.
type RateWindow struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	requests    []time.Time
}

func NewRateWindow(window time.Duration, maxRequests int) *RateWindow {
	if window <= 0 {
		window = time.Minute
	}
	if maxRequests <= 0 {
		maxRequests = 30
	}
	return &RateWindow{
		window:      window,
		maxRequests: maxRequests,
		requests:    make([]time.Time, 0, maxRequests),
	}
}

// Allow reports whether the trailing window has capacity.
func (rw *RateWindow) Allow() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.pruneLocked(time.Now())
	return len(rw.requests) < rw.maxRequests
}

// TryAcquire records a request when the window has capacity, in one
// critical section, so concurrent callers can never overshoot the cap the
// way a separate Allow-then-Record pair can.
func (rw *RateWindow) TryAcquire() bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	now := time.Now()
	rw.pruneLocked(now)
	if len(rw.requests) >= rw.maxRequests {
		return false
	}
	rw.requests = append(rw.requests, now)
	return true
}

// Record appends a request timestamp.
func (rw *RateWindow) Record() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	now := time.Now()
	rw.pruneLocked(now)
	rw.requests = append(rw.requests, now)
}

// Usage returns current count and capacity for health reporting.
func (rw *RateWindow) Usage() (used, max int) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.pruneLocked(time.Now())
	return len(rw.requests), rw.maxRequests
}

// Prune drops expired timestamps; called periodically by the aggregator so
// idle windows do not pin memory between requests.
func (rw *RateWindow) Prune() {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	rw.pruneLocked(time.Now())
}

func (rw *RateWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-rw.window)
	keep := rw.requests[:0]
	for _, ts := range rw.requests {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	rw.requests = keep
}
