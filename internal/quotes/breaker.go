package quotes

import (
	"sync"
	"time"

	"github.com/dailymotiv/quote-service/internal/observ"
)

// CircuitState is the per-provider breaker state.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"    // normal operation
	CircuitOpen     CircuitState = "open"      // short-circuiting calls
	CircuitHalfOpen CircuitState = "half-open" // one trial call permitted
)

// BreakerConfig controls state transitions. Thresholds are tunable
// constants, not derived from any upstream policy.
type BreakerConfig struct {
	ConsecutiveFailures int           `yaml:"consecutive_failures"`
	Cooldown            time.Duration `yaml:"cooldown"`
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.ConsecutiveFailures <= 0 {
		c.ConsecutiveFailures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	return c
}

// Breaker is a per-provider circuit breaker. Closed counts consecutive
// failures; at the threshold it opens and records openedAt. After the
// cooldown the first Allow claims the single half-open trial; the trial's
// outcome closes the circuit or re-opens it with a fresh openedAt.
type Breaker struct {
	mu       sync.Mutex
	provider string
	cfg      BreakerConfig

	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

func NewBreaker(provider string, cfg BreakerConfig) *Breaker {
	return &Breaker{
		provider: provider,
		cfg:      cfg.withDefaults(),
		state:    CircuitClosed,
	}
}

// Allow reports whether a call may proceed, claiming the half-open trial
// slot atomically when the cooldown has elapsed. Concurrent callers see at
// most one true while a trial is in flight.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = CircuitHalfOpen
		b.trialInFlight = true
		b.logTransition(CircuitOpen, CircuitHalfOpen)
		return true
	case CircuitHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// CanAttempt reports eligibility without claiming the half-open trial
// slot; selection uses it to shortlist providers before Allow commits.
func (b *Breaker) CanAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		return time.Since(b.openedAt) >= b.cfg.Cooldown
	case CircuitHalfOpen:
		return !b.trialInFlight
	default:
		return false
	}
}

// RecordSuccess resets the failure count; a successful half-open trial
// closes the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.state = CircuitClosed
		b.consecutiveFailures = 0
		b.trialInFlight = false
		b.openedAt = time.Time{}
		b.logTransition(CircuitHalfOpen, CircuitClosed)
	case CircuitClosed:
		b.consecutiveFailures = 0
	}
}

// RecordFailure counts a failure; a failed half-open trial re-opens the
// circuit, and a closed circuit opens once the threshold is reached.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	switch b.state {
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.openedAt = time.Now()
		b.trialInFlight = false
		b.logTransition(CircuitHalfOpen, CircuitOpen)
	case CircuitClosed:
		if b.consecutiveFailures >= b.cfg.ConsecutiveFailures {
			b.state = CircuitOpen
			b.openedAt = time.Now()
			b.logTransition(CircuitClosed, CircuitOpen)
		}
	}
}

// State returns the current state and failure count.
func (b *Breaker) State() (CircuitState, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.consecutiveFailures
}

// OpenedAt returns when the circuit last opened; zero when never opened.
func (b *Breaker) OpenedAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openedAt
}

// logTransition is called with the lock held.
func (b *Breaker) logTransition(from, to CircuitState) {
	observ.Log("circuit_transition", map[string]any{
		"provider":             b.provider,
		"from":                 string(from),
		"to":                   string(to),
		"consecutive_failures": b.consecutiveFailures,
	})
	observ.SetGauge("provider_circuit_state", circuitStateGauge(to), map[string]string{
		"provider": b.provider,
	})
}

func circuitStateGauge(s CircuitState) float64 {
	switch s {
	case CircuitClosed:
		return 0
	case CircuitHalfOpen:
		return 1
	case CircuitOpen:
		return 2
	default:
		return -1
	}
}
