package quotes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker("p", BreakerConfig{ConsecutiveFailures: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		require.True(t, b.Allow())
		b.RecordFailure()
	}
	state, failures := b.State()
	assert.Equal(t, CircuitClosed, state)
	assert.Equal(t, 2, failures)

	require.True(t, b.Allow())
	b.RecordFailure()

	state, failures = b.State()
	assert.Equal(t, CircuitOpen, state)
	assert.Equal(t, 3, failures)
	assert.False(t, b.OpenedAt().IsZero())
}

func TestBreakerShortCircuitsDuringCooldown(t *testing.T) {
	b := NewBreaker("p", BreakerConfig{ConsecutiveFailures: 1, Cooldown: time.Minute})
	b.RecordFailure()

	assert.False(t, b.Allow(), "open circuit must not allow calls")
	assert.False(t, b.CanAttempt())
}

func TestBreakerHalfOpenSingleTrial(t *testing.T) {
	b := NewBreaker("p", BreakerConfig{ConsecutiveFailures: 1, Cooldown: 20 * time.Millisecond})
	b.RecordFailure()

	time.Sleep(30 * time.Millisecond)

	require.True(t, b.Allow(), "cooldown elapsed: one trial permitted")
	state, _ := b.State()
	assert.Equal(t, CircuitHalfOpen, state)
	assert.False(t, b.Allow(), "second caller must not get a trial while one is in flight")
}

func TestBreakerTrialSuccessCloses(t *testing.T) {
	b := NewBreaker("p", BreakerConfig{ConsecutiveFailures: 1, Cooldown: 10 * time.Millisecond})
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.True(t, b.Allow())

	b.RecordSuccess()

	state, failures := b.State()
	assert.Equal(t, CircuitClosed, state)
	assert.Equal(t, 0, failures, "success resets consecutive failures")
	assert.True(t, b.Allow())
}

func TestBreakerTrialFailureReopens(t *testing.T) {
	b := NewBreaker("p", BreakerConfig{ConsecutiveFailures: 1, Cooldown: 10 * time.Millisecond})
	b.RecordFailure()
	firstOpen := b.OpenedAt()

	time.Sleep(20 * time.Millisecond)
	require.True(t, b.Allow())

	b.RecordFailure()

	state, _ := b.State()
	assert.Equal(t, CircuitOpen, state)
	assert.True(t, b.OpenedAt().After(firstOpen), "reopen must reset openedAt")
	assert.False(t, b.Allow(), "fresh cooldown applies after failed trial")
}

func TestBreakerSuccessResetsClosedFailures(t *testing.T) {
	b := NewBreaker("p", BreakerConfig{ConsecutiveFailures: 3, Cooldown: time.Minute})
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	state, failures := b.State()
	assert.Equal(t, CircuitClosed, state, "interleaved success keeps the count below threshold")
	assert.Equal(t, 2, failures)
}
