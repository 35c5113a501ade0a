package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Text string
}

func newTestExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	e := NewExecutor("test-service", cfg)
	t.Cleanup(e.Destroy)
	return e
}

func TestExecuteCachesSuccessfulResult(t *testing.T) {
	e := newTestExecutor(t, Config{CacheEnabled: true, CacheTTL: 60 * time.Second})

	var calls int32
	fetch := func(ctx context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		return payload{Text: "Test"}, nil
	}

	res := Execute(context.Background(), e, "op", "k", fetch, Options{})
	require.True(t, res.Success)
	assert.False(t, res.Cached)
	assert.Equal(t, "Test", res.Data.Text)
	assert.Equal(t, "test-service", res.Source)

	res = Execute(context.Background(), e, "op", "k", fetch, Options{})
	require.True(t, res.Success)
	assert.True(t, res.Cached)
	assert.Equal(t, "Test", res.Data.Text)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "fetcher must not run on a cache hit")
}

func TestExecuteCacheDisabled(t *testing.T) {
	e := newTestExecutor(t, Config{CacheEnabled: false})

	var calls int32
	fetch := func(ctx context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		return payload{Text: "x"}, nil
	}

	for i := 0; i < 3; i++ {
		res := Execute(context.Background(), e, "op", "k", fetch, Options{})
		require.True(t, res.Success)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestExecuteOptionOverridesInstanceCaching(t *testing.T) {
	e := newTestExecutor(t, Config{CacheEnabled: true})

	var calls int32
	fetch := func(ctx context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		return payload{}, nil
	}

	Execute(context.Background(), e, "op", "k", fetch, Options{UseCache: Bool(false)})
	Execute(context.Background(), e, "op", "k", fetch, Options{UseCache: Bool(false)})
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecuteRetryThenSuccess(t *testing.T) {
	e := newTestExecutor(t, Config{RetryAttempts: 3})

	var calls int32
	fetch := func(ctx context.Context) (payload, error) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			return payload{}, errors.New("boom")
		}
		return payload{Text: "finally"}, nil
	}

	res := Execute(context.Background(), e, "op", "", fetch, Options{RetryOnError: true})
	require.True(t, res.Success)
	assert.Equal(t, "finally", res.Data.Text)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestExecuteExhaustedRetriesRecordsSingleError(t *testing.T) {
	e := newTestExecutor(t, Config{RetryAttempts: 2})

	var calls int32
	fetch := func(ctx context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		return payload{}, errors.New("always fails")
	}

	res := Execute(context.Background(), e, "op", "", fetch, Options{RetryOnError: true})
	require.False(t, res.Success)
	assert.Contains(t, res.Err, "always fails")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "1 initial + 2 retries")

	m := e.Metrics()
	assert.Equal(t, int64(1), m.ErrorCalls, "one error record per call, not per attempt")
	assert.Equal(t, int64(1), m.TotalCalls)
}

func TestExecuteNoRetryByDefault(t *testing.T) {
	e := newTestExecutor(t, Config{RetryAttempts: 5})

	var calls int32
	fetch := func(ctx context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		return payload{}, errors.New("nope")
	}

	res := Execute(context.Background(), e, "op", "", fetch, Options{})
	require.False(t, res.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestExecuteTimeout(t *testing.T) {
	e := newTestExecutor(t, Config{Timeout: 100 * time.Millisecond})

	fetch := func(ctx context.Context) (payload, error) {
		select {
		case <-ctx.Done():
			return payload{}, ctx.Err()
		case <-time.After(2 * time.Second):
			return payload{Text: "too late"}, nil
		}
	}

	start := time.Now()
	res := Execute(context.Background(), e, "slow_op", "", fetch, Options{})
	require.False(t, res.Success)
	assert.Contains(t, strings.ToLower(res.Err), "timeout")
	assert.Less(t, time.Since(start), time.Second, "must not wait for the slow fetcher")
}

func TestExecuteFailureNotCached(t *testing.T) {
	e := newTestExecutor(t, Config{CacheEnabled: true, CacheTTL: time.Minute})

	var calls int32
	fetch := func(ctx context.Context) (payload, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return payload{}, errors.New("first fails")
		}
		return payload{Text: "second"}, nil
	}

	res := Execute(context.Background(), e, "op", "k", fetch, Options{})
	require.False(t, res.Success)

	res = Execute(context.Background(), e, "op", "k", fetch, Options{})
	require.True(t, res.Success)
	assert.False(t, res.Cached, "failures must not populate the cache")
	assert.Equal(t, "second", res.Data.Text)
}

func TestExecutorMetricsInvariant(t *testing.T) {
	e := newTestExecutor(t, Config{CacheEnabled: true, CacheTTL: time.Minute})

	ok := func(ctx context.Context) (payload, error) { return payload{Text: "ok"}, nil }
	bad := func(ctx context.Context) (payload, error) { return payload{}, errors.New("bad") }

	Execute(context.Background(), e, "op", "a", ok, Options{})  // miss + success
	Execute(context.Background(), e, "op", "a", ok, Options{})  // cache hit
	Execute(context.Background(), e, "op", "", bad, Options{})  // error
	Execute(context.Background(), e, "op", "b", ok, Options{})  // miss + success

	m := e.Metrics()
	assert.Equal(t, m.TotalCalls, m.SuccessCalls+m.ErrorCalls)
	assert.Equal(t, int64(4), m.TotalCalls)
	assert.Equal(t, int64(1), m.CacheHits)
	assert.InDelta(t, 0.25, m.CacheHitRate, 1e-9)
}

func TestExecutorHealth(t *testing.T) {
	e := newTestExecutor(t, Config{})
	assert.True(t, e.IsHealthy(), "zero calls is healthy")

	ok := func(ctx context.Context) (payload, error) { return payload{}, nil }
	bad := func(ctx context.Context) (payload, error) { return payload{}, errors.New("bad") }

	for i := 0; i < 9; i++ {
		Execute(context.Background(), e, "op", "", ok, Options{})
	}
	assert.True(t, e.IsHealthy())

	Execute(context.Background(), e, "op", "", bad, Options{})
	assert.False(t, e.IsHealthy(), "10% error rate crosses the threshold")
}

func TestExecutorHighLatencyUnhealthy(t *testing.T) {
	e := newTestExecutor(t, Config{HighLatencyThreshold: 10 * time.Millisecond})

	slow := func(ctx context.Context) (payload, error) {
		time.Sleep(30 * time.Millisecond)
		return payload{}, nil
	}
	Execute(context.Background(), e, "op", "", slow, Options{})
	assert.False(t, e.IsHealthy())
}

func TestExecutorClearCache(t *testing.T) {
	e := newTestExecutor(t, Config{CacheEnabled: true, CacheTTL: time.Minute})

	var calls int32
	fetch := func(ctx context.Context) (payload, error) {
		atomic.AddInt32(&calls, 1)
		return payload{}, nil
	}

	Execute(context.Background(), e, "op", "k", fetch, Options{})
	e.ClearCache()
	res := Execute(context.Background(), e, "op", "k", fetch, Options{})
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestExecutorDestroyIdempotent(t *testing.T) {
	e := NewExecutor("short-lived", Config{})
	e.Destroy()
	e.Destroy() // must not panic or block
}

func TestExecuteConcurrentCallsKeepCounts(t *testing.T) {
	e := newTestExecutor(t, Config{})

	const n = 50
	done := make(chan struct{}, n)
	fetch := func(ctx context.Context) (payload, error) { return payload{}, nil }
	for i := 0; i < n; i++ {
		go func() {
			Execute(context.Background(), e, "op", "", fetch, Options{})
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	m := e.Metrics()
	assert.Equal(t, int64(n), m.TotalCalls, "no lost counter updates under concurrency")
	assert.Equal(t, m.TotalCalls, m.SuccessCalls+m.ErrorCalls)
}
