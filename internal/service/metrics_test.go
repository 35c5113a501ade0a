package service

import (
	"testing"
	"time"
)

func TestRecorderCounterInvariant(t *testing.T) {
	r := newRecorder("test", false)

	r.RecordSuccess(10 * time.Millisecond)
	r.RecordError(20 * time.Millisecond)
	r.RecordCacheHit()
	r.RecordSuccess(30 * time.Millisecond)
	r.RecordError(5 * time.Millisecond)

	m := r.Snapshot()
	if m.TotalCalls != m.SuccessCalls+m.ErrorCalls {
		t.Errorf("invariant broken: total=%d success=%d error=%d",
			m.TotalCalls, m.SuccessCalls, m.ErrorCalls)
	}
	if m.TotalCalls != 5 {
		t.Errorf("TotalCalls = %d, want 5", m.TotalCalls)
	}
	if m.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", m.CacheHits)
	}
}

func TestRecorderRunningMean(t *testing.T) {
	r := newRecorder("test", false)

	r.RecordSuccess(100 * time.Millisecond)
	r.RecordSuccess(200 * time.Millisecond)
	r.RecordSuccess(300 * time.Millisecond)

	m := r.Snapshot()
	if m.AverageResponseTime != 200 {
		t.Errorf("AverageResponseTime = %v, want 200", m.AverageResponseTime)
	}

	// A cache hit must not drag the mean toward zero.
	r.RecordCacheHit()
	if got := r.Snapshot().AverageResponseTime; got != 200 {
		t.Errorf("AverageResponseTime after cache hit = %v, want 200", got)
	}
}

func TestRecorderHitRateComputedAtSnapshot(t *testing.T) {
	r := newRecorder("test", false)

	if got := r.Snapshot().CacheHitRate; got != 0 {
		t.Errorf("CacheHitRate with no calls = %v, want 0", got)
	}

	r.RecordCacheHit()
	r.RecordSuccess(time.Millisecond)
	r.RecordCacheHit()
	r.RecordError(time.Millisecond)

	if got := r.Snapshot().CacheHitRate; got != 0.5 {
		t.Errorf("CacheHitRate = %v, want 0.5", got)
	}
}

func TestRecorderLastCallTime(t *testing.T) {
	r := newRecorder("test", false)
	if !r.Snapshot().LastCallTime.IsZero() {
		t.Error("LastCallTime should be zero before any call")
	}
	before := time.Now()
	r.RecordSuccess(time.Millisecond)
	if r.Snapshot().LastCallTime.Before(before) {
		t.Error("LastCallTime not updated")
	}
}
