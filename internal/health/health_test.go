// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package health_test

import (
	"errors"
	"testing"
	"time"

	"github.com/veer-dev/veer/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

func testPolicy() health.Policy {
	return health.Policy{
		FailureThreshold:  3,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenSuccesses: 2,
		FailureWindow:     60 * time.Second,
	}
}

func TestMonitor_StartsHealthy(t *testing.T) {
	m := health.NewMonitor(testPolicy())
	assert.True(t, m.IsHealthy("anthropic"))
	assert.Equal(t, health.StateClosed, m.CircuitState("anthropic"))
}

func TestMonitor_ConsecutiveFailuresOpenCircuit(t *testing.T) {
	m := health.NewMonitor(testPolicy())

	m.RecordFailure("anthropic", errUpstream)
	m.RecordFailure("anthropic", errUpstream)
	assert.True(t, m.IsHealthy("anthropic"), "below threshold stays closed")

	m.RecordFailure("anthropic", errUpstream)
	assert.False(t, m.IsHealthy("anthropic"), "threshold reached opens circuit on the very next query")
	assert.Equal(t, health.StateOpen, m.CircuitState("anthropic"))
}

func TestMonitor_SuccessResetsConsecutiveCount(t *testing.T) {
	now := time.Now()
	m := health.NewMonitor(health.Policy{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		// Narrow window so only the consecutive path could trip.
		FailureWindow:     time.Millisecond,
		HalfOpenSuccesses: 2,
	})
	clock := now
	m.SetNowFunc(func() time.Time { return clock })

	m.RecordFailure("openai", errUpstream)
	clock = clock.Add(10 * time.Millisecond)
	m.RecordFailure("openai", errUpstream)
	clock = clock.Add(10 * time.Millisecond)
	m.RecordSuccess("openai", 100*time.Millisecond)
	clock = clock.Add(10 * time.Millisecond)
	m.RecordFailure("openai", errUpstream)

	assert.True(t, m.IsHealthy("openai"), "streak was broken by a success")
}

func TestMonitor_WindowedFailuresOpenCircuit(t *testing.T) {
	now := time.Now()
	m := health.NewMonitor(testPolicy())
	m.SetNowFunc(func() time.Time { return now })

	// Successes between failures reset the consecutive count, but three
	// failures inside the window still open the circuit.
	m.RecordFailure("openai", errUpstream)
	m.RecordSuccess("openai", 50*time.Millisecond)
	m.RecordFailure("openai", errUpstream)
	m.RecordSuccess("openai", 50*time.Millisecond)
	assert.True(t, m.IsHealthy("openai"))

	m.RecordFailure("openai", errUpstream)
	assert.False(t, m.IsHealthy("openai"))
}

func TestMonitor_StaleWindowEntriesPruned(t *testing.T) {
	now := time.Now()
	clock := now
	m := health.NewMonitor(testPolicy())
	m.SetNowFunc(func() time.Time { return clock })

	m.RecordFailure("google", errUpstream)
	m.RecordSuccess("google", 50*time.Millisecond)
	m.RecordFailure("google", errUpstream)
	m.RecordSuccess("google", 50*time.Millisecond)

	// Let the first two failures age out of the 60s window.
	clock = now.Add(2 * time.Minute)
	m.RecordFailure("google", errUpstream)

	assert.True(t, m.IsHealthy("google"), "stale failures must not count toward the window")
}

func TestMonitor_SelfHealing(t *testing.T) {
	now := time.Now()
	clock := now
	m := health.NewMonitor(testPolicy())
	m.SetNowFunc(func() time.Time { return clock })

	for i := 0; i < 3; i++ {
		m.RecordFailure("anthropic", errUpstream)
	}
	require.False(t, m.IsHealthy("anthropic"))

	// Before the recovery timeout the circuit stays open.
	clock = now.Add(29 * time.Second)
	assert.False(t, m.IsHealthy("anthropic"))
	assert.Equal(t, health.StateOpen, m.CircuitState("anthropic"))

	// The first query at/after the timeout flips to half-open.
	clock = now.Add(30 * time.Second)
	assert.True(t, m.IsHealthy("anthropic"))
	assert.Equal(t, health.StateHalfOpen, m.CircuitState("anthropic"))

	// Two consecutive successes close it.
	m.RecordSuccess("anthropic", 80*time.Millisecond)
	assert.Equal(t, health.StateHalfOpen, m.CircuitState("anthropic"))
	m.RecordSuccess("anthropic", 90*time.Millisecond)
	assert.Equal(t, health.StateClosed, m.CircuitState("anthropic"))
	assert.True(t, m.IsHealthy("anthropic"))
}

func TestMonitor_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	clock := now
	m := health.NewMonitor(testPolicy())
	m.SetNowFunc(func() time.Time { return clock })

	for i := 0; i < 3; i++ {
		m.RecordFailure("anthropic", errUpstream)
	}
	clock = now.Add(31 * time.Second)
	require.True(t, m.IsHealthy("anthropic"))
	require.Equal(t, health.StateHalfOpen, m.CircuitState("anthropic"))

	// One success is not enough; a single failure reopens immediately.
	m.RecordSuccess("anthropic", 80*time.Millisecond)
	m.RecordFailure("anthropic", errUpstream)
	assert.Equal(t, health.StateOpen, m.CircuitState("anthropic"))
	assert.False(t, m.IsHealthy("anthropic"))
}

func TestMonitor_ForceOpenBypassesTransitions(t *testing.T) {
	now := time.Now()
	clock := now
	m := health.NewMonitor(testPolicy())
	m.SetNowFunc(func() time.Time { return clock })

	m.ForceOpen("openai")
	assert.False(t, m.IsHealthy("openai"))

	// Neither successes nor the recovery timeout reopen a forced circuit.
	m.RecordSuccess("openai", 10*time.Millisecond)
	clock = now.Add(5 * time.Minute)
	assert.False(t, m.IsHealthy("openai"))

	m.ForceClose("openai")
	assert.True(t, m.IsHealthy("openai"))
	assert.Equal(t, health.StateClosed, m.CircuitState("openai"))
}

func TestMonitor_ForceCloseClearsAutomaticOpen(t *testing.T) {
	m := health.NewMonitor(testPolicy())
	for i := 0; i < 3; i++ {
		m.RecordFailure("google", errUpstream)
	}
	require.False(t, m.IsHealthy("google"))

	m.ForceClose("google")
	assert.True(t, m.IsHealthy("google"))

	// The failure history was cleared: one new failure does not reopen.
	m.RecordFailure("google", errUpstream)
	assert.True(t, m.IsHealthy("google"))
}

func TestMonitor_SnapshotCountersAndRates(t *testing.T) {
	m := health.NewMonitor(testPolicy())

	m.RecordSuccess("anthropic", 100*time.Millisecond)
	m.RecordSuccess("anthropic", 200*time.Millisecond)
	m.RecordFailure("anthropic", errUpstream)
	m.RecordFallback("anthropic")

	s, ok := m.Snapshot("anthropic")
	require.True(t, ok)
	assert.Equal(t, int64(3), s.TotalRequests)
	assert.Equal(t, int64(2), s.Successes)
	assert.Equal(t, int64(1), s.Failures)
	assert.Equal(t, int64(1), s.Fallbacks)
	assert.InDelta(t, 1.0/3.0, s.ErrorRate, 1e-9)
	assert.InDelta(t, 150.0, s.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 200.0, s.LastLatencyMs, 1e-9)
	assert.Equal(t, 2, s.SampleCount)
}

func TestMonitor_SnapshotUnknownProvider(t *testing.T) {
	m := health.NewMonitor(testPolicy())
	_, ok := m.Snapshot("never-seen")
	assert.False(t, ok)
}

func TestMonitor_Percentiles(t *testing.T) {
	m := health.NewMonitor(testPolicy())

	// 100 samples: 1ms..100ms.
	for i := 1; i <= 100; i++ {
		m.RecordSuccess("openai", time.Duration(i)*time.Millisecond)
	}

	s, ok := m.Snapshot("openai")
	require.True(t, ok)
	assert.InDelta(t, 51.0, s.P50LatencyMs, 1.0)
	assert.InDelta(t, 96.0, s.P95LatencyMs, 1.0)
	assert.InDelta(t, 100.0, s.P99LatencyMs, 1.0)
}

func TestMonitor_LatencyBufferBounded(t *testing.T) {
	m := health.NewMonitor(testPolicy())

	for i := 0; i < 1500; i++ {
		m.RecordSuccess("openai", time.Duration(i)*time.Millisecond)
	}

	s, ok := m.Snapshot("openai")
	require.True(t, ok)
	assert.Equal(t, 1000, s.SampleCount)
	// Oldest 500 samples were evicted, so the minimum retained is 500ms.
	assert.GreaterOrEqual(t, s.P50LatencyMs, 500.0)
}

func TestMonitor_Reset(t *testing.T) {
	m := health.NewMonitor(testPolicy())
	for i := 0; i < 3; i++ {
		m.RecordFailure("openai", errUpstream)
	}
	require.False(t, m.IsHealthy("openai"))

	m.Reset("openai")
	assert.True(t, m.IsHealthy("openai"))
	_, ok := m.Snapshot("openai")
	assert.False(t, ok)
}

// Run with `go test -race` to detect data races across concurrent
// recorders and health queries.
func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := health.NewMonitor(testPolicy())

	const goroutines = 8
	const iterations = 200

	done := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < iterations; j++ {
				m.RecordSuccess("shared", time.Millisecond)
				m.RecordFailure("shared", errUpstream)
				_ = m.IsHealthy("shared")
				_, _ = m.Snapshot("shared")
			}
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	s, ok := m.Snapshot("shared")
	require.True(t, ok)
	assert.Equal(t, int64(goroutines*iterations*2), s.TotalRequests)
}
