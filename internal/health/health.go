// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

// Package health tracks per-provider failure state and drives the
// circuit-breaker transitions that gate routing decisions.
package health

import (
	"log/slog"
	"sync"
	"time"
)

// State is the circuit-breaker state of one provider.
type State string

const (
	// StateClosed is normal operation: requests flow to the provider.
	StateClosed State = "closed"
	// StateOpen rejects routing to the provider until the recovery
	// timeout elapses.
	StateOpen State = "open"
	// StateHalfOpen admits probationary traffic to test recovery.
	StateHalfOpen State = "half_open"
)

// Policy holds the immutable per-provider breaker thresholds.
type Policy struct {
	// FailureThreshold opens the circuit when reached either by
	// consecutive failures or by failures inside FailureWindow.
	FailureThreshold int
	// RecoveryTimeout is how long an open circuit waits before the next
	// health query moves it to half-open.
	RecoveryTimeout time.Duration
	// HalfOpenSuccesses is the success streak that closes a half-open circuit.
	HalfOpenSuccesses int
	// FailureWindow is the sliding window for the windowed failure count.
	FailureWindow time.Duration
}

// DefaultPolicy returns the thresholds used when config supplies none.
func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenSuccesses: 2,
		FailureWindow:     60 * time.Second,
	}
}

// maxLatencySamples bounds the per-provider latency buffer. Samples are
// capped by count, not age, so percentiles can reflect stale traffic
// during quiet periods.
const maxLatencySamples = 1000

// circuit is the mutable health record for one provider. All fields are
// guarded by mu; the Monitor only touches them under that lock.
type circuit struct {
	mu sync.Mutex

	state                State
	consecutiveFailures  int
	consecutiveSuccesses int
	failureTimes         []time.Time
	openedAt             time.Time
	forcedOpen           bool

	totalRequests int64
	successCount  int64
	failureCount  int64
	fallbackCount int64

	latencies   []float64 // ring buffer, milliseconds
	latencyNext int
	latencySum  float64
	lastLatency float64
	avgLatency  float64
	p50, p95, p99 float64
}

// Monitor tracks circuit state for every provider. It never returns
// errors; it only records outcomes and answers health queries. A zero
// provider is healthy until proven otherwise.
type Monitor struct {
	mu       sync.RWMutex
	circuits map[string]*circuit

	policy  Policy
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewMonitor creates a Monitor with the given policy. Zero-valued policy
// fields fall back to DefaultPolicy.
func NewMonitor(policy Policy) *Monitor {
	def := DefaultPolicy()
	if policy.FailureThreshold <= 0 {
		policy.FailureThreshold = def.FailureThreshold
	}
	if policy.RecoveryTimeout <= 0 {
		policy.RecoveryTimeout = def.RecoveryTimeout
	}
	if policy.HalfOpenSuccesses <= 0 {
		policy.HalfOpenSuccesses = def.HalfOpenSuccesses
	}
	if policy.FailureWindow <= 0 {
		policy.FailureWindow = def.FailureWindow
	}

	return &Monitor{
		circuits: make(map[string]*circuit),
		policy:   policy,
		logger:   slog.Default(),
		nowFunc:  time.Now,
	}
}

// SetLogger overrides the transition logger.
func (m *Monitor) SetLogger(l *slog.Logger) {
	if l != nil {
		m.logger = l
	}
}

// SetNowFunc overrides the time source (for testing).
func (m *Monitor) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	m.nowFunc = fn
	m.mu.Unlock()
}

func (m *Monitor) now() time.Time {
	m.mu.RLock()
	fn := m.nowFunc
	m.mu.RUnlock()
	return fn()
}

// get returns the circuit for provider, creating it closed on first use.
func (m *Monitor) get(provider string) *circuit {
	m.mu.RLock()
	c, ok := m.circuits[provider]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.circuits[provider]; ok {
		return c
	}
	c = &circuit{state: StateClosed}
	m.circuits[provider] = c
	return c
}

// RecordSuccess records one completed successful attempt against provider.
// Called exactly once per attempt that returned a result.
func (m *Monitor) RecordSuccess(provider string, latency time.Duration) {
	c := m.get(provider)
	now := m.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	c.successCount++
	c.consecutiveFailures = 0
	c.recordLatency(float64(latency) / float64(time.Millisecond))

	if c.state == StateHalfOpen && !c.forcedOpen {
		c.consecutiveSuccesses++
		if c.consecutiveSuccesses >= m.policy.HalfOpenSuccesses {
			c.transition(m.logger, provider, StateClosed, now)
			c.failureTimes = nil
		}
	} else {
		c.consecutiveSuccesses++
	}
}

// RecordFailure records one completed failed attempt against provider.
// Called exactly once per attempt, whatever the failure class: the
// provider responded with something diagnosable.
func (m *Monitor) RecordFailure(provider string, err error) {
	c := m.get(provider)
	now := m.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	c.failureCount++
	c.consecutiveSuccesses = 0
	c.consecutiveFailures++

	// Prune stale entries, then count this failure in the window.
	cutoff := now.Add(-m.policy.FailureWindow)
	kept := c.failureTimes[:0]
	for _, t := range c.failureTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.failureTimes = append(kept, now)

	if c.forcedOpen {
		return
	}

	switch c.state {
	case StateHalfOpen:
		// Any failure on probation reopens the circuit.
		c.transition(m.logger, provider, StateOpen, now)
		m.logger.Warn("circuit reopened during probation",
			"provider", provider, "error", err)
	case StateClosed:
		if c.consecutiveFailures >= m.policy.FailureThreshold ||
			len(c.failureTimes) >= m.policy.FailureThreshold {
			c.transition(m.logger, provider, StateOpen, now)
			m.logger.Warn("circuit opened",
				"provider", provider,
				"consecutive_failures", c.consecutiveFailures,
				"window_failures", len(c.failureTimes),
				"error", err)
		}
	}
}

// RecordFallback counts a fallback routed away from provider.
func (m *Monitor) RecordFallback(provider string) {
	c := m.get(provider)
	c.mu.Lock()
	c.fallbackCount++
	c.mu.Unlock()
}

// IsHealthy reports whether provider can receive traffic. Querying an
// open circuit after the recovery timeout lazily moves it to half-open;
// there is no background timer.
func (m *Monitor) IsHealthy(provider string) bool {
	c := m.get(provider)
	now := m.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forcedOpen {
		return false
	}

	switch c.state {
	case StateOpen:
		if now.Sub(c.openedAt) >= m.policy.RecoveryTimeout {
			c.transition(m.logger, provider, StateHalfOpen, now)
			return true
		}
		return false
	default:
		return true
	}
}

// CircuitState returns the current state without triggering transitions.
func (m *Monitor) CircuitState(provider string) State {
	c := m.get(provider)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ForceOpen opens provider's circuit for maintenance. The circuit stays
// open, ignoring successes and the recovery timeout, until ForceClose.
func (m *Monitor) ForceOpen(provider string) {
	c := m.get(provider)
	now := m.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.forcedOpen = true
	if c.state != StateOpen {
		c.transition(m.logger, provider, StateOpen, now)
	}
	m.logger.Info("circuit forced open", "provider", provider)
}

// ForceClose clears a manual or automatic open state and restores
// normal operation.
func (m *Monitor) ForceClose(provider string) {
	c := m.get(provider)
	now := m.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.forcedOpen = false
	c.consecutiveFailures = 0
	c.failureTimes = nil
	if c.state != StateClosed {
		c.transition(m.logger, provider, StateClosed, now)
	}
	m.logger.Info("circuit forced closed", "provider", provider)
}

// Reset clears all recorded state for provider. Operator action only.
func (m *Monitor) Reset(provider string) {
	m.mu.Lock()
	delete(m.circuits, provider)
	m.mu.Unlock()
}

// transition flips the circuit to next and records bookkeeping for the
// new state. Caller holds c.mu.
func (c *circuit) transition(logger *slog.Logger, provider string, next State, now time.Time) {
	prev := c.state
	c.state = next

	switch next {
	case StateOpen:
		c.openedAt = now
		c.consecutiveSuccesses = 0
	case StateHalfOpen:
		c.consecutiveSuccesses = 0
	case StateClosed:
		c.consecutiveFailures = 0
	}

	logger.Info("circuit state changed",
		"provider", provider, "from", string(prev), "to", string(next))
}

// recordLatency appends one sample to the bounded ring buffer and
// recomputes the running average and percentiles. Caller holds c.mu.
func (c *circuit) recordLatency(ms float64) {
	if len(c.latencies) < maxLatencySamples {
		c.latencies = append(c.latencies, ms)
	} else {
		// Overwrite the oldest sample.
		c.latencySum -= c.latencies[c.latencyNext]
		c.latencies[c.latencyNext] = ms
		c.latencyNext = (c.latencyNext + 1) % maxLatencySamples
	}

	c.latencySum += ms
	c.lastLatency = ms
	c.avgLatency = c.latencySum / float64(len(c.latencies))
	c.p50, c.p95, c.p99 = percentiles(c.latencies)
}
