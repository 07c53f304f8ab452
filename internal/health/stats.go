// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package health

import "sort"

// Stats is a point-in-time snapshot of one provider's health record.
// It holds no references to live monitor state.
type Stats struct {
	Provider string `json:"provider"`
	State    State  `json:"state"`

	TotalRequests       int64 `json:"total_requests"`
	Successes           int64 `json:"successes"`
	Failures            int64 `json:"failures"`
	Fallbacks           int64 `json:"fallbacks"`
	ConsecutiveFailures int   `json:"consecutive_failures"`

	ErrorRate    float64 `json:"error_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	LastLatencyMs float64 `json:"last_latency_ms"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`

	// SampleCount lets consumers judge percentile freshness: the buffer
	// is capped by count, not by age.
	SampleCount int `json:"sample_count"`
}

// Snapshot returns provider stats, and false if the provider has never
// been recorded against.
func (m *Monitor) Snapshot(provider string) (Stats, bool) {
	m.mu.RLock()
	c, ok := m.circuits[provider]
	m.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	return c.snapshot(provider), true
}

// SnapshotAll returns stats for every tracked provider.
func (m *Monitor) SnapshotAll() map[string]Stats {
	m.mu.RLock()
	names := make([]string, 0, len(m.circuits))
	circuits := make([]*circuit, 0, len(m.circuits))
	for name, c := range m.circuits {
		names = append(names, name)
		circuits = append(circuits, c)
	}
	m.mu.RUnlock()

	out := make(map[string]Stats, len(names))
	for i, c := range circuits {
		out[names[i]] = c.snapshot(names[i])
	}
	return out
}

func (c *circuit) snapshot(provider string) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Provider:            provider,
		State:               c.state,
		TotalRequests:       c.totalRequests,
		Successes:           c.successCount,
		Failures:            c.failureCount,
		Fallbacks:           c.fallbackCount,
		ConsecutiveFailures: c.consecutiveFailures,
		AvgLatencyMs:        c.avgLatency,
		LastLatencyMs:       c.lastLatency,
		P50LatencyMs:        c.p50,
		P95LatencyMs:        c.p95,
		P99LatencyMs:        c.p99,
		SampleCount:         len(c.latencies),
	}
	if c.totalRequests > 0 {
		s.ErrorRate = float64(c.failureCount) / float64(c.totalRequests)
	}
	return s
}

// percentiles computes p50/p95/p99 over a copy of samples using
// nearest-rank selection.
func percentiles(samples []float64) (p50, p95, p99 float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	return nearestRank(sorted, 0.50), nearestRank(sorted, 0.95), nearestRank(sorted, 0.99)
}

func nearestRank(sorted []float64, q float64) float64 {
	idx := int(q * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
