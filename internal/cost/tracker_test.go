// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package cost_test

import (
	"sync"
	"testing"
	"time"

	"github.com/veer-dev/veer/internal/catalog"
	"github.com/veer-dev/veer/internal/cost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sonnet = catalog.Model{ID: "claude-sonnet-4-5", Provider: "anthropic", PricePerKIn: 0.003, PricePerKOut: 0.015}

func completion(t *testing.T, usage cost.Usage) cost.Record {
	t.Helper()
	return cost.NewRecord(sonnet, usage, time.Now())
}

func TestTrackerRecordCompletion(t *testing.T) {
	tr := cost.NewTracker(nil)

	tr.RecordRequest("anthropic", "claude-sonnet-4-5")
	tr.RecordCompletion(completion(t, cost.Usage{InputTokens: 1000, OutputTokens: 1000}), 120, "user-1")

	ms, ok := tr.ModelStats("claude-sonnet-4-5")
	require.True(t, ok)
	assert.Equal(t, int64(1), ms.Requests)
	assert.Equal(t, int64(1), ms.Completions)
	assert.Equal(t, int64(0), ms.Errors)
	assert.Equal(t, 120.0, ms.LastLatencyMs)
	assert.Equal(t, 120.0, ms.AvgLatencyMs)
	assert.InDelta(t, 0.018, ms.TotalCostUSD, 1e-12)

	ps, ok := tr.ProviderStats("anthropic")
	require.True(t, ok)
	assert.Equal(t, int64(1), ps.Requests)
	assert.InDelta(t, 0.018, ps.TotalCostUSD, 1e-12)

	cs, ok := tr.CallerStats("user-1")
	require.True(t, ok)
	assert.Equal(t, int64(1), cs.Requests)
	assert.InDelta(t, 0.018, cs.AvgCostPerRequest, 1e-12)
}

func TestTrackerRunningAverages(t *testing.T) {
	tr := cost.NewTracker(nil)

	tr.RecordCompletion(completion(t, cost.Usage{InputTokens: 1000, OutputTokens: 1000}), 100, "user-1")
	tr.RecordCompletion(completion(t, cost.Usage{InputTokens: 2000, OutputTokens: 2000}), 300, "user-1")

	ms, ok := tr.ModelStats("claude-sonnet-4-5")
	require.True(t, ok)
	assert.Equal(t, 200.0, ms.AvgLatencyMs)
	assert.Equal(t, 300.0, ms.LastLatencyMs)

	totals := tr.Totals()
	assert.Equal(t, int64(2), totals.Requests)
	assert.InDelta(t, 0.054, totals.TotalCostUSD, 1e-12)
	assert.InDelta(t, 0.027, totals.AvgCostPerRequest, 1e-12)
}

func TestTrackerErrorCounter(t *testing.T) {
	tr := cost.NewTracker(nil)

	tr.RecordRequest("anthropic", "claude-sonnet-4-5")
	tr.RecordError("anthropic", "claude-sonnet-4-5")

	ms, ok := tr.ModelStats("claude-sonnet-4-5")
	require.True(t, ok)
	assert.Equal(t, int64(1), ms.Errors)
	assert.Equal(t, int64(0), ms.Completions)
}

func TestTrackerSnapshotsAreCopies(t *testing.T) {
	tr := cost.NewTracker(nil)
	tr.RecordCompletion(completion(t, cost.Usage{InputTokens: 1000}), 50, "")

	ms, _ := tr.ModelStats("claude-sonnet-4-5")
	ms.TotalCostUSD = 999

	fresh, _ := tr.ModelStats("claude-sonnet-4-5")
	assert.NotEqual(t, 999.0, fresh.TotalCostUSD, "mutating a snapshot must not touch tracker state")

	all := tr.AllModelStats()
	s := all["claude-sonnet-4-5"]
	s.Completions = 42
	fresh, _ = tr.ModelStats("claude-sonnet-4-5")
	assert.Equal(t, int64(1), fresh.Completions)
}

func TestTrackerReset(t *testing.T) {
	tr := cost.NewTracker(nil)
	tr.RecordCompletion(completion(t, cost.Usage{InputTokens: 1000}), 50, "user-1")

	tr.Reset()

	assert.Equal(t, cost.Totals{}, tr.Totals())
	_, ok := tr.ModelStats("claude-sonnet-4-5")
	assert.False(t, ok)
	_, ok = tr.CallerStats("user-1")
	assert.False(t, ok)
}

// Run with `go test -race`.
func TestTrackerConcurrentRecords(t *testing.T) {
	tr := cost.NewTracker(nil)

	const goroutines = 8
	const iterations = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				tr.RecordRequest("anthropic", "claude-sonnet-4-5")
				tr.RecordCompletion(completion(t, cost.Usage{InputTokens: 10, OutputTokens: 10}), 5, "user-1")
			}
		}()
	}
	wg.Wait()

	totals := tr.Totals()
	assert.Equal(t, int64(goroutines*iterations), totals.Requests)

	ms, ok := tr.ModelStats("claude-sonnet-4-5")
	require.True(t, ok)
	assert.Equal(t, int64(goroutines*iterations), ms.Requests)
	assert.Equal(t, int64(goroutines*iterations), ms.Completions)
}
