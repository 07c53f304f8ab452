// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package cost_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/veer-dev/veer/internal/catalog"
	"github.com/veer-dev/veer/internal/cost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *cost.Ledger {
	t.Helper()
	l, err := cost.OpenLedger(filepath.Join(t.TempDir(), "costs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLedgerAppendAndModelTotals(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	m := catalog.Model{ID: "claude-sonnet-4-5", Provider: "anthropic", PricePerKIn: 0.003, PricePerKOut: 0.015}
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	require.NoError(t, l.Append(ctx, cost.NewRecord(m, cost.Usage{InputTokens: 1000, OutputTokens: 1000, TotalTokens: 2000}, now), "user-1"))
	require.NoError(t, l.Append(ctx, cost.NewRecord(m, cost.Usage{InputTokens: 500, OutputTokens: 500, TotalTokens: 1000}, now), "user-2"))

	totals, err := l.ModelTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 1)

	mt := totals[0]
	assert.Equal(t, "claude-sonnet-4-5", mt.Model)
	assert.Equal(t, "anthropic", mt.Provider)
	assert.Equal(t, int64(2), mt.Requests)
	assert.Equal(t, int64(1500), mt.InputTokens)
	assert.Equal(t, int64(1500), mt.OutputTokens)
	assert.InDelta(t, 0.027, mt.TotalCostUSD, 1e-9)
}

func TestLedgerDailyTotals(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	m := catalog.Model{ID: "gpt-4.1", Provider: "openai", PricePerKIn: 0.002, PricePerKOut: 0.008}
	day1 := time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 8, 29, 1, 0, 0, 0, time.UTC)

	require.NoError(t, l.Append(ctx, cost.NewRecord(m, cost.Usage{InputTokens: 1000}, day1), ""))
	require.NoError(t, l.Append(ctx, cost.NewRecord(m, cost.Usage{InputTokens: 1000}, day2), ""))
	require.NoError(t, l.Append(ctx, cost.NewRecord(m, cost.Usage{InputTokens: 1000}, day2), ""))

	daily, err := l.DailyTotals(ctx)
	require.NoError(t, err)
	require.Len(t, daily, 2)

	assert.Equal(t, "2026-08-29", daily[0].Date, "newest first")
	assert.Equal(t, int64(2), daily[0].Requests)
	assert.Equal(t, "2026-08-28", daily[1].Date)
	assert.Equal(t, int64(1), daily[1].Requests)
}

func TestTrackerWithLedgerPersistsRecords(t *testing.T) {
	l := openTestLedger(t)
	tr := cost.NewTracker(l)

	m := catalog.Model{ID: "gemini-2.5-flash", Provider: "google", PricePerKIn: 0.0003, PricePerKOut: 0.0025}
	tr.RecordCompletion(cost.NewRecord(m, cost.Usage{InputTokens: 2000, OutputTokens: 400, TotalTokens: 2400}, time.Now()), 75, "user-9")

	totals, err := l.ModelTotals(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "gemini-2.5-flash", totals[0].Model)
	assert.Equal(t, int64(2000), totals[0].InputTokens)
}
