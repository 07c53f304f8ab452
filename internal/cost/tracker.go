// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package cost

import (
	"context"
	"log/slog"
	"sync"
)

// ModelStats are the per-model counters mutated on every attempt.
type ModelStats struct {
	Model    string `json:"model"`
	Provider string `json:"provider"`

	Requests    int64 `json:"requests"`
	Completions int64 `json:"completions"`
	Errors      int64 `json:"errors"`

	TotalLatencyMs float64 `json:"total_latency_ms"`
	AvgLatencyMs   float64 `json:"avg_latency_ms"`
	LastLatencyMs  float64 `json:"last_latency_ms"`

	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// ProviderStats aggregate spend per provider.
type ProviderStats struct {
	Provider     string  `json:"provider"`
	Requests     int64   `json:"requests"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// CallerStats aggregate spend per caller.
type CallerStats struct {
	Caller            string  `json:"caller"`
	Requests          int64   `json:"requests"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
}

// Totals is the tracker-wide rollup.
type Totals struct {
	Requests          int64   `json:"requests"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
}

// Tracker accumulates cost records and per-model attempt counters.
// All accessors return copies, never live references. A nil ledger
// keeps the tracker purely in-memory.
type Tracker struct {
	mu sync.Mutex

	totals     Totals
	byModel    map[string]*ModelStats
	byProvider map[string]*ProviderStats
	byCaller   map[string]*CallerStats

	ledger *Ledger
	logger *slog.Logger
}

// NewTracker creates an empty tracker. ledger may be nil.
func NewTracker(ledger *Ledger) *Tracker {
	return &Tracker{
		byModel:    make(map[string]*ModelStats),
		byProvider: make(map[string]*ProviderStats),
		byCaller:   make(map[string]*CallerStats),
		ledger:     ledger,
		logger:     slog.Default(),
	}
}

// SetLogger overrides the logger used for ledger write failures.
func (t *Tracker) SetLogger(l *slog.Logger) {
	if l != nil {
		t.logger = l
	}
}

func (t *Tracker) model(provider, model string) *ModelStats {
	s, ok := t.byModel[model]
	if !ok {
		s = &ModelStats{Model: model, Provider: provider}
		t.byModel[model] = s
	}
	return s
}

// RecordRequest counts one attempt started against model.
func (t *Tracker) RecordRequest(provider, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.model(provider, model).Requests++
}

// RecordError counts one failed attempt against model.
func (t *Tracker) RecordError(provider, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.model(provider, model).Errors++
}

// RecordCompletion appends one cost record for a successful attempt and
// updates the per-model, per-provider, per-caller, and global rollups.
// The running averages are recomputed on every record, not windowed.
// Ledger write failures are logged and never surfaced to the request path.
func (t *Tracker) RecordCompletion(rec Record, latencyMs float64, caller string) {
	t.mu.Lock()

	ms := t.model(rec.Provider, rec.Model)
	ms.Completions++
	ms.TotalLatencyMs += latencyMs
	ms.AvgLatencyMs = ms.TotalLatencyMs / float64(ms.Completions)
	ms.LastLatencyMs = latencyMs
	ms.InputTokens += int64(rec.Usage.InputTokens)
	ms.OutputTokens += int64(rec.Usage.OutputTokens)
	ms.TotalCostUSD += rec.TotalCostUSD

	ps, ok := t.byProvider[rec.Provider]
	if !ok {
		ps = &ProviderStats{Provider: rec.Provider}
		t.byProvider[rec.Provider] = ps
	}
	ps.Requests++
	ps.InputTokens += int64(rec.Usage.InputTokens)
	ps.OutputTokens += int64(rec.Usage.OutputTokens)
	ps.TotalCostUSD += rec.TotalCostUSD

	if caller != "" {
		cs, ok := t.byCaller[caller]
		if !ok {
			cs = &CallerStats{Caller: caller}
			t.byCaller[caller] = cs
		}
		cs.Requests++
		cs.TotalCostUSD += rec.TotalCostUSD
		cs.AvgCostPerRequest = cs.TotalCostUSD / float64(cs.Requests)
	}

	t.totals.Requests++
	t.totals.TotalCostUSD += rec.TotalCostUSD
	t.totals.AvgCostPerRequest = t.totals.TotalCostUSD / float64(t.totals.Requests)

	ledger := t.ledger
	t.mu.Unlock()

	if ledger != nil {
		if err := ledger.Append(context.Background(), rec, caller); err != nil {
			t.logger.Error("cost ledger append failed",
				"provider", rec.Provider, "model", rec.Model, "error", err)
		}
	}
}

// ModelStats returns a copy of the counters for model.
func (t *Tracker) ModelStats(model string) (ModelStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byModel[model]
	if !ok {
		return ModelStats{}, false
	}
	return *s, true
}

// AllModelStats returns copies of every per-model counter group.
func (t *Tracker) AllModelStats() map[string]ModelStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]ModelStats, len(t.byModel))
	for k, v := range t.byModel {
		out[k] = *v
	}
	return out
}

// ProviderStats returns a copy of the rollup for provider.
func (t *Tracker) ProviderStats(provider string) (ProviderStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byProvider[provider]
	if !ok {
		return ProviderStats{}, false
	}
	return *s, true
}

// CallerStats returns a copy of the rollup for caller.
func (t *Tracker) CallerStats(caller string) (CallerStats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byCaller[caller]
	if !ok {
		return CallerStats{}, false
	}
	return *s, true
}

// Totals returns the tracker-wide rollup.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals
}

// Reset clears all in-memory counters. The ledger is untouched: it is
// the durable record. Operator action only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals = Totals{}
	t.byModel = make(map[string]*ModelStats)
	t.byProvider = make(map[string]*ProviderStats)
	t.byCaller = make(map[string]*CallerStats)
}
