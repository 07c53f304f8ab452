// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

// Package cost converts normalized token usage into USD cost and
// accumulates totals by provider, model, and caller.
package cost

import (
	"time"

	"github.com/veer-dev/veer/internal/catalog"
)

// Usage is a normalized token count triplet. Missing counts are zero.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// RawUsage carries token counts under whichever field names an upstream
// response shape used. Normalize reconciles the variants.
type RawUsage struct {
	InputTokens      int
	PromptTokens     int
	OutputTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Normalize reconciles a RawUsage into a Usage. Negative counts are
// treated as missing, and the total is derived when the upstream shape
// omitted it, so cost stays computable with partial usage data.
func Normalize(raw RawUsage) Usage {
	in := firstPositive(raw.InputTokens, raw.PromptTokens)
	out := firstPositive(raw.OutputTokens, raw.CompletionTokens)
	total := raw.TotalTokens
	if total <= 0 {
		total = in + out
	}
	return Usage{InputTokens: in, OutputTokens: out, TotalTokens: total}
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// Record is one append-only cost entry. It is never mutated after
// creation; WithReportedTotal returns a copy.
type Record struct {
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Usage         Usage     `json:"usage"`
	InputCostUSD  float64   `json:"input_cost_usd"`
	OutputCostUSD float64   `json:"output_cost_usd"`
	TotalCostUSD  float64   `json:"total_cost_usd"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewRecord prices usage against the model's per-1k-token rates.
func NewRecord(m catalog.Model, usage Usage, now time.Time) Record {
	in := float64(usage.InputTokens) / 1000 * m.PricePerKIn
	out := float64(usage.OutputTokens) / 1000 * m.PricePerKOut
	return Record{
		Provider:      m.Provider,
		Model:         m.ID,
		Usage:         usage,
		InputCostUSD:  in,
		OutputCostUSD: out,
		TotalCostUSD:  in + out,
		Timestamp:     now,
	}
}

// WithReportedTotal replaces the persisted total with an authoritative
// cost figure reported by the provider. The computed input/output
// breakdown is retained for analysis.
func (r Record) WithReportedTotal(total float64) Record {
	r.TotalCostUSD = total
	return r
}
