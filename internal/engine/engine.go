// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

// Package engine executes generation requests against the fallback
// cascade, classifying failures and reporting every attempt outcome to
// the health monitor and cost tracker.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veer-dev/veer/internal/catalog"
	"github.com/veer-dev/veer/internal/client"
	"github.com/veer-dev/veer/internal/cost"
	"github.com/veer-dev/veer/internal/health"
	veererr "github.com/veer-dev/veer/pkg/errors"
)

// Options carries per-call generation settings.
type Options struct {
	System      string
	Temperature *float64
	MaxTokens   int
	// Caller attributes cost to a user or subsystem, empty is fine.
	Caller string
	// OnFinish fires exactly once, after generation fully completed.
	// For streams it fires at stream completion, not on first output.
	OnFinish func(Result)
}

// Result is the outcome of a successful cascade.
type Result struct {
	RequestID    string
	Model        string
	Provider     string
	Text         string
	Usage        cost.Usage
	CostUSD      float64
	FinishReason string
	LatencyMs    float64
	Attempts     int
	FallbackUsed bool
}

// Engine runs one attempt at a time down a fallback chain. Attempts
// within one call are strictly sequential; many calls may run
// concurrently against the same shared monitor and tracker.
type Engine struct {
	catalog *catalog.Catalog
	factory *client.Factory
	monitor *health.Monitor
	tracker *cost.Tracker
	logger  *slog.Logger
	nowFunc func() time.Time
}

// New wires the engine to its collaborators.
func New(cat *catalog.Catalog, factory *client.Factory, mon *health.Monitor, tracker *cost.Tracker) *Engine {
	return &Engine{
		catalog: cat,
		factory: factory,
		monitor: mon,
		tracker: tracker,
		logger:  slog.Default(),
		nowFunc: time.Now,
	}
}

// SetLogger overrides the attempt telemetry logger.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// SetNowFunc overrides the time source (for testing).
func (e *Engine) SetNowFunc(fn func() time.Time) {
	e.nowFunc = fn
}

// Generate runs the blocking form of the cascade: one attempt per chain
// entry, in order, until a model succeeds or a fatal error surfaces.
// When the chain is exhausted the most recent error returns unchanged.
func (e *Engine) Generate(ctx context.Context, chain []string, messages []client.Message, opts Options) (*Result, error) {
	if len(chain) == 0 {
		return nil, veererr.New(veererr.CodeRouterModelNotFound, "empty fallback chain")
	}

	requestID := uuid.NewString()
	var lastErr error

	for i, modelID := range chain {
		m, ok := e.catalog.Model(modelID)
		if !ok {
			return nil, veererr.Errorf(veererr.CodeCatalogRefUnknown,
				"chain entry %q not in catalog", modelID)
		}
		fallback := i > 0

		c, err := e.factory.ClientFor(m.Provider)
		if err != nil {
			e.recordFailure(m, requestID, i+1, fallback, 0, err)
			return nil, err
		}

		e.logger.Info("attempt started",
			"request_id", requestID, "model", m.ID, "provider", m.Provider,
			"attempt", i+1, "fallback", fallback)
		e.tracker.RecordRequest(m.Provider, m.ID)

		attemptCtx, cancel := context.WithTimeout(ctx, m.Timeout)
		start := e.nowFunc()
		completion, err := c.Generate(attemptCtx, client.Request{
			Model:       m.ID,
			Messages:    messages,
			System:      opts.System,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		latency := e.nowFunc().Sub(start)
		cancel()

		if err != nil {
			e.recordFailure(m, requestID, i+1, fallback, latency, err)
			if !Retryable(err) {
				return nil, err
			}
			lastErr = err
			if i+1 < len(chain) {
				e.logger.Warn("falling back",
					"request_id", requestID, "from", m.ID, "to", chain[i+1])
			}
			continue
		}

		res := e.recordSuccess(m, requestID, i+1, fallback, latency, completion, opts.Caller)
		res.Text = completion.Text
		res.FinishReason = completion.FinishReason
		if opts.OnFinish != nil {
			opts.OnFinish(*res)
		}
		return res, nil
	}

	return nil, lastErr
}

// Stream runs the incremental form. A retryable failure before the
// first text fragment advances the chain silently; once output has
// reached the caller the attempt is committed and any error surfaces
// as a terminal EventError.
func (e *Engine) Stream(ctx context.Context, chain []string, messages []client.Message, opts Options) (<-chan client.Event, error) {
	if len(chain) == 0 {
		return nil, veererr.New(veererr.CodeRouterModelNotFound, "empty fallback chain")
	}

	out := make(chan client.Event)
	go e.streamCascade(ctx, chain, messages, opts, out)
	return out, nil
}

func (e *Engine) streamCascade(ctx context.Context, chain []string, messages []client.Message, opts Options, out chan<- client.Event) {
	defer close(out)

	requestID := uuid.NewString()
	var lastErr error

	for i, modelID := range chain {
		m, ok := e.catalog.Model(modelID)
		if !ok {
			out <- client.Event{Type: client.EventError, Err: veererr.Errorf(
				veererr.CodeCatalogRefUnknown, "chain entry %q not in catalog", modelID)}
			return
		}
		fallback := i > 0

		c, err := e.factory.ClientFor(m.Provider)
		if err != nil {
			e.recordFailure(m, requestID, i+1, fallback, 0, err)
			out <- client.Event{Type: client.EventError, Err: err}
			return
		}

		e.logger.Info("attempt started",
			"request_id", requestID, "model", m.ID, "provider", m.Provider,
			"attempt", i+1, "fallback", fallback, "stream", true)
		e.tracker.RecordRequest(m.Provider, m.ID)

		attemptCtx, cancel := context.WithTimeout(ctx, m.Timeout)
		start := e.nowFunc()
		events, err := c.Stream(attemptCtx, client.Request{
			Model:       m.ID,
			Messages:    messages,
			System:      opts.System,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
		if err != nil {
			cancel()
			e.recordFailure(m, requestID, i+1, fallback, e.nowFunc().Sub(start), err)
			if !Retryable(err) {
				out <- client.Event{Type: client.EventError, Err: err}
				return
			}
			lastErr = err
			continue
		}

		done, err := e.forwardStream(m, requestID, i, fallback, start, events, opts, out)
		cancel()
		if done {
			return
		}
		if err != nil {
			if !Retryable(err) {
				out <- client.Event{Type: client.EventError, Err: err}
				return
			}
			lastErr = err
			if i+1 < len(chain) {
				e.logger.Warn("falling back",
					"request_id", requestID, "from", m.ID, "to", chain[i+1])
			}
		}
	}

	if lastErr != nil {
		out <- client.Event{Type: client.EventError, Err: lastErr}
	}
}

// forwardStream relays one attempt's events to the caller. done means
// the cascade is finished either way; a false return with a non-nil
// error means nothing was emitted yet and the chain may advance.
func (e *Engine) forwardStream(m catalog.Model, requestID string, idx int, fallback bool, start time.Time, events <-chan client.Event, opts Options, out chan<- client.Event) (done bool, err error) {
	var (
		emitted      bool
		usage        client.Usage
		finishReason string
	)

	for ev := range events {
		switch ev.Type {
		case client.EventTextDelta:
			emitted = true
			out <- ev
		case client.EventUsage:
			if ev.Usage != nil {
				mergeUsage(&usage, *ev.Usage)
			}
			if ev.FinishReason != "" {
				finishReason = ev.FinishReason
			}
			out <- ev
		case client.EventError:
			latency := e.nowFunc().Sub(start)
			e.recordFailure(m, requestID, idx+1, fallback, latency, ev.Err)
			if !emitted {
				return false, ev.Err
			}
			// Output already reached the caller; the attempt is committed.
			out <- ev
			return true, nil
		case client.EventDone:
			if ev.FinishReason != "" {
				finishReason = ev.FinishReason
			}
			latency := e.nowFunc().Sub(start)
			completion := &client.Completion{Usage: usage, FinishReason: finishReason}
			res := e.recordSuccess(m, requestID, idx+1, fallback, latency, completion, opts.Caller)
			res.FinishReason = finishReason
			if opts.OnFinish != nil {
				opts.OnFinish(*res)
			}
			out <- ev
			return true, nil
		}
	}

	// Channel closed without a terminal event.
	latency := e.nowFunc().Sub(start)
	interrupted := veererr.New(veererr.CodeProviderStreamInterrupted,
		"stream ended without completion",
		veererr.FieldProvider(m.Provider), veererr.FieldModel(m.ID))
	e.recordFailure(m, requestID, idx+1, fallback, latency, interrupted)
	if !emitted {
		return false, interrupted
	}
	out <- client.Event{Type: client.EventError, Err: interrupted}
	return true, nil
}

// recordSuccess normalizes usage, prices the attempt, and updates the
// monitor and tracker exactly once.
func (e *Engine) recordSuccess(m catalog.Model, requestID string, attempt int, fallback bool, latency time.Duration, completion *client.Completion, caller string) *Result {
	usage := cost.Normalize(cost.RawUsage{
		InputTokens:      completion.Usage.InputTokens,
		PromptTokens:     completion.Usage.PromptTokens,
		OutputTokens:     completion.Usage.OutputTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	})
	rec := cost.NewRecord(m, usage, e.nowFunc())
	if completion.ReportedCostUSD > 0 {
		rec = rec.WithReportedTotal(completion.ReportedCostUSD)
	}

	latencyMs := float64(latency) / float64(time.Millisecond)
	e.monitor.RecordSuccess(m.Provider, latency)
	e.tracker.RecordCompletion(rec, latencyMs, caller)

	e.logger.Info("attempt succeeded",
		"request_id", requestID, "model", m.ID, "provider", m.Provider,
		"attempt", attempt, "fallback", fallback,
		"latency_ms", latencyMs, "total_tokens", usage.TotalTokens,
		"cost_usd", rec.TotalCostUSD)

	return &Result{
		RequestID:    requestID,
		Model:        m.ID,
		Provider:     m.Provider,
		Usage:        usage,
		CostUSD:      rec.TotalCostUSD,
		LatencyMs:    latencyMs,
		Attempts:     attempt,
		FallbackUsed: fallback,
	}
}

// recordFailure updates the monitor and tracker for a failed attempt.
// Every failure counts against the provider, whatever its class.
func (e *Engine) recordFailure(m catalog.Model, requestID string, attempt int, fallback bool, latency time.Duration, err error) {
	e.monitor.RecordFailure(m.Provider, err)
	e.tracker.RecordError(m.Provider, m.ID)

	e.logger.Warn("attempt failed",
		"request_id", requestID, "model", m.ID, "provider", m.Provider,
		"attempt", attempt, "fallback", fallback,
		"latency_ms", float64(latency)/float64(time.Millisecond),
		"class", string(Classify(err)), "error", err)
}

// mergeUsage folds a partial usage event into the accumulated counts.
// Providers report input and output figures in separate events, so
// only nonzero incoming fields overwrite.
func mergeUsage(dst *client.Usage, src client.Usage) {
	if src.InputTokens > 0 {
		dst.InputTokens = src.InputTokens
	}
	if src.PromptTokens > 0 {
		dst.PromptTokens = src.PromptTokens
	}
	if src.OutputTokens > 0 {
		dst.OutputTokens = src.OutputTokens
	}
	if src.CompletionTokens > 0 {
		dst.CompletionTokens = src.CompletionTokens
	}
	if src.TotalTokens > 0 {
		dst.TotalTokens = src.TotalTokens
	}
}
