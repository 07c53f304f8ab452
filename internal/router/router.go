// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

// Package router chooses a starting model from caller hints and live
// health signals, and builds the ordered fallback chain the execution
// engine cascades through.
package router

import (
	"log/slog"
	"strings"

	"github.com/veer-dev/veer/internal/catalog"
	"github.com/veer-dev/veer/internal/health"
	veererr "github.com/veer-dev/veer/pkg/errors"
)

// Selection reasons reported on a Decision.
const (
	ReasonPreferred        = "preferred"
	ReasonTaskMapping      = "task-mapping"
	ReasonHeuristicFast    = "heuristic-fast"
	ReasonHeuristicReason  = "heuristic-reasoning"
	ReasonHeuristicNews    = "heuristic-news"
	ReasonComplexity       = "complexity"
	ReasonDefault          = "default"
	ReasonProviderFallback = "provider-fallback"
)

// Default complexity-escalation thresholds.
const (
	defaultEscalationMessages = 10
	defaultEscalationChars    = 4000
)

// Keyword groups for the task-type heuristics.
var (
	fastKeywords      = []string{"fast", "quick", "cheap", "simple"}
	reasoningKeywords = []string{"reason", "research", "deep", "analysis", "complex"}
	newsKeywords      = []string{"news", "sentiment", "market"}
)

// Rules are the routing preferences supplied by configuration.
type Rules struct {
	// Default is the registry-wide default model, required.
	Default string
	// Fast/Reasoning/News name the role models the task-type keyword
	// heuristics route to. Empty disables the corresponding heuristic.
	Fast      string
	Reasoning string
	News      string
	// TaskModels maps exact task-type strings to model IDs.
	TaskModels map[string]string
	// EscalationMessages/EscalationChars are the complexity thresholds
	// above which requests escalate to the Reasoning model.
	EscalationMessages int
	EscalationChars    int
	// CrossProviderFallback appends the cross-provider equivalent as the
	// final fallback-chain link.
	CrossProviderFallback bool
}

// Query carries the caller hints a selection is made from.
type Query struct {
	Preferred    string
	TaskType     string
	MessageCount int
	InputChars   int
}

// Decision is the routing outcome: the model to try first and the
// ordered, cycle-free chain of alternatives behind it.
type Decision struct {
	Model         string
	Provider      string
	Reason        string
	FallbackChain []string
}

// Selector routes requests against a static catalog and the live
// health monitor. Safe for concurrent use: all mutable state lives in
// the monitor.
type Selector struct {
	catalog *catalog.Catalog
	monitor *health.Monitor
	rules   Rules
	logger  *slog.Logger
}

// NewSelector validates the rules against the catalog.
func NewSelector(cat *catalog.Catalog, mon *health.Monitor, rules Rules) (*Selector, error) {
	if rules.Default == "" {
		return nil, veererr.New(veererr.CodeRouterDefaultMissing, "routing rules missing default model")
	}
	if !cat.Has(rules.Default) {
		return nil, veererr.Errorf(veererr.CodeRouterModelNotFound,
			"default model %q not in catalog", rules.Default)
	}
	for task, model := range rules.TaskModels {
		if !cat.Has(model) {
			return nil, veererr.Errorf(veererr.CodeRouterModelNotFound,
				"task %q maps to unknown model %q", task, model)
		}
	}
	if rules.EscalationMessages <= 0 {
		rules.EscalationMessages = defaultEscalationMessages
	}
	if rules.EscalationChars <= 0 {
		rules.EscalationChars = defaultEscalationChars
	}

	return &Selector{
		catalog: cat,
		monitor: mon,
		rules:   rules,
		logger:  slog.Default(),
	}, nil
}

// SetLogger overrides the routing logger.
func (s *Selector) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Select picks a starting model for the query and builds its fallback
// chain. The chain starts with the selected model, never repeats an
// entry, and its length is bounded by the catalog size.
func (s *Selector) Select(q Query) (Decision, error) {
	modelID, reason := s.pick(q)

	m, ok := s.catalog.Model(modelID)
	if !ok {
		return Decision{}, veererr.Errorf(veererr.CodeRouterModelNotFound,
			"selected model %q not in catalog", modelID)
	}

	// The selected model's provider may be tripped. Silently substitute
	// the cross-provider equivalent when one exists and is healthy; the
	// substituted-away model is kept out of the chain entirely.
	excluded := ""
	if !s.monitor.IsHealthy(m.Provider) && m.CrossProvider != "" {
		if eq, ok := s.catalog.Model(m.CrossProvider); ok && s.monitor.IsHealthy(eq.Provider) {
			s.logger.Info("provider unhealthy, substituting cross-provider equivalent",
				"from", m.ID, "to", eq.ID, "provider", m.Provider)
			s.monitor.RecordFallback(m.Provider)
			excluded = m.ID
			m = eq
			reason = ReasonProviderFallback
		}
	}

	return Decision{
		Model:         m.ID,
		Provider:      m.Provider,
		Reason:        reason,
		FallbackChain: s.buildChain(m, excluded),
	}, nil
}

// pick applies the selection precedence, first match wins.
func (s *Selector) pick(q Query) (string, string) {
	// 1. Explicit preferred model, when it is actually in the registry.
	if q.Preferred != "" && s.catalog.Has(q.Preferred) {
		return q.Preferred, ReasonPreferred
	}

	// 2. Exact task-type mapping.
	if model, ok := s.rules.TaskModels[q.TaskType]; ok {
		return model, ReasonTaskMapping
	}

	// 3. Keyword heuristics on the task-type string.
	task := strings.ToLower(q.TaskType)
	if task != "" {
		if s.rules.Fast != "" && containsAny(task, fastKeywords) && s.catalog.Has(s.rules.Fast) {
			return s.rules.Fast, ReasonHeuristicFast
		}
		if s.rules.Reasoning != "" && containsAny(task, reasoningKeywords) && s.catalog.Has(s.rules.Reasoning) {
			return s.rules.Reasoning, ReasonHeuristicReason
		}
		if s.rules.News != "" && containsAny(task, newsKeywords) && s.catalog.Has(s.rules.News) {
			return s.rules.News, ReasonHeuristicNews
		}
	}

	// 4. Complexity escalation.
	if s.rules.Reasoning != "" && s.catalog.Has(s.rules.Reasoning) &&
		(q.MessageCount > s.rules.EscalationMessages || q.InputChars > s.rules.EscalationChars) {
		return s.rules.Reasoning, ReasonComplexity
	}

	// 5. Registry-wide default.
	return s.rules.Default, ReasonDefault
}

// buildChain walks the same-provider fallback links from start, then
// appends one cross-provider equivalent when enabled. The visited set
// bounds the walk to the catalog size, so a misconfigured cyclic
// fallback map still terminates.
func (s *Selector) buildChain(start catalog.Model, excluded string) []string {
	chain := []string{start.ID}
	visited := map[string]bool{start.ID: true}
	if excluded != "" {
		visited[excluded] = true
	}

	cur := start
	for cur.Fallback != "" && !visited[cur.Fallback] {
		next, ok := s.catalog.Model(cur.Fallback)
		if !ok {
			break
		}
		chain = append(chain, next.ID)
		visited[next.ID] = true
		cur = next
	}

	if s.rules.CrossProviderFallback && start.CrossProvider != "" && !visited[start.CrossProvider] {
		if s.catalog.Has(start.CrossProvider) {
			chain = append(chain, start.CrossProvider)
		}
	}

	return chain
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
