// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

// Package client defines the model-client abstraction the execution
// engine delegates network calls to, with one implementation per
// provider registered through the factory.
package client

import (
	"context"
)

// Role is the role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation message.
type Message struct {
	Role    Role
	Content string
}

// Request is a single text-generation attempt against one model.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	Temperature *float64
	MaxTokens   int
}

// Usage carries token counts as the upstream response reported them,
// under the field names that response shape used. cost.Normalize
// reconciles the variants downstream.
type Usage struct {
	InputTokens      int
	PromptTokens     int
	OutputTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the result of a blocking generation call.
type Completion struct {
	Text         string
	Usage        Usage
	FinishReason string
	// ReportedCostUSD is an authoritative cost figure from the provider,
	// zero when the provider reports none.
	ReportedCostUSD float64
}

// EventType identifies a stream event.
type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventUsage     EventType = "usage"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one incremental stream element. The final element is either
// EventDone (FinishReason set when known) or EventError.
type Event struct {
	Type         EventType
	Text         string
	Usage        *Usage
	FinishReason string
	Err          error
}

// Client generates text against a single provider. Failures are
// propagated unchanged apart from an attached status hint; retry
// decisions belong to the execution engine.
type Client interface {
	Provider() string
	Generate(ctx context.Context, req Request) (*Completion, error)
	Stream(ctx context.Context, req Request) (<-chan Event, error)
}
