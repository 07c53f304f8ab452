// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/veer-dev/veer/internal/client"
	veererr "github.com/veer-dev/veer/pkg/errors"
)

const providerName = "anthropic"

func init() {
	client.Register(providerName, func(creds client.Credentials) (client.Client, error) {
		return New(creds)
	})
}

// Client implements client.Client using the Anthropic Messages API.
type Client struct {
	sdk anthropicsdk.Client
}

// New creates an Anthropic client. The factory guarantees a non-empty
// API key before calling.
func New(creds client.Credentials) (*Client, error) {
	if creds.APIKey == "" {
		return nil, veererr.New(veererr.CodeClientConfigMissingCredential,
			"anthropic: missing api key", veererr.FieldProvider(providerName))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(creds.APIKey),
	}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}

	return &Client{sdk: anthropicsdk.NewClient(opts...)}, nil
}

func (c *Client) Provider() string { return providerName }

// Generate runs one blocking generation attempt.
func (c *Client) Generate(ctx context.Context, req client.Request) (*client.Completion, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapSDKError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &client.Completion{
		Text: sb.String(),
		Usage: client.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		FinishReason: string(msg.StopReason),
	}, nil
}

// Stream runs one streaming generation attempt, delivering text deltas
// as they arrive and usage with the final event.
func (c *Client) Stream(ctx context.Context, req client.Request) (<-chan client.Event, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	eventCh := make(chan client.Event, 100)

	go func() {
		defer close(eventCh)
		c.streamLoop(ctx, params, eventCh)
	}()

	return eventCh, nil
}

func (c *Client) streamLoop(ctx context.Context, params anthropicsdk.MessageNewParams, ch chan<- client.Event) {
	stream := c.sdk.Messages.NewStreaming(ctx, params)

	usage := client.Usage{}
	finishReason := ""

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" {
				ch <- client.Event{Type: client.EventTextDelta, Text: event.Delta.Text}
			}

		case "message_start":
			if event.Message.Usage.InputTokens > 0 {
				usage.InputTokens = int(event.Message.Usage.InputTokens)
			}

		case "message_delta":
			// message_delta carries final usage and the stop reason.
			if event.Usage.OutputTokens > 0 {
				usage.OutputTokens = int(event.Usage.OutputTokens)
			}
			if event.Delta.StopReason != "" {
				finishReason = string(event.Delta.StopReason)
			}

		case "message_stop":
			ch <- client.Event{Type: client.EventUsage, Usage: &usage}
			ch <- client.Event{Type: client.EventDone, FinishReason: finishReason}
			return
		}
	}

	if err := stream.Err(); err != nil {
		ch <- client.Event{Type: client.EventError, Err: wrapSDKError(err)}
		return
	}

	ch <- client.Event{Type: client.EventUsage, Usage: &usage}
	ch <- client.Event{Type: client.EventDone, FinishReason: finishReason}
}

// buildParams converts a client.Request into Anthropic SDK MessageNewParams.
func buildParams(req client.Request) (anthropicsdk.MessageNewParams, error) {
	msgs, err := convertMessages(req.Messages)
	if err != nil {
		return anthropicsdk.MessageNewParams{}, err
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(req.Model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}

	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.System},
		}
	}

	if req.Temperature != nil {
		params.Temperature = anthropicsdk.Float(*req.Temperature)
	}

	return params, nil
}

// convertMessages transforms client.Message slices into Anthropic SDK
// MessageParam slices. System messages travel via the top-level system
// param, not the message list.
func convertMessages(msgs []client.Message) ([]anthropicsdk.MessageParam, error) {
	var result []anthropicsdk.MessageParam

	for _, msg := range msgs {
		switch msg.Role {
		case client.RoleUser:
			result = append(result, anthropicsdk.NewUserMessage(
				anthropicsdk.NewTextBlock(msg.Content),
			))
		case client.RoleAssistant:
			result = append(result, anthropicsdk.NewAssistantMessage(
				anthropicsdk.NewTextBlock(msg.Content),
			))
		case client.RoleSystem:
			continue
		default:
			return nil, veererr.Errorf(veererr.CodeClientRequestInvalid,
				"anthropic: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// wrapSDKError propagates an SDK failure unchanged apart from a status
// hint the engine's classifier reads back.
func wrapSDKError(err error) error {
	var apierr *anthropicsdk.Error
	if errors.As(err, &apierr) {
		return veererr.Wrap(err, veererr.CodeProviderUpstreamFailure,
			"anthropic: request failed",
			veererr.FieldProvider(providerName),
			veererr.FieldStatus(apierr.StatusCode))
	}
	return veererr.Wrap(err, veererr.CodeProviderUpstreamFailure,
		"anthropic: request failed", veererr.FieldProvider(providerName))
}
