// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package openai

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/veer-dev/veer/internal/client"
	veererr "github.com/veer-dev/veer/pkg/errors"
)

const providerName = "openai"

func init() {
	client.Register(providerName, func(creds client.Credentials) (client.Client, error) {
		return New(creds)
	})
}

// Client implements client.Client using the OpenAI Chat Completions API.
type Client struct {
	sdk openaisdk.Client
}

// New creates an OpenAI client.
func New(creds client.Credentials) (*Client, error) {
	if creds.APIKey == "" {
		return nil, veererr.New(veererr.CodeClientConfigMissingCredential,
			"openai: missing api key", veererr.FieldProvider(providerName))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(creds.APIKey),
	}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}

	return &Client{sdk: openaisdk.NewClient(opts...)}, nil
}

func (c *Client) Provider() string { return providerName }

// Generate runs one blocking generation attempt.
func (c *Client) Generate(ctx context.Context, req client.Request) (*client.Completion, error) {
	params, err := buildParams(req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapSDKError(err)
	}

	completion := &client.Completion{
		// Chat Completions reports usage under prompt/completion names.
		Usage: client.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	if len(resp.Choices) > 0 {
		completion.Text = resp.Choices[0].Message.Content
		completion.FinishReason = string(resp.Choices[0].FinishReason)
	}

	return completion, nil
}

// Stream runs one streaming generation attempt.
func (c *Client) Stream(ctx context.Context, req client.Request) (<-chan client.Event, error) {
	params, err := buildParams(req, true)
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

func (c *Client) streamLoop(ctx context.Context, params openaisdk.ChatCompletionNewParams, ch chan<- client.Event) {
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)

	usage := client.Usage{}
	finishReason := ""

	for stream.Next() {
		chunk := stream.Current()

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				ch <- client.Event{Type: client.EventTextDelta, Text: choice.Delta.Content}
			}
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}
		}

		// Usage arrives on the final chunk with stream_options.include_usage.
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			usage.PromptTokens = int(chunk.Usage.PromptTokens)
			usage.CompletionTokens = int(chunk.Usage.CompletionTokens)
			usage.TotalTokens = int(chunk.Usage.TotalTokens)
		}
	}

	if err := stream.Err(); err != nil {
		ch <- client.Event{Type: client.EventError, Err: wrapSDKError(err)}
		return
	}

	ch <- client.Event{Type: client.EventUsage, Usage: &usage}
	ch <- client.Event{Type: client.EventDone, FinishReason: finishReason}
}

// buildParams converts a client.Request into OpenAI SDK ChatCompletionNewParams.
func buildParams(req client.Request, streaming bool) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.System)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
	}

	if streaming {
		params.StreamOptions = openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		}
	}

	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}

	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}

	return params, nil
}

// convertMessages transforms client.Message slices into OpenAI SDK
// message param slices. The system prompt is prepended when present.
func convertMessages(msgs []client.Message, system string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if system != "" {
		result = append(result, openaisdk.SystemMessage(system))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case client.RoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case client.RoleAssistant:
			result = append(result, openaisdk.AssistantMessage(msg.Content))
		case client.RoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			return nil, veererr.Errorf(veererr.CodeClientRequestInvalid,
				"openai: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func wrapSDKError(err error) error {
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) {
		return veererr.Wrap(err, veererr.CodeProviderUpstreamFailure,
			"openai: request failed",
			veererr.FieldProvider(providerName),
			veererr.FieldStatus(apierr.StatusCode))
	}
	return veererr.Wrap(err, veererr.CodeProviderUpstreamFailure,
		"openai: request failed", veererr.FieldProvider(providerName))
}
