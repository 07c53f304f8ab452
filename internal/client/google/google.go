// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Veer Contributors

package google

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/veer-dev/veer/internal/client"
	veererr "github.com/veer-dev/veer/pkg/errors"
)

const providerName = "google"

func init() {
	client.Register(providerName, func(creds client.Credentials) (client.Client, error) {
		return New(creds)
	})
}

// Client implements client.Client using the Google Gemini API.
type Client struct {
	sdk *genai.Client
}

// New creates a Google client.
func New(creds client.Credentials) (*Client, error) {
	if creds.APIKey == "" {
		return nil, veererr.New(veererr.CodeClientConfigMissingCredential,
			"google: missing api key", veererr.FieldProvider(providerName))
	}

	sdk, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  creds.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, veererr.Wrap(err, veererr.CodeClientConfigUnsupported,
			"google: creating client", veererr.FieldProvider(providerName))
	}

	return &Client{sdk: sdk}, nil
}

func (c *Client) Provider() string { return providerName }

// Generate runs one blocking generation attempt.
func (c *Client) Generate(ctx context.Context, req client.Request) (*client.Completion, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	resp, err := c.sdk.Models.GenerateContent(ctx, req.Model, contents, buildConfig(req))
	if err != nil {
		return nil, wrapSDKError(err)
	}

	completion := &client.Completion{}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
		if candidate.FinishReason != "" {
			completion.FinishReason = string(candidate.FinishReason)
		}
	}
	completion.Text = sb.String()

	if resp.UsageMetadata != nil {
		completion.Usage = client.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return completion, nil
}

// Stream runs one streaming generation attempt.
func (c *Client) Stream(ctx context.Context, req client.Request) (<-chan client.Event, error) {
	contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	eventCh := make(chan client.Event, 100)

	go func() {
		defer close(eventCh)
		c.streamLoop(ctx, req.Model, contents, buildConfig(req), eventCh)
	}()

	return eventCh, nil
}

func (c *Client) streamLoop(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	ch chan<- client.Event,
) {
	usage := client.Usage{}
	finishReason := ""

	for result, err := range c.sdk.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			ch <- client.Event{Type: client.EventError, Err: wrapSDKError(err)}
			return
		}

		for _, candidate := range result.Candidates {
			if candidate.Content != nil {
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						ch <- client.Event{Type: client.EventTextDelta, Text: part.Text}
					}
				}
			}
			if candidate.FinishReason != "" {
				finishReason = string(candidate.FinishReason)
			}
		}

		if result.UsageMetadata != nil {
			usage.InputTokens = int(result.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
			usage.TotalTokens = int(result.UsageMetadata.TotalTokenCount)
		}
	}

	ch <- client.Event{Type: client.EventUsage, Usage: &usage}
	ch <- client.Event{Type: client.EventDone, FinishReason: finishReason}
}

// buildConfig converts a client.Request into a genai.GenerateContentConfig.
func buildConfig(req client.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}

	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}

	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{
				{Text: req.System},
			},
		}
	}

	return cfg
}

// convertMessages transforms client.Message slices into genai.Content
// slices. The Gemini SDK calls the assistant role "model"; system
// messages travel via SystemInstruction.
func convertMessages(msgs []client.Message) ([]*genai.Content, error) {
	var result []*genai.Content

	for _, msg := range msgs {
		switch msg.Role {
		case client.RoleUser:
			result = append(result, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case client.RoleAssistant:
			result = append(result, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		case client.RoleSystem:
			continue
		default:
			return nil, veererr.Errorf(veererr.CodeClientRequestInvalid,
				"google: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

func wrapSDKError(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return veererr.Wrap(err, veererr.CodeProviderUpstreamFailure,
			"google: request failed",
			veererr.FieldProvider(providerName),
			veererr.FieldStatus(apierr.Code))
	}
	return veererr.Wrap(err, veererr.CodeProviderUpstreamFailure,
		"google: request failed", veererr.FieldProvider(providerName))
}
