package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// AnthropicName is the provider name reported by AnthropicClient.
	AnthropicName    = "anthropic"
	anthropicVersion = "2023-06-01"
)

// AnthropicClient wraps the Anthropic Messages API.
type AnthropicClient struct {
	cfg Config
	transport
}

// NewAnthropicClient constructs a Messages API client.
func NewAnthropicClient(cfg Config, opts ...Option) *AnthropicClient {
	client := &AnthropicClient{
		cfg:       cfg.trimmed(),
		transport: newTransport(cfg.TimeoutSeconds, opts),
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.anthropic.com/v1/messages"
	}
	return client
}

// Name implements Provider.
func (c *AnthropicClient) Name() string { return AnthropicName }

type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete issues a single-turn message request.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string, opts CompletionOptions) (Completion, error) {
	const op = "anthropic complete"
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return Completion{}, fmt.Errorf("%s: user prompt required", op)
	}
	if c.cfg.APIKey == "" {
		return Completion{}, fmt.Errorf("%s: api key required", op)
	}
	temperature := opts.Temperature
	payload := messagesRequest{
		Model:       c.cfg.Model,
		System:      strings.TrimSpace(systemPrompt),
		Messages:    []chatMessage{{Role: "user", Content: userPrompt}},
		MaxTokens:   opts.maxTokens(),
		Temperature: &temperature,
	}
	headers := map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}
	return c.completeWithRetry(ctx, op, func() (Completion, error) {
		body, err := c.post(ctx, c.cfg.BaseURL, headers, payload)
		if err != nil {
			return Completion{}, err
		}
		var resp messagesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return Completion{}, fmt.Errorf("%s: decode response: %w", op, err)
		}
		if resp.Error != nil {
			return Completion{}, fmt.Errorf("%s: api error: %s", op, strings.TrimSpace(resp.Error.Message))
		}
		var parts []string
		for _, block := range resp.Content {
			if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
				parts = append(parts, strings.TrimSpace(block.Text))
			}
		}
		content := strings.Join(parts, "\n\n")
		if content == "" {
			return Completion{}, &emptyContentError{
				Op:           op,
				FinishReason: resp.StopReason,
				Snippet:      summarizePayloadSnippet(string(body)),
			}
		}
		return Completion{
			Provider:         AnthropicName,
			Model:            firstNonEmpty(resp.Model, c.cfg.Model),
			Content:          content,
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
		}, nil
	})
}
