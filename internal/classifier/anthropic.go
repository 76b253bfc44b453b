package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	anthropicSystemPrompt = "You classify web pages for a focus assistant. Reply with a single JSON object and nothing else."
)

// Anthropic classifies through the Messages API.
type Anthropic struct {
	model string
	opts  []option.RequestOption
}

func NewAnthropic(cfg ProviderConfig) *Anthropic {
	a := &Anthropic{model: cfg.Model}
	if a.model == "" {
		a.model = defaultAnthropicModel
	}
	// Retries are owned by Client.
	a.opts = append(a.opts, option.WithMaxRetries(0))
	if cfg.BaseURL != "" {
		a.opts = append(a.opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		a.opts = append(a.opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return a
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

func (a *Anthropic) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	opts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, a.opts...)
	client := anthropic.NewClient(opts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   256,
		Temperature: anthropic.Float(0.1),
		System: []anthropic.TextBlockParam{
			{Text: anthropicSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in anthropic response")
}
