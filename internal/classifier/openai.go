package classifier

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI classifies through an OpenAI-compatible chat completion endpoint.
type OpenAI struct {
	cfg ProviderConfig
}

func NewOpenAI(cfg ProviderConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &OpenAI{cfg: cfg}
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

// newChatClient builds a chat completion client for one call.
func newChatClient(cfg ProviderConfig, apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		config.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(config)
}

func (o *OpenAI) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	client := newChatClient(o.cfg, apiKey)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   100,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
