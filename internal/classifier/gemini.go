package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	defaultGeminiModel   = "gemini-2.5-flash-lite"
)

// verdictSchema constrains Gemini answers to the verdict shape.
var verdictSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"isDistraction": {Type: jsonschema.Boolean, Description: "Whether the site is a distraction"},
		"confidence":    {Type: jsonschema.Number, Description: "Confidence level 0-1"},
		"reason":        {Type: jsonschema.String, Description: "Brief explanation"},
	},
	Required: []string{"isDistraction", "confidence", "reason"},
}

// Gemini talks to Gemini through its OpenAI-compatible endpoint, with the
// answer held to verdictSchema.
type Gemini struct {
	cfg ProviderConfig
}

func NewGemini(cfg ProviderConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	return &Gemini{cfg: cfg}
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Complete(ctx context.Context, apiKey, prompt string) (string, error) {
	client := newChatClient(g.cfg, apiKey)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
		MaxTokens:   100,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "verdict",
				Schema: &verdictSchema,
			},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return "", fmt.Errorf("gemini API error (%d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("gemini request: %w", err)
	}
	// An empty answer is a parse failure, not a transport one.
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
