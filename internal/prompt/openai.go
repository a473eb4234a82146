// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	"context"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/promptdesk/pkg/types"
)

// OpenAIBackend calls any OpenAI-compatible chat completions endpoint.
// It does not retry; rate limits surface as *openai.APIError.
type OpenAIBackend struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIBackend builds a backend from cfg. cfg.BaseURL, when set, must
// include the API version path (e.g. "http://localhost:11434/v1").
func NewOpenAIBackend(cfg types.PromptConfig, httpClient *http.Client) *OpenAIBackend {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		oc.HTTPClient = httpClient
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAIBackend{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Complete sends the system framing and prompt as a two-message chat.
func (o *OpenAIBackend) Complete(ctx context.Context, prompt string) (types.Result, error) {
	system, err := renderSystemPrompt(time.Now())
	if err != nil {
		return types.Result{}, fmt.Errorf("rendering system prompt: %w", err)
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return types.Result{}, fmt.Errorf("calling OpenAI API: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return types.Result{}, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return types.Result{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		StopReason:   string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
