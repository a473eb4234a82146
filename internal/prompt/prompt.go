// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt sends a user prompt to a generative AI provider and returns
// its reply. It is the transport behind the request coordinator: encoding,
// retries and provider errors live here, ordering does not.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/promptdesk/internal/coordinator"
	"github.com/pdiddy/promptdesk/pkg/types"
)

const (
	defaultMaxTokens  = 1024
	defaultMaxRetries = 3
	maxErrorBody      = 512
)

// ErrEmptyResponse is returned when the provider answers without any text.
var ErrEmptyResponse = errors.New("provider returned no text")

// Backend completes a single prompt. Implementations must honour ctx so a
// cancelled submission releases its connection.
type Backend interface {
	Complete(ctx context.Context, prompt string) (types.Result, error)
}

// NewBackend builds the backend selected by cfg.Provider.
func NewBackend(cfg types.PromptConfig, client *http.Client) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("no model configured for provider %q", cfg.Provider)
	}

	switch cfg.Provider {
	case types.ProviderAnthropic, "":
		return &AnthropicBackend{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxTokens:  cfg.MaxTokens,
			MaxRetries: cfg.MaxRetries,
			Client:     client,
		}, nil
	case types.ProviderOpenAI:
		return NewOpenAIBackend(cfg, client), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic or openai)", cfg.Provider)
	}
}

// Operation adapts b to the coordinator's Operation. A positive timeout
// bounds each call on top of the submission's own context.
func Operation(b Backend, timeout time.Duration) coordinator.Operation {
	return func(ctx context.Context, p string) (types.Result, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		res, err := b.Complete(ctx, p)
		if err != nil {
			return types.Result{}, err
		}
		if strings.TrimSpace(res.Text) == "" {
			return types.Result{}, ErrEmptyResponse
		}
		return res, nil
	}
}

// truncate shortens provider error bodies before they reach UIState.error.
func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
