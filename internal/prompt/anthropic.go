// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/pdiddy/promptdesk/internal/httputil"
	"github.com/pdiddy/promptdesk/pkg/types"
)

// systemPromptTmpl frames every preview request. The user prompt is sent
// verbatim as the single user message.
var systemPromptTmpl = template.Must(template.New("system").Parse(`You are the preview engine behind a prompt desk. A user is drafting a prompt and wants to see what it produces.

Answer the prompt directly. Do not comment on the prompt itself, do not ask follow-up questions, and keep formatting to plain Markdown.

Today's date is {{.Date}}.`))

// anthropicAPIURL is the Messages API endpoint. Package-level var for test substitution.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

const anthropicVersion = "2023-06-01"

// AnthropicBackend calls the Anthropic Messages API.
type AnthropicBackend struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	MaxRetries int
	Client     *http.Client
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Content    []anthropicContent `json:"content"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends prompt as one user message and joins the text blocks of the reply.
func (a *AnthropicBackend) Complete(ctx context.Context, prompt string) (types.Result, error) {
	system, err := renderSystemPrompt(time.Now())
	if err != nil {
		return types.Result{}, fmt.Errorf("rendering system prompt: %w", err)
	}

	maxTokens := a.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body, err := json.Marshal(anthropicRequest{
		Model:     a.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return types.Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := anthropicAPIURL
	if a.BaseURL != "" {
		url = strings.TrimRight(a.BaseURL, "/") + "/v1/messages"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.Result{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}

	maxRetries := a.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, maxRetries)
	if err != nil {
		return types.Result{}, fmt.Errorf("calling Anthropic API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr anthropicError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return types.Result{}, fmt.Errorf("Anthropic API returned %d: %s", resp.StatusCode, truncate(apiErr.Error.Message))
		}
		return types.Result{}, fmt.Errorf("Anthropic API returned %d: %s", resp.StatusCode, truncate(string(raw)))
	}

	var aResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aResp); err != nil {
		return types.Result{}, fmt.Errorf("decoding Anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range aResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return types.Result{}, ErrEmptyResponse
	}

	return types.Result{
		Text:         text.String(),
		Model:        aResp.Model,
		StopReason:   aResp.StopReason,
		InputTokens:  aResp.Usage.InputTokens,
		OutputTokens: aResp.Usage.OutputTokens,
	}, nil
}

func renderSystemPrompt(t time.Time) (string, error) {
	var buf bytes.Buffer
	if err := systemPromptTmpl.Execute(&buf, struct{ Date string }{Date: t.Format("2006-01-02")}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
