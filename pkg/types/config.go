// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Provider identifies the generative AI API a prompt is sent to.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// PromptConfig holds settings for the prompt transport.
type PromptConfig struct {
	// Provider selects the API: anthropic or openai.
	Provider Provider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier (e.g. "claude-sonnet-4-5-20250929").
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// APIKey is the authentication key. Falls back to .secrets/ when empty.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible gateways, tests).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`

	// MaxTokens caps the response length (default 1024).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of retries on 429, 503 and 529 responses (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// Timeout bounds a single provider call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// CoordinatorConfig holds settings for the request coordinator.
type CoordinatorConfig struct {
	// CancelSuperseded aborts the previous in-flight operation when a new
	// prompt is submitted. Its result is discarded either way.
	CancelSuperseded bool `json:"cancel_superseded" yaml:"cancel_superseded" mapstructure:"cancel_superseded"`

	// DebounceDelay is the quiet period before a draft prompt is submitted (default 300ms).
	DebounceDelay time.Duration `json:"debounce_delay" yaml:"debounce_delay" mapstructure:"debounce_delay"`
}

// PDFBackend identifies the PDF text extraction tool.
type PDFBackend string

const (
	PDFNative     PDFBackend = "native"
	PDFMarkitdown PDFBackend = "markitdown"
)

// PDFConfig holds settings for PDF text extraction.
type PDFConfig struct {
	// Backend selects the extractor: native or markitdown.
	Backend PDFBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// OutputDir receives one .txt file per extracted PDF.
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// Workers bounds parallel extraction in batch mode (default 4).
	Workers int `json:"workers" yaml:"workers" mapstructure:"workers"`

	// InboxDir is watched for new PDFs by `serve --watch`.
	InboxDir string `json:"inbox_dir" yaml:"inbox_dir" mapstructure:"inbox_dir"`

	// MaxUploadBytes limits PDF uploads over HTTP (default 32 MiB).
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// HistoryConfig holds settings for the outcome history store.
type HistoryConfig struct {
	// Path is the SQLite database file.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// ExportConfig holds settings for history exports.
type ExportConfig struct {
	// Dir receives export files.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`
}

// ServerConfig holds settings for the HTTP server.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`

	// AllowedOrigins lists websocket origin patterns accepted besides same-origin.
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" mapstructure:"allowed_origins"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is text or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups every component configuration.
type Config struct {
	Prompt      PromptConfig      `json:"prompt" yaml:"prompt" mapstructure:"prompt"`
	Coordinator CoordinatorConfig `json:"coordinator" yaml:"coordinator" mapstructure:"coordinator"`
	PDF         PDFConfig         `json:"pdf" yaml:"pdf" mapstructure:"pdf"`
	History     HistoryConfig     `json:"history" yaml:"history" mapstructure:"history"`
	Export      ExportConfig      `json:"export" yaml:"export" mapstructure:"export"`
	Server      ServerConfig      `json:"server" yaml:"server" mapstructure:"server"`
	Log         LogConfig         `json:"log" yaml:"log" mapstructure:"log"`
}
