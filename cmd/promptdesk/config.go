// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/promptdesk/pkg/types"
)

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("prompt.provider", string(types.ProviderAnthropic))
	v.SetDefault("prompt.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("prompt.api_key", "")
	v.SetDefault("prompt.base_url", "")
	v.SetDefault("prompt.max_tokens", 1024)
	v.SetDefault("prompt.max_retries", 3)
	v.SetDefault("prompt.timeout", 2*time.Minute)

	v.SetDefault("coordinator.cancel_superseded", false)
	v.SetDefault("coordinator.debounce_delay", 300*time.Millisecond)

	v.SetDefault("pdf.backend", string(types.PDFNative))
	v.SetDefault("pdf.output_dir", "text")
	v.SetDefault("pdf.workers", 4)
	v.SetDefault("pdf.inbox_dir", "inbox")
	v.SetDefault("pdf.max_upload_bytes", 32<<20)

	v.SetDefault("history.path", "data/history.db")
	v.SetDefault("export.dir", "exports")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func loadConfig() (types.Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (types.Config, error) {
	setDefaults(v)
	var c types.Config
	if err := v.Unmarshal(&c); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return c, nil
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(lc types.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
