// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads provider credentials from a directory of plain-text
// files. The filename is the key name and the trimmed contents are the value.
//
// Recognized keys: anthropic-api-key, openai-api-key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/promptdesk/pkg/types"
)

// Key names understood by promptdesk.
const (
	KeyAnthropic = "anthropic-api-key"
	KeyOpenAI    = "openai-api-key"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory is not an error. Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// KeyFor returns the secret name holding the API key for p.
func KeyFor(p types.Provider) string {
	if p == types.ProviderOpenAI {
		return KeyOpenAI
	}
	return KeyAnthropic
}

// ResolveAPIKey fills cfg.APIKey from secrets when it is not already set.
// Explicit configuration wins over the secrets directory.
func ResolveAPIKey(cfg *types.PromptConfig, secrets map[string]string) {
	if cfg.APIKey != "" {
		return
	}
	cfg.APIKey = secrets[KeyFor(cfg.Provider)]
}
