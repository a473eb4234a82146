// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export renders outcome history as JSON, YAML or Markdown files.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/promptdesk/internal/history"
	"github.com/pdiddy/promptdesk/pkg/types"
)

// Format is an export file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// Ext returns the file extension for f.
func (f Format) Ext() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// ContentType returns the HTTP media type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatYAML:
		return "application/yaml"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "application/json"
	}
}

// exportLimit caps the rows pulled for a single export.
const exportLimit = 100000

// Lister is the read side of the history store.
type Lister interface {
	List(ctx context.Context, f history.Filter) ([]types.Outcome, error)
}

// Request describes one export.
type Request struct {
	Format Format       `json:"format" yaml:"format"`
	Status types.Status `json:"status,omitempty" yaml:"status,omitempty"`
	Since  time.Time    `json:"since,omitempty" yaml:"since,omitempty"`
	Limit  int          `json:"limit,omitempty" yaml:"limit,omitempty"`

	// Dir receives the file. Ignored by Render.
	Dir string `json:"-" yaml:"-"`
}

// FieldError describes one invalid Request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a Request.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid export request: " + strings.Join(parts, "; ")
}

// Validate checks r and reports all problems at once.
func (r Request) Validate() error {
	var fields []FieldError
	switch r.Format {
	case FormatJSON, FormatYAML, FormatMarkdown:
	default:
		fields = append(fields, FieldError{"format", fmt.Sprintf("%q is not one of json, yaml, markdown", r.Format)})
	}
	if r.Status != "" && !r.Status.Recorded() {
		fields = append(fields, FieldError{"status", fmt.Sprintf("unknown status %q", r.Status)})
	}
	if r.Limit < 0 {
		fields = append(fields, FieldError{"limit", "must not be negative"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// Render lists the matching outcomes and encodes them in r.Format.
func Render(ctx context.Context, l Lister, r Request) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	limit := r.Limit
	if limit == 0 {
		limit = exportLimit
	}
	outcomes, err := l.List(ctx, history.Filter{Status: r.Status, Since: r.Since, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	if outcomes == nil {
		outcomes = []types.Outcome{}
	}

	switch r.Format {
	case FormatYAML:
		data, err := yaml.Marshal(outcomes)
		if err != nil {
			return nil, fmt.Errorf("marshaling YAML: %w", err)
		}
		return data, nil
	case FormatMarkdown:
		return renderMarkdown(outcomes), nil
	default:
		data, err := json.MarshalIndent(outcomes, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling JSON: %w", err)
		}
		return data, nil
	}
}

// Export renders r and writes it to r.Dir/export-<uuid>.<ext>, returning
// the file path.
func Export(ctx context.Context, l Lister, r Request) (string, error) {
	data, err := Render(ctx, l, r)
	if err != nil {
		return "", err
	}
	dir := r.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("export-%s.%s", uuid.NewString(), r.Format.Ext()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return path, nil
}

func renderMarkdown(outcomes []types.Outcome) []byte {
	var b strings.Builder
	b.WriteString("# Prompt history\n\n")
	if len(outcomes) == 0 {
		b.WriteString("_No outcomes._\n")
		return []byte(b.String())
	}
	for _, o := range outcomes {
		fmt.Fprintf(&b, "## #%d %s\n\n", o.Token, o.Status)
		fmt.Fprintf(&b, "- **Completed:** %s\n", o.CompletedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&b, "- **Duration:** %s\n", o.Duration.Round(time.Millisecond))
		if o.Model != "" {
			fmt.Fprintf(&b, "- **Model:** %s\n", EscapeMarkdown(o.Model))
		}
		fmt.Fprintf(&b, "\n**Prompt:** %s\n\n", EscapeMarkdown(o.Prompt))
		if o.Result != "" {
			fmt.Fprintf(&b, "**Result:** %s\n\n", EscapeMarkdown(o.Result))
		}
		if o.Error != "" {
			fmt.Fprintf(&b, "**Error:** %s\n\n", EscapeMarkdown(o.Error))
		}
	}
	return []byte(b.String())
}
