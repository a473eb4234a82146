// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/pdiddy/promptdesk/internal/container"
)

const imageMarkitdown = "markitdown:latest"

// MarkitdownExtractor pipes PDFs through the markitdown container image.
// Its output is Markdown without page markers.
type MarkitdownExtractor struct {
	runtime container.Runtime
}

// NewMarkitdownExtractor verifies the markitdown image is available in rt.
func NewMarkitdownExtractor(ctx context.Context, rt container.Runtime) (*MarkitdownExtractor, error) {
	if err := rt.ImageExists(ctx, imageMarkitdown); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &MarkitdownExtractor{runtime: rt}, nil
}

// Extract streams the PDF into the container and returns its stdout.
func (m *MarkitdownExtractor) Extract(ctx context.Context, pdfPath string) (string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := m.runtime.Run(ctx, imageMarkitdown, f, &out); err != nil {
		return "", fmt.Errorf("extracting %s with markitdown: %w", pdfPath, err)
	}
	if len(bytes.TrimSpace(out.Bytes())) == 0 {
		return "", fmt.Errorf("%s: %w", pdfPath, ErrNoText)
	}
	return out.String(), nil
}
