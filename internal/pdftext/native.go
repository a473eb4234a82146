// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const pageMarkerPrefix = "<!-- page "

// NativeExtractor reads PDFs in-process with github.com/ledongthuc/pdf.
type NativeExtractor struct{}

// Extract returns the plain text of every page, each preceded by a page marker.
func (NativeExtractor) Extract(ctx context.Context, pdfPath string) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parsing PDF %s: %v", pdfPath, r)
		}
	}()

	f, r, err := pdf.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var (
		b       strings.Builder
		hasText bool
	)
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pt, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading page %d of %s: %w", i, pdfPath, err)
		}
		pt = strings.TrimSpace(pt)
		if pt != "" {
			hasText = true
		}
		fmt.Fprintf(&b, "%s%d -->\n%s\n\n", pageMarkerPrefix, i, pt)
	}

	if !hasText {
		return "", fmt.Errorf("%s: %w", pdfPath, ErrNoText)
	}
	return b.String(), nil
}
