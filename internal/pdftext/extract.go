// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pdftext extracts plain text from PDF files. Parsing is delegated
// to an Extractor backend; this package handles output files, skip logic
// and batch runs.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/promptdesk/internal/container"
	"github.com/pdiddy/promptdesk/pkg/types"
)

// ErrNoText is returned when a PDF parses but carries no extractable text,
// typically a scanned document without an OCR layer.
var ErrNoText = errors.New("no extractable text")

// Extractor turns the PDF at pdfPath into plain text. Backends mark page
// boundaries with "<!-- page N -->" lines when they know them.
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) (string, error)
}

// Status is the per-file outcome of ExtractFile.
type Status string

const (
	StatusExtracted Status = "extracted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// BatchResult holds the counts of a batch run.
type BatchResult struct {
	Extracted int
	Skipped   int
	Failed    int
}

// Total returns the number of files processed.
func (r BatchResult) Total() int {
	return r.Extracted + r.Skipped + r.Failed
}

// HasFailures reports whether any file failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// OutputPath returns where the text for pdfPath is written under outDir.
func OutputPath(pdfPath, outDir string) string {
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	return filepath.Join(outDir, base+".txt")
}

// ExtractFile extracts one PDF into outDir/<base>.txt with YAML frontmatter.
// It skips the file when the output exists and is at least as new as the PDF.
func ExtractFile(ctx context.Context, e Extractor, pdfPath, outDir string, w io.Writer) Status {
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	outPath := OutputPath(pdfPath, outDir)

	changed, err := hasChanged(pdfPath, outPath)
	if err != nil {
		fmt.Fprintf(w, "failed:    %s (%v)\n", base, err)
		return StatusFailed
	}
	if !changed {
		fmt.Fprintf(w, "skipped:   %s (up to date)\n", base)
		return StatusSkipped
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(w, "failed:    %s (%v)\n", base, err)
		return StatusFailed
	}

	text, err := e.Extract(ctx, pdfPath)
	if err != nil {
		fmt.Fprintf(w, "failed:    %s (%v)\n", base, err)
		return StatusFailed
	}

	content := addFrontmatter(pdfPath, text)
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		fmt.Fprintf(w, "failed:    %s (%v)\n", base, err)
		return StatusFailed
	}

	fmt.Fprintf(w, "extracted: %s (%d pages)\n", base, CountPages(text))
	return StatusExtracted
}

// ExtractBatch extracts pdfPaths with at most workers files in flight and
// prints a summary line at the end. Cancelling ctx stops scheduling new files.
func ExtractBatch(ctx context.Context, e Extractor, pdfPaths []string, outDir string, workers int, w io.Writer) BatchResult {
	if workers <= 0 {
		workers = 1
	}

	var (
		mu     sync.Mutex
		result BatchResult
		out    = &syncWriter{w: w}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range pdfPaths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			status := ExtractFile(gctx, e, p, outDir, out)
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case StatusExtracted:
				result.Extracted++
			case StatusSkipped:
				result.Skipped++
			case StatusFailed:
				result.Failed++
			}
			return nil
		})
	}
	g.Wait()

	fmt.Fprintf(w, "\nBatch summary: %d extracted, %d skipped, %d failed (total: %d)\n",
		result.Extracted, result.Skipped, result.Failed, result.Total())
	return result
}

// FindPDFs lists the .pdf files directly under dir, sorted by name.
func FindPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !IsPDF(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	return paths, nil
}

// IsPDF reports whether name has a .pdf extension, in any case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// CountPages counts the page markers in extracted text.
func CountPages(text string) int {
	return strings.Count(text, pageMarkerPrefix)
}

// hasChanged reports whether pdfPath is newer than outPath, or outPath is missing.
func hasChanged(pdfPath, outPath string) (bool, error) {
	pdfInfo, err := os.Stat(pdfPath)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", pdfPath, err)
	}
	outInfo, err := os.Stat(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat %s: %w", outPath, err)
	}
	return pdfInfo.ModTime().After(outInfo.ModTime()), nil
}

func addFrontmatter(pdfPath, body string) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "source_pdf: %q\n", pdfPath)
	fmt.Fprintf(&b, "pages: %d\n", CountPages(body))
	fmt.Fprintf(&b, "extracted_at: %q\n", ts)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String()
}

// syncWriter serializes status lines from concurrent extractions.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// ExtractorRuntime is the subset of container detection NewExtractor needs.
type ExtractorRuntime func(ctx context.Context) (container.Runtime, error)

// NewExtractor builds the extractor selected by cfg.Backend. detect is only
// called for container-backed extractors.
func NewExtractor(ctx context.Context, cfg types.PDFConfig, detect ExtractorRuntime) (Extractor, error) {
	switch cfg.Backend {
	case types.PDFNative, "":
		return NativeExtractor{}, nil
	case types.PDFMarkitdown:
		rt, err := detect(ctx)
		if err != nil {
			return nil, err
		}
		return NewMarkitdownExtractor(ctx, rt)
	default:
		return nil, fmt.Errorf("unknown PDF backend %q (want native or markitdown)", cfg.Backend)
	}
}
