// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/promptdesk/internal/container"
	"github.com/pdiddy/promptdesk/pkg/types"
)

// fakeExtractor returns canned text or errors per file name.
type fakeExtractor struct {
	outputs map[string]string
	errs    map[string]error
	calls   int32
}

func (f *fakeExtractor) Extract(_ context.Context, pdfPath string) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	name := filepath.Base(pdfPath)
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	if out, ok := f.outputs[name]; ok {
		return out, nil
	}
	return "", errors.New("unexpected path: " + pdfPath)
}

func writePDFs(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("%PDF-fake"), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func TestExtractFile(t *testing.T) {
	tests := []struct {
		name       string
		extractor  *fakeExtractor
		preCreate  bool
		wantStatus Status
		wantLog    string
	}{
		{
			name:       "successful extraction",
			extractor:  &fakeExtractor{outputs: map[string]string{"doc.pdf": "<!-- page 1 -->\nHello\n\n"}},
			wantStatus: StatusExtracted,
			wantLog:    "extracted: doc (1 pages)",
		},
		{
			name:       "skip up-to-date output",
			extractor:  &fakeExtractor{},
			preCreate:  true,
			wantStatus: StatusSkipped,
			wantLog:    "skipped:",
		},
		{
			name:       "extraction failure",
			extractor:  &fakeExtractor{errs: map[string]error{"doc.pdf": errors.New("encrypted")}},
			wantStatus: StatusFailed,
			wantLog:    "failed:    doc (encrypted)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmp := t.TempDir()
			pdfPath := writePDFs(t, filepath.Join(tmp, "raw"), "doc.pdf")[0]
			outDir := filepath.Join(tmp, "text")

			if tt.preCreate {
				require.NoError(t, os.MkdirAll(outDir, 0o755))
				out := OutputPath(pdfPath, outDir)
				require.NoError(t, os.WriteFile(out, []byte("existing"), 0o644))
				future := time.Now().Add(time.Hour)
				require.NoError(t, os.Chtimes(out, future, future))
			}

			var log bytes.Buffer
			status := ExtractFile(context.Background(), tt.extractor, pdfPath, outDir, &log)

			assert.Equal(t, tt.wantStatus, status)
			assert.Contains(t, log.String(), tt.wantLog)
		})
	}
}

func TestExtractFile_ReextractsWhenPDFIsNewer(t *testing.T) {
	tmp := t.TempDir()
	pdfPath := writePDFs(t, tmp, "doc.pdf")[0]
	outDir := filepath.Join(tmp, "text")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	out := OutputPath(pdfPath, outDir)
	require.NoError(t, os.WriteFile(out, []byte("old"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(out, past, past))

	ex := &fakeExtractor{outputs: map[string]string{"doc.pdf": "fresh"}}
	status := ExtractFile(context.Background(), ex, pdfPath, outDir, io.Discard)

	assert.Equal(t, StatusExtracted, status)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fresh")
}

func TestExtractFile_Frontmatter(t *testing.T) {
	tmp := t.TempDir()
	pdfPath := writePDFs(t, tmp, "report.pdf")[0]
	outDir := filepath.Join(tmp, "text")
	ex := &fakeExtractor{outputs: map[string]string{
		"report.pdf": "<!-- page 1 -->\nOne\n\n<!-- page 2 -->\nTwo\n\n",
	}}

	require.Equal(t, StatusExtracted, ExtractFile(context.Background(), ex, pdfPath, outDir, io.Discard))

	data, err := os.ReadFile(filepath.Join(outDir, "report.txt"))
	require.NoError(t, err)
	content := string(data)

	assert.True(t, strings.HasPrefix(content, "---\n"))
	assert.Contains(t, content, fmt.Sprintf("source_pdf: %q", pdfPath))
	assert.Contains(t, content, "pages: 2\n")
	assert.Contains(t, content, "extracted_at:")
	assert.Contains(t, content, "<!-- page 2 -->\nTwo")
}

func TestExtractBatch(t *testing.T) {
	tmp := t.TempDir()
	paths := writePDFs(t, filepath.Join(tmp, "raw"), "a.pdf", "b.pdf", "c.pdf")
	outDir := filepath.Join(tmp, "text")

	// b is already up to date.
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	bOut := OutputPath(paths[1], outDir)
	require.NoError(t, os.WriteFile(bOut, []byte("existing"), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(bOut, future, future))

	ex := &fakeExtractor{
		outputs: map[string]string{"a.pdf": "A", "b.pdf": "B"},
		errs:    map[string]error{"c.pdf": errors.New("bad pdf")},
	}

	var log bytes.Buffer
	result := ExtractBatch(context.Background(), ex, paths, outDir, 2, &log)

	assert.Equal(t, 1, result.Extracted)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 3, result.Total())
	assert.True(t, result.HasFailures())
	assert.Equal(t, int32(2), atomic.LoadInt32(&ex.calls))
	assert.Contains(t, log.String(), "Batch summary: 1 extracted, 1 skipped, 1 failed (total: 3)")
}

func TestExtractBatch_CancelledContext(t *testing.T) {
	tmp := t.TempDir()
	paths := writePDFs(t, tmp, "a.pdf", "b.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &fakeExtractor{outputs: map[string]string{"a.pdf": "A", "b.pdf": "B"}}
	result := ExtractBatch(ctx, ex, paths, filepath.Join(tmp, "text"), 1, io.Discard)

	assert.Equal(t, 0, result.Total())
	assert.Equal(t, int32(0), atomic.LoadInt32(&ex.calls))
}

func TestFindPDFs(t *testing.T) {
	tmp := t.TempDir()
	writePDFs(t, tmp, "b.pdf", "a.PDF")
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(tmp, "dir.pdf"), 0o755))

	got, err := FindPDFs(tmp)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(tmp, "a.PDF"), filepath.Join(tmp, "b.pdf")}, got)

	_, err = FindPDFs(filepath.Join(tmp, "missing"))
	assert.Error(t, err)
}

func TestCountPages(t *testing.T) {
	assert.Equal(t, 0, CountPages("plain markdown"))
	assert.Equal(t, 3, CountPages("<!-- page 1 -->\n<!-- page 2 -->\n<!-- page 3 -->\n"))
}

// --- native backend ---

// minimalPDF builds a valid PDF with one Helvetica text line per page.
func minimalPDF(pages ...string) []byte {
	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestNativeExtractor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.pdf")
	require.NoError(t, os.WriteFile(path, minimalPDF("Hello", "World"), 0o644))

	text, err := NativeExtractor{}.Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, CountPages(text))
	assert.Contains(t, text, "<!-- page 1 -->\nHello")
	assert.Contains(t, text, "<!-- page 2 -->\nWorld")
}

func TestNativeExtractor_Errors(t *testing.T) {
	dir := t.TempDir()

	notPDF := filepath.Join(dir, "fake.pdf")
	require.NoError(t, os.WriteFile(notPDF, []byte("this is not a pdf"), 0o644))
	_, err := NativeExtractor{}.Extract(context.Background(), notPDF)
	assert.Error(t, err)

	_, err = NativeExtractor{}.Extract(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)

	blank := filepath.Join(dir, "blank.pdf")
	require.NoError(t, os.WriteFile(blank, minimalPDF(""), 0o644))
	_, err = NativeExtractor{}.Extract(context.Background(), blank)
	assert.ErrorIs(t, err, ErrNoText)
}

// --- markitdown backend ---

type fakeRuntime struct {
	imageErr error
	runFunc  func(stdin io.Reader, stdout io.Writer) error
}

func (f *fakeRuntime) Name() string                              { return "docker" }
func (f *fakeRuntime) Available(context.Context) bool            { return true }
func (f *fakeRuntime) ImageExists(context.Context, string) error { return f.imageErr }
func (f *fakeRuntime) Run(_ context.Context, _ string, stdin io.Reader, stdout io.Writer) error {
	return f.runFunc(stdin, stdout)
}

func TestMarkitdownExtractor(t *testing.T) {
	path := writePDFs(t, t.TempDir(), "doc.pdf")[0]
	rt := &fakeRuntime{runFunc: func(stdin io.Reader, stdout io.Writer) error {
		in, _ := io.ReadAll(stdin)
		fmt.Fprintf(stdout, "# Converted\n\n%d bytes", len(in))
		return nil
	}}

	m, err := NewMarkitdownExtractor(context.Background(), rt)
	require.NoError(t, err)

	text, err := m.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "# Converted\n\n9 bytes", text)
}

func TestMarkitdownExtractor_Errors(t *testing.T) {
	_, err := NewMarkitdownExtractor(context.Background(), &fakeRuntime{imageErr: errors.New("no such image")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markitdown image not available in docker")

	path := writePDFs(t, t.TempDir(), "doc.pdf")[0]
	m, err := NewMarkitdownExtractor(context.Background(), &fakeRuntime{runFunc: func(io.Reader, io.Writer) error { return nil }})
	require.NoError(t, err)
	_, err = m.Extract(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestNewExtractor(t *testing.T) {
	ctx := context.Background()
	detect := func(context.Context) (container.Runtime, error) {
		return &fakeRuntime{runFunc: func(io.Reader, io.Writer) error { return nil }}, nil
	}

	e, err := NewExtractor(ctx, types.PDFConfig{}, detect)
	require.NoError(t, err)
	assert.IsType(t, NativeExtractor{}, e)

	e, err = NewExtractor(ctx, types.PDFConfig{Backend: types.PDFMarkitdown}, detect)
	require.NoError(t, err)
	assert.IsType(t, &MarkitdownExtractor{}, e)

	_, err = NewExtractor(ctx, types.PDFConfig{Backend: types.PDFMarkitdown}, func(context.Context) (container.Runtime, error) {
		return nil, errors.New("no runtime")
	})
	assert.EqualError(t, err, "no runtime")

	_, err = NewExtractor(ctx, types.PDFConfig{Backend: "ocr"}, detect)
	assert.Error(t, err)
}
