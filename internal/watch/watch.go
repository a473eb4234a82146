// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package watch extracts PDFs dropped into an inbox directory.
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/pdiddy/promptdesk/internal/debounce"
	"github.com/pdiddy/promptdesk/internal/pdftext"
)

const defaultDelay = 500 * time.Millisecond

// Options configures a Watcher.
type Options struct {
	// Dir is the inbox; it is created if missing.
	Dir string

	// OutDir receives extracted text.
	OutDir string

	Extractor pdftext.Extractor

	// Delay is the quiet period after the last write to a file before it is
	// extracted. Copies arrive as a burst of write events.
	Delay time.Duration

	// OnExtract, when set, is called after each extraction attempt.
	OnExtract func(path string, status pdftext.Status)

	// Out receives the per-file progress lines.
	Out io.Writer

	Logger *slog.Logger
}

// Watcher runs extraction for new and changed PDFs in one directory.
type Watcher struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*debounce.Debouncer[string]
	closed  bool
	wg      sync.WaitGroup
}

// New returns a Watcher. Call Run to start it.
func New(opts Options) *Watcher {
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		opts:    opts,
		logger:  logger,
		pending: make(map[string]*debounce.Debouncer[string]),
	}
}

// Run watches the inbox until ctx is cancelled. PDFs already present are
// scheduled once at start; up-to-date outputs are skipped.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("creating inbox %s: %w", w.opts.Dir, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()
	if err := fsw.Add(w.opts.Dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.opts.Dir, err)
	}
	defer w.shutdown()

	existing, err := pdftext.FindPDFs(w.opts.Dir)
	if err != nil {
		return err
	}
	for _, p := range existing {
		w.schedule(ctx, p)
	}
	w.logger.Info("inbox watcher started", "dir", w.opts.Dir, "existing", len(existing), "delay", w.opts.Delay)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox watcher stopped", "dir", w.opts.Dir)
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !pdftext.IsPDF(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(ctx, ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.forget(ev.Name)
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	d, ok := w.pending[path]
	if !ok {
		d = debounce.New(w.opts.Delay, func(p string) { w.extract(ctx, p) })
		w.pending[path] = d
	}
	d.Trigger(path)
}

func (w *Watcher) forget(path string) {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.pending[path]; ok {
		d.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) extract(ctx context.Context, path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	status := pdftext.ExtractFile(ctx, w.opts.Extractor, path, w.opts.OutDir, w.opts.Out)
	w.release(path)
	w.logger.Info("inbox pdf processed", "file", filepath.Base(path), "status", status)
	if w.opts.OnExtract != nil {
		w.opts.OnExtract(path, status)
	}
}

// release drops the debouncer for path unless a write arrived during extraction.
func (w *Watcher) release(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if d, ok := w.pending[path]; ok && !d.Pending() {
		delete(w.pending, path)
	}
}

// shutdown drops pending files and waits for running extractions.
func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for p, d := range w.pending {
		d.Stop()
		delete(w.pending, p)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
