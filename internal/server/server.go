// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the coordinator, PDF extraction and history over
// HTTP and streams UI state to websocket clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sloghttp "github.com/samber/slog-http"

	"github.com/pdiddy/promptdesk/internal/coordinator"
	"github.com/pdiddy/promptdesk/internal/debounce"
	"github.com/pdiddy/promptdesk/internal/history"
	"github.com/pdiddy/promptdesk/internal/pdftext"
	"github.com/pdiddy/promptdesk/pkg/types"
)

const (
	defaultMaxUploadBytes  = 32 << 20
	defaultShutdownTimeout = 10 * time.Second
	maxJSONBody            = 1 << 20
)

// Historian is the read side of the history store.
type Historian interface {
	List(ctx context.Context, f history.Filter) ([]types.Outcome, error)
	Get(ctx context.Context, id string) (types.Outcome, error)
}

// Options wires a Server. Coordinator is required; a nil Extractor or
// History disables the routes that need them.
type Options struct {
	Coordinator *coordinator.Coordinator
	Extractor   pdftext.Extractor
	History     Historian

	// DraftDelay is the quiet period before a draft is submitted.
	DraftDelay time.Duration

	MaxUploadBytes int64
	AllowedOrigins []string

	// Gatherer serves /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server is the promptdesk HTTP front end.
type Server struct {
	coord     *coordinator.Coordinator
	extractor pdftext.Extractor
	history   Historian
	draft     *debounce.Debouncer[string]
	gatherer  prometheus.Gatherer
	logger    *slog.Logger

	maxUpload      int64
	allowedOrigins []string

	handler http.Handler
}

// New builds the server and its routes.
func New(opts Options) *Server {
	s := &Server{
		coord:          opts.Coordinator,
		extractor:      opts.Extractor,
		history:        opts.History,
		gatherer:       opts.Gatherer,
		logger:         opts.Logger,
		maxUpload:      opts.MaxUploadBytes,
		allowedOrigins: opts.AllowedOrigins,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.maxUpload <= 0 {
		s.maxUpload = defaultMaxUploadBytes
	}
	s.draft = debounce.New(opts.DraftDelay, s.submitDraft)
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /api/prompt", s.handleSubmit)
	api.HandleFunc("POST /api/prompt/cancel", s.handleCancel)
	api.HandleFunc("PUT /api/draft", s.handleDraft)
	api.HandleFunc("GET /api/state", s.handleState)
	api.HandleFunc("POST /api/pdf/extract", s.handleExtract)
	api.HandleFunc("POST /api/export", s.handleExport)
	api.HandleFunc("GET /api/history", s.handleHistory)
	api.HandleFunc("GET /api/history/{id}", s.handleHistoryItem)
	api.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	api.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The stream bypasses the access log middleware, whose response
	// wrapper cannot be hijacked.
	root := http.NewServeMux()
	root.HandleFunc("GET /api/state/stream", s.handleStream)
	root.Handle("/", sloghttp.New(s.logger)(sloghttp.Recovery(api)))
	return root
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		s.draft.Stop()
		return err
	case <-ctx.Done():
	}

	s.draft.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close drops any pending draft.
func (s *Server) Close() {
	s.draft.Stop()
}

func (s *Server) submitDraft(prompt string) {
	task, err := s.coord.Submit(prompt)
	if err != nil {
		s.logger.Debug("draft not submitted", "error", err)
		return
	}
	sub := task.Submission()
	s.logger.Debug("draft submitted", "token", sub.Token, "id", sub.ID)
}

// --- JSON helpers ---

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Fields any    `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}
