// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pdiddy/promptdesk/internal/coordinator"
	"github.com/pdiddy/promptdesk/internal/export"
	"github.com/pdiddy/promptdesk/internal/history"
	"github.com/pdiddy/promptdesk/internal/pdftext"
	"github.com/pdiddy/promptdesk/pkg/types"
)

// streamWriteTimeout bounds one websocket frame write.
const streamWriteTimeout = 5 * time.Second

type submitResponse struct {
	Token uint64 `json:"token"`
	ID    string `json:"id"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	task, err := s.coord.Submit(req.Prompt)
	switch {
	case errors.Is(err, coordinator.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, coordinator.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// An accepted submit supersedes any draft still waiting.
	s.draft.Stop()
	sub := task.Submission()
	writeJSON(w, http.StatusAccepted, submitResponse{Token: sub.Token, ID: sub.ID})
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	s.draft.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.coord.Cancel()})
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req promptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.draft.Trigger(req.Prompt)
	writeJSON(w, http.StatusAccepted, map[string]bool{"pending": s.draft.Pending()})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.State())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.allowedOrigins})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead cancels ctx when they go away.
	ctx := conn.CloseRead(r.Context())
	s.logger.Debug("state stream opened", "remote", r.RemoteAddr)

	for st := range s.coord.Subscribe(ctx) {
		wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		err := wsjson.Write(wctx, conn, st)
		cancel()
		if err != nil {
			s.logger.Debug("state stream closed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

type extractResponse struct {
	Text  string `json:"text"`
	Pages int    `json:"pages"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("PDF extraction is not configured"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("reading upload: %w", err))
		return
	}
	defer file.Close()
	if !pdftext.IsPDF(header.Filename) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%s is not a PDF", header.Filename))
		return
	}

	tmp, err := os.CreateTemp("", "promptdesk-*.pdf")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("saving upload: %w", err))
		return
	}

	text, err := s.extractor.Extract(r.Context(), tmp.Name())
	if errors.Is(err, pdftext.ErrNoText) {
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("%s: %w", header.Filename, pdftext.ErrNoText))
		return
	}
	if err != nil {
		s.logger.Warn("pdf extraction failed", "file", header.Filename, "error", err)
		writeError(w, http.StatusUnprocessableEntity, fmt.Errorf("extracting %s: %w", header.Filename, err))
		return
	}
	s.logger.Info("pdf extracted", "file", header.Filename, "bytes", len(text))
	writeJSON(w, http.StatusOK, extractResponse{Text: text, Pages: pdftext.CountPages(text)})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history is not configured"))
		return
	}
	var req export.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := export.Render(r.Context(), s.history, req)
	var verr *export.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Fields: verr.Fields})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", req.Format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="history.%s"`, req.Format.Ext()))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history is not configured"))
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	outcomes, err := s.history.List(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if outcomes == nil {
		outcomes = []types.Outcome{}
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("history is not configured"))
		return
	}
	o, err := s.history.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func parseFilter(r *http.Request) (history.Filter, error) {
	q := r.URL.Query()
	var f history.Filter
	if v := q.Get("status"); v != "" {
		f.Status = types.Status(v)
		if !f.Status.Recorded() {
			return f, fmt.Errorf("unknown status %q", v)
		}
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("since: %w", err)
		}
		f.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("limit must be a non-negative integer, got %q", v)
		}
		f.Limit = n
	}
	return f, nil
}
