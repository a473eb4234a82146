// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pdiddy/promptdesk/internal/container"
	"github.com/pdiddy/promptdesk/internal/coordinator"
	"github.com/pdiddy/promptdesk/internal/history"
	"github.com/pdiddy/promptdesk/internal/pdftext"
	"github.com/pdiddy/promptdesk/internal/prompt"
)

// app holds the components shared by serve and submit.
type app struct {
	coord   *coordinator.Coordinator
	history *history.Store
}

// newApp wires the provider backend, history store and coordinator from cfg.
func newApp(reg prometheus.Registerer) (*app, error) {
	backend, err := prompt.NewBackend(cfg.Prompt, http.DefaultClient)
	if err != nil {
		return nil, err
	}

	store, err := history.Open(cfg.History)
	if err != nil {
		return nil, err
	}

	opts := coordinator.Options{
		CancelSuperseded: cfg.Coordinator.CancelSuperseded,
		Recorder:         history.SafeRecorder{Store: store, Logger: logger},
		Logger:           logger,
	}
	if reg != nil {
		opts.Metrics = coordinator.NewMetrics(reg)
	}
	coord := coordinator.New(prompt.Operation(backend, cfg.Prompt.Timeout), opts)

	logger.Info("coordinator ready",
		"provider", cfg.Prompt.Provider,
		"model", cfg.Prompt.Model,
		"history", cfg.History.Path)
	return &app{coord: coord, history: store}, nil
}

// Close stops in-flight work before closing the store it records into.
func (a *app) Close() error {
	a.coord.Close()
	return a.history.Close()
}

func newExtractor(ctx context.Context) (pdftext.Extractor, error) {
	return pdftext.NewExtractor(ctx, cfg.PDF, container.DetectRuntime)
}
