// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/promptdesk/internal/server"
	"github.com/pdiddy/promptdesk/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serve starts the HTTP API: prompt submission and cancellation, a
websocket stream of UI state, PDF text extraction, history and exports,
and Prometheus metrics at /metrics.

With --watch, PDFs dropped into the inbox directory are extracted to the
output directory as they arrive.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	watchInbox, _ := cmd.Flags().GetBool("watch")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(reg)
	if err != nil {
		return err
	}
	defer a.Close()

	extractor, err := newExtractor(ctx)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Coordinator:    a.coord,
		Extractor:      extractor,
		History:        a.history,
		DraftDelay:     cfg.Coordinator.DebounceDelay,
		MaxUploadBytes: cfg.PDF.MaxUploadBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       reg,
		Logger:         logger,
	})
	defer srv.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
	})
	if watchInbox {
		w := watch.New(watch.Options{
			Dir:       cfg.PDF.InboxDir,
			OutDir:    cfg.PDF.OutputDir,
			Extractor: extractor,
			Delay:     cfg.Coordinator.DebounceDelay,
			Out:       cmd.OutOrStdout(),
			Logger:    logger,
		})
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().Bool("watch", false, "extract PDFs dropped into pdf.inbox_dir")

	rootCmd.AddCommand(serveCmd)
}
