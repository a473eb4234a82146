// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/promptdesk/internal/pdftext"
	"github.com/pdiddy/promptdesk/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdfs...]",
	Short: "Extract plain text from PDF files",
	Long: `Extract writes the text of each PDF to <output-dir>/<name>.txt with a
YAML frontmatter header. Files whose output is newer than the PDF are
skipped. With --batch, every PDF in the inbox directory is processed.

Backends: native (in-process parser) or markitdown (container-based).`,
	RunE: runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	batch, _ := cmd.Flags().GetBool("batch")
	if b, _ := cmd.Flags().GetString("backend"); b != "" {
		cfg.PDF.Backend = types.PDFBackend(b)
	}
	if d, _ := cmd.Flags().GetString("output-dir"); d != "" {
		cfg.PDF.OutputDir = d
	}

	paths := args
	if batch {
		found, err := pdftext.FindPDFs(cfg.PDF.InboxDir)
		if err != nil {
			return err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PDFs given: pass file paths or --batch")
	}

	extractor, err := newExtractor(cmd.Context())
	if err != nil {
		return err
	}

	result := pdftext.ExtractBatch(cmd.Context(), extractor, paths, cfg.PDF.OutputDir, cfg.PDF.Workers, cmd.OutOrStdout())
	if result.HasFailures() {
		return fmt.Errorf("%d PDF(s) failed extraction", result.Failed)
	}
	return nil
}

func init() {
	extractCmd.Flags().String("backend", "", "extraction backend: native or markitdown (overrides pdf.backend)")
	extractCmd.Flags().String("output-dir", "", "directory for extracted text (overrides pdf.output_dir)")
	extractCmd.Flags().Bool("batch", false, "process every PDF in pdf.inbox_dir")

	rootCmd.AddCommand(extractCmd)
}
