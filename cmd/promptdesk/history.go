// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/promptdesk/internal/export"
	"github.com/pdiddy/promptdesk/internal/history"
	"github.com/pdiddy/promptdesk/pkg/types"
)

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded prompt outcomes",
	Long: `History lists recorded outcomes, most recent first. Stale and
cancelled submissions are recorded too; filter with --status.`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	f, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()

	outcomes, err := store.List(cmd.Context(), f)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatHistoryOutput(cmd.OutOrStdout(), outcomes, jsonOutput)
}

func formatHistoryOutput(w io.Writer, outcomes []types.Outcome, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No outcomes recorded.")
		return nil
	}

	fmt.Fprintf(w, "%-6s  %-9s  %-20s  %-40s  %s\n", "Token", "Status", "Completed", "Prompt", "Duration")
	fmt.Fprintln(w, strings.Repeat("-", 95))
	for _, o := range outcomes {
		p := strings.ReplaceAll(o.Prompt, "\n", " ")
		if r := []rune(p); len(r) > 40 {
			p = string(r[:37]) + "..."
		}
		fmt.Fprintf(w, "%-6d  %-9s  %-20s  %-40s  %s\n",
			o.Token, o.Status, o.CompletedAt.Local().Format("2006-01-02 15:04:05"), p, o.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "\n%d outcomes\n", len(outcomes))
	return nil
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded outcomes to JSON, YAML or Markdown",
	Long: `Export writes matching outcomes to <export-dir>/export-<uuid>.<ext>.
It accepts the same filters as history.`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	f, err := filterFromFlags(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.Export.Dir
	}

	req := export.Request{
		Format: export.Format(format),
		Status: f.Status,
		Since:  f.Since,
		Limit:  f.Limit,
		Dir:    dir,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	store, err := history.Open(cfg.History)
	if err != nil {
		return err
	}
	defer store.Close()

	path, err := export.Export(cmd.Context(), store, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
	return nil
}

// --- shared filter flags ---

func filterFromFlags(cmd *cobra.Command) (history.Filter, error) {
	var f history.Filter
	status, _ := cmd.Flags().GetString("status")
	if status != "" {
		f.Status = types.Status(status)
		if !f.Status.Recorded() {
			return f, fmt.Errorf("unknown status %q", status)
		}
	}
	since, _ := cmd.Flags().GetDuration("since")
	if since > 0 {
		f.Since = time.Now().Add(-since)
	}
	f.Limit, _ = cmd.Flags().GetInt("limit")
	return f, nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("status", "", "filter by status: applied, errored, cancelled or stale")
	cmd.Flags().Duration("since", 0, "only outcomes completed within this duration (e.g. 24h)")
	cmd.Flags().Int("limit", 0, "maximum number of outcomes (0 for the default)")
}

func init() {
	addFilterFlags(historyCmd)
	historyCmd.Flags().Bool("json", false, "output as JSON")

	addFilterFlags(exportCmd)
	exportCmd.Flags().String("format", "json", "export format: json, yaml or markdown")
	exportCmd.Flags().String("dir", "", "output directory (overrides export.dir)")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(exportCmd)
}
