package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/catalog"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [source]",
		Short: "List recorded ingestion runs for a document",
		Long: `History reads the local catalog and lists past ingestion runs of the
named document, newest first. The source may be given as a path; only
its base name keys the catalog.`,
		Args: cobra.ExactArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file path (YAML)")
	cmd.Flags().IntP("limit", "n", 10, "Number of runs to show")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	cat, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		return err
	}
	defer cat.Close()

	ctx := cmd.Context()
	source := filepath.Base(args[0])
	out := cmd.OutOrStdout()

	doc, err := cat.GetDocument(ctx, source)
	if errors.Is(err, catalog.ErrNotFound) {
		fmt.Fprintf(out, "no recorded runs for %s\n", source)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d pages", doc.Source, doc.Pages)
	if doc.Version != "" {
		fmt.Fprintf(out, ", version %s", doc.Version)
	}
	if len(doc.SHA256) >= 12 {
		fmt.Fprintf(out, ", sha256 %s", doc.SHA256[:12])
	}
	fmt.Fprintln(out)

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := cat.Runs(ctx, source, limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(out, "%s  %s  %d chunks, %d dropped, %d terms",
			r.Started.Local().Format("2006-01-02 15:04:05"), r.RunID,
			r.Chunks, r.Dropped, r.GlossaryTerms)
		if len(r.PageGaps) > 0 {
			fmt.Fprintf(out, ", %d page gaps", len(r.PageGaps))
		}
		fmt.Fprintln(out)
	}
	return nil
}
