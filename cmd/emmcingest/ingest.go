package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/catalog"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/config"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/pipeline"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/report"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
)

// NewIngestCmd creates the ingest command.
func NewIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [pdf]",
		Short: "Convert a specification PDF into chunk and glossary files",
		Long: `Ingest runs the full pipeline over one PDF: recover the section tree
from the table of contents, extract and classify every page, and write
the chunks as JSONL next to a JSON glossary of defined terms.

Output files are named after the input, so JESD84-B51.pdf produces
JESD84-B51_chunks.jsonl and JESD84-B51_glossary.json in the output
directory.

Examples:
  # Ingest into the current directory
  emmcingest ingest JESD84-B51.pdf

  # First-pages calibration run with a Markdown report
  emmcingest ingest --max-pages 30 --report calibration.md JESD84-B51.pdf

  # Tune thresholds from a config file
  emmcingest ingest -c emmcingest.yaml JESD84-B51.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: runIngestCmd,
	}

	cmd.Flags().StringP("out", "o", "", "Output directory for chunk and glossary files")
	cmd.Flags().StringP("config", "c", "", "Configuration file path (YAML)")
	cmd.Flags().IntP("workers", "w", 0, "Page extraction workers (0 sizes to the machine)")
	cmd.Flags().IntP("max-pages", "p", 0, "Stop after this many pages (0 ingests every page)")
	cmd.Flags().String("report", "", "Write a Markdown ingestion report to this path")
	cmd.Flags().Bool("no-catalog", false, "Skip recording the run in the local catalog")

	return cmd
}

// runIngestCmd executes the ingest command.
func runIngestCmd(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	log := setupLogger(cfg.Verbose)
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Warn("interrupt received, stopping after in-flight pages")
		cancel()
	}()

	pdfPath := args[0]
	doc, err := parser.Open(pdfPath, parser.DefaultOptions())
	if err != nil {
		return err
	}
	defer doc.Close()

	// An interrupted run still yields a partial result; it is written out
	// and recorded like any other before the error surfaces.
	res, runErr := pipeline.New(cfg, log).Run(ctx, doc, pdfPath)
	if res == nil {
		return runErr
	}

	chunksPath, glossaryPath, err := writeOutputs(cfg.OutDir, res)
	if err != nil {
		return err
	}

	var prev *catalog.RunRecord
	if skip, _ := cmd.Flags().GetBool("no-catalog"); !skip {
		prev = recordRun(log, cfg, pdfPath, res, chunksPath)
	}

	if reportPath, _ := cmd.Flags().GetString("report"); reportPath != "" {
		if err := writeReport(reportPath, res); err != nil {
			return err
		}
	}

	printSummary(cmd, res, prev, chunksPath, glossaryPath)
	return runErr
}

// resolveConfig layers the run configuration: .env, then defaults plus
// the optional YAML file and environment, then explicit flags on top.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	_ = godotenv.Load()

	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.OutDir, _ = flags.GetString("out")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("max-pages") {
		cfg.MaxPages, _ = flags.GetInt("max-pages")
	}
	if getVerboseFlag(cmd) {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// setupLogger builds the run logger: JSON lines on stderr, warnings only
// unless verbose asks for debug.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// writeOutputs writes the chunk JSONL and the glossary JSON, named after
// the source document.
func writeOutputs(dir string, res *pipeline.Result) (chunksPath, glossaryPath string, err error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}
	stem := strings.TrimSuffix(res.Source, filepath.Ext(res.Source))
	chunksPath = filepath.Join(dir, stem+"_chunks.jsonl")
	glossaryPath = filepath.Join(dir, stem+"_glossary.json")

	if err := writeFile(chunksPath, func(w io.Writer) error {
		return schema.WriteJSONL(w, res.Chunks)
	}); err != nil {
		return "", "", err
	}
	if err := writeFile(glossaryPath, func(w io.Writer) error {
		return schema.WriteGlossaryJSON(w, res.Glossary)
	}); err != nil {
		return "", "", err
	}
	return chunksPath, glossaryPath, nil
}

func writeFile(path string, fill func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// recordRun books the document and the run into the local catalog and
// returns the previous run of the same source, if any. The run context
// may already be cancelled on an interrupted run, so catalog writes get
// their own. Catalog trouble never fails an ingest whose outputs are
// already on disk.
func recordRun(log *slog.Logger, cfg config.Config, pdfPath string, res *pipeline.Result, chunksPath string) *catalog.RunRecord {
	ctx := context.Background()
	cat, err := catalog.Open(cfg.CatalogPath())
	if err != nil {
		log.Warn("catalog unavailable, run not recorded", "error", err)
		return nil
	}
	defer cat.Close()

	prev, err := cat.LastRun(ctx, res.Source)
	if err != nil {
		prev = nil
	}

	sha, err := catalog.HashFile(pdfPath)
	if err != nil {
		log.Warn("source hash failed", "error", err)
	}
	if err := cat.RecordDocument(ctx, catalog.Document{
		Source:  res.Source,
		Version: res.Version,
		Pages:   res.Stats.PageCount,
		SHA256:  sha,
	}); err != nil {
		log.Warn("document not recorded", "error", err)
	}

	byType := make(map[string]int, len(res.Stats.ByType))
	for k, n := range res.Stats.ByType {
		byType[string(k)] = n
	}
	if err := cat.RecordRun(ctx, catalog.RunRecord{
		RunID:         res.Stats.RunID,
		Source:        res.Source,
		Started:       res.Stats.StartedAt,
		Duration:      res.Stats.Duration,
		PagesParsed:   res.Stats.PagesParsed,
		Chunks:        res.Stats.Chunks,
		Dropped:       res.Stats.Dropped,
		GlossaryTerms: res.Stats.GlossaryTerms,
		ByType:        byType,
		PageGaps:      res.Stats.PageGaps,
		Output:        chunksPath,
	}); err != nil {
		log.Warn("run not recorded", "error", err)
	}
	return prev
}

func writeReport(path string, res *pipeline.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	return writeFile(path, func(w io.Writer) error {
		return report.Write(w, res)
	})
}

func printSummary(cmd *cobra.Command, res *pipeline.Result, prev *catalog.RunRecord, chunksPath, glossaryPath string) {
	st := res.Stats
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d chunks from %d of %d pages in %s\n",
		res.Source, st.Chunks, st.PagesParsed, st.PageCount, st.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  dropped %d, glossary %d terms", st.Dropped, st.GlossaryTerms)
	if len(st.PageGaps) > 0 {
		fmt.Fprintf(out, ", %d unreadable pages", len(st.PageGaps))
	}
	fmt.Fprintln(out)
	if prev != nil {
		fmt.Fprintf(out, "  previous run: %d chunks on %s\n",
			prev.Chunks, prev.Started.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(out, "  chunks:   %s\n", chunksPath)
	fmt.Fprintf(out, "  glossary: %s\n", glossaryPath)
}
