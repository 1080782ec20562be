package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/structure"
)

// NewTOCCmd creates the toc command.
func NewTOCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toc [pdf]",
		Short: "Preview the section tree recovered from the table of contents",
		Long: `Toc runs only the structure pass and prints the recovered section
hierarchy with page ranges. Useful for checking what ingest will see
before committing to a full run: a document whose contents pages defeat
recovery shows up here as a single flat section.`,
		Args: cobra.ExactArgs(1),
		RunE: runTOCCmd,
	}
}

// runTOCCmd executes the toc command.
func runTOCCmd(cmd *cobra.Command, args []string) error {
	log := setupLogger(getVerboseFlag(cmd))

	doc, err := parser.Open(args[0], parser.DefaultOptions())
	if err != nil {
		return err
	}
	defer doc.Close()

	st := structure.Extract(doc, log)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d pages, %d sections, body starts at page %d\n",
		filepath.Base(args[0]), st.PageCount, len(st.Sections()), st.BodyStart)
	if toc := st.TOCPages(); len(toc) > 0 {
		fmt.Fprintf(out, "contents on pages %s\n", joinInts(toc))
	}
	for _, root := range st.Roots {
		printSection(out, root, 0)
	}
	return nil
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

func printSection(w io.Writer, s *structure.Section, depth int) {
	fmt.Fprintf(w, "%s%s  (pages %d-%d)\n",
		strings.Repeat("  ", depth), s.Label(), s.PageStart, s.PageEnd)
	for _, child := range s.Children {
		printSection(w, child, depth+1)
	}
}
