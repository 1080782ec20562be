package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for emmcingest.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emmcingest",
		Short: "Ingest eMMC specification PDFs into retrieval-ready chunks",
		Long: `emmcingest reads an eMMC specification PDF, recovers its section
hierarchy from the table of contents, and splits the body into chunks
that carry their document context: section path, page range, and content
type (prose, table, register digest, figure, definition).

Output is a JSONL chunk file plus a glossary of the terms and
abbreviations the document defines. Each run is recorded in a local
catalog so re-ingestions of the same document can be compared.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewIngestCmd())
	cmd.AddCommand(NewTOCCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
