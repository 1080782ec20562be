// Package report renders a run summary as GitHub-flavored markdown, for
// checking coverage after an ingest without opening the JSONL output.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/pipeline"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
)

// typeOrder fixes the row order of the per-type count table.
var typeOrder = []schema.ContentType{
	schema.Text,
	schema.Table,
	schema.Figure,
	schema.Bitmap,
	schema.Definition,
	schema.Register,
}

// Write renders the run report.
func Write(w io.Writer, res *pipeline.Result) error {
	st := res.Stats
	md := markdown.NewMarkdown(w)

	md.H1("Ingestion Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Document", "`" + st.Source + "`"},
			{"Version", st.Version},
			{"Run ID", st.RunID},
			{"Pages parsed", fmt.Sprintf("%d of %d", st.PagesParsed, st.PageCount)},
			{"Started", st.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", st.Duration.Round(time.Millisecond).String()},
		},
	})
	md.PlainText("")

	md.H2("Chunks")
	md.PlainText("")
	rows := make([][]string, 0, len(typeOrder)+2)
	for _, t := range typeOrder {
		rows = append(rows, []string{string(t), strconv.Itoa(st.ByType[t])})
	}
	rows = append(rows,
		[]string{"**total**", "**" + strconv.Itoa(st.Chunks) + "**"},
		[]string{"dropped", strconv.Itoa(st.Dropped)},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Content type", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
	md.PlainTextf("Glossary: %d terms.", st.GlossaryTerms)
	md.PlainText("")

	if len(st.PageGaps) > 0 {
		md.Warningf("%d page(s) could not be read and are missing from the output: %s.",
			len(st.PageGaps), joinPages(st.PageGaps))
	} else {
		md.Tip("Every page of the document was readable.")
	}
	md.PlainText("")
	return md.Build()
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}
