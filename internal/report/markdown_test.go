package report

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/pipeline"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Stats: pipeline.RunStats{
			RunID:       "01JXAMPLE",
			Source:      "JESD84-B51.pdf",
			Version:     "5.1",
			PageCount:   10,
			PagesParsed: 9,
			ByType: map[schema.ContentType]int{
				schema.Text:  3,
				schema.Table: 2,
			},
			Chunks:        5,
			Dropped:       1,
			GlossaryTerms: 4,
			StartedAt:     time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC),
			Duration:      1500 * time.Millisecond,
			PageGaps:      []int{7},
		},
	}
}

// Table cell padding is the renderer's business, so row assertions match
// through whitespace.
func matchRow(t *testing.T, out, label, value string) {
	t.Helper()
	re := regexp.MustCompile(`\|\s*` + regexp.QuoteMeta(label) + `\s*\|\s*` + regexp.QuoteMeta(value) + `\s*\|`)
	if !re.MatchString(out) {
		t.Errorf("missing table row %q -> %q in:\n%s", label, value, out)
	}
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleResult()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "# Ingestion Report") {
		t.Error("missing title")
	}
	if !strings.Contains(out, "JESD84-B51.pdf") {
		t.Error("missing document name")
	}
	matchRow(t, out, "text", "3")
	matchRow(t, out, "table", "2")
	matchRow(t, out, "register", "0")
	matchRow(t, out, "dropped", "1")
	if !strings.Contains(out, "Glossary: 4 terms.") {
		t.Error("missing glossary line")
	}
	if !strings.Contains(out, "could not be read") || !strings.Contains(out, "7") {
		t.Errorf("missing page gap warning in:\n%s", out)
	}
}

func TestWrite_NoGaps(t *testing.T) {
	res := sampleResult()
	res.Stats.PageGaps = nil

	var buf bytes.Buffer
	if err := Write(&buf, res); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()

	if strings.Contains(out, "could not be read") {
		t.Error("unexpected gap warning for a fully readable document")
	}
	if !strings.Contains(out, "Every page of the document was readable.") {
		t.Errorf("missing full-coverage note in:\n%s", out)
	}
}
