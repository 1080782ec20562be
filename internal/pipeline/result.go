package pipeline

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/structure"
)

// Result is everything one ingestion run produced, chunks in emission
// order.
type Result struct {
	Source    string
	Version   string
	Structure *structure.DocStructure
	Chunks    []*schema.Chunk
	Glossary  schema.Glossary
	Stats     RunStats
}

// RunStats summarizes a run for the catalog, the report, and the CLI
// summary.
type RunStats struct {
	RunID         string                     `json:"run_id"`
	Source        string                     `json:"source"`
	Version       string                     `json:"version"`
	PageCount     int                        `json:"page_count"`
	PagesParsed   int                        `json:"pages_parsed"`
	PageGaps      []int                      `json:"page_gaps,omitempty"`
	ByType        map[schema.ContentType]int `json:"chunks_by_type"`
	Chunks        int                        `json:"chunks_total"`
	Dropped       int                        `json:"chunks_dropped"`
	GlossaryTerms int                        `json:"glossary_terms"`
	StartedAt     time.Time                  `json:"started_at"`
	Duration      time.Duration              `json:"duration"`
}

// registerMapNames mark the register digest sections whose full tables
// stay retrievable. Everywhere else the row groups carry the table
// content and the full serialization would only duplicate them.
var registerMapNames = []string{"CSD", "CID", "DSR", "OCR", "EXT_CSD"}

// Searchable is the retrieval view of the chunk list: front matter and
// redundant full-table serializations are skipped.
func (r *Result) Searchable() []*schema.Chunk {
	out := make([]*schema.Chunk, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		if c.IsFrontMatter {
			continue
		}
		if c.ContentType == schema.Table && !c.IsRowChunk && !registerMapSection(c.SectionTitle) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func registerMapSection(title string) bool {
	u := strings.ToUpper(title)
	for _, name := range registerMapNames {
		if strings.Contains(u, name) {
			return true
		}
	}
	return false
}

// Minimum body lengths per content type, in runes of stripped raw text.
// Placeholder-only figures and page-number fragments fall under these.
var minRawChars = map[schema.ContentType]int{
	schema.Text:       20,
	schema.Table:      80,
	schema.Figure:     30,
	schema.Bitmap:     30,
	schema.Definition: 8,
	schema.Register:   40,
}

const (
	minRawCharsRowGroup = 25
	minRawCharsDefault  = 30
)

// Page furniture that survives extraction: continuation markers, download
// watermarks, the standard's own running header, bare page numbers.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(?:cont'd|continued|continued\s+on\s+next\s+page|to\s+be\s+continued)\.?$`),
	regexp.MustCompile(`(?i)^(?:downloaded\s+by|jedec\s+standard)`),
	regexp.MustCompile(`^\d+$`),
}

// chunkIssue reports why a chunk fails the validity filter, or "" when it
// passes.
func chunkIssue(c *schema.Chunk) string {
	raw := strings.TrimSpace(c.RawText)
	if raw == "" {
		return "empty body"
	}
	minChars, ok := minRawChars[c.ContentType]
	if !ok {
		minChars = minRawCharsDefault
	}
	if c.IsRowChunk {
		minChars = minRawCharsRowGroup
	}
	if utf8.RuneCountInString(raw) < minChars {
		return "below minimum length"
	}
	for _, p := range noisePatterns {
		if p.MatchString(raw) {
			return "noise pattern"
		}
	}
	return ""
}
