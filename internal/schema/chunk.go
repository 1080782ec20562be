package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ContentType classifies what a chunk carries.
type ContentType string

const (
	Text       ContentType = "text"
	Table      ContentType = "table"
	Figure     ContentType = "figure"
	Bitmap     ContentType = "bitmap"
	Definition ContentType = "definition"
	// Register is a structurally atomic subtype of prose: a named bitfield
	// description together with its enumerated values.
	Register ContentType = "register"
)

// Valid reports whether t is one of the closed content-type set.
func (t ContentType) Valid() bool {
	switch t {
	case Text, Table, Figure, Bitmap, Definition, Register:
		return true
	}
	return false
}

// Chunk is one emitted retrieval unit. Chunks are immutable once they reach
// the output stream; builders construct them, the pipeline only orders and
// filters them.
type Chunk struct {
	ID            string      `json:"chunk_id"`
	Source        string      `json:"source"`
	Version       string      `json:"version"`
	PageStart     int         `json:"page_start"`
	PageEnd       int         `json:"page_end"`
	SectionPath   []string    `json:"section_path"`
	SectionTitle  string      `json:"section_title"`
	HeadingLevel  int         `json:"heading_level"`
	ContentType   ContentType `json:"content_type"`
	IsFrontMatter bool        `json:"is_front_matter"`
	ChunkIndex    int         `json:"chunk_index"`

	// Text is the context prefix plus the body; RawText is the body alone.
	Text    string `json:"text"`
	RawText string `json:"raw_text"`

	// Type-specific payload.
	TableMarkdown string `json:"table_markdown,omitempty"`
	TableNote     string `json:"table_note,omitempty"`
	FigureCaption string `json:"figure_caption,omitempty"`
	Term          string `json:"term,omitempty"`

	// Row-group chunks split off an oversized table point back at it.
	ParentChunkID string `json:"parent_chunk_id,omitempty"`
	IsRowChunk    bool   `json:"is_row_chunk,omitempty"`

	// Set on Text chunks that contain inline definitional phrasing.
	HasInlineDefinition bool `json:"has_inline_definition,omitempty"`
}

var (
	ErrPageRange  = errors.New("chunk page range outside document")
	ErrNoSection  = errors.New("body chunk has empty section path")
	ErrBadContent = errors.New("unknown content type")
)

// Validate checks the chunk invariants against the document's page count.
func (c *Chunk) Validate(pageCount int) error {
	if c.PageStart < 1 || c.PageEnd < c.PageStart || c.PageEnd > pageCount {
		return fmt.Errorf("%w: pages %d-%d of %d", ErrPageRange, c.PageStart, c.PageEnd, pageCount)
	}
	if len(c.SectionPath) == 0 && !c.IsFrontMatter {
		return ErrNoSection
	}
	if !c.ContentType.Valid() {
		return fmt.Errorf("%w: %q", ErrBadContent, c.ContentType)
	}
	return nil
}

// SectionLabel renders the deepest section for the context prefix,
// e.g. "6.10.4 Erase" or "Front Matter" for content before the body.
func SectionLabel(path []string, title string, frontMatter bool) string {
	if len(path) == 0 {
		if frontMatter {
			return "Front Matter"
		}
		return title
	}
	number := path[len(path)-1]
	if title == "" {
		return number
	}
	return number + " " + title
}

// ContextPrefix is the header line prepended to every chunk body so a chunk
// can be understood without its neighbors.
func ContextPrefix(version, sectionLabel string, page int) string {
	return fmt.Sprintf("[eMMC %s | %s | Page %d]\n", version, sectionLabel, page)
}

// CanonicalTerm normalizes a term name for glossary keying.
func CanonicalTerm(term string) string {
	return strings.ToUpper(strings.TrimSpace(term))
}

// Glossary maps canonical term names to their definition chunks.
type Glossary map[string]*Chunk

// BuildGlossary collects definition chunks keyed by canonical term.
// On duplicate terms the later chunk wins.
func BuildGlossary(chunks []*Chunk) Glossary {
	g := make(Glossary)
	for _, c := range chunks {
		if c.ContentType != Definition || c.Term == "" {
			continue
		}
		g[CanonicalTerm(c.Term)] = c
	}
	return g
}
