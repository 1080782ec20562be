// Package chunker holds the four content-type builders that turn classified
// page content into finished chunks: prose (with register atomicity),
// tables, figures, and terminology definitions. Builders carry explicit
// state across page boundaries; the pipeline owns the feed order and the
// final flush.
package chunker

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/classify"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/structure"
)

// Config holds the named chunking thresholds. The defaults are calibrated
// for JEDEC-style documents; exact values are tuning, not contract.
type Config struct {
	// FlushTokens is the prose high-water mark. A buffer past it flushes
	// at the next sentence or paragraph boundary.
	FlushTokens int
	// RegisterCeiling is the hard ceiling past which an otherwise atomic
	// register block is split at bit-field group boundaries.
	RegisterCeiling int
	// TableSplitChars bounds a serialized table before it is split into
	// row groups that each repeat the header.
	TableSplitChars int
	// ContinuationTol is the edge alignment tolerance, in points, for
	// joining table regions across a page break.
	ContinuationTol float64
	// CaptionWindow is how far above or below a region, in points, its
	// caption line may sit.
	CaptionWindow float64
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		FlushTokens:     800,
		RegisterCeiling: 1200,
		TableSplitChars: 6000,
		ContinuationTol: 5,
		CaptionWindow:   40,
	}
}

// DocMeta identifies the document being chunked and mints chunk IDs.
type DocMeta struct {
	Source  string
	Version string
	NewID   func() string
}

// Context pins a builder's output to its place in the document: the deepest
// enclosing section (nil before the body) and the physical page.
type Context struct {
	Section     *structure.Section
	Page        int
	FrontMatter bool
}

// SameSection reports whether two contexts share a section identity.
func (c Context) SameSection(other Context) bool {
	return c.Section == other.Section && c.FrontMatter == other.FrontMatter
}

// Caption patterns for figures and tables. JEDEC numbers annex figures
// with a letter prefix ("Figure A.3").
var (
	FigureCaptionRe = regexp.MustCompile(`^(?:Figure|Fig\.)\s+[A-Z]?\.?\d+`)
	TableCaptionRe  = regexp.MustCompile(`^Table\s+[A-Z]?\.?\d+`)
)

var headingRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)\s+\S`)

// HeadingLevel reports the numbered-heading level of the block's first
// line, or 0 when it is not a heading.
func HeadingLevel(text string) int {
	m := headingMatch(text)
	if m == nil {
		return 0
	}
	return strings.Count(m[1], ".") + 1
}

// HeadingNumber returns the dotted number of a numbered heading line, or ""
// when the block does not open with one.
func HeadingNumber(text string) string {
	m := headingMatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

func headingMatch(text string) []string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return headingRe.FindStringSubmatch(line)
}

// startsBoundary reports whether the text opens a new sentence or
// paragraph, the only places the high-water flush may cut. Continuation of
// a sentence across a page break starts lowercase and keeps the buffer
// open.
func startsBoundary(text string) bool {
	for _, r := range strings.TrimSpace(text) {
		return unicode.IsUpper(r) || unicode.IsDigit(r)
	}
	return false
}

// FindCaption locates the nearest line matching the caption pattern within
// the window above or below the region. It returns the caption text and the
// index of the consumed block, or -1 when no caption is found.
func FindCaption(blocks []classify.Block, box parser.Rect, pattern *regexp.Regexp, window float64) (string, int) {
	const slack = 5 // captions may touch the region edge

	best := -1
	bestDist := window + 1
	for i, b := range blocks {
		line, _, _ := strings.Cut(strings.TrimSpace(b.Text), "\n")
		if !pattern.MatchString(line) {
			continue
		}
		if b.BBox.X1 < box.X0 || b.BBox.X0 > box.X1 {
			continue
		}
		above := b.BBox.Y0 - box.Y1
		below := box.Y0 - b.BBox.Y1
		dist := max(above, below)
		if dist < -slack || dist > window {
			continue
		}
		if dist < 0 {
			dist = 0
		}
		if dist < bestDist {
			bestDist = dist
			best = i
		}
	}
	if best < 0 {
		return "", -1
	}
	line, _, _ := strings.Cut(strings.TrimSpace(blocks[best].Text), "\n")
	return line, best
}

// newChunk assembles the common chunk envelope: identity, section fields,
// and the context prefix that lets the chunk stand alone.
func newChunk(meta DocMeta, ctx Context, kind schema.ContentType, pageStart, pageEnd int, raw string) *schema.Chunk {
	c := &schema.Chunk{
		ID:            meta.NewID(),
		Source:        meta.Source,
		Version:       meta.Version,
		PageStart:     pageStart,
		PageEnd:       pageEnd,
		ContentType:   kind,
		IsFrontMatter: ctx.FrontMatter,
		RawText:       raw,
	}
	if ctx.Section != nil {
		c.SectionPath = append([]string(nil), ctx.Section.Path...)
		c.SectionTitle = ctx.Section.Title
		c.HeadingLevel = ctx.Section.Level
	}
	label := schema.SectionLabel(c.SectionPath, c.SectionTitle, c.IsFrontMatter)
	c.Text = schema.ContextPrefix(meta.Version, label, pageStart) + raw
	return c
}
