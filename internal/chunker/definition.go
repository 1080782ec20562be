package chunker

import (
	"regexp"
	"strings"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/classify"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/structure"
)

var (
	// "ACMD: Application-specific Command" or "HS200 - High Speed 200 MHz".
	abbrevRe = regexp.MustCompile(`(?m)^([A-Z][A-Z0-9_/\-]{1,20})\s*[:\-–—]\s*(.{10,200})$`)

	// "3.1.1 eMMC" followed by the definition sentence on the next line.
	numberedRe = regexp.MustCompile(`(?m)^\d+(?:\.\d+)+\s+([A-Za-z][^\n]{3,60})\n(.{20,500})`)

	// Definitional phrasing inside ordinary prose.
	inlinePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)([A-Z][A-Za-z0-9_\-\s]{2,40}?)\s+(?:means|is defined as|refers to)\s+(.{10,200})`),
		regexp.MustCompile(`(?i)([A-Z][A-Za-z0-9_\-\s]{2,40}?)\s+\(abbreviated\s+as\s+([A-Z][A-Z0-9_\-]{1,15})\)`),
	}
)

// DefinitionBuilder extracts term definitions in two passes: dedicated
// terminology sections parsed line by line, then definitional phrasing
// spotted inside ordinary prose chunks. Inline terms deduplicate on first
// sighting across the whole document.
type DefinitionBuilder struct {
	meta DocMeta
	seen map[string]bool
}

// NewDefinitionBuilder returns a builder with an empty seen-term set.
func NewDefinitionBuilder(meta DocMeta) *DefinitionBuilder {
	return &DefinitionBuilder{meta: meta, seen: make(map[string]bool)}
}

// ParseSection extracts one definition chunk per term from a dedicated
// terminology section's accumulated text. Abbreviation lines take
// precedence; numbered definition headings are the fallback when the
// section has no abbreviation lines at all.
func (b *DefinitionBuilder) ParseSection(sec *structure.Section, text string) []*schema.Chunk {
	if sec == nil || !classify.TerminologySection(sec.Title) {
		return nil
	}
	var out []*schema.Chunk
	for _, m := range abbrevRe.FindAllStringSubmatch(text, -1) {
		out = append(out, b.sectionChunk(sec, strings.TrimSpace(m[1]), strings.TrimSpace(m[2])))
	}
	if len(out) == 0 {
		for _, m := range numberedRe.FindAllStringSubmatch(text, -1) {
			out = append(out, b.sectionChunk(sec, strings.TrimSpace(m[1]), strings.TrimSpace(m[2])))
		}
	}
	return out
}

// ScanInline finds definitional phrasing inside an emitted prose chunk and
// returns one definition chunk per first sighting of a term. The source
// chunk is flagged whenever such phrasing occurs, even for repeat terms.
func (b *DefinitionBuilder) ScanInline(src *schema.Chunk) []*schema.Chunk {
	var out []*schema.Chunk
	for _, pat := range inlinePatterns {
		for _, m := range pat.FindAllStringSubmatch(src.RawText, -1) {
			src.HasInlineDefinition = true
			term := strings.TrimSpace(m[1])
			key := strings.ToLower(term)
			if b.seen[key] {
				continue
			}
			b.seen[key] = true
			out = append(out, b.inlineChunk(src, term, strings.TrimSpace(m[2])))
		}
	}
	return out
}

func (b *DefinitionBuilder) sectionChunk(sec *structure.Section, term, def string) *schema.Chunk {
	ctx := Context{Section: sec, Page: sec.PageStart}
	c := newChunk(b.meta, ctx, schema.Definition, sec.PageStart, sec.PageEnd, term+": "+def)
	c.Term = term
	return c
}

// inlineChunk inherits the source chunk's section and page range, so an
// inline definition points at the page it was actually stated on.
// Definition chunks are always searchable, wherever they were found.
func (b *DefinitionBuilder) inlineChunk(src *schema.Chunk, term, def string) *schema.Chunk {
	raw := term + ": " + def
	c := &schema.Chunk{
		ID:           b.meta.NewID(),
		Source:       b.meta.Source,
		Version:      b.meta.Version,
		PageStart:    src.PageStart,
		PageEnd:      src.PageEnd,
		SectionPath:  append([]string(nil), src.SectionPath...),
		SectionTitle: src.SectionTitle,
		HeadingLevel: src.HeadingLevel,
		ContentType:  schema.Definition,
		RawText:      raw,
		Term:         term,
	}
	label := schema.SectionLabel(c.SectionPath, c.SectionTitle, false)
	c.Text = schema.ContextPrefix(b.meta.Version, label, c.PageStart) + raw
	return c
}
