package chunker

import (
	"regexp"
	"strings"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/classify"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
)

// TextBuilder accumulates prose and register blocks in reading order. The
// buffer survives page boundaries: reaching the bottom of a page is never a
// flush trigger, and the chunk's page range simply widens. Flushing happens
// on section change, heading-level change, a text/register type switch, the
// high-water mark at a sentence boundary, and end of document.
type TextBuilder struct {
	cfg  Config
	meta DocMeta
	st   textState
}

// textState is the rolling buffer. It is a plain value so a flush decision
// is a function of (state, next block) and nothing else.
type textState struct {
	active    bool
	ctx       Context
	kind      schema.ContentType
	level     int
	pageStart int
	pageEnd   int
	parts     []string
	tokens    int
}

// NewTextBuilder returns an empty builder.
func NewTextBuilder(cfg Config, meta DocMeta) *TextBuilder {
	return &TextBuilder{cfg: cfg, meta: meta}
}

// Feed consumes one classified block and returns any chunks the buffer
// flushed on the way, usually none.
func (b *TextBuilder) Feed(ctx Context, blk classify.Block) []*schema.Chunk {
	text := strings.TrimSpace(blk.Text)
	if text == "" {
		return nil
	}
	kind := schema.Text
	if blk.Kind == schema.Register {
		kind = schema.Register
	}

	var out []*schema.Chunk
	if b.st.active && b.shouldFlush(ctx, kind, text) {
		out = b.Flush()
	}
	if !b.st.active {
		b.begin(ctx, kind, text)
		return out
	}
	b.st.parts = append(b.st.parts, text)
	b.st.tokens += EstimateTokens(text)
	if ctx.Page > b.st.pageEnd {
		b.st.pageEnd = ctx.Page
	}
	return out
}

func (b *TextBuilder) shouldFlush(ctx Context, kind schema.ContentType, text string) bool {
	switch {
	case !ctx.SameSection(b.st.ctx):
		return true
	case kind != b.st.kind:
		return true
	}
	if hl := HeadingLevel(text); hl > 0 && hl != b.st.level {
		return true
	}
	// Register buffers ignore the high-water mark: a register stays whole
	// until its section ends, and only the ceiling can split it.
	if b.st.kind == schema.Register {
		return false
	}
	return b.st.tokens > b.cfg.FlushTokens && startsBoundary(text)
}

func (b *TextBuilder) begin(ctx Context, kind schema.ContentType, text string) {
	level := HeadingLevel(text)
	if level == 0 && ctx.Section != nil {
		level = ctx.Section.Level
	}
	b.st = textState{
		active:    true,
		ctx:       ctx,
		kind:      kind,
		level:     level,
		pageStart: ctx.Page,
		pageEnd:   ctx.Page,
		parts:     []string{text},
		tokens:    EstimateTokens(text),
	}
}

// Flush emits whatever is buffered and resets the state. Register buffers
// over the hard ceiling are split at bit-field group boundaries; everything
// else emits as one chunk.
func (b *TextBuilder) Flush() []*schema.Chunk {
	if !b.st.active {
		return nil
	}
	st := b.st
	b.st = textState{}

	raw := strings.Join(st.parts, "\n")
	if st.kind == schema.Register && st.tokens > b.cfg.RegisterCeiling {
		return b.splitRegister(st, raw)
	}
	c := newChunk(b.meta, st.ctx, st.kind, st.pageStart, st.pageEnd, raw)
	if st.level > 0 {
		c.HeadingLevel = st.level
	}
	return []*schema.Chunk{c}
}

// A bit-field sub-group opens with a bracketed range or a "Bit n" line.
var bitGroupRe = regexp.MustCompile(`^\s*(?:Bits?\s*)?\[\d+(?::\d+)?\]|^\s*Bits?\s+\d`)

// splitRegister cuts an oversized register block at sub-group boundaries
// and repeats the register's header line on every fragment so each remains
// independently interpretable. A register with no sub-group boundaries is
// emitted whole; nothing is ever truncated.
func (b *TextBuilder) splitRegister(st textState, raw string) []*schema.Chunk {
	lines := strings.Split(raw, "\n")
	header := lines[0]

	var segments [][]string
	current := []string{}
	for i, line := range lines {
		if i > 0 && bitGroupRe.MatchString(line) && len(current) > 0 {
			segments = append(segments, current)
			current = nil
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		segments = append(segments, current)
	}
	if len(segments) < 2 {
		c := newChunk(b.meta, st.ctx, schema.Register, st.pageStart, st.pageEnd, raw)
		if st.level > 0 {
			c.HeadingLevel = st.level
		}
		return []*schema.Chunk{c}
	}

	headerTokens := EstimateTokens(header)
	var out []*schema.Chunk
	emit := func(body []string, withHeader bool) {
		text := strings.Join(body, "\n")
		if withHeader {
			text = header + "\n" + text
		}
		c := newChunk(b.meta, st.ctx, schema.Register, st.pageStart, st.pageEnd, text)
		if st.level > 0 {
			c.HeadingLevel = st.level
		}
		out = append(out, c)
	}

	// Greedy packing: merge consecutive sub-groups while the fragment stays
	// under the ceiling, cutting only at group boundaries.
	var frag []string
	fragTokens := 0
	first := true
	for _, seg := range segments {
		segTokens := 0
		for _, l := range seg {
			segTokens += EstimateTokens(l)
		}
		budget := b.cfg.RegisterCeiling - headerTokens
		if len(frag) > 0 && fragTokens+segTokens > budget {
			emit(frag, !first)
			first = false
			frag = nil
			fragTokens = 0
		}
		frag = append(frag, seg...)
		fragTokens += segTokens
	}
	if len(frag) > 0 {
		emit(frag, !first)
	}
	return out
}
