package chunker

import (
	"math"
	"regexp"
	"strings"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
)

// A note row opens with "NOTE"; multiple numbered notes collapsed into one
// cell are split back onto their own lines.
var (
	noteRowRe   = regexp.MustCompile(`(?i)^NOTE\b`)
	noteSplitRe = regexp.MustCompile(`(?i) (NOTE \d)`)
)

// Column-0 headers that mark a register map table. Row groups cut from one
// get a context line naming the register, so a retrieved bit row still says
// which register it belongs to.
var registerTableKeywords = []string{"bit", "index", "byte", "offset"}

// TableBuilder joins table regions that continue across page breaks into
// one logical table and serializes it: multi-row headers merged, NOTE rows
// pulled out, the key column forward-filled. Each logical table emits its
// full-table chunk(s) plus one row-group chunk per key value for
// fine-grained retrieval.
type TableBuilder struct {
	cfg      Config
	meta     DocMeta
	pending  *pendingTable
	lastPage int
}

type pendingTable struct {
	ctx         Context
	caption     string
	rows        [][]string
	cols        int
	left, right float64
	pageStart   int
	pageEnd     int
}

// NewTableBuilder returns an empty builder.
func NewTableBuilder(cfg Config, meta DocMeta) *TableBuilder {
	return &TableBuilder{cfg: cfg, meta: meta}
}

// Feed consumes one table region. A region opening the next page with the
// same column count, aligned edges, and no caption of its own continues the
// pending table; anything else flushes the pending table first.
func (b *TableBuilder) Feed(ctx Context, region parser.TableRegion, caption string) []*schema.Chunk {
	if len(region.Rows) == 0 || region.Columns() == 0 {
		return nil
	}
	firstOnPage := ctx.Page != b.lastPage
	b.lastPage = ctx.Page

	var out []*schema.Chunk
	if b.pending != nil {
		if firstOnPage && caption == "" && b.continues(ctx, region) {
			b.merge(ctx, region)
			return nil
		}
		out = b.Flush()
	}

	left, right := regionEdges(region)
	p := &pendingTable{
		ctx:       ctx,
		caption:   caption,
		cols:      region.Columns(),
		left:      left,
		right:     right,
		pageStart: ctx.Page,
		pageEnd:   ctx.Page,
	}
	for _, r := range region.Rows {
		p.rows = append(p.rows, append([]string(nil), r...))
	}
	b.pending = p
	return out
}

// Flush emits the pending logical table, if any.
func (b *TableBuilder) Flush() []*schema.Chunk {
	if b.pending == nil {
		return nil
	}
	p := b.pending
	b.pending = nil
	return b.emit(p)
}

func (b *TableBuilder) continues(ctx Context, region parser.TableRegion) bool {
	p := b.pending
	if ctx.Page != p.pageEnd+1 || region.Columns() != p.cols {
		return false
	}
	left, right := regionEdges(region)
	return math.Abs(left-p.left) <= b.cfg.ContinuationTol &&
		math.Abs(right-p.right) <= b.cfg.ContinuationTol
}

// merge concatenates a continuation region, dropping any leading rows that
// repeat the table's header so the header appears once.
func (b *TableBuilder) merge(ctx Context, region parser.TableRegion) {
	p := b.pending
	skip := 0
	for skip < len(region.Rows) && skip < len(p.rows) && rowsMatch(region.Rows[skip], p.rows[skip]) {
		skip++
	}
	for _, r := range region.Rows[skip:] {
		p.rows = append(p.rows, append([]string(nil), r...))
	}
	p.pageEnd = ctx.Page
	p.left, p.right = regionEdges(region)
}

func regionEdges(region parser.TableRegion) (float64, float64) {
	if n := len(region.ColEdges); n >= 2 {
		return region.ColEdges[0], region.ColEdges[n-1]
	}
	return region.BBox.X0, region.BBox.X1
}

func rowsMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(cleanCell(a[i]), cleanCell(b[i])) {
			return false
		}
	}
	return true
}

// emit serializes one logical table: the full-table chunk(s), split at key
// group boundaries when oversized, followed by the per-key row-group chunks
// pointing back at the first full chunk.
func (b *TableBuilder) emit(p *pendingTable) []*schema.Chunk {
	header, body, notes := prepareTable(p.rows)
	if len(header) == 0 {
		return nil
	}
	groups := groupByKey(body)

	var full []*schema.Chunk
	md := serializeTable(header, body, notes)
	if len(md) <= b.cfg.TableSplitChars {
		c := b.tableChunk(p, md)
		c.TableNote = notes
		full = []*schema.Chunk{c}
	} else {
		full = b.splitLarge(p, header, groups, notes)
	}
	if len(full) == 0 {
		return nil
	}
	return append(full, b.rowGroupChunks(p, header, groups, notes, full[0].ID)...)
}

// splitLarge cuts an oversized table into fragments that each repeat the
// header. Cuts land only where the key column's value changes, never inside
// a key group; notes travel with the last fragment, where they sit in the
// document.
func (b *TableBuilder) splitLarge(p *pendingTable, header []string, groups [][][]string, notes string) []*schema.Chunk {
	head := mdRow(header) + "\n" + mdSeparator(header)

	var out []*schema.Chunk
	var buf []string
	size := len(head)
	flush := func(last bool) {
		if len(buf) == 0 {
			return
		}
		md := head + "\n" + strings.Join(buf, "\n")
		if last && notes != "" {
			md += "\n\n**Notes:**\n" + notes
		}
		c := b.tableChunk(p, md)
		if last {
			c.TableNote = notes
		}
		out = append(out, c)
		buf = nil
		size = len(head)
	}

	for _, g := range groups {
		var rows []string
		rowChars := 0
		for _, r := range g {
			line := mdRow(r)
			rows = append(rows, line)
			rowChars += len(line) + 1
		}
		if len(buf) > 0 && size+rowChars > b.cfg.TableSplitChars {
			flush(false)
		}
		buf = append(buf, rows...)
		size += rowChars
	}
	flush(true)
	return out
}

// rowGroupChunks emits one small chunk per key group: merged header plus
// only that group's rows, dense enough for precise retrieval. Register map
// tables get a context line naming the register.
func (b *TableBuilder) rowGroupChunks(p *pendingTable, header []string, groups [][][]string, notes, parentID string) []*schema.Chunk {
	if len(groups) == 0 {
		return nil
	}
	head := mdRow(header) + "\n" + mdSeparator(header)
	regCtx := registerContext(header, p.caption, p.ctx)

	var out []*schema.Chunk
	for gi, g := range groups {
		var rows []string
		for _, r := range g {
			rows = append(rows, mdRow(r))
		}
		md := regCtx + head + "\n" + strings.Join(rows, "\n")
		if gi == len(groups)-1 && notes != "" {
			md += "\n\n**Notes:**\n" + notes
		}
		c := b.tableChunk(p, md)
		c.ParentChunkID = parentID
		c.IsRowChunk = true
		out = append(out, c)
	}
	return out
}

// tableChunk builds the chunk envelope for one serialized table body. The
// caption line travels in the annotated text and the caption field, not in
// the raw body.
func (b *TableBuilder) tableChunk(p *pendingTable, md string) *schema.Chunk {
	c := newChunk(b.meta, p.ctx, schema.Table, p.pageStart, p.pageEnd, md)
	c.TableMarkdown = md
	if p.caption != "" {
		c.FigureCaption = p.caption
		label := schema.SectionLabel(c.SectionPath, c.SectionTitle, c.IsFrontMatter)
		c.Text = schema.ContextPrefix(b.meta.Version, label, p.pageStart) + p.caption + "\n\n" + md
	}
	return c
}

func registerContext(header []string, caption string, ctx Context) string {
	if len(header) == 0 {
		return ""
	}
	h0 := strings.ToLower(header[0])
	hit := false
	for _, kw := range registerTableKeywords {
		if strings.Contains(h0, kw) {
			hit = true
			break
		}
	}
	if !hit {
		return ""
	}
	name := caption
	if name == "" && ctx.Section != nil {
		name = ctx.Section.Title
	}
	if name == "" {
		name = "Register"
	}
	return "**Register Context: " + name + "**\n\n"
}

// prepareTable turns raw grid rows into a merged header, cleaned data rows
// with the key column forward-filled, and the extracted note text.
func prepareTable(raw [][]string) (header []string, body [][]string, notes string) {
	if len(raw) == 0 {
		return nil, nil, ""
	}
	cols := 0
	for _, r := range raw {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return nil, nil, ""
	}

	dataStart := findDataStart(raw, cols)
	header = mergeHeaderZone(raw[:dataStart], cols)

	for _, r := range raw[dataStart:] {
		row := make([]string, cols)
		for i := range r {
			row[i] = cleanCell(r[i])
		}
		body = append(body, row)
	}
	body, notes = extractNotes(body)
	forwardFillKey(body)
	return header, body, notes
}

// findDataStart returns the index of the first complete data row: column 0
// populated and at least half the cells filled. Rows above it are the
// header zone. When the first row already qualifies, or none does, the
// first row alone is the header.
func findDataStart(rows [][]string, cols int) int {
	minFilled := max(1, (cols+1)/2)
	for i, row := range rows {
		col0 := ""
		if len(row) > 0 {
			col0 = cleanCell(row[0])
		}
		filled := 0
		for _, c := range row {
			if cleanCell(c) != "" {
				filled++
			}
		}
		if col0 != "" && filled >= minFilled {
			if i == 0 {
				return 1
			}
			return i
		}
	}
	return 1
}

// mergeHeaderZone collapses the header rows into a single row: per column,
// the non-empty fragments joined by a space. A cell split across physical
// rows ("CMD" / "INDEX") comes back together as "CMD INDEX".
func mergeHeaderZone(headerRows [][]string, cols int) []string {
	buckets := make([][]string, cols)
	for _, row := range headerRows {
		for i := 0; i < cols && i < len(row); i++ {
			if t := cleanCell(row[i]); t != "" {
				buckets[i] = append(buckets[i], t)
			}
		}
	}
	header := make([]string, cols)
	for i, parts := range buckets {
		header[i] = strings.Join(parts, " ")
	}
	return header
}

// extractNotes strips NOTE rows from the bottom of the body: rows whose
// only text is a first cell beginning with "NOTE". Scanning stops at the
// first non-note row so interior rows are never consumed.
func extractNotes(body [][]string) ([][]string, string) {
	var notes []string
	cutoff := len(body)
	for i := len(body) - 1; i >= 0; i-- {
		row := body[i]
		first := ""
		if len(row) > 0 {
			first = row[0]
		}
		restEmpty := true
		for _, c := range row[1:] {
			if c != "" {
				restEmpty = false
				break
			}
		}
		if first == "" || !restEmpty || !noteRowRe.MatchString(first) {
			break
		}
		notes = append(notes, noteSplitRe.ReplaceAllString(first, "\n$1"))
		cutoff = i
	}
	for l, r := 0, len(notes)-1; l < r; l, r = l+1, r-1 {
		notes[l], notes[r] = notes[r], notes[l]
	}
	return body[:cutoff], strings.Join(notes, "\n")
}

// forwardFillKey repeats the key column into continuation rows left blank
// by vertically merged cells, so a single retrieved row still carries its
// key.
func forwardFillKey(body [][]string) {
	last := ""
	for _, row := range body {
		if len(row) == 0 {
			continue
		}
		if row[0] != "" {
			last = row[0]
		} else if last != "" {
			row[0] = last
		}
	}
}

// groupByKey splits the body into runs of consecutive rows sharing a key.
func groupByKey(body [][]string) [][][]string {
	var groups [][][]string
	for _, row := range body {
		key := ""
		if len(row) > 0 {
			key = row[0]
		}
		if n := len(groups); n > 0 && groups[n-1][0][0] == key {
			groups[n-1] = append(groups[n-1], row)
			continue
		}
		groups = append(groups, [][]string{row})
	}
	return groups
}

func serializeTable(header []string, body [][]string, notes string) string {
	lines := []string{mdRow(header), mdSeparator(header)}
	for _, row := range body {
		lines = append(lines, mdRow(row))
	}
	md := strings.Join(lines, "\n")
	if notes != "" {
		md += "\n\n**Notes:**\n" + notes
	}
	return md
}

func mdRow(cells []string) string {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	return "| " + strings.Join(escaped, " | ") + " |"
}

func mdSeparator(header []string) string {
	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = strings.Repeat("-", max(len(h), 3))
	}
	return "| " + strings.Join(cells, " | ") + " |"
}

// cleanCell collapses in-cell line breaks and runs of whitespace.
func cleanCell(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
