// Package pipeline runs one document end to end: structure recovery,
// parallel page extraction and classification, ordered chunk building,
// definition extraction, and output filtering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/chunker"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/classify"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/config"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/structure"
)

// ErrNoPages marks a document whose reader reports no pages at all.
var ErrNoPages = errors.New("document has no pages")

// Orchestrator drives ingestion runs. The chunk builders are
// single-goroutine state machines; only page extraction runs in parallel,
// and every chunk is constructed on the calling goroutine in page order.
type Orchestrator struct {
	cfg config.Config
	log *slog.Logger
}

// New returns an orchestrator for the given configuration.
func New(cfg config.Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{cfg: cfg, log: log}
}

// Run ingests one document. Unreadable pages become recorded gaps, never
// errors. On cancellation every builder flushes at the next page boundary
// and the partial result is returned together with the wrapped context
// error.
func (o *Orchestrator) Run(ctx context.Context, r parser.PageReader, sourcePath string) (*Result, error) {
	started := time.Now()
	pageCount := r.PageCount()
	if pageCount < 1 {
		return nil, fmt.Errorf("%s: %w", sourcePath, ErrNoPages)
	}
	last := pageCount
	if o.cfg.MaxPages > 0 && o.cfg.MaxPages < last {
		last = o.cfg.MaxPages
	}

	source := filepath.Base(sourcePath)
	version := structure.VersionFromPath(sourcePath)
	runID := newULID()
	log := o.log.With("run_id", runID, "source", source)

	st := structure.Extract(r, log)
	log.Info("ingestion started",
		"version", version, "pages", pageCount, "body_start", st.BodyStart,
		"sections", len(st.Sections()), "workers", o.workers())

	meta := chunker.DocMeta{Source: source, Version: version, NewID: newULID}
	run := newRunState(o.chunkConfig(), meta, st, log)
	feed := startFeed(ctx, r, st, classify.Options{CenterTol: o.cfg.CenterTol}, log, 1, last, o.workers())

	var interrupted error
	for p := 1; p <= last; p++ {
		res, ok := feed.next(ctx, p)
		if !ok {
			interrupted = fmt.Errorf("ingestion cancelled before page %d: %w", p, ctx.Err())
			break
		}
		run.page(res)
		feed.release()
	}
	if err := feed.wait(); err != nil && interrupted == nil {
		interrupted = fmt.Errorf("page extraction stopped: %w", err)
	}

	run.finalize()
	chunks, dropped := run.filtered(pageCount)
	assignIndexes(chunks)
	glossary := schema.BuildGlossary(chunks)

	byType := make(map[schema.ContentType]int)
	for _, c := range chunks {
		byType[c.ContentType]++
	}
	res := &Result{
		Source:    source,
		Version:   version,
		Structure: st,
		Chunks:    chunks,
		Glossary:  glossary,
		Stats: RunStats{
			RunID:         runID,
			Source:        source,
			Version:       version,
			PageCount:     pageCount,
			PagesParsed:   run.pagesParsed,
			PageGaps:      run.gaps,
			ByType:        byType,
			Chunks:        len(chunks),
			Dropped:       dropped,
			GlossaryTerms: len(glossary),
			StartedAt:     started,
			Duration:      time.Since(started),
		},
	}
	log.Info("ingestion finished",
		"chunks", len(chunks), "dropped", dropped, "glossary_terms", len(glossary),
		"page_gaps", len(run.gaps), "duration", res.Stats.Duration.Round(time.Millisecond))
	return res, interrupted
}

func (o *Orchestrator) chunkConfig() chunker.Config {
	return chunker.Config{
		FlushTokens:     o.cfg.FlushTokens,
		RegisterCeiling: o.cfg.RegisterCeiling,
		TableSplitChars: o.cfg.TableSplitChars,
		ContinuationTol: o.cfg.ContinuationTol,
		CaptionWindow:   o.cfg.CaptionWindow,
	}
}

func (o *Orchestrator) workers() int {
	if o.cfg.Workers > 0 {
		return o.cfg.Workers
	}
	return min(runtime.GOMAXPROCS(0), 4)
}

// runState is the orchestrator-goroutine mutable state of one run.
type runState struct {
	st   *structure.DocStructure
	log  *slog.Logger
	ccfg chunker.Config

	text    *chunker.TextBuilder
	tables  *chunker.TableBuilder
	figures *chunker.FigureBuilder
	defs    *chunker.DefinitionBuilder

	cur    *structure.Section
	chunks []*schema.Chunk
	// Raw block text per body section, feeding the terminology pass.
	sectionTexts map[*structure.Section][]string

	pagesParsed int
	gaps        []int
}

func newRunState(ccfg chunker.Config, meta chunker.DocMeta, st *structure.DocStructure, log *slog.Logger) *runState {
	return &runState{
		st:           st,
		log:          log,
		ccfg:         ccfg,
		text:         chunker.NewTextBuilder(ccfg, meta),
		tables:       chunker.NewTableBuilder(ccfg, meta),
		figures:      chunker.NewFigureBuilder(ccfg, meta),
		defs:         chunker.NewDefinitionBuilder(meta),
		sectionTexts: make(map[*structure.Section][]string),
	}
}

func (s *runState) emit(chunks ...*schema.Chunk) {
	s.chunks = append(s.chunks, chunks...)
}

// page consumes one extraction result. Elements are walked top-down; prose
// flushes before any region chunk on the same page, and a pending table
// flushes at the first element that is not its continuation.
func (s *runState) page(res pageResult) {
	p := res.page
	if res.err != nil {
		s.gaps = append(s.gaps, p)
		s.log.Warn("page unreadable, recording gap", "page", p, "error", res.err)
		return
	}
	if res.model == nil {
		s.log.Debug("contents page skipped", "page", p)
		return
	}
	s.pagesParsed++

	// Coarse section boundary from the contents page map. Heading blocks
	// refine it mid-page below.
	if psec := s.st.PageSection(p); psec != s.cur {
		s.emit(s.text.Flush()...)
		s.cur = psec
	}
	front := s.st.IsFrontMatter(p)
	cp := res.classified
	used, tableCaps := s.claimCaptions(cp)

	for _, it := range pageItems(cp) {
		ctx := chunker.Context{Section: s.cur, Page: p, FrontMatter: front}
		switch it.kind {
		case itemBlock:
			if used[it.idx] {
				continue
			}
			blk := cp.Blocks[it.idx]
			s.emit(s.tables.Flush()...)
			if blk.Kind == schema.Text && chunker.HeadingNumber(blk.Text) != "" {
				if hit := s.st.MatchHeading(blk.Text); hit != nil && hit != s.cur {
					s.emit(s.text.Flush()...)
					s.cur = hit
					ctx.Section = hit
					s.log.Debug("section switched mid-page", "page", p, "section", hit.Label())
				}
			}
			if s.cur != nil && !front {
				s.sectionTexts[s.cur] = append(s.sectionTexts[s.cur], blk.Text)
			}
			if blk.Kind == schema.Definition {
				// Terminology blocks reach the glossary through the
				// section pass, not the prose stream.
				continue
			}
			s.emit(s.text.Feed(ctx, blk)...)

		case itemTable:
			s.emit(s.text.Flush()...)
			s.emit(s.tables.Feed(ctx, cp.Tables[it.idx], tableCaps[it.idx])...)

		case itemFigure:
			s.emit(s.text.Flush()...)
			s.emit(s.tables.Flush()...)
			c, _ := s.figures.BuildFigure(ctx, cp.Figures[it.idx], cp.Blocks)
			if c == nil {
				s.log.Debug("figure dropped: no caption and no labels", "page", p)
				continue
			}
			s.emit(c)

		case itemBitmap:
			s.emit(s.text.Flush()...)
			s.emit(s.tables.Flush()...)
			c, _ := s.figures.BuildBitmap(ctx, cp.Blocks)
			s.emit(c)
		}
	}
}

// claimCaptions resolves region captions before the element walk so
// caption lines never reach the prose stream. The same searches the
// builders run later resolve to the same blocks, keeping the claimed
// index and the built caption consistent.
func (s *runState) claimCaptions(cp *classify.Page) (used map[int]bool, tableCaps []string) {
	used = make(map[int]bool)
	tableCaps = make([]string, len(cp.Tables))
	for ti, region := range cp.Tables {
		caption, ci := chunker.FindCaption(cp.Blocks, region.BBox, chunker.TableCaptionRe, s.ccfg.CaptionWindow)
		tableCaps[ti] = caption
		if ci >= 0 {
			used[ci] = true
		}
	}
	for _, fig := range cp.Figures {
		if _, ci := chunker.FindCaption(cp.Blocks, fig.Region.BBox, chunker.FigureCaptionRe, s.ccfg.CaptionWindow); ci >= 0 {
			used[ci] = true
		}
	}
	if len(cp.Bitmaps) > 0 {
		for i, blk := range cp.Blocks {
			line, _, _ := strings.Cut(strings.TrimSpace(blk.Text), "\n")
			if chunker.FigureCaptionRe.MatchString(line) {
				used[i] = true
				break
			}
		}
	}
	return used, tableCaps
}

// finalize flushes whatever the last page left pending and runs the two
// definition passes.
func (s *runState) finalize() {
	s.emit(s.tables.Flush()...)
	s.emit(s.text.Flush()...)

	// Pass one: dedicated terminology sections, from their collected text.
	for _, sec := range s.st.Sections() {
		if sec.PageStart < s.st.BodyStart {
			continue
		}
		text := strings.Join(s.sectionTexts[sec], " \n")
		s.emit(s.defs.ParseSection(sec, text)...)
	}

	// Pass two: inline definitional phrasing in emitted prose.
	var inline []*schema.Chunk
	for _, c := range s.chunks {
		if c.ContentType != schema.Text || c.IsFrontMatter {
			continue
		}
		inline = append(inline, s.defs.ScanInline(c)...)
	}
	s.emit(inline...)
}

// filtered applies the validity filter and the chunk invariants, dropping
// failures with a log line.
func (s *runState) filtered(pageCount int) ([]*schema.Chunk, int) {
	out := make([]*schema.Chunk, 0, len(s.chunks))
	dropped := 0
	for _, c := range s.chunks {
		if issue := chunkIssue(c); issue != "" {
			dropped++
			s.log.Debug("chunk dropped", "id", c.ID, "type", c.ContentType,
				"page", c.PageStart, "reason", issue)
			continue
		}
		if err := c.Validate(pageCount); err != nil {
			dropped++
			s.log.Warn("chunk failed invariant check", "id", c.ID, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, dropped
}

// assignIndexes numbers the surviving chunks within their section in
// emission order.
func assignIndexes(chunks []*schema.Chunk) {
	counts := make(map[string]int)
	for _, c := range chunks {
		key := strings.Join(c.SectionPath, "/")
		if key == "" {
			key = "front-matter"
		}
		c.ChunkIndex = counts[key]
		counts[key]++
	}
}

type itemKind int

const (
	itemBlock itemKind = iota
	itemTable
	itemFigure
	itemBitmap
)

// pageItem positions one classified element in the page's reading order.
type pageItem struct {
	kind itemKind
	idx  int
	top  float64
}

// pageItems interleaves the classified elements top-down. Blocks arrive in
// reading order already and the stable sort keeps ties that way. Bitmap
// boxes default to the page box and sort first, which is as good an order
// as any for images whose placement the object stream does not record.
func pageItems(cp *classify.Page) []pageItem {
	items := make([]pageItem, 0, len(cp.Blocks)+len(cp.Tables)+len(cp.Figures)+len(cp.Bitmaps))
	for i, b := range cp.Blocks {
		items = append(items, pageItem{itemBlock, i, b.BBox.Y1})
	}
	for i, t := range cp.Tables {
		items = append(items, pageItem{itemTable, i, t.BBox.Y1})
	}
	for i, f := range cp.Figures {
		items = append(items, pageItem{itemFigure, i, f.Region.BBox.Y1})
	}
	for i, im := range cp.Bitmaps {
		items = append(items, pageItem{itemBitmap, i, im.BBox.Y1})
	}
	sort.SliceStable(items, func(a, b int) bool { return items[a].top > items[b].top })
	return items
}
