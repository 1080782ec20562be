package structure

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
)

// Section is one node of the tree mirroring the table of contents.
// Children are owned; Parent is a non-owning back-reference.
type Section struct {
	Level     int
	Number    string
	Title     string
	Path      []string
	PageStart int
	PageEnd   int
	Parent    *Section
	Children  []*Section
}

// Label renders the section for context prefixes, e.g. "6.10.4 Erase".
func (s *Section) Label() string {
	if s.Title == "" {
		return s.Number
	}
	return s.Number + " " + s.Title
}

// DocStructure is the Structure Extractor's output: the section tree, the
// page lookup, and the front-matter boundary. Read-only for the rest of
// the run and safe to share across goroutines.
type DocStructure struct {
	Roots     []*Section
	BodyStart int
	PageCount int

	tocPages map[int]bool
	pageMap  []*Section // index: page number, entry nil for unmapped front matter
	ordered  []*Section // contents order

	// Normalized "number title" labels in contents order, first occurrence
	// wins, for resolving heading blocks to sections mid-page.
	labelIndex map[string]*Section
	labelOrder []string
}

// Extract runs the Structure Extractor once over the whole document:
// recover the contents entries, build the tree, derive the page map and
// body boundary. A document with no recoverable contents degrades to a
// single root section covering every page, never an error.
func Extract(r parser.PageReader, log *slog.Logger) *DocStructure {
	entries, tocPages, err := RecoverEntries(r)
	if err != nil {
		log.Warn("no table of contents recovered, using single-section fallback", "error", err)
		return fallbackStructure(r.PageCount())
	}
	log.Info("table of contents recovered", "entries", len(entries), "toc_pages", len(tocPages))
	return Build(entries, tocPages, r.PageCount())
}

// Build constructs the structure from an ordered entry list. Exposed
// separately from Extract so synthetic entry lists can drive it.
func Build(entries []Entry, tocPages []int, pageCount int) *DocStructure {
	ds := &DocStructure{
		PageCount: pageCount,
		tocPages:  make(map[int]bool, len(tocPages)),
	}
	for _, p := range tocPages {
		ds.tocPages[p] = true
	}
	if len(entries) == 0 {
		fb := fallbackStructure(pageCount)
		fb.tocPages = ds.tocPages
		return fb
	}

	// Level-stack insertion: pop to the first shallower entry, attach, push.
	var ordered []*Section
	var stack []*Section
	for _, e := range entries {
		sec := &Section{
			Level:     e.Level,
			Number:    e.Number,
			Title:     e.Title,
			PageStart: e.Page,
			PageEnd:   pageCount,
		}
		for len(stack) > 0 && stack[len(stack)-1].Level >= e.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			ds.Roots = append(ds.Roots, sec)
		} else {
			parent := stack[len(stack)-1]
			sec.Parent = parent
			parent.Children = append(parent.Children, sec)
			sec.Path = append(sec.Path, parent.Path...)
		}
		sec.Path = append(sec.Path, e.Number)
		stack = append(stack, sec)
		ordered = append(ordered, sec)
	}

	// A section ends where the next same-or-shallower section begins. The
	// boundary page is shared when the successor starts mid-page; the page
	// map resolves sharing below.
	for i, sec := range ordered {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].Level <= sec.Level {
				end := ordered[j].PageStart
				if end > sec.PageStart {
					end--
				}
				sec.PageEnd = end
				break
			}
		}
	}

	ds.ordered = ordered
	ds.BodyStart = bodyStart(ordered)
	ds.buildPageMap(ordered)
	ds.buildLabelIndex(ordered)
	return ds
}

// Sections returns every section in contents order.
func (ds *DocStructure) Sections() []*Section {
	return ds.ordered
}

// bodyStart is the target page of the first level-1 entry, falling back to
// the first entry of any level, then to page 1.
func bodyStart(ordered []*Section) int {
	for _, s := range ordered {
		if s.Level == 1 {
			return s.PageStart
		}
	}
	if len(ordered) > 0 {
		return ordered[0].PageStart
	}
	return 1
}

// buildPageMap forward-fills every page to its deepest enclosing section.
// Where sections share a page the deeper one wins; at equal depth the
// later-starting one wins.
func (ds *DocStructure) buildPageMap(ordered []*Section) {
	ds.pageMap = make([]*Section, ds.PageCount+1)
	for p := 1; p <= ds.PageCount; p++ {
		var best *Section
		for _, s := range ordered {
			if p < s.PageStart || p > s.PageEnd {
				continue
			}
			if best == nil ||
				s.Level > best.Level ||
				(s.Level == best.Level && s.PageStart >= best.PageStart) {
				best = s
			}
		}
		ds.pageMap[p] = best
	}
}

// PageSection returns the deepest section enclosing the page, or nil for
// unmapped front matter.
func (ds *DocStructure) PageSection(page int) *Section {
	if page < 1 || page >= len(ds.pageMap) {
		return nil
	}
	return ds.pageMap[page]
}

// IsFrontMatter reports whether the page precedes the body.
func (ds *DocStructure) IsFrontMatter(page int) bool {
	return page < ds.BodyStart
}

// IsTOCPage reports whether the page belongs to the printed contents; its
// text is structural metadata, excluded from chunk emission.
func (ds *DocStructure) IsTOCPage(page int) bool {
	return ds.tocPages[page]
}

// TOCPages returns the printed contents pages in ascending order.
func (ds *DocStructure) TOCPages() []int {
	pages := make([]int, 0, len(ds.tocPages))
	for p := range ds.tocPages {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// buildLabelIndex records each section under its normalized label. When two
// sections share a label the first in contents order wins, keeping mid-page
// heading resolution deterministic.
func (ds *DocStructure) buildLabelIndex(ordered []*Section) {
	ds.labelIndex = make(map[string]*Section, len(ordered))
	for _, s := range ordered {
		key := normalizeLabel(s.Label())
		if key == "" {
			continue
		}
		if _, seen := ds.labelIndex[key]; seen {
			continue
		}
		ds.labelIndex[key] = s
		ds.labelOrder = append(ds.labelOrder, key)
	}
}

// MatchHeading resolves a text block that opens with a section heading to
// that section, or nil. A standalone heading block matches exactly; a
// heading merged with its first paragraph by the extractor matches by
// prefix up to a word boundary.
func (ds *DocStructure) MatchHeading(text string) *Section {
	norm := normalizeLabel(text)
	if norm == "" {
		return nil
	}
	if sec, ok := ds.labelIndex[norm]; ok {
		return sec
	}
	for _, key := range ds.labelOrder {
		if len(norm) > len(key) && strings.HasPrefix(norm, key) && norm[len(key)] == ' ' {
			return ds.labelIndex[key]
		}
	}
	return nil
}

// normalizeLabel folds a heading for lookup: lowercase, single spaces, no
// edge punctuation. Spelling variants of the document's own product name
// are already unified upstream by text cleaning.
func normalizeLabel(text string) string {
	return strings.Trim(normalizeSpace(strings.ToLower(text)), ". ")
}

// SectionByNumber finds a section by its dotted number, or nil.
func (ds *DocStructure) SectionByNumber(number string) *Section {
	var walk func(secs []*Section) *Section
	walk = func(secs []*Section) *Section {
		for _, s := range secs {
			if s.Number == number {
				return s
			}
			if found := walk(s.Children); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(ds.Roots)
}

// fallbackStructure is the zero-contents degradation: one synthetic root
// spanning the whole document, body starting at page 1.
func fallbackStructure(pageCount int) *DocStructure {
	root := &Section{
		Level:     1,
		Number:    "1",
		Title:     "",
		Path:      []string{"1"},
		PageStart: 1,
		PageEnd:   pageCount,
	}
	ds := &DocStructure{
		Roots:     []*Section{root},
		BodyStart: 1,
		PageCount: pageCount,
		tocPages:  make(map[int]bool),
		pageMap:   make([]*Section, pageCount+1),
		ordered:   []*Section{root},
	}
	for p := 1; p <= pageCount; p++ {
		ds.pageMap[p] = root
	}
	return ds
}
