package structure

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
)

// fakeReader serves pages as plain line lists, one block per line.
type fakeReader struct {
	pages map[int][]string
	count int
}

func (f *fakeReader) PageCount() int { return f.count }

func (f *fakeReader) ReadPage(n int) (*parser.PageModel, error) {
	pm := &parser.PageModel{PageNumber: n}
	for _, l := range f.pages[n] {
		pm.Blocks = append(pm.Blocks, parser.Block{Text: l})
	}
	return pm, nil
}

func (f *fakeReader) PlainText(n int) (string, error) {
	return strings.Join(f.pages[n], "\n"), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuild_TreeAndPageMap(t *testing.T) {
	entries := []Entry{
		{Level: 1, Number: "1", Title: "Scope", Page: 21},
		{Level: 1, Number: "6", Title: "e-MMC device and system", Page: 30},
		{Level: 2, Number: "6.6", Title: "Data transfer mode", Page: 40},
		{Level: 3, Number: "6.6.1", Title: "Command sets", Page: 40},
		{Level: 3, Number: "6.6.2", Title: "High-speed modes", Page: 43},
		{Level: 2, Number: "6.15", Title: "Registers", Page: 120},
		{Level: 1, Number: "7", Title: "e-MMC protocol", Page: 150},
	}
	ds := Build(entries, []int{5, 6}, 200)

	if len(ds.Roots) != 3 {
		t.Fatalf("expected 3 roots, got %d", len(ds.Roots))
	}
	six := ds.SectionByNumber("6")
	if six == nil || len(six.Children) != 2 {
		t.Fatalf("section 6 should have 2 children, got %+v", six)
	}
	child := ds.SectionByNumber("6.6.1")
	if child == nil {
		t.Fatal("section 6.6.1 not found")
	}
	if got := strings.Join(child.Path, "/"); got != "6/6.6/6.6.1" {
		t.Fatalf("expected path 6/6.6/6.6.1, got %q", got)
	}
	if child.Parent == nil || child.Parent.Number != "6.6" {
		t.Fatalf("expected parent 6.6, got %+v", child.Parent)
	}
	if child.Label() != "6.6.1 Command sets" {
		t.Fatalf("unexpected label %q", child.Label())
	}

	ends := []struct {
		number string
		end    int
	}{
		{"1", 29},
		{"6", 149},
		{"6.6", 119},
		{"6.6.1", 42},
		{"6.6.2", 119},
		{"6.15", 149},
		{"7", 200},
	}
	for _, tt := range ends {
		sec := ds.SectionByNumber(tt.number)
		if sec == nil {
			t.Fatalf("section %s not found", tt.number)
		}
		if sec.PageEnd != tt.end {
			t.Fatalf("section %s: expected page end %d, got %d", tt.number, tt.end, sec.PageEnd)
		}
	}

	lookups := []struct {
		page   int
		number string
	}{
		{21, "1"},
		{35, "6"},
		{40, "6.6.1"}, // deepest section wins the shared page
		{43, "6.6.2"},
		{121, "6.15"},
		{155, "7"},
	}
	for _, tt := range lookups {
		sec := ds.PageSection(tt.page)
		if sec == nil {
			t.Fatalf("page %d: expected section %s, got nil", tt.page, tt.number)
		}
		if sec.Number != tt.number {
			t.Fatalf("page %d: expected section %s, got %s", tt.page, tt.number, sec.Number)
		}
	}
	if sec := ds.PageSection(10); sec != nil {
		t.Fatalf("front-matter page should map to nil, got %s", sec.Number)
	}
	if got := ds.TOCPages(); len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("expected contents pages [5 6], got %v", got)
	}
}

func TestBuild_FrontMatterBoundary(t *testing.T) {
	entries := []Entry{
		{Level: 1, Number: "1", Title: "Scope", Page: 21},
		{Level: 1, Number: "2", Title: "Normative references", Page: 22},
	}
	ds := Build(entries, []int{4, 5}, 100)

	if ds.BodyStart != 21 {
		t.Fatalf("expected body start 21, got %d", ds.BodyStart)
	}
	for p := 1; p <= 20; p++ {
		if !ds.IsFrontMatter(p) {
			t.Fatalf("page %d should be front matter", p)
		}
	}
	if ds.IsFrontMatter(21) {
		t.Fatal("page 21 should not be front matter")
	}
	if !ds.IsTOCPage(5) || ds.IsTOCPage(7) {
		t.Fatal("contents pages misreported")
	}
}

func TestBuild_BodyStartFallsBackToFirstEntry(t *testing.T) {
	entries := []Entry{
		{Level: 2, Number: "6.1", Title: "Overview", Page: 12},
		{Level: 2, Number: "6.2", Title: "Signals", Page: 15},
	}
	ds := Build(entries, nil, 50)
	if ds.BodyStart != 12 {
		t.Fatalf("expected body start 12, got %d", ds.BodyStart)
	}
}

func TestBuild_NoEntriesFallback(t *testing.T) {
	ds := Build(nil, nil, 12)
	if len(ds.Roots) != 1 {
		t.Fatalf("expected 1 fallback root, got %d", len(ds.Roots))
	}
	root := ds.Roots[0]
	if root.Number != "1" || len(root.Path) != 1 || root.Path[0] != "1" {
		t.Fatalf("unexpected fallback root %+v", root)
	}
	if root.PageStart != 1 || root.PageEnd != 12 {
		t.Fatalf("fallback root should span the document, got %d..%d", root.PageStart, root.PageEnd)
	}
	if ds.BodyStart != 1 || ds.IsFrontMatter(1) {
		t.Fatal("fallback structure should have no front matter")
	}
	if sec := ds.PageSection(7); sec != root {
		t.Fatal("every page should map to the fallback root")
	}
}

func TestMatchHeading(t *testing.T) {
	entries := []Entry{
		{Level: 1, Number: "6", Title: "e-MMC device and system", Page: 30},
		{Level: 2, Number: "6.6", Title: "Data transfer mode", Page: 40},
	}
	ds := Build(entries, nil, 100)

	if sec := ds.MatchHeading("6.6 Data transfer mode"); sec == nil || sec.Number != "6.6" {
		t.Fatalf("standalone heading should match, got %+v", sec)
	}
	merged := "6.6 Data transfer mode After power-up the device enters transfer state"
	if sec := ds.MatchHeading(merged); sec == nil || sec.Number != "6.6" {
		t.Fatalf("heading merged with its paragraph should prefix-match, got %+v", sec)
	}
	if sec := ds.MatchHeading("The bus operates in push-pull mode."); sec != nil {
		t.Fatalf("plain prose should not match, got %s", sec.Number)
	}
}

func TestParseContentsLine(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		number string
		title  string
		level  int
		page   int
		ok     bool
	}{
		{
			name:   "dot leader",
			line:   "6.10.4 Erase ............ 127",
			number: "6.10.4", title: "Erase", level: 3, page: 127, ok: true,
		},
		{
			name:   "top level",
			line:   "1 Scope .......... 1",
			number: "1", title: "Scope", level: 1, page: 1, ok: true,
		},
		{
			name:   "annex",
			line:   "Annex A (informative) Application notes ....... 280",
			number: "Annex A", title: "(informative) Application notes", level: 1, page: 280, ok: true,
		},
		{
			name:   "lost leader dots",
			line:   "7.4 Detailed command description 179",
			number: "7.4", title: "Detailed command description", level: 2, page: 179, ok: true,
		},
		{name: "figure list line", line: "Figure 1 State diagram .......... 24", ok: false},
		{name: "bare number", line: "1024", ok: false},
		{name: "page out of bounds", line: "1 Scope ......... 999", ok: false},
		{name: "empty", line: "   ", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := ParseContentsLine(tt.line, 300)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v (entry %+v)", tt.ok, ok, e)
			}
			if !ok {
				return
			}
			if e.Number != tt.number || e.Title != tt.title || e.Level != tt.level || e.Page != tt.page {
				t.Fatalf("expected {%s %q L%d p%d}, got %+v", tt.number, tt.title, tt.level, tt.page, e)
			}
		})
	}
}

func TestRecoverEntries_TwoPageContents(t *testing.T) {
	r := &fakeReader{
		count: 40,
		pages: map[int][]string{
			1: {"JEDEC STANDARD", "Embedded Multi-Media Card (e-MMC)", "JESD84-B51"},
			2: {"Special disclaimer text"},
			3: {
				"Contents",
				"1 Scope .......... 1",
				"2 Normative references ......... 2",
				"3 Terms and definitions ........ 3",
				"4 Ordering information ......... 5",
			},
			4: {
				"5 Interface description ........ 6",
				"6 e-MMC device and system ......... 10",
				"6.1 Overview ........ 10",
			},
			5: {"Revision history and related matter"},
			9: {"1 Scope", "This standard defines the e-MMC interface."},
		},
	}
	entries, tocPages, err := RecoverEntries(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(entries))
	}
	if len(tocPages) != 2 || tocPages[0] != 3 || tocPages[1] != 4 {
		t.Fatalf("expected contents pages [3 4], got %v", tocPages)
	}
	// Printed page 1 resolves to physical page 9, so the offset is 8.
	if entries[0].Page != 9 {
		t.Fatalf("expected calibrated page 9 for first entry, got %d", entries[0].Page)
	}
	last := entries[len(entries)-1]
	if last.Number != "6.1" || last.Page != 18 {
		t.Fatalf("expected 6.1 at page 18, got %s at %d", last.Number, last.Page)
	}

	ds := Build(entries, tocPages, r.count)
	if ds.BodyStart != 9 {
		t.Fatalf("expected body start 9, got %d", ds.BodyStart)
	}
	if !ds.IsFrontMatter(8) || ds.IsFrontMatter(9) {
		t.Fatal("front-matter boundary misplaced")
	}
	if !ds.IsTOCPage(3) || !ds.IsTOCPage(4) || ds.IsTOCPage(9) {
		t.Fatal("contents pages misreported")
	}
}

func TestRecoverEntries_NoContents(t *testing.T) {
	r := &fakeReader{
		count: 5,
		pages: map[int][]string{
			1: {"A short memo"},
			2: {"Body text without any contents section"},
		},
	}
	_, _, err := RecoverEntries(r)
	if !errors.Is(err, ErrNoTOC) {
		t.Fatalf("expected ErrNoTOC, got %v", err)
	}
}

func TestExtract_FallsBackWithoutContents(t *testing.T) {
	r := &fakeReader{count: 8, pages: map[int][]string{1: {"plain document"}}}
	ds := Extract(r, discardLogger())
	if len(ds.Roots) != 1 || ds.BodyStart != 1 {
		t.Fatalf("expected single-root fallback, got %d roots, body start %d", len(ds.Roots), ds.BodyStart)
	}
	if ds.PageSection(8) == nil {
		t.Fatal("fallback should cover the last page")
	}
}

func TestVersionFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"JESD84-B51.pdf", "5.1"},
		{"/data/specs/JESD84-B451.pdf", "4.51"},
		{"jesd84-a44.pdf", "4.4"},
		{"emmc-spec.pdf", "emmc-spec"},
	}
	for _, tt := range tests {
		if got := VersionFromPath(tt.path); got != tt.want {
			t.Fatalf("%s: expected version %q, got %q", tt.path, tt.want, got)
		}
	}
}
