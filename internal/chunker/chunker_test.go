package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/classify"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/structure"
)

// testMeta returns document metadata with a deterministic ID sequence.
func testMeta() DocMeta {
	n := 0
	return DocMeta{
		Source:  "JESD84-B51.pdf",
		Version: "5.1",
		NewID: func() string {
			n++
			return fmt.Sprintf("chunk-%03d", n)
		},
	}
}

// section builds a standalone section node with the dotted path expanded,
// e.g. "6.6.1" yields path [6 6.6 6.6.1].
func section(number, title string, pageStart, pageEnd int) *structure.Section {
	parts := strings.Split(number, ".")
	path := make([]string, len(parts))
	for i := range parts {
		path[i] = strings.Join(parts[:i+1], ".")
	}
	return &structure.Section{
		Level:     len(parts),
		Number:    number,
		Title:     title,
		Path:      path,
		PageStart: pageStart,
		PageEnd:   pageEnd,
	}
}

func textBlock(text string) classify.Block {
	return classify.Block{Block: parser.Block{Text: text}, Kind: schema.Text}
}

func registerBlock(text string) classify.Block {
	return classify.Block{Block: parser.Block{Text: text}, Kind: schema.Register}
}

func TestHeadingLevel(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"6 General description", 1},
		{"6.6 Data transfer mode", 2},
		{"6.6.1 Command sets\nThe device supports several command sets.", 3},
		{"6.6.1", 0},
		{"A.1 Annex heading", 0},
		{"The device shall respond within the timeout.", 0},
		{"", 0},
	}
	for _, c := range cases {
		if got := HeadingLevel(c.text); got != c.want {
			t.Errorf("HeadingLevel(%q): expected %d, got %d", c.text, c.want, got)
		}
	}
}

func TestHeadingNumber(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"6.10.4 Erase", "6.10.4"},
		{"7 Device registers\nBody text.", "7"},
		{"Ordinary prose line.", ""},
	}
	for _, c := range cases {
		if got := HeadingNumber(c.text); got != c.want {
			t.Errorf("HeadingNumber(%q): expected %q, got %q", c.text, c.want, got)
		}
	}
}

func TestStartsBoundary(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"The device shall respond.", true},
		{"7.4 Detailed command description", true},
		{"and continues from the previous line", false},
		{"(see Table 12)", false},
		{"", false},
	}
	for _, c := range cases {
		if got := startsBoundary(c.text); got != c.want {
			t.Errorf("startsBoundary(%q): expected %v, got %v", c.text, c.want, got)
		}
	}
}

func TestFindCaption_NearestWithinWindow(t *testing.T) {
	box := parser.Rect{X0: 100, Y0: 300, X1: 400, Y1: 500}
	blocks := []classify.Block{
		{Block: parser.Block{Text: "Figure 12 - Bus timing\nsecond line of the block", BBox: parser.Rect{X0: 120, Y0: 270, X1: 300, Y1: 285}}},
		{Block: parser.Block{Text: "Figure 11 - Prior figure", BBox: parser.Rect{X0: 120, Y0: 525, X1: 300, Y1: 540}}},
		{Block: parser.Block{Text: "Unrelated prose on the page.", BBox: parser.Rect{X0: 120, Y0: 250, X1: 300, Y1: 262}}},
	}

	caption, idx := FindCaption(blocks, box, FigureCaptionRe, 40)
	if caption != "Figure 12 - Bus timing" {
		t.Fatalf("expected nearest caption below the box, got %q", caption)
	}
	if idx != 0 {
		t.Errorf("expected block index 0, got %d", idx)
	}
}

func TestFindCaption_RespectsWindowAndOverlap(t *testing.T) {
	box := parser.Rect{X0: 100, Y0: 300, X1: 400, Y1: 500}

	tooFar := []classify.Block{
		{Block: parser.Block{Text: "Figure 7 - Too far below", BBox: parser.Rect{X0: 120, Y0: 200, X1: 300, Y1: 215}}},
	}
	if caption, idx := FindCaption(tooFar, box, FigureCaptionRe, 40); caption != "" || idx != -1 {
		t.Fatalf("expected no caption beyond the window, got %q at %d", caption, idx)
	}

	otherColumn := []classify.Block{
		{Block: parser.Block{Text: "Figure 8 - Other column", BBox: parser.Rect{X0: 420, Y0: 480, X1: 560, Y1: 495}}},
	}
	if caption, _ := FindCaption(otherColumn, box, FigureCaptionRe, 40); caption != "" {
		t.Fatalf("expected no caption without horizontal overlap, got %q", caption)
	}
}

func TestFindCaption_TableCaptionAbove(t *testing.T) {
	box := parser.Rect{X0: 100, Y0: 300, X1: 400, Y1: 500}
	blocks := []classify.Block{
		{Block: parser.Block{Text: "Table 49 - Command sets and modes", BBox: parser.Rect{X0: 110, Y0: 505, X1: 390, Y1: 520}}},
	}

	caption, idx := FindCaption(blocks, box, TableCaptionRe, 40)
	if caption != "Table 49 - Command sets and modes" {
		t.Fatalf("expected table caption above the box, got %q", caption)
	}
	if idx != 0 {
		t.Errorf("expected block index 0, got %d", idx)
	}
}

func TestFindCaption_EdgeTouchWithinSlack(t *testing.T) {
	box := parser.Rect{X0: 100, Y0: 300, X1: 400, Y1: 500}
	blocks := []classify.Block{
		{Block: parser.Block{Text: "Figure 3 - Overlapping caption", BBox: parser.Rect{X0: 120, Y0: 288, X1: 300, Y1: 303}}},
	}

	caption, _ := FindCaption(blocks, box, FigureCaptionRe, 40)
	if caption != "Figure 3 - Overlapping caption" {
		t.Fatalf("expected caption touching the box edge to be found, got %q", caption)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"word", 1},
		{"one two three four", 5},
		{"The quick brown fox jumps over the lazy dog", 11},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Errorf("EstimateTokens(%q): expected %d, got %d", c.text, c.want, got)
		}
	}
}

func TestNewChunk_ContextPrefix(t *testing.T) {
	meta := testMeta()
	sec := section("6.10.4", "Erase", 127, 129)
	ctx := Context{Section: sec, Page: 127}

	c := newChunk(meta, ctx, schema.Text, 127, 128, "The erase operation removes data.")

	wantPrefix := "[eMMC 5.1 | 6.10.4 Erase | Page 127]\n"
	if !strings.HasPrefix(c.Text, wantPrefix) {
		t.Fatalf("expected text to start with %q, got %q", wantPrefix, c.Text)
	}
	if c.RawText != "The erase operation removes data." {
		t.Errorf("raw text must not carry the prefix, got %q", c.RawText)
	}
	if c.ID != "chunk-001" {
		t.Errorf("expected minted id chunk-001, got %q", c.ID)
	}
	if got := strings.Join(c.SectionPath, "/"); got != "6/6.10/6.10.4" {
		t.Errorf("expected section path 6/6.10/6.10.4, got %v", c.SectionPath)
	}
	if c.HeadingLevel != 3 {
		t.Errorf("expected heading level 3, got %d", c.HeadingLevel)
	}
}

func TestNewChunk_FrontMatterLabel(t *testing.T) {
	meta := testMeta()
	ctx := Context{Page: 5, FrontMatter: true}

	c := newChunk(meta, ctx, schema.Text, 5, 5, "Revision history for this standard release.")

	if !c.IsFrontMatter {
		t.Fatal("expected front matter flag")
	}
	if !strings.HasPrefix(c.Text, "[eMMC 5.1 | Front Matter | Page 5]\n") {
		t.Fatalf("expected front matter label in prefix, got %q", c.Text)
	}
}
