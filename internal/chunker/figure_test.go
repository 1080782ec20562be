package chunker

import (
	"testing"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/classify"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
)

func busTimingFigure() classify.Figure {
	return classify.Figure{
		Region: parser.DrawingRegion{BBox: parser.Rect{X0: 100, Y0: 300, X1: 400, Y1: 500}},
		Labels: []parser.Block{
			{Text: "Host", BBox: parser.Rect{X0: 120, Y0: 450, X1: 160, Y1: 462}},
			{Text: "Device", BBox: parser.Rect{X0: 320, Y0: 450, X1: 370, Y1: 462}},
		},
	}
}

func TestFigureBuilder_CaptionAndLabels(t *testing.T) {
	sec := section("6.15", "Boot operation", 120, 126)
	ctx := Context{Section: sec, Page: 121}
	blocks := []classify.Block{
		{Block: parser.Block{Text: "Figure 12 - Bus timing", BBox: parser.Rect{X0: 120, Y0: 270, X1: 300, Y1: 285}}},
		{Block: parser.Block{Text: "Surrounding prose far below the drawing.", BBox: parser.Rect{X0: 72, Y0: 100, X1: 400, Y1: 140}}},
	}

	b := NewFigureBuilder(DefaultConfig(), testMeta())
	c, capIdx := b.BuildFigure(ctx, busTimingFigure(), blocks)

	if c == nil {
		t.Fatal("expected a figure chunk")
	}
	if capIdx != 0 {
		t.Errorf("expected caption block index 0, got %d", capIdx)
	}
	if c.ContentType != schema.Figure {
		t.Errorf("expected figure chunk, got %q", c.ContentType)
	}
	if c.FigureCaption != "Figure 12 - Bus timing" {
		t.Errorf("unexpected caption %q", c.FigureCaption)
	}
	want := "[Figure: Figure 12 - Bus timing]\nHost\nDevice"
	if c.RawText != want {
		t.Errorf("expected body %q, got %q", want, c.RawText)
	}
	if c.PageStart != 121 || c.PageEnd != 121 {
		t.Errorf("expected single-page chunk on 121, got %d-%d", c.PageStart, c.PageEnd)
	}
}

func TestFigureBuilder_PlaceholderWithoutCaption(t *testing.T) {
	sec := section("6.15", "Boot operation", 120, 126)
	ctx := Context{Section: sec, Page: 122}

	b := NewFigureBuilder(DefaultConfig(), testMeta())
	c, capIdx := b.BuildFigure(ctx, busTimingFigure(), nil)

	if c == nil {
		t.Fatal("expected a figure chunk from labels alone")
	}
	if capIdx != -1 {
		t.Errorf("expected no caption index, got %d", capIdx)
	}
	if c.RawText != "[Figure: (no caption)]\nHost\nDevice" {
		t.Errorf("unexpected body %q", c.RawText)
	}
}

func TestFigureBuilder_DropsBareDrawing(t *testing.T) {
	sec := section("6.15", "Boot operation", 120, 126)
	ctx := Context{Section: sec, Page: 122}
	fig := classify.Figure{
		Region: parser.DrawingRegion{BBox: parser.Rect{X0: 100, Y0: 300, X1: 400, Y1: 500}},
	}

	b := NewFigureBuilder(DefaultConfig(), testMeta())
	c, capIdx := b.BuildFigure(ctx, fig, nil)

	if c != nil || capIdx != -1 {
		t.Fatalf("expected captionless unlabeled drawing dropped, got %+v", c)
	}
}

func TestFigureBuilder_PromotesInBoxCaption(t *testing.T) {
	sec := section("6.15", "Boot operation", 120, 126)
	ctx := Context{Section: sec, Page: 123}
	fig := classify.Figure{
		Region: parser.DrawingRegion{BBox: parser.Rect{X0: 100, Y0: 300, X1: 400, Y1: 500}},
		Labels: []parser.Block{
			{Text: "Figure 3 - Device state diagram", BBox: parser.Rect{X0: 140, Y0: 310, X1: 350, Y1: 322}},
			{Text: "idle", BBox: parser.Rect{X0: 200, Y0: 420, X1: 230, Y1: 432}},
		},
	}

	b := NewFigureBuilder(DefaultConfig(), testMeta())
	c, capIdx := b.BuildFigure(ctx, fig, nil)

	if c == nil {
		t.Fatal("expected a figure chunk")
	}
	if capIdx != -1 {
		t.Errorf("an in-box caption consumes no page block, got index %d", capIdx)
	}
	if c.FigureCaption != "Figure 3 - Device state diagram" {
		t.Errorf("expected promoted caption, got %q", c.FigureCaption)
	}
	if c.RawText != "[Figure: Figure 3 - Device state diagram]\nidle" {
		t.Errorf("caption must not repeat as a label, got %q", c.RawText)
	}
}

func TestFigureBuilder_BitmapWithCaption(t *testing.T) {
	sec := section("11.2", "Package outline", 330, 334)
	ctx := Context{Section: sec, Page: 331}
	blocks := []classify.Block{
		{Block: parser.Block{Text: "JEDEC Standard No. 84-B51", BBox: parser.Rect{X0: 72, Y0: 760, X1: 300, Y1: 772}}},
		{Block: parser.Block{Text: "Figure 99 - Package outline drawing\ncontinued", BBox: parser.Rect{X0: 72, Y0: 40, X1: 400, Y1: 52}}},
	}

	b := NewFigureBuilder(DefaultConfig(), testMeta())
	c, capIdx := b.BuildBitmap(ctx, blocks)

	if capIdx != 1 {
		t.Errorf("expected caption at block 1, got %d", capIdx)
	}
	if c.ContentType != schema.Bitmap {
		t.Errorf("expected bitmap chunk, got %q", c.ContentType)
	}
	if c.RawText != "[Figure: Figure 99 - Package outline drawing]" {
		t.Errorf("unexpected body %q", c.RawText)
	}
	if c.FigureCaption != "Figure 99 - Package outline drawing" {
		t.Errorf("unexpected caption %q", c.FigureCaption)
	}
}

func TestFigureBuilder_BitmapWithoutCaption(t *testing.T) {
	sec := section("11.2", "Package outline", 330, 334)
	ctx := Context{Section: sec, Page: 332}

	b := NewFigureBuilder(DefaultConfig(), testMeta())
	c, capIdx := b.BuildBitmap(ctx, nil)

	if capIdx != -1 {
		t.Errorf("expected no caption, got index %d", capIdx)
	}
	if c.RawText != "[Figure: bitmap image]" {
		t.Errorf("expected placeholder body, got %q", c.RawText)
	}
}
