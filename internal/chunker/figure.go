package chunker

import (
	"strings"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/classify"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
)

// FigureBuilder turns vector drawings and bitmap scans into placeholder
// chunks. A drawing contributes its caption and any text labels that sat
// inside it; the image itself is not extracted.
type FigureBuilder struct {
	cfg  Config
	meta DocMeta
}

// NewFigureBuilder returns a builder using cfg's caption window.
func NewFigureBuilder(cfg Config, meta DocMeta) *FigureBuilder {
	return &FigureBuilder{cfg: cfg, meta: meta}
}

// BuildFigure emits the chunk for one vector drawing. blocks is the page's
// unclaimed text; the caption is the nearest "Figure N" line within the
// caption window above or below the drawing, and the returned index names
// that block so the caller keeps it out of the prose stream. A caption
// printed inside the drawing box arrives as a label instead and is promoted
// from there. Drawings with neither caption nor labels yield nothing
// retrievable and are dropped.
func (b *FigureBuilder) BuildFigure(ctx Context, fig classify.Figure, blocks []classify.Block) (*schema.Chunk, int) {
	caption, capIdx := FindCaption(blocks, fig.Region.BBox, FigureCaptionRe, b.cfg.CaptionWindow)

	var labels []string
	for _, lb := range fig.Labels {
		t := strings.TrimSpace(lb.Text)
		if t == "" {
			continue
		}
		if caption == "" {
			if line, _, _ := strings.Cut(t, "\n"); FigureCaptionRe.MatchString(line) {
				caption = line
				continue
			}
		}
		labels = append(labels, t)
	}

	if caption == "" && len(labels) == 0 {
		return nil, -1
	}

	body := "[Figure: (no caption)]"
	if caption != "" {
		body = "[Figure: " + caption + "]"
	}
	if len(labels) > 0 {
		body += "\n" + strings.Join(labels, "\n")
	}

	c := newChunk(b.meta, ctx, schema.Figure, ctx.Page, ctx.Page, body)
	c.FigureCaption = caption
	return c, capIdx
}

// BuildBitmap emits the placeholder chunk for a page-sized raster image.
// Image interiors carry no extractable text, so the caption is the first
// "Figure N" line anywhere on the page; without one the placeholder alone
// rarely survives the minimum-length filter.
func (b *FigureBuilder) BuildBitmap(ctx Context, blocks []classify.Block) (*schema.Chunk, int) {
	caption := ""
	capIdx := -1
	for i, blk := range blocks {
		line, _, _ := strings.Cut(strings.TrimSpace(blk.Text), "\n")
		if FigureCaptionRe.MatchString(line) {
			caption = line
			capIdx = i
			break
		}
	}

	body := "[Figure: bitmap image]"
	if caption != "" {
		body = "[Figure: " + caption + "]"
	}

	c := newChunk(b.meta, ctx, schema.Bitmap, ctx.Page, ctx.Page, body)
	c.FigureCaption = caption
	return c, capIdx
}
