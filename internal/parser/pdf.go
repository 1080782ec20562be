package parser

import (
	"errors"
	"fmt"
	"os"

	pdflib "github.com/ledongthuc/pdf"
)

// Options tunes the extraction heuristics. Zero values fall back to the
// defaults, so a zero Options is usable.
type Options struct {
	MarginBand     float64 // header/footer band in points
	DrawingPad     float64 // padding applied before clustering vector strokes
	MinDrawingArea float64 // smallest cluster area kept as a figure, in pt²
	MinImageSide   int     // smallest raster dimension kept as a bitmap, in px
}

// DefaultOptions returns the calibrated defaults.
func DefaultOptions() Options {
	return Options{
		MarginBand:     60,
		DrawingPad:     4,
		MinDrawingArea: 5000,
		MinImageSide:   100,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MarginBand <= 0 {
		o.MarginBand = def.MarginBand
	}
	if o.DrawingPad <= 0 {
		o.DrawingPad = def.DrawingPad
	}
	if o.MinDrawingArea <= 0 {
		o.MinDrawingArea = def.MinDrawingArea
	}
	if o.MinImageSide <= 0 {
		o.MinImageSide = def.MinImageSide
	}
	return o
}

// Document is an open source document implementing PageReader over the PDF
// library's reader. Safe for concurrent ReadPage calls: the underlying
// reader only seeks within an immutable file.
type Document struct {
	path   string
	file   *os.File
	reader *pdflib.Reader
	opts   Options
}

// Open opens the document at path. The only fatal input condition in the
// pipeline is this call failing.
func Open(path string, opts Options) (*Document, error) {
	f, r, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Document{path: path, file: f, reader: r, opts: opts.withDefaults()}, nil
}

// Close releases the underlying file.
func (d *Document) Close() error {
	return d.file.Close()
}

// Path returns the source file path.
func (d *Document) Path() string { return d.path }

// PageCount returns the number of physical pages.
func (d *Document) PageCount() int {
	return d.reader.NumPage()
}

// ReadPage runs both extraction passes over one page and produces its
// normalized Page Model. The PDF library panics on some malformed content
// streams; those pages surface as a PageError instead.
func (d *Document) ReadPage(n int) (pm *PageModel, err error) {
	defer func() {
		if r := recover(); r != nil {
			pm = nil
			err = &PageError{Page: n, Err: fmt.Errorf("content parse: %v", r)}
		}
	}()

	if n < 1 || n > d.reader.NumPage() {
		return nil, &PageError{Page: n, Err: errors.New("page out of range")}
	}
	page := d.reader.Page(n)
	if page.V.IsNull() {
		return nil, &PageError{Page: n, Err: errors.New("missing page object")}
	}

	width, height := pageSize(page)
	content := page.Content()

	// Table-geometry pass first: drawing clusters that are really table
	// ruling are filtered against its regions.
	tables := findTables(content.Rect, content.Text)
	drawings := clusterDrawings(content.Rect, tables, d.opts.DrawingPad, d.opts.MinDrawingArea)

	lines := assembleLines(content.Text)
	lines = dropFurniture(lines, height, d.opts.MarginBand)
	lines = orderForReading(lines, width)
	blocks := groupBlocks(lines)

	return &PageModel{
		PageNumber: n,
		Width:      width,
		Height:     height,
		Blocks:     blocks,
		Tables:     tables,
		Drawings:   drawings,
		Images:     d.pageImages(page, width, height),
	}, nil
}

// PlainText returns the page's undecorated text, mainly for title sniffing.
func (d *Document) PlainText(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &PageError{Page: n, Err: fmt.Errorf("text extract: %v", r)}
		}
	}()

	page := d.reader.Page(n)
	if page.V.IsNull() {
		return "", &PageError{Page: n, Err: errors.New("missing page object")}
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", &PageError{Page: n, Err: err}
	}
	return CleanText(text), nil
}

// pageSize resolves the MediaBox, walking the Parent chain when a page
// inherits it, and falls back to US Letter.
func pageSize(page pdflib.Page) (float64, float64) {
	box := page.V.Key("MediaBox")
	parent := page.V.Key("Parent")
	for box.IsNull() && !parent.IsNull() {
		box = parent.Key("MediaBox")
		parent = parent.Key("Parent")
	}
	if box.Kind() != pdflib.Array || box.Len() < 4 {
		return 612, 792
	}
	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return 612, 792
	}
	return w, h
}

// pageImages enumerates raster XObjects large enough to be diagrams.
// Placement is not recovered from the content stream, so the page box
// stands in; bitmap handling only anchors a caption search on it.
func (d *Document) pageImages(page pdflib.Page, width, height float64) []ImageRegion {
	resources := page.V.Key("Resources")
	if resources.Kind() != pdflib.Dict {
		return nil
	}
	xobjects := resources.Key("XObject")
	if xobjects.Kind() != pdflib.Dict {
		return nil
	}

	var out []ImageRegion
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Kind() != pdflib.Stream {
			continue
		}
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		w := int(obj.Key("Width").Int64())
		h := int(obj.Key("Height").Int64())
		if w < d.opts.MinImageSide || h < d.opts.MinImageSide {
			continue
		}
		out = append(out, ImageRegion{
			BBox:   Rect{X0: 0, Y0: 0, X1: width, Y1: height},
			Width:  w,
			Height: h,
		})
	}
	return out
}
