package parser

import "fmt"

// Rect is an axis-aligned box in PDF points. The origin is the bottom-left
// of the page and Y grows upward, matching what the PDF library reports.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Center returns the geometric center of the box.
func (r Rect) Center() (float64, float64) {
	return (r.X0 + r.X1) / 2, (r.Y0 + r.Y1) / 2
}

// Contains reports whether the point lies inside the box grown by tol on
// every side. Center-point containment is the reconciliation predicate used
// throughout classification, never area overlap.
func (r Rect) Contains(x, y, tol float64) bool {
	return x >= r.X0-tol && x <= r.X1+tol && y >= r.Y0-tol && y <= r.Y1+tol
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Area returns width times height.
func (r Rect) Area() float64 { return r.Width() * r.Height() }

// Overlaps reports whether the two boxes intersect after growing r by pad.
func (r Rect) Overlaps(other Rect, pad float64) bool {
	return r.X0-pad <= other.X1 && r.X1+pad >= other.X0 &&
		r.Y0-pad <= other.Y1 && r.Y1+pad >= other.Y0
}

// Union returns the smallest box covering both.
func (r Rect) Union(other Rect) Rect {
	return Rect{
		X0: min(r.X0, other.X0),
		Y0: min(r.Y0, other.Y0),
		X1: max(r.X1, other.X1),
		Y1: max(r.Y1, other.Y1),
	}
}

// Block is one unit of extracted text: a short run of lines sharing layout.
type Block struct {
	BBox     Rect
	Text     string
	FontSize float64
	Font     string
}

// TableRegion is a candidate tabular area reported by the table-geometry
// pass: a cell grid recovered from ruled lines, with text already assigned
// to cells by center containment.
type TableRegion struct {
	BBox Rect
	// Rows holds cell text in reading order, top row first.
	Rows [][]string
	// ColEdges are the left X of each column plus the final right edge,
	// used for cross-page continuation alignment.
	ColEdges []float64
}

// Columns returns the column count of the grid.
func (t TableRegion) Columns() int {
	if len(t.Rows) == 0 {
		return 0
	}
	return len(t.Rows[0])
}

// DrawingRegion is a cluster of vector strokes large enough to be a diagram.
type DrawingRegion struct {
	BBox Rect
}

// ImageRegion is an embedded raster image. Placement is not recoverable
// from the object stream alone, so BBox defaults to the page content box;
// bitmap handling only uses it to anchor a caption search, never to capture
// interior text.
type ImageRegion struct {
	BBox          Rect
	Width, Height int
}

// PageModel is the normalized per-page output of the Page Extractor,
// reconciling the general text pass and the table-geometry pass.
// Immutable once produced.
type PageModel struct {
	PageNumber int
	Width      float64
	Height     float64
	Blocks     []Block
	Tables     []TableRegion
	Drawings   []DrawingRegion
	Images     []ImageRegion
}

// PageReader is the page-content extraction capability consumed by the
// pipeline. Page numbers are 1-indexed.
type PageReader interface {
	PageCount() int
	ReadPage(n int) (*PageModel, error)
	PlainText(n int) (string, error)
}

// PageError marks a page that could not be extracted; the pipeline records
// it as a coverage gap and continues.
type PageError struct {
	Page int
	Err  error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *PageError) Unwrap() error { return e.Err }
