// Package classify assigns a content type to every block and region of a
// page model, reconciling the general text pass and the table-geometry
// pass. Conflicts are resolved by a fixed priority cascade with a
// center-in-box predicate; the same page model always classifies the same
// way.
package classify

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/Ry1wang/emmc-protocol-copilot/internal/parser"
	"github.com/Ry1wang/emmc-protocol-copilot/internal/schema"
)

// Options are the classifier's tunable tolerances.
type Options struct {
	// CenterTol grows every region box when testing block centers, in
	// points. The two extraction passes disagree about box edges near
	// ruled lines; the tolerance absorbs that disagreement.
	CenterTol float64
}

// DefaultOptions match the calibration used for JEDEC-style documents.
var DefaultOptions = Options{CenterTol: 2}

// Block is a general-text block with its assigned type: Text, Register, or
// Definition (eligible for the definition extraction pass).
type Block struct {
	parser.Block
	Kind schema.ContentType
}

// Figure is a drawing cluster together with the text blocks whose centers
// fall inside it, kept as internal annotations rather than standalone text.
type Figure struct {
	Region parser.DrawingRegion
	Labels []parser.Block
}

// Page is the classified form of one page model. Tables keep only the
// regions that survived demotion; Blocks keep only the text the regions did
// not claim, in reading order.
type Page struct {
	Model   *parser.PageModel
	Tables  []parser.TableRegion
	Figures []Figure
	Bitmaps []parser.ImageRegion
	Blocks  []Block
}

// Terminology sections route their blocks to definition extraction. The
// match is a case-insensitive substring test over the section title.
var terminologyWords = []string{"definition", "abbreviation", "glossary", "terms", "acronym"}

// A register description announces itself with a bracketed bit range plus
// either an enumerated value list ("0x0 : disabled") or the access-type
// vocabulary of register field tables.
var (
	bitRangeRe  = regexp.MustCompile(`\[\d+(?::\d+)?\]`)
	enumValueRe = regexp.MustCompile(`(?m)^\s*(?:0x[0-9A-Fa-f]+|[01]{1,8}b|\d{1,3})\s*[:=]\s*\S`)

	registerKeywords = []string{
		"r/w", "r/w/e_p", "r/w/c_p", "r/wp", "otp", "reserved",
		"read/write", "read only", "write once",
	}
)

// Classify runs the priority cascade over one page: table regions claim
// their interior blocks first, then drawing clusters, then the remaining
// blocks are typed by section vocabulary, register signature, and finally
// plain text. First match wins; a claimed block is never reconsidered.
func Classify(pm *parser.PageModel, sectionTitle string, opts Options, log *slog.Logger) *Page {
	cp := &Page{Model: pm}
	claimed := make([]bool, len(pm.Blocks))

	for _, region := range pm.Tables {
		if !hasDataRows(region) {
			// Zero data rows: demote to ordinary text. The interior
			// blocks were never suppressed, so the text survives.
			log.Debug("table region demoted to text",
				"page", pm.PageNumber, "rows", len(region.Rows))
			continue
		}
		cp.Tables = append(cp.Tables, region)
		claim(pm, region.BBox, claimed, opts.CenterTol, "table", log)
	}

	for _, d := range pm.Drawings {
		fig := Figure{Region: d}
		for i, b := range pm.Blocks {
			if claimed[i] {
				continue
			}
			x, y := b.BBox.Center()
			if !d.BBox.Contains(x, y, opts.CenterTol) {
				continue
			}
			claimed[i] = true
			fig.Labels = append(fig.Labels, b)
			logNearEdge(pm, d.BBox, b, opts.CenterTol, "figure", log)
		}
		cp.Figures = append(cp.Figures, fig)
	}

	// Bitmap interiors are not machine readable and the image box is only
	// a caption anchor, so raster regions never claim blocks.
	cp.Bitmaps = append(cp.Bitmaps, pm.Images...)

	definitionPage := TerminologySection(sectionTitle)
	for i, b := range pm.Blocks {
		if claimed[i] {
			continue
		}
		kind := schema.Text
		switch {
		case definitionPage:
			kind = schema.Definition
		case RegisterSignature(b.Text):
			kind = schema.Register
		}
		cp.Blocks = append(cp.Blocks, Block{Block: b, Kind: kind})
	}
	return cp
}

// claim suppresses every unclaimed block whose center lies in the grown box.
func claim(pm *parser.PageModel, box parser.Rect, claimed []bool, tol float64, kind string, log *slog.Logger) {
	for i, b := range pm.Blocks {
		if claimed[i] {
			continue
		}
		x, y := b.BBox.Center()
		if !box.Contains(x, y, tol) {
			continue
		}
		claimed[i] = true
		logNearEdge(pm, box, b, tol, kind, log)
	}
}

// logNearEdge records a low-confidence classification: the block's center
// sits within tolerance of the claiming region's boundary, where the
// cascade decided but the geometry was ambiguous.
func logNearEdge(pm *parser.PageModel, box parser.Rect, b parser.Block, tol float64, kind string, log *slog.Logger) {
	x, y := b.BBox.Center()
	if box.Contains(x, y, -tol) {
		return
	}
	log.Debug("low-confidence classification: block center near region edge",
		"page", pm.PageNumber, "claimed_by", kind, "x", x, "y", y)
}

// hasDataRows reports whether the region holds at least one populated row
// beyond the header row.
func hasDataRows(t parser.TableRegion) bool {
	if len(t.Rows) < 2 || t.Columns() == 0 {
		return false
	}
	for _, row := range t.Rows[1:] {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				return true
			}
		}
	}
	return false
}

// TerminologySection reports whether a section title marks a terminology
// section ("Terms and definitions", "Abbreviations", glossary annexes).
func TerminologySection(title string) bool {
	t := strings.ToLower(title)
	for _, w := range terminologyWords {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// RegisterSignature reports whether the text reads like a bitfield
// description: a bracketed bit range together with either an enumerated
// value line or a register access keyword.
func RegisterSignature(text string) bool {
	if !bitRangeRe.MatchString(text) {
		return false
	}
	if enumValueRe.MatchString(text) {
		return true
	}
	lower := strings.ToLower(text)
	for _, kw := range registerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
