package parser

import (
	"math"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// textLine is one assembled line: all glyph runs sharing a baseline,
// ordered left to right with word gaps restored.
type textLine struct {
	bbox     Rect
	text     string
	fontSize float64
	font     string
}

// assembleLines merges the raw glyph runs of a page into lines. The library
// reports runs with a baseline Y that grows upward, so the page reads in
// descending Y order.
func assembleLines(texts []pdflib.Text) []textLine {
	if len(texts) == 0 {
		return nil
	}

	sorted := make([]pdflib.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []textLine
	var run []pdflib.Text
	for _, t := range sorted {
		if len(run) == 0 {
			run = append(run, t)
			continue
		}
		if sameBaseline(run[0], t) {
			run = append(run, t)
			continue
		}
		if line, ok := buildLine(run); ok {
			lines = append(lines, line)
		}
		run = run[:0]
		run = append(run, t)
	}
	if line, ok := buildLine(run); ok {
		lines = append(lines, line)
	}
	return lines
}

func sameBaseline(a, b pdflib.Text) bool {
	tol := 0.35 * math.Max(a.FontSize, b.FontSize)
	if tol < 2 {
		tol = 2
	}
	return math.Abs(a.Y-b.Y) <= tol
}

// buildLine joins one baseline's runs left to right, inserting a space
// wherever the horizontal gap exceeds a quarter of the font size.
func buildLine(run []pdflib.Text) (textLine, bool) {
	if len(run) == 0 {
		return textLine{}, false
	}
	sort.SliceStable(run, func(i, j int) bool { return run[i].X < run[j].X })

	var sb strings.Builder
	var fontSize float64
	first := run[0]
	cursor := first.X
	for i, t := range run {
		if t.FontSize > fontSize {
			fontSize = t.FontSize
		}
		if i > 0 {
			gap := t.X - cursor
			spaceAt := 0.25 * t.FontSize
			if spaceAt < 1 {
				spaceAt = 1
			}
			if gap > spaceAt && !strings.HasSuffix(sb.String(), " ") {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.S)
		end := t.X + t.W
		if end > cursor {
			cursor = end
		}
	}

	text := CleanText(sb.String())
	if strings.TrimSpace(text) == "" {
		return textLine{}, false
	}
	if fontSize <= 0 {
		fontSize = 10
	}
	last := run[len(run)-1]
	return textLine{
		bbox: Rect{
			X0: first.X,
			Y0: first.Y - 0.2*fontSize,
			X1: last.X + last.W,
			Y1: first.Y + 0.8*fontSize,
		},
		text:     strings.TrimSpace(text),
		fontSize: fontSize,
		font:     first.Font,
	}, true
}

// dropFurniture removes lines in the header/footer margin bands that match
// page-furniture patterns, and watermark lines anywhere on the page.
func dropFurniture(lines []textLine, pageHeight, margin float64) []textLine {
	out := lines[:0]
	for _, l := range lines {
		inBand := l.bbox.Y0 >= pageHeight-margin || l.bbox.Y1 <= margin
		if inBand && IsPageFurniture(l.text) {
			continue
		}
		if watermarkLine(l.text) {
			continue
		}
		out = append(out, l)
	}
	return out
}

func watermarkLine(s string) bool {
	low := strings.ToLower(s)
	return strings.Contains(low, "downloaded by") || strings.Contains(low, "licensed to")
}

// orderForReading sorts lines into reading order. Pages laid out in two
// columns are split at the vertical midline and the left column is read in
// full before the right; everything else reads top-down, left to right.
func orderForReading(lines []textLine, pageWidth float64) []textLine {
	if len(lines) == 0 {
		return lines
	}
	mid := pageWidth / 2
	var left, right, spanning int
	for _, l := range lines {
		switch {
		case l.bbox.X1 <= mid:
			left++
		case l.bbox.X0 >= mid:
			right++
		default:
			spanning++
		}
	}

	total := len(lines)
	twoColumn := spanning*100 < total*15 && left*100 > total*25 && right*100 > total*25
	if !twoColumn {
		sorted := make([]textLine, len(lines))
		copy(sorted, lines)
		sort.SliceStable(sorted, func(i, j int) bool {
			if sorted[i].bbox.Y1 != sorted[j].bbox.Y1 {
				return sorted[i].bbox.Y1 > sorted[j].bbox.Y1
			}
			return sorted[i].bbox.X0 < sorted[j].bbox.X0
		})
		return sorted
	}

	var l, r []textLine
	for _, line := range lines {
		if line.bbox.X0 < mid {
			l = append(l, line)
		} else {
			r = append(r, line)
		}
	}
	byY := func(s []textLine) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].bbox.Y1 > s[j].bbox.Y1 })
	}
	byY(l)
	byY(r)
	return append(l, r...)
}

// groupBlocks merges consecutive lines into paragraph-level blocks. A line
// starts a new block when the vertical gap opens up or the font size jumps,
// which keeps headings separate from the body below them.
func groupBlocks(lines []textLine) []Block {
	var blocks []Block
	var cur []textLine

	flush := func() {
		if len(cur) == 0 {
			return
		}
		b := Block{
			BBox:     cur[0].bbox,
			FontSize: cur[0].fontSize,
			Font:     cur[0].font,
		}
		parts := make([]string, 0, len(cur))
		for _, l := range cur {
			b.BBox = b.BBox.Union(l.bbox)
			if l.fontSize > b.FontSize {
				b.FontSize = l.fontSize
			}
			parts = append(parts, l.text)
		}
		b.Text = strings.Join(parts, "\n")
		blocks = append(blocks, b)
		cur = nil
	}

	for _, l := range lines {
		if len(cur) > 0 {
			prev := cur[len(cur)-1]
			gap := prev.bbox.Y0 - l.bbox.Y1
			maxGap := 0.65 * math.Max(prev.fontSize, l.fontSize)
			if maxGap < 4 {
				maxGap = 4
			}
			sizeJump := math.Abs(prev.fontSize-l.fontSize) > 1.5
			columnBreak := l.bbox.Y1 > prev.bbox.Y0 // reading order moved to a new column
			if gap > maxGap || sizeJump || columnBreak {
				flush()
			}
		}
		cur = append(cur, l)
	}
	flush()
	return blocks
}
