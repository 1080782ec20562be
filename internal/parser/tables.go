package parser

import (
	"math"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// Table-geometry pass: recover cell grids from ruled lines. Rectangles
// thinner than a rule threshold are treated as line segments; near-collinear
// segments are snapped and joined, rule intersections become cell corners,
// and four-cornered gaps between adjacent grid coordinates become cells.
const (
	maxRuleThickness = 2.5
	minRuleLength    = 8.0
	ruleSnapTol      = 3.0
	ruleJoinTol      = 3.0
	intersectTol     = 3.0
	minCellDim       = 4.0
)

// edge is one merged rule segment. pos is the fixed coordinate (Y for a
// horizontal rule, X for a vertical one); lo/hi span the other axis.
type edge struct {
	pos, lo, hi float64
}

// findTables runs the table-geometry pass over one page's rectangles and
// glyph runs. Regions that are plainly not tables (heading decorations,
// sparse grids) are rejected here; regions with no data rows are left for
// the classifier to demote.
func findTables(rects []pdflib.Rect, texts []pdflib.Text) []TableRegion {
	hEdges, vEdges := splitEdges(rects)
	if len(hEdges) < 2 || len(vEdges) < 2 {
		return nil
	}
	hEdges = mergeEdges(hEdges)
	vEdges = mergeEdges(vEdges)

	xs, ys, corners := intersectRules(hEdges, vEdges)
	if len(xs) < 2 || len(ys) < 2 {
		return nil
	}

	cells := gridCells(xs, ys, corners)
	if len(cells) == 0 {
		return nil
	}

	var regions []TableRegion
	for _, comp := range connectCells(cells) {
		region, ok := buildRegion(comp, xs, ys, texts)
		if !ok {
			continue
		}
		regions = append(regions, region)
	}
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].BBox.Y1 > regions[j].BBox.Y1
	})
	return regions
}

// splitEdges classifies page rectangles into horizontal and vertical rule
// segments. Large rectangles contribute their four border edges, which
// covers tables drawn as outlined boxes.
func splitEdges(rects []pdflib.Rect) (h, v []edge) {
	for _, r := range rects {
		w := r.Max.X - r.Min.X
		ht := r.Max.Y - r.Min.Y
		switch {
		case ht <= maxRuleThickness && w >= minRuleLength:
			h = append(h, edge{pos: (r.Min.Y + r.Max.Y) / 2, lo: r.Min.X, hi: r.Max.X})
		case w <= maxRuleThickness && ht >= minRuleLength:
			v = append(v, edge{pos: (r.Min.X + r.Max.X) / 2, lo: r.Min.Y, hi: r.Max.Y})
		case w >= minRuleLength && ht >= minRuleLength:
			h = append(h, edge{pos: r.Min.Y, lo: r.Min.X, hi: r.Max.X})
			h = append(h, edge{pos: r.Max.Y, lo: r.Min.X, hi: r.Max.X})
			v = append(v, edge{pos: r.Min.X, lo: r.Min.Y, hi: r.Max.Y})
			v = append(v, edge{pos: r.Max.X, lo: r.Min.Y, hi: r.Max.Y})
		}
	}
	return h, v
}

// mergeEdges snaps edges whose fixed coordinate lies within the snap
// tolerance onto one rule, then joins collinear segments separated by no
// more than the join tolerance.
func mergeEdges(edges []edge) []edge {
	if len(edges) == 0 {
		return nil
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].pos != edges[j].pos {
			return edges[i].pos < edges[j].pos
		}
		return edges[i].lo < edges[j].lo
	})

	var out []edge
	for i := 0; i < len(edges); {
		group := []edge{edges[i]}
		sum := edges[i].pos
		i++
		for i < len(edges) && math.Abs(edges[i].pos-sum/float64(len(group))) <= ruleSnapTol {
			group = append(group, edges[i])
			sum += edges[i].pos
			i++
		}
		snapped := sum / float64(len(group))

		sort.Slice(group, func(a, b int) bool { return group[a].lo < group[b].lo })
		joined := edge{pos: snapped, lo: group[0].lo, hi: group[0].hi}
		for _, e := range group[1:] {
			if e.lo-joined.hi <= ruleJoinTol {
				if e.hi > joined.hi {
					joined.hi = e.hi
				}
			} else {
				out = append(out, joined)
				joined = edge{pos: snapped, lo: e.lo, hi: e.hi}
			}
		}
		out = append(out, joined)
	}
	return out
}

// intersectRules finds cell corners. Returns the sorted unique grid
// coordinates and the set of (column, row) indices where rules cross.
func intersectRules(hEdges, vEdges []edge) (xs, ys []float64, corners map[[2]int]bool) {
	for _, v := range vEdges {
		xs = appendCoord(xs, v.pos)
	}
	for _, h := range hEdges {
		ys = appendCoord(ys, h.pos)
	}
	sort.Float64s(xs)
	sort.Float64s(ys)

	corners = make(map[[2]int]bool)
	for _, v := range vEdges {
		xi := coordIndex(xs, v.pos)
		if xi < 0 {
			continue
		}
		for _, h := range hEdges {
			if h.pos < v.lo-intersectTol || h.pos > v.hi+intersectTol {
				continue
			}
			if v.pos < h.lo-intersectTol || v.pos > h.hi+intersectTol {
				continue
			}
			yi := coordIndex(ys, h.pos)
			if yi >= 0 {
				corners[[2]int{xi, yi}] = true
			}
		}
	}
	return xs, ys, corners
}

// appendCoord adds a coordinate unless one within the snap tolerance exists.
func appendCoord(coords []float64, c float64) []float64 {
	for _, existing := range coords {
		if math.Abs(existing-c) <= ruleSnapTol {
			return coords
		}
	}
	return append(coords, c)
}

func coordIndex(coords []float64, c float64) int {
	for i, existing := range coords {
		if math.Abs(existing-c) <= ruleSnapTol {
			return i
		}
	}
	return -1
}

// gridCell identifies one cell by its bottom-left grid indices.
type gridCell struct {
	xi, yi int
}

// gridCells returns every four-cornered cell in the grid.
func gridCells(xs, ys []float64, corners map[[2]int]bool) []gridCell {
	var cells []gridCell
	for xi := 0; xi < len(xs)-1; xi++ {
		if xs[xi+1]-xs[xi] < minCellDim {
			continue
		}
		for yi := 0; yi < len(ys)-1; yi++ {
			if ys[yi+1]-ys[yi] < minCellDim {
				continue
			}
			if corners[[2]int{xi, yi}] && corners[[2]int{xi + 1, yi}] &&
				corners[[2]int{xi, yi + 1}] && corners[[2]int{xi + 1, yi + 1}] {
				cells = append(cells, gridCell{xi: xi, yi: yi})
			}
		}
	}
	return cells
}

// connectCells groups cells into connected components, one per table.
// Adjacency is sharing a grid edge.
func connectCells(cells []gridCell) [][]gridCell {
	index := make(map[gridCell]int, len(cells))
	for i, c := range cells {
		index[c] = i
	}
	visited := make([]bool, len(cells))
	var comps [][]gridCell

	for i := range cells {
		if visited[i] {
			continue
		}
		var comp []gridCell
		stack := []int{i}
		visited[i] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			c := cells[cur]
			comp = append(comp, c)
			for _, n := range []gridCell{
				{c.xi + 1, c.yi}, {c.xi - 1, c.yi},
				{c.xi, c.yi + 1}, {c.xi, c.yi - 1},
			} {
				if j, ok := index[n]; ok && !visited[j] {
					visited[j] = true
					stack = append(stack, j)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

// buildRegion turns one connected component into a TableRegion, assigning
// glyph runs to cells by center containment and rejecting implausible
// grids (single row of many columns, mostly empty).
func buildRegion(comp []gridCell, xs, ys []float64, texts []pdflib.Text) (TableRegion, bool) {
	minXi, maxXi := comp[0].xi, comp[0].xi
	minYi, maxYi := comp[0].yi, comp[0].yi
	present := make(map[gridCell]bool, len(comp))
	for _, c := range comp {
		present[c] = true
		minXi = min(minXi, c.xi)
		maxXi = max(maxXi, c.xi)
		minYi = min(minYi, c.yi)
		maxYi = max(maxYi, c.yi)
	}

	cols := maxXi - minXi + 1
	rows := maxYi - minYi + 1
	if cols < 2 || rows < 1 {
		return TableRegion{}, false
	}

	bbox := Rect{X0: xs[minXi], Y0: ys[minYi], X1: xs[maxXi+1], Y1: ys[maxYi+1]}

	// Rows top-down: highest Y band first.
	grid := make([][]string, rows)
	filled := 0
	for r := 0; r < rows; r++ {
		yi := maxYi - r
		grid[r] = make([]string, cols)
		for c := 0; c < cols; c++ {
			xi := minXi + c
			if !present[gridCell{xi: xi, yi: yi}] {
				continue
			}
			cell := Rect{X0: xs[xi], Y0: ys[yi], X1: xs[xi+1], Y1: ys[yi+1]}
			if t := cellText(cell, texts); t != "" {
				grid[r][c] = t
				filled++
			}
		}
	}

	// Heading decorations render as one wide ruled band; sparse grids are
	// ruled figures, not tables.
	if rows == 1 && cols > 8 {
		return TableRegion{}, false
	}
	if filled*100 < rows*cols*40 {
		return TableRegion{}, false
	}

	colEdges := make([]float64, 0, cols+1)
	for xi := minXi; xi <= maxXi+1; xi++ {
		colEdges = append(colEdges, xs[xi])
	}
	return TableRegion{BBox: bbox, Rows: grid, ColEdges: colEdges}, true
}

// cellText gathers the glyph runs whose center falls inside the cell and
// reassembles them into lines.
func cellText(cell Rect, texts []pdflib.Text) string {
	var inside []pdflib.Text
	for _, t := range texts {
		cx := t.X + t.W/2
		cy := t.Y + t.FontSize*0.3
		if cell.Contains(cx, cy, 1) {
			inside = append(inside, t)
		}
	}
	if len(inside) == 0 {
		return ""
	}
	lines := assembleLines(inside)
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, l.text)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
