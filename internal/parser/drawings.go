package parser

import pdflib "github.com/ledongthuc/pdf"

// clusterDrawings groups the page's vector rectangles into diagram regions:
// each rectangle is padded, overlapping rectangles merge transitively, and
// clusters below the minimum area are discarded. Clusters that mostly
// coincide with a detected table are the table's own ruling, not a figure.
func clusterDrawings(rects []pdflib.Rect, tables []TableRegion, pad, minArea float64) []DrawingRegion {
	boxes := make([]Rect, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, Rect{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y})
	}

	// Transitive merge: keep folding overlapping boxes until stable.
	for {
		merged := false
		for i := 0; i < len(boxes); i++ {
			for j := i + 1; j < len(boxes); j++ {
				if boxes[i].Overlaps(boxes[j], pad) {
					boxes[i] = boxes[i].Union(boxes[j])
					boxes = append(boxes[:j], boxes[j+1:]...)
					merged = true
					j--
				}
			}
		}
		if !merged {
			break
		}
	}

	var out []DrawingRegion
	for _, b := range boxes {
		if b.Area() < minArea {
			continue
		}
		if coveredByTable(b, tables) {
			continue
		}
		out = append(out, DrawingRegion{BBox: b})
	}
	return out
}

// coveredByTable reports whether more than half of the box lies inside any
// table region.
func coveredByTable(b Rect, tables []TableRegion) bool {
	for _, t := range tables {
		ix0 := max(b.X0, t.BBox.X0)
		iy0 := max(b.Y0, t.BBox.Y0)
		ix1 := min(b.X1, t.BBox.X1)
		iy1 := min(b.Y1, t.BBox.Y1)
		if ix1 <= ix0 || iy1 <= iy0 {
			continue
		}
		inter := (ix1 - ix0) * (iy1 - iy0)
		if area := b.Area(); area > 0 && inter/area > 0.5 {
			return true
		}
	}
	return false
}
