package treemap

import "sort"

// Item is one input to the layout: a label plus its weight.
type Item struct {
	ID     string // source gift id, passed through untouched
	Name   string
	Weight float64

	// Passed through to the rendered cell.
	Change float64 // percent change, drives color
	Label  string  // value label, e.g. "+4.2%" or "12.5K TON"
}

// Cell is one laid-out rectangle.
type Cell struct {
	Item
	X, Y, W, H float64
}

// Layout packs items into a widthxheight canvas using the squarified
// algorithm: items are placed largest-first in rows along the shorter
// side, each row accepting items while its worst aspect ratio improves.
// Items with non-positive weight are dropped. Cell areas are proportional
// to weights.
func Layout(items []Item, width, height float64) []Cell {
	if width <= 0 || height <= 0 {
		return nil
	}

	filtered := make([]Item, 0, len(items))
	var total float64
	for _, it := range items {
		if it.Weight > 0 {
			filtered = append(filtered, it)
			total += it.Weight
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Weight > filtered[j].Weight
	})

	// Scale weights so they sum to the canvas area.
	scale := width * height / total
	areas := make([]float64, len(filtered))
	for i, it := range filtered {
		areas[i] = it.Weight * scale
	}

	cells := make([]Cell, 0, len(filtered))
	x, y, w, h := 0.0, 0.0, width, height
	i := 0
	for i < len(filtered) {
		// Grow the current row while the worst aspect ratio improves.
		short := w
		if h < w {
			short = h
		}
		row := []float64{areas[i]}
		j := i + 1
		for j < len(filtered) {
			if worst(append(row, areas[j]), short) > worst(row, short) {
				break
			}
			row = append(row, areas[j])
			j++
		}

		cells = append(cells, placeRow(filtered[i:j], row, x, y, w, h)...)

		// Shrink the free rectangle by the row's thickness.
		rowArea := sum(row)
		if w >= h {
			thickness := rowArea / h
			x += thickness
			w -= thickness
		} else {
			thickness := rowArea / w
			y += thickness
			h -= thickness
		}
		i = j
	}
	return cells
}

// worst returns the worst (largest) aspect ratio a row of areas would
// have when laid along a side of the given length.
func worst(row []float64, side float64) float64 {
	if side <= 0 {
		return 1e18
	}
	total := sum(row)
	if total <= 0 {
		return 1e18
	}
	min, max := row[0], row[0]
	for _, a := range row[1:] {
		if a < min {
			min = a
		}
		if a > max {
			max = a
		}
	}
	s2 := side * side
	t2 := total * total
	r1 := s2 * max / t2
	r2 := t2 / (s2 * min)
	if r1 > r2 {
		return r1
	}
	return r2
}

// placeRow lays a finished row of items along the shorter side of the
// free rectangle at (x, y, w, h).
func placeRow(items []Item, areas []float64, x, y, w, h float64) []Cell {
	rowArea := sum(areas)
	cells := make([]Cell, 0, len(items))

	if w >= h {
		// Vertical strip on the left edge
		thickness := rowArea / h
		cy := y
		for k, it := range items {
			ch := areas[k] / thickness
			cells = append(cells, Cell{Item: it, X: x, Y: cy, W: thickness, H: ch})
			cy += ch
		}
	} else {
		// Horizontal strip on the top edge
		thickness := rowArea / w
		cx := x
		for k, it := range items {
			cw := areas[k] / thickness
			cells = append(cells, Cell{Item: it, X: cx, Y: y, W: cw, H: thickness})
			cx += cw
		}
	}
	return cells
}

func sum(vals []float64) float64 {
	var t float64
	for _, v := range vals {
		t += v
	}
	return t
}
