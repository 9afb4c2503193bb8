package overlay

import "math"

// Rect is a placement in PDF user space (points, origin bottom-left).
type Rect struct {
	X, Y, W, H float64
}

// Center returns the midpoint of r.
func (r Rect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// TilePlacements lays tiles of tw×th over a w×h page, stepping tw+gap and
// th+gap from origin in both axes. The last row and column may straddle the
// page edge. It returns nil for degenerate input.
func TilePlacements(w, h, tw, th, gap, origin float64) []Rect {
	cols, rows := tileGrid(w, h, tw, th, gap, origin)
	if cols == 0 || rows == 0 {
		return nil
	}
	out := make([]Rect, 0, cols*rows)
	for i := 0; i < cols; i++ {
		x := origin + float64(i)*(tw+gap)
		for j := 0; j < rows; j++ {
			y := origin + float64(j)*(th+gap)
			out = append(out, Rect{X: x, Y: y, W: tw, H: th})
		}
	}
	return out
}

// TileCount is ceil((w-origin)/(tw+gap)) * ceil((h-origin)/(th+gap)).
func TileCount(w, h, tw, th, gap, origin float64) int {
	cols, rows := tileGrid(w, h, tw, th, gap, origin)
	return cols * rows
}

func tileGrid(w, h, tw, th, gap, origin float64) (int, int) {
	if w <= 0 || h <= 0 || tw <= 0 || th <= 0 || gap < 0 || origin >= w || origin >= h {
		return 0, 0
	}
	cols := int(math.Ceil((w - origin) / (tw + gap)))
	rows := int(math.Ceil((h - origin) / (th + gap)))
	return cols, rows
}
