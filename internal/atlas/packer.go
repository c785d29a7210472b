package atlas

// Rect is a pixel rectangle inside an atlas page.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) empty() bool { return r.W <= 0 || r.H <= 0 }

// guillotine packs rectangles into one page. Free space is a list of
// disjoint rectangles; each placement takes the first free rectangle that
// fits and splits the remainder in two along the shorter leftover axis.
type guillotine struct {
	size     int
	free     []Rect
	usedArea int
}

func newGuillotine(size int) *guillotine {
	return &guillotine{
		size: size,
		free: []Rect{{X: 0, Y: 0, W: size, H: size}},
	}
}

// insert places a w×h rectangle and returns its position.
func (g *guillotine) insert(w, h int) (Rect, bool) {
	for i, fr := range g.free {
		if w > fr.W || h > fr.H {
			continue
		}
		placed := Rect{X: fr.X, Y: fr.Y, W: w, H: h}

		var right, bottom Rect
		if fr.W-w < fr.H-h {
			// Horizontal cut: the right piece keeps the placed height.
			right = Rect{X: fr.X + w, Y: fr.Y, W: fr.W - w, H: h}
			bottom = Rect{X: fr.X, Y: fr.Y + h, W: fr.W, H: fr.H - h}
		} else {
			// Vertical cut: the right piece keeps the full height.
			right = Rect{X: fr.X + w, Y: fr.Y, W: fr.W - w, H: fr.H}
			bottom = Rect{X: fr.X, Y: fr.Y + h, W: w, H: fr.H - h}
		}

		rest := make([]Rect, 0, 2)
		if !right.empty() {
			rest = append(rest, right)
		}
		if !bottom.empty() {
			rest = append(rest, bottom)
		}
		g.free = append(g.free[:i], append(rest, g.free[i+1:]...)...)
		g.usedArea += w * h
		return placed, true
	}
	return Rect{}, false
}

// utilization returns the used fraction of the page (0.0 to 1.0).
func (g *guillotine) utilization() float64 {
	return float64(g.usedArea) / float64(g.size*g.size)
}
