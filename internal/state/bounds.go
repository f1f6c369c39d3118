package state

import "unicode/utf8"

// Rect is an axis-aligned area of the canvas.
type Rect struct {
	X      float32
	Y      float32
	Width  float32
	Height float32
}

// Empty reports whether the rect covers no area.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Union returns the smallest rect covering both r and b.
func (r Rect) Union(b Rect) Rect {
	if r.Empty() {
		return b
	}
	if b.Empty() {
		return r
	}
	minX, minY := min(r.X, b.X), min(r.Y, b.Y)
	maxX := max(r.X+r.Width, b.X+b.Width)
	maxY := max(r.Y+r.Height, b.Y+b.Height)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Extent returns the area covered by a single operation, padded by half its
// stroke width. Erase and Clear cover nothing.
func Extent(op Operation) Rect {
	switch o := op.(type) {
	case *Draw:
		if len(o.Points) == 0 {
			return Rect{}
		}
		minX, minY := o.Points[0].X, o.Points[0].Y
		maxX, maxY := minX, minY
		for _, p := range o.Points[1:] {
			minX, maxX = min(minX, p.X), max(maxX, p.X)
			minY, maxY = min(minY, p.Y), max(maxY, p.Y)
		}
		pad := max(o.StrokeWidth/2, 1)
		return Rect{
			X:      minX - pad,
			Y:      minY - pad,
			Width:  maxX - minX + 2*pad,
			Height: maxY - minY + 2*pad,
		}
	case *Text:
		// Rough glyph box; the baseline sits at Position.Y.
		w := float32(utf8.RuneCountInString(o.Text)) * o.FontSize * 0.6
		return Rect{X: o.Position.X, Y: o.Position.Y - o.FontSize, Width: max(w, 1), Height: o.FontSize * 1.2}
	}
	return Rect{}
}

// Bounds returns the area covered by all ops.
func Bounds(ops []Operation) Rect {
	var r Rect
	for _, op := range ops {
		r = r.Union(Extent(op))
	}
	return r
}
