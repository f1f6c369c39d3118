// Package export renders a whiteboard's visible operations to PDF or PNG.
package export

import (
	"StudyBoard/internal/state"
)

// frame maps canvas coordinates onto an output surface, keeping the aspect
// ratio and leaving margin on every side.
type frame struct {
	bounds state.Rect
	scale  float64
	margin float64
}

// fit returns the frame that places ops on a surface of the given size.
// An empty board maps 1:1.
func fit(ops []state.Operation, width, height, margin float64) frame {
	b := state.Bounds(ops)
	if b.Empty() {
		return frame{scale: 1, margin: margin}
	}
	sx := (width - 2*margin) / float64(b.Width)
	sy := (height - 2*margin) / float64(b.Height)
	return frame{bounds: b, scale: min(sx, sy), margin: margin}
}

func (f frame) x(v float32) float64 { return f.margin + float64(v-f.bounds.X)*f.scale }
func (f frame) y(v float32) float64 { return f.margin + float64(v-f.bounds.Y)*f.scale }

func (f frame) size(v float32) float64 { return float64(v) * f.scale }

// fontSize falls back to the default for texts built without one.
func fontSize(t *state.Text) float32 {
	if t.FontSize <= 0 {
		return state.DefaultFontSize
	}
	return t.FontSize
}
