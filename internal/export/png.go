package export

import (
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"StudyBoard/internal/state"
)

const (
	pngMargin  = 16
	maxPNGSide = 4096
)

var regularFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(goregular.TTF)
})

// PNG writes ops on a white canvas sized to the board, at most maxPNGSide
// pixels on the longer side.
func PNG(w io.Writer, ops []state.Operation) error {
	font, err := regularFont()
	if err != nil {
		return fmt.Errorf("load font: %w", err)
	}
	width, height := canvasSize(state.Bounds(ops))
	f := fit(ops, float64(width), float64(height), pngMargin)
	if f.scale > 1 {
		f.scale = 1
	}

	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetLineCapRound()
	dc.SetLineJoinRound()

	for _, op := range ops {
		switch o := op.(type) {
		case *state.Draw:
			drawPNGStroke(dc, f, o)
		case *state.Text:
			dc.SetColor(o.Color.NRGBA())
			dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: f.size(fontSize(o))}))
			dc.DrawString(o.Text, f.x(o.Position.X), f.y(o.Position.Y))
		}
	}

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

func canvasSize(b state.Rect) (int, int) {
	if b.Empty() {
		return 2 * pngMargin, 2 * pngMargin
	}
	w := float64(b.Width) + 2*pngMargin
	h := float64(b.Height) + 2*pngMargin
	if long := max(w, h); long > maxPNGSide {
		w, h = w*maxPNGSide/long, h*maxPNGSide/long
	}
	return int(math.Ceil(w)), int(math.Ceil(h))
}

func drawPNGStroke(dc *gg.Context, f frame, d *state.Draw) {
	if len(d.Points) == 0 {
		return
	}
	dc.SetColor(d.Color.NRGBA())
	width := max(f.size(d.StrokeWidth), 1)

	if len(d.Points) == 1 {
		dc.DrawCircle(f.x(d.Points[0].X), f.y(d.Points[0].Y), width/2)
		dc.Fill()
		return
	}
	dc.SetLineWidth(width)
	dc.MoveTo(f.x(d.Points[0].X), f.y(d.Points[0].Y))
	for _, pt := range d.Points[1:] {
		dc.LineTo(f.x(pt.X), f.y(pt.Y))
	}
	dc.Stroke()
}
