package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"StudyBoard/internal/state"
)

const (
	pdfMargin = 10.0 // mm
	mmPerPt   = 25.4 / 72
)

// PDF writes ops onto a single landscape A4 page, scaled to fit.
func PDF(w io.Writer, ops []state.Operation) error {
	p := gofpdf.New("L", "mm", "A4", "")
	p.SetTitle("StudyBoard whiteboard", true)
	p.AddPage()
	pageW, pageH := p.GetPageSize()
	f := fit(ops, pageW, pageH, pdfMargin)

	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")
	tr := p.UnicodeTranslatorFromDescriptor("")

	for _, op := range ops {
		switch o := op.(type) {
		case *state.Draw:
			drawPDFStroke(p, f, o)
		case *state.Text:
			r, g, b, a := o.Color.RGBA()
			p.SetAlpha(float64(a)/255, "Normal")
			p.SetTextColor(int(r), int(g), int(b))
			p.SetFont("Helvetica", "", f.size(fontSize(o))/mmPerPt)
			p.Text(f.x(o.Position.X), f.y(o.Position.Y), tr(o.Text))
		}
	}
	p.SetAlpha(1, "Normal")

	if err := p.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func drawPDFStroke(p *gofpdf.Fpdf, f frame, d *state.Draw) {
	if len(d.Points) == 0 {
		return
	}
	r, g, b, a := d.Color.RGBA()
	p.SetAlpha(float64(a)/255, "Normal")
	p.SetDrawColor(int(r), int(g), int(b))
	p.SetFillColor(int(r), int(g), int(b))
	width := f.size(d.StrokeWidth)
	p.SetLineWidth(width)

	if len(d.Points) == 1 {
		p.Circle(f.x(d.Points[0].X), f.y(d.Points[0].Y), width/2, "F")
		return
	}
	p.MoveTo(f.x(d.Points[0].X), f.y(d.Points[0].Y))
	for _, pt := range d.Points[1:] {
		p.LineTo(f.x(pt.X), f.y(pt.Y))
	}
	p.DrawPath("D")
}
