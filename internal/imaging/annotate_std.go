//go:build !gocv

package imaging

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type stdAnnotator struct {
	face font.Face
}

// NewAnnotator returns the pure-Go annotator.
func NewAnnotator() Annotator {
	return &stdAnnotator{face: basicfont.Face7x13}
}

func (a *stdAnnotator) Annotate(img image.Image, labels []Label) (image.Image, error) {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	lw := lineWidth(bounds)
	for _, l := range labels {
		rect := l.Rect.Intersect(bounds)
		if rect.Empty() {
			continue
		}
		c := ClassColor(l.ClassID)
		strokeRect(dst, rect, lw, c)
		if l.Text != "" {
			a.caption(dst, rect, l.Text, c)
		}
	}
	return dst, nil
}

func strokeRect(dst draw.Image, r image.Rectangle, lw int, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+lw),
		image.Rect(r.Min.X, r.Max.Y-lw, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+lw, r.Max.Y),
		image.Rect(r.Max.X-lw, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// caption draws the text on a filled tab above the box, or inside it at the top edge.
func (a *stdAnnotator) caption(dst *image.RGBA, box image.Rectangle, text string, c color.Color) {
	d := &font.Drawer{Dst: dst, Src: image.White, Face: a.face}
	metrics := a.face.Metrics()
	textW := d.MeasureString(text).Ceil()
	textH := (metrics.Ascent + metrics.Descent).Ceil()
	const pad = 2

	top := box.Min.Y - textH - 2*pad
	if top < dst.Bounds().Min.Y {
		top = box.Min.Y
	}
	tab := image.Rect(box.Min.X, top, box.Min.X+textW+2*pad, top+textH+2*pad).Intersect(dst.Bounds())
	draw.Draw(dst, tab, image.NewUniform(c), image.Point{}, draw.Src)

	d.Dot = fixed.P(box.Min.X+pad, top+pad+metrics.Ascent.Ceil())
	d.DrawString(text)
}
