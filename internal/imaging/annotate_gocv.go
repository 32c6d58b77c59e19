//go:build gocv

package imaging

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

type gocvAnnotator struct{}

// NewAnnotator returns the OpenCV-backed annotator.
func NewAnnotator() Annotator {
	return gocvAnnotator{}
}

func (gocvAnnotator) Annotate(img image.Image, labels []Label) (image.Image, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())
	lw := lineWidth(bounds)
	scale := float64(lw) / 3
	for _, l := range labels {
		rect := l.Rect.Sub(img.Bounds().Min).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		c := ClassColor(l.ClassID)
		// Mat channels are BGR
		bgr := color.RGBA{R: c.B, G: c.G, B: c.R, A: c.A}
		gocv.Rectangle(&mat, rect, bgr, lw)

		if l.Text == "" {
			continue
		}
		size := gocv.GetTextSize(l.Text, gocv.FontHersheySimplex, scale, 1)
		top := rect.Min.Y - size.Y - 6
		if top < 0 {
			top = rect.Min.Y
		}
		gocv.Rectangle(&mat, image.Rect(rect.Min.X, top, rect.Min.X+size.X+4, top+size.Y+6), bgr, -1)
		gocv.PutText(&mat, l.Text, image.Pt(rect.Min.X+2, top+size.Y+2),
			gocv.FontHersheySimplex, scale, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 1)
	}
	return mat.ToImage()
}
