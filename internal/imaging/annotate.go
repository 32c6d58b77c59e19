package imaging

import (
	"image"
	"image/color"
	"math"
)

// Label is one box to render with its caption.
type Label struct {
	Rect    image.Rectangle
	Text    string
	ClassID int
}

// Annotator renders labels onto a copy of an image; the input is never modified.
type Annotator interface {
	Annotate(img image.Image, labels []Label) (image.Image, error)
}

var palette = []color.RGBA{
	hexColor(0xFF3838), hexColor(0xFF9D97), hexColor(0xFF701F), hexColor(0xFFB21D),
	hexColor(0xCFD231), hexColor(0x48F90A), hexColor(0x92CC17), hexColor(0x3DDB86),
	hexColor(0x1A9334), hexColor(0x00D4BB), hexColor(0x2C99A8), hexColor(0x00C2FF),
	hexColor(0x344593), hexColor(0x6473FF), hexColor(0x0018EC), hexColor(0x8438FF),
	hexColor(0x520085), hexColor(0xCB38FF), hexColor(0xFF95C8), hexColor(0xFF37C7),
}

func hexColor(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}

// ClassColor returns a stable color for a class index.
func ClassColor(classID int) color.RGBA {
	if classID < 0 {
		classID = -classID
	}
	return palette[classID%len(palette)]
}

// lineWidth scales stroke width with image size, never thinner than 2px.
func lineWidth(bounds image.Rectangle) int {
	lw := int(math.Round(float64(bounds.Dx()+bounds.Dy()) / 2 * 0.003))
	if lw < 2 {
		return 2
	}
	return lw
}
