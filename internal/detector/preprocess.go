package detector

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/nfnt/resize"
)

// letterboxFill is the neutral gray YOLO models are trained with around padded images.
var letterboxFill = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Letterbox records how an image was mapped into the square network input.
type Letterbox struct {
	Scale float64
	PadX  int
	PadY  int
}

// Unscale maps a point from network input space back to the source image.
func (lb Letterbox) Unscale(x, y float32) (float32, float32) {
	return float32((float64(x) - float64(lb.PadX)) / lb.Scale),
		float32((float64(y) - float64(lb.PadY)) / lb.Scale)
}

// LetterboxImage resizes img to fit a size×size square, keeping aspect ratio and
// centering it on a gray canvas.
func LetterboxImage(img image.Image, size int) (*image.RGBA, Letterbox) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	newW := int(math.Round(float64(w) * scale))
	newH := int(math.Round(float64(h) * scale))
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Bilinear)

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(letterboxFill), image.Point{}, draw.Src)

	lb := Letterbox{Scale: scale, PadX: (size - newW) / 2, PadY: (size - newH) / 2}
	dst := image.Rect(lb.PadX, lb.PadY, lb.PadX+newW, lb.PadY+newH)
	draw.Draw(canvas, dst, resized, resized.Bounds().Min, draw.Src)
	return canvas, lb
}

// ToTensor flattens an RGBA square into planar RGB floats scaled to [0,1] (NCHW, N=1).
func ToTensor(img *image.RGBA) []float32 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	channelSize := w * h
	data := make([]float32, channelSize*3)
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	i := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			red[i] = float32(row[x*4]) / 255.0
			green[i] = float32(row[x*4+1]) / 255.0
			blue[i] = float32(row[x*4+2]) / 255.0
			i++
		}
	}
	return data
}
