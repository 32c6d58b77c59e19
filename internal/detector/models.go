package detector

import (
	"image"
	"time"

	"github.com/anime-shed/defect-inspector-go/pkg/models"
)

// PoolStats is shared with the transport layer
type PoolStats = models.PoolStats

// Box is one detection in original-image pixel coordinates.
type Box struct {
	ClassID    int
	Confidence float32
	X1, Y1     float32
	X2, Y2     float32
}

// Rect rounds the box to integral pixels.
func (b Box) Rect() image.Rectangle {
	return image.Rect(int(b.X1+0.5), int(b.Y1+0.5), int(b.X2+0.5), int(b.Y2+0.5)).Canon()
}

// IoU is the intersection-over-union of two boxes.
func (b Box) IoU(other Box) float32 {
	ix1, iy1 := max(b.X1, other.X1), max(b.Y1, other.Y1)
	ix2, iy2 := min(b.X2, other.X2), min(b.Y2, other.Y2)
	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := b.area() + other.area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func (b Box) area() float32 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Result is the output of one prediction. Boxes are in emission order:
// descending confidence after non-maximum suppression.
type Result struct {
	Path      string
	Image     image.Image
	Boxes     []Box
	Names     []string
	Inference time.Duration
}

// ClassName resolves a box's class index through the result's class table.
func (r *Result) ClassName(b Box) string {
	if b.ClassID >= 0 && b.ClassID < len(r.Names) {
		return r.Names[b.ClassID]
	}
	return ""
}
