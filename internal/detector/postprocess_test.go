package detector

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// channelsFirst builds a [1, 4+nc, n] tensor from per-anchor rows.
func channelsFirst(nc int, rows [][]float32) ([]float32, []int64) {
	attrs := 4 + nc
	n := len(rows)
	out := make([]float32, attrs*n)
	for i, r := range rows {
		for a := 0; a < attrs; a++ {
			out[a*n+i] = r[a]
		}
	}
	return out, []int64{1, int64(attrs), int64(n)}
}

func TestDecode_FiltersAndScales(t *testing.T) {
	lb := Letterbox{Scale: 0.5, PadX: 0, PadY: 80}
	bounds := image.Rect(0, 0, 640, 320)
	output, shape := channelsFirst(2, [][]float32{
		{160, 160, 100, 50, 0.10, 0.90},
		{50, 100, 20, 20, 0.20, 0.10}, // below confidence
	})

	boxes, err := Decode(output, shape, 2, lb, bounds, DefaultOptions())

	require.NoError(t, err)
	require.Len(t, boxes, 1)
	b := boxes[0]
	assert.Equal(t, 1, b.ClassID)
	assert.InDelta(t, 0.9, b.Confidence, 1e-6)
	assert.InDelta(t, 220, b.X1, 1e-3)
	assert.InDelta(t, 110, b.Y1, 1e-3)
	assert.InDelta(t, 420, b.X2, 1e-3)
	assert.InDelta(t, 210, b.Y2, 1e-3)
}

func TestDecode_TransposedLayout(t *testing.T) {
	lb := Letterbox{Scale: 1}
	bounds := image.Rect(0, 0, 320, 320)
	// [1, anchors, 4+nc]
	output := []float32{
		100, 100, 40, 40, 0.8, 0.1, 0.0,
		200, 200, 40, 40, 0.0, 0.1, 0.7,
	}

	boxes, err := Decode(output, []int64{1, 2, 7}, 3, lb, bounds, DefaultOptions())

	require.NoError(t, err)
	require.Len(t, boxes, 2)
	assert.Equal(t, 0, boxes[0].ClassID)
	assert.Equal(t, 2, boxes[1].ClassID)
}

func TestDecode_ClampsToImage(t *testing.T) {
	lb := Letterbox{Scale: 1}
	output, shape := channelsFirst(1, [][]float32{{5, 5, 40, 40, 0.9}})

	boxes, err := Decode(output, shape, 1, lb, image.Rect(0, 0, 100, 100), DefaultOptions())

	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, float32(0), boxes[0].X1)
	assert.Equal(t, float32(0), boxes[0].Y1)
}

func TestDecode_ShapeMismatch(t *testing.T) {
	lb := Letterbox{Scale: 1}
	bounds := image.Rect(0, 0, 10, 10)

	_, err := Decode(make([]float32, 10), []int64{1, 10}, 6, lb, bounds, DefaultOptions())
	assert.Error(t, err)

	_, err = Decode(make([]float32, 90), []int64{1, 9, 10}, 6, lb, bounds, DefaultOptions())
	assert.Error(t, err, "9 attributes cannot carry 6 classes")

	_, err = Decode(make([]float32, 5), []int64{1, 10, 10}, 6, lb, bounds, DefaultOptions())
	assert.Error(t, err, "short buffer")
}

func TestNonMaxSuppression(t *testing.T) {
	boxes := []Box{
		{ClassID: 0, Confidence: 0.6, X1: 0, Y1: 0, X2: 10, Y2: 10},
		{ClassID: 0, Confidence: 0.9, X1: 1, Y1: 1, X2: 11, Y2: 11},
		{ClassID: 1, Confidence: 0.8, X1: 1, Y1: 1, X2: 11, Y2: 11}, // other class survives
		{ClassID: 0, Confidence: 0.7, X1: 50, Y1: 50, X2: 60, Y2: 60},
	}

	kept := NonMaxSuppression(boxes, 0.5, 300)

	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-6)
	assert.InDelta(t, 0.8, kept[1].Confidence, 1e-6)
	assert.InDelta(t, 0.7, kept[2].Confidence, 1e-6)
}

func TestNonMaxSuppression_MaxDetections(t *testing.T) {
	var boxes []Box
	for i := 0; i < 10; i++ {
		f := float32(i * 20)
		boxes = append(boxes, Box{Confidence: float32(i) / 10, X1: f, Y1: 0, X2: f + 10, Y2: 10})
	}

	kept := NonMaxSuppression(boxes, 0.7, 3)

	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-6)
}

func TestBox_IoU(t *testing.T) {
	a := Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	assert.InDelta(t, 1.0, a.IoU(a), 1e-6)
	assert.InDelta(t, 25.0/175.0, a.IoU(Box{X1: 5, Y1: 5, X2: 15, Y2: 15}), 1e-6)
	assert.Equal(t, float32(0), a.IoU(Box{X1: 20, Y1: 20, X2: 30, Y2: 30}))
}
