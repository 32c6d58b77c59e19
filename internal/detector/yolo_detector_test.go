package detector

import (
	"context"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/defect-inspector-go/internal/detector/detectortest"
)

var pcbNames = []string{"missing_hole", "mouse_bite", "open_circuit", "short", "spur", "spurious_copper"}

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, "board.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, solidImage(w, h, color.RGBA{20, 120, 40, 255})))
	return path
}

func TestNewDetector_Validation(t *testing.T) {
	_, err := NewDetector(nil, pcbNames, DefaultOptions())
	assert.Error(t, err)

	_, err = NewDetector(&detectortest.Engine{NumClasses: 6}, nil, DefaultOptions())
	assert.Error(t, err)

	_, err = NewDetector(&detectortest.Engine{NumClasses: 6, Size: 640}, pcbNames, DefaultOptions())
	assert.Error(t, err, "static 640 model with 320 configured")

	_, err = NewDetector(&detectortest.Engine{NumClasses: 6, Size: 320}, pcbNames, DefaultOptions())
	assert.NoError(t, err)
}

func TestPredict_MapsBoxesToSourceImage(t *testing.T) {
	engine := &detectortest.Engine{
		NumClasses: len(pcbNames),
		Anchors: []detectortest.Anchor{
			{CX: 160, CY: 160, W: 100, H: 50, ClassID: 3, Score: 0.91},
			{CX: 40, CY: 120, W: 20, H: 20, ClassID: 0, Score: 0.55},
			{CX: 300, CY: 200, W: 10, H: 10, ClassID: 1, Score: 0.05},
		},
	}
	det, err := NewDetector(engine, pcbNames, DefaultOptions())
	require.NoError(t, err)

	result, err := det.Predict(context.Background(), writePNG(t, t.TempDir(), 640, 320))

	require.NoError(t, err)
	require.Len(t, result.Boxes, 2)
	assert.Equal(t, "short", result.ClassName(result.Boxes[0]))
	assert.Equal(t, "missing_hole", result.ClassName(result.Boxes[1]))
	assert.InDelta(t, 220, result.Boxes[0].X1, 1e-3)
	assert.InDelta(t, 110, result.Boxes[0].Y1, 1e-3)
	assert.Equal(t, 1, engine.Calls())
}

func TestPredictWithOptions_LowConfidenceKeepsMore(t *testing.T) {
	engine := &detectortest.Engine{
		NumClasses: len(pcbNames),
		Anchors: []detectortest.Anchor{
			{CX: 160, CY: 160, W: 100, H: 50, ClassID: 3, Score: 0.91},
			{CX: 300, CY: 200, W: 10, H: 10, ClassID: 1, Score: 0.05},
		},
	}
	det, err := NewDetector(engine, pcbNames, DefaultOptions())
	require.NoError(t, err)

	result, err := det.PredictWithOptions(context.Background(), writePNG(t, t.TempDir(), 320, 320), ValidationOptions())

	require.NoError(t, err)
	assert.Len(t, result.Boxes, 2)
}

func TestPredict_NoDetections(t *testing.T) {
	det, err := NewDetector(&detectortest.Engine{NumClasses: len(pcbNames)}, pcbNames, DefaultOptions())
	require.NoError(t, err)

	result, err := det.Predict(context.Background(), writePNG(t, t.TempDir(), 64, 64))

	require.NoError(t, err)
	assert.Empty(t, result.Boxes)
}

func TestPredict_Failures(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "notes.jpg")
	require.NoError(t, os.WriteFile(garbage, []byte("not an image"), 0o644))

	det, err := NewDetector(&detectortest.Engine{NumClasses: len(pcbNames)}, pcbNames, DefaultOptions())
	require.NoError(t, err)
	_, err = det.Predict(context.Background(), garbage)
	assert.ErrorContains(t, err, "cannot decode image")

	broken := &detectortest.Engine{NumClasses: len(pcbNames), Err: errors.New("session exploded")}
	det, err = NewDetector(broken, pcbNames, DefaultOptions())
	require.NoError(t, err)
	_, err = det.Predict(context.Background(), writePNG(t, dir, 32, 32))
	assert.ErrorContains(t, err, "session exploded")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = det.Predict(ctx, writePNG(t, dir, 32, 32))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlot(t *testing.T) {
	engine := &detectortest.Engine{
		NumClasses: len(pcbNames),
		Anchors:    []detectortest.Anchor{{CX: 160, CY: 160, W: 100, H: 100, ClassID: 4, Score: 0.8}},
	}
	det, err := NewDetector(engine, pcbNames, DefaultOptions())
	require.NoError(t, err)
	result, err := det.Predict(context.Background(), writePNG(t, t.TempDir(), 320, 320))
	require.NoError(t, err)

	annotated, err := det.Plot(result)

	require.NoError(t, err)
	assert.Equal(t, result.Image.Bounds(), annotated.Bounds())
	assert.NotEqual(t, result.Image.At(110, 160), annotated.At(110, 160), "left box edge is painted")

	_, err = det.Plot(&Result{})
	assert.Error(t, err)
}

func TestNames_ReturnsCopy(t *testing.T) {
	det, err := NewDetector(&detectortest.Engine{NumClasses: len(pcbNames)}, pcbNames, DefaultOptions())
	require.NoError(t, err)

	names := det.Names()
	names[0] = "mutated"
	assert.Equal(t, "missing_hole", det.Names()[0])
}

func TestClose_ClosesEngine(t *testing.T) {
	engine := &detectortest.Engine{NumClasses: len(pcbNames)}
	det, err := NewDetector(engine, pcbNames, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, det.Close())
	assert.True(t, engine.Closed())
}
