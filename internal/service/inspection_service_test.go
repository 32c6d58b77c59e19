package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
	"github.com/anime-shed/defect-inspector-go/internal/detector/detectortest"
	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
	"github.com/anime-shed/defect-inspector-go/internal/observer"
	"github.com/anime-shed/defect-inspector-go/internal/repository"
	"github.com/anime-shed/defect-inspector-go/internal/storage"
	"github.com/anime-shed/defect-inspector-go/pkg/models"
)

var pcbNames = []string{"missing_hole", "mouse_bite", "open_circuit", "short", "spur", "spurious_copper"}

var startupMetrics = models.ValidationMetrics{
	"precision(B)": 0.91, "recall(B)": 0.87, "mAP50(B)": 0.9, "mAP50-95(B)": 0.52,
}

type fixture struct {
	service      InspectionService
	engine       *detectortest.Engine
	uploadDir    string
	inspectedDir string
	events       *recorder
}

type recorder struct {
	mu     sync.Mutex
	events []observer.InspectionEvent
}

func (r *recorder) OnEvent(_ context.Context, e observer.InspectionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) GetObserverName() string { return "recorder" }

func (r *recorder) has(t observer.EventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventType == t {
			return true
		}
	}
	return false
}

func newFixture(t *testing.T, anchors ...detectortest.Anchor) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		engine:       &detectortest.Engine{NumClasses: len(pcbNames), Anchors: anchors},
		uploadDir:    filepath.Join(root, "uploads"),
		inspectedDir: filepath.Join(root, "inspected"),
		events:       &recorder{},
	}

	uploads, err := storage.NewDirectoryStore(f.uploadDir)
	require.NoError(t, err)
	inspected, err := storage.NewDirectoryStore(f.inspectedDir)
	require.NoError(t, err)

	det, err := detector.NewDetector(f.engine, pcbNames, detector.DefaultOptions())
	require.NoError(t, err)

	pool := detector.NewWorkerPool(2)
	pool.Start()
	t.Cleanup(pool.Close)

	events := observer.NewEventPublisher()
	events.Subscribe(f.events)

	f.service = NewInspectionService(repository.NewFileImageRepository(uploads, inspected), det, pool, startupMetrics, events)
	return f
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{30, 110, 50, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestInspect_ReturnsDefectsAndWritesAnnotatedImage(t *testing.T) {
	f := newFixture(t,
		detectortest.Anchor{CX: 160, CY: 160, W: 80, H: 40, ClassID: 3, Score: 0.88},
		detectortest.Anchor{CX: 60, CY: 60, W: 30, H: 30, ClassID: 0, Score: 0.42},
	)

	resp, err := f.service.Inspect(context.Background(), "board.png", bytes.NewReader(pngBytes(t, 320, 320)))
	require.NoError(t, err)

	require.Len(t, resp.Defects, 2)
	assert.Equal(t, "short", resp.Defects[0].Class)
	assert.InDelta(t, 0.88, resp.Defects[0].Confidence, 1e-6)
	assert.Equal(t, "missing_hole", resp.Defects[1].Class)
	assert.Equal(t, startupMetrics, resp.Metrics)

	require.True(t, strings.HasPrefix(resp.AnnotatedURL, "/inspected/"))
	name := strings.TrimPrefix(resp.AnnotatedURL, "/inspected/")
	assert.True(t, strings.HasSuffix(name, "_annotated.png"))
	_, err = os.Stat(filepath.Join(f.inspectedDir, name))
	assert.NoError(t, err)

	uploads, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, ".png", filepath.Ext(uploads[0].Name()))

	assert.Eventually(t, func() bool { return f.events.has(observer.InspectionCompleted) }, time.Second, 5*time.Millisecond)
}

func TestInspect_NoDefectsIsEmptyList(t *testing.T) {
	f := newFixture(t)

	resp, err := f.service.Inspect(context.Background(), "clean.png", bytes.NewReader(pngBytes(t, 64, 48)))

	require.NoError(t, err)
	assert.NotNil(t, resp.Defects)
	assert.Empty(t, resp.Defects)
}

func TestInspect_UndecodableUploadIsInferenceError(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Inspect(context.Background(), "notes.txt", strings.NewReader("not an image"))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInference))
	assert.Equal(t, 500, apperrors.GetStatusCode(err))

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, strings.HasPrefix(appErr.Detail(), "Inference error: "), appErr.Detail())

	uploads, _ := os.ReadDir(f.uploadDir)
	assert.Len(t, uploads, 1, "upload stays on disk")
	inspected, _ := os.ReadDir(f.inspectedDir)
	assert.Empty(t, inspected)
	assert.Equal(t, 0, f.engine.Calls())

	assert.Eventually(t, func() bool { return f.events.has(observer.InspectionFailed) }, time.Second, 5*time.Millisecond)
}

func TestInspect_MissingExtensionIsAnnotationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Inspect(context.Background(), "board", bytes.NewReader(pngBytes(t, 32, 32)))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Annotation error", appErr.Message)
}

func TestInspect_IgnoresClientCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := f.service.Inspect(ctx, "board.png", bytes.NewReader(pngBytes(t, 32, 32)))

	require.NoError(t, err)
	assert.NotEmpty(t, resp.AnnotatedURL)
}

func TestInspect_MetricsAreStable(t *testing.T) {
	f := newFixture(t)

	first, err := f.service.Inspect(context.Background(), "a.png", bytes.NewReader(pngBytes(t, 32, 32)))
	require.NoError(t, err)
	first.Metrics["mAP50(B)"] = 0

	second, err := f.service.Inspect(context.Background(), "a.png", bytes.NewReader(pngBytes(t, 32, 32)))
	require.NoError(t, err)

	assert.Equal(t, startupMetrics, second.Metrics)
	assert.Equal(t, startupMetrics, f.service.ValidationMetrics())
	assert.NotEqual(t, first.AnnotatedURL, second.AnnotatedURL)
}

func TestAnnotatedImagePath(t *testing.T) {
	f := newFixture(t)
	resp, err := f.service.Inspect(context.Background(), "a.jpg", bytes.NewReader(pngBytes(t, 32, 32)))
	require.NoError(t, err)

	name := strings.TrimPrefix(resp.AnnotatedURL, "/inspected/")
	path, err := f.service.AnnotatedImagePath(name)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.inspectedDir, name), path)

	for _, bad := range []string{"missing_annotated.jpg", "../uploads/x.jpg", "", ".."} {
		_, err := f.service.AnnotatedImagePath(bad)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound), "%q: %v", bad, err)
	}
}

func TestClassNames(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, pcbNames, f.service.ClassNames())
}
