package detector

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/anime-shed/defect-inspector-go/internal/imaging"
)

// yoloDetector wraps an Engine with the YOLO pre/post-processing and plotting.
type yoloDetector struct {
	engine    Engine
	codec     imaging.Codec
	annotator imaging.Annotator
	names     []string
	options   PredictOptions
}

// NewDetector builds a Detector over engine. names is the pinned class table and
// defaults are the options Predict uses.
func NewDetector(engine Engine, names []string, defaults PredictOptions) (Detector, error) {
	if engine == nil {
		return nil, fmt.Errorf("detector: nil engine")
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("detector: empty class table")
	}
	defaults = defaults.normalized()
	if size := engine.InputSize(); size > 0 && size != defaults.ImageSize {
		return nil, fmt.Errorf("detector: model input is fixed at %d, configured image size is %d", size, defaults.ImageSize)
	}

	return &yoloDetector{
		engine:    engine,
		codec:     imaging.NewCodec(),
		annotator: imaging.NewAnnotator(),
		names:     append([]string(nil), names...),
		options:   defaults,
	}, nil
}

func (d *yoloDetector) Predict(ctx context.Context, imagePath string) (*Result, error) {
	return d.PredictWithOptions(ctx, imagePath, d.options)
}

func (d *yoloDetector) PredictWithOptions(ctx context.Context, imagePath string, options PredictOptions) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options = options.normalized()

	img, err := d.codec.Read(imagePath)
	if err != nil {
		return nil, fmt.Errorf("cannot decode image %s: %w", imagePath, err)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("image %s has no pixels", imagePath)
	}

	start := time.Now()
	boxed, lb := LetterboxImage(img, options.ImageSize)
	output, shape, err := d.engine.Run(ToTensor(boxed), options.ImageSize)
	if err != nil {
		return nil, err
	}
	boxes, err := Decode(output, shape, len(d.names), lb, bounds, options)
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:      imagePath,
		Image:     img,
		Boxes:     boxes,
		Names:     d.names,
		Inference: time.Since(start),
	}, nil
}

func (d *yoloDetector) Names() []string {
	return append([]string(nil), d.names...)
}

func (d *yoloDetector) Plot(result *Result) (image.Image, error) {
	if result == nil || result.Image == nil {
		return nil, fmt.Errorf("plot: result has no source image")
	}
	labels := make([]imaging.Label, 0, len(result.Boxes))
	for _, b := range result.Boxes {
		labels = append(labels, imaging.Label{
			Rect:    b.Rect().Add(result.Image.Bounds().Min),
			Text:    fmt.Sprintf("%s %.2f", result.ClassName(b), b.Confidence),
			ClassID: b.ClassID,
		})
	}
	return d.annotator.Annotate(result.Image, labels)
}

func (d *yoloDetector) Close() error {
	return d.engine.Close()
}
