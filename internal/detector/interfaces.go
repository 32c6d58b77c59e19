package detector

import (
	"context"
	"image"
)

// Detector is the pretrained object-detection model as seen by the service.
type Detector interface {
	// Predict runs inference on the image stored at imagePath with the default options.
	Predict(ctx context.Context, imagePath string) (*Result, error)

	// PredictWithOptions runs inference with explicit thresholds and resolution.
	PredictWithOptions(ctx context.Context, imagePath string, options PredictOptions) (*Result, error)

	// Names is the class-index-to-name table.
	Names() []string

	// Plot renders the result's boxes and labels onto a copy of its source image.
	Plot(result *Result) (image.Image, error)

	Close() error
}

// Engine executes the raw network: a [1,3,size,size] float32 tensor in, one output tensor out.
type Engine interface {
	Run(input []float32, size int) (output []float32, shape []int64, err error)

	// InputSize is the fixed square input edge, or 0 when the model accepts any size.
	InputSize() int

	// Metadata is the model's custom key/value metadata.
	Metadata() map[string]string

	Close() error
}
