package detector

// PredictOptions controls one inference call.
type PredictOptions struct {
	// ImageSize is the square letterbox edge fed to the network.
	ImageSize int

	// Confidence drops candidates whose best class score is below it.
	Confidence float32

	// IoU is the non-maximum suppression overlap threshold.
	IoU float32

	// MaxDetections caps the number of boxes kept per image.
	MaxDetections int
}

// DefaultOptions returns the thresholds used for client requests.
func DefaultOptions() PredictOptions {
	return PredictOptions{
		ImageSize:     320,
		Confidence:    0.25,
		IoU:           0.7,
		MaxDetections: 300,
	}
}

// ValidationOptions keeps nearly every candidate so precision/recall curves cover
// the whole confidence range.
func ValidationOptions() PredictOptions {
	opts := DefaultOptions()
	opts.Confidence = 0.001
	return opts
}

// WithImageSize returns options with a different input resolution
func (opts PredictOptions) WithImageSize(size int) PredictOptions {
	opts.ImageSize = size
	return opts
}

// normalized fills zero fields from DefaultOptions.
func (opts PredictOptions) normalized() PredictOptions {
	def := DefaultOptions()
	if opts.ImageSize <= 0 {
		opts.ImageSize = def.ImageSize
	}
	if opts.IoU <= 0 {
		opts.IoU = def.IoU
	}
	if opts.MaxDetections <= 0 {
		opts.MaxDetections = def.MaxDetections
	}
	return opts
}
