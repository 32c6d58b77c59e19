package models

// Upload is an image file received from a client, stored as-is under a random name.
type Upload struct {
	OriginalFilename string `json:"original_filename"`
	Ext              string `json:"ext"`
	ID               string `json:"id"`
	Path             string `json:"path"`
}

// Detection is one defect finding as reported to clients.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// AnnotatedImage is the upload re-rendered with detection boxes.
type AnnotatedImage struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	URL      string `json:"url"`
}

// ValidationMetrics maps metric name (e.g. "mAP50(B)") to its value.
// Computed once at startup and never mutated afterwards.
type ValidationMetrics map[string]float64

// Clone returns an independent copy.
func (m ValidationMetrics) Clone() ValidationMetrics {
	out := make(ValidationMetrics, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
