package models

// DetectResponse is the body returned by POST /detect/.
type DetectResponse struct {
	AnnotatedURL string            `json:"annotated_url"`
	Defects      []Detection       `json:"defects"`
	Metrics      ValidationMetrics `json:"metrics"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the body returned by GET /health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	Time    string   `json:"time"`
	Model   string   `json:"model"`
	Classes []string `json:"classes"`
}

// MetricsResponse is the body returned by GET /metrics.
type MetricsResponse struct {
	Validation ValidationMetrics      `json:"validation"`
	Requests   map[string]interface{} `json:"requests"`
	Pool       PoolStats              `json:"pool"`
}

// PoolStats is a point-in-time view of the inference worker pool.
type PoolStats struct {
	Workers       int   `json:"workers"`
	TotalJobs     int64 `json:"total_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	ActiveWorkers int64 `json:"active_workers"`
}
