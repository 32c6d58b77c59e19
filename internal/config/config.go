package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	AllowedOrigins     []string

	ModelPath      string
	DataYAML       string
	OnnxRuntimeLib string
	ImageSize      int
	ValBatchSize   int
	Workers        int
	// IntraThreads caps onnxruntime's intra-op threads; 0 keeps the runtime default.
	IntraThreads   int

	UploadDir    string
	InspectedDir string
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// LoadFromEnv reads an optional .env file and then the process environment.
func LoadFromEnv() (*Config, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8000"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 120*time.Second),
		ShutdownTimeout:    parseDurationOrDefault("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 0), // 0 disables the limit
		AllowedOrigins:     parseListOrDefault("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		ModelPath:      getEnvOrDefault("MODEL_PATH", "runs/detect/pcb_defect_yolov8n2/weights/best.onnx"),
		DataYAML:       getEnvOrDefault("DATA_YAML", "dataset/data.yaml"),
		OnnxRuntimeLib: getEnvOrDefault("ONNXRUNTIME_LIB", defaultOnnxRuntimeLib()),
		ImageSize:      int(parseIntOrDefault("IMAGE_SIZE", 320)),
		ValBatchSize:   int(parseIntOrDefault("VAL_BATCH_SIZE", 4)),
		Workers:        int(parseIntOrDefault("INFERENCE_WORKERS", int64(runtime.NumCPU()))),
		IntraThreads:   int(parseIntOrDefault("ONNX_INTRA_THREADS", 0)),

		UploadDir:    getEnvOrDefault("UPLOAD_DIR", "uploads"),
		InspectedDir: getEnvOrDefault("INSPECTED_DIR", "inspected"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that would otherwise surface as confusing runtime failures.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize < 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be >= 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, shutdown=%s)",
			c.RequestTimeout, c.ShutdownTimeout)
	}
	// YOLO strides top out at 32
	if c.ImageSize <= 0 || c.ImageSize%32 != 0 {
		return fmt.Errorf("IMAGE_SIZE must be a positive multiple of 32 (got %d)", c.ImageSize)
	}
	if c.ValBatchSize <= 0 {
		return fmt.Errorf("VAL_BATCH_SIZE must be > 0 (got %d)", c.ValBatchSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("INFERENCE_WORKERS must be > 0 (got %d)", c.Workers)
	}
	if c.IntraThreads < 0 {
		return fmt.Errorf("ONNX_INTRA_THREADS must be >= 0 (got %d)", c.IntraThreads)
	}
	if strings.TrimSpace(c.ModelPath) == "" || strings.TrimSpace(c.DataYAML) == "" {
		return fmt.Errorf("MODEL_PATH and DATA_YAML are required")
	}
	if strings.TrimSpace(c.UploadDir) == "" || strings.TrimSpace(c.InspectedDir) == "" {
		return fmt.Errorf("UPLOAD_DIR and INSPECTED_DIR are required")
	}
	return nil
}

func defaultOnnxRuntimeLib() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/local/lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "/usr/local/lib/libonnxruntime.so"
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
