package transport

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/config"
	"github.com/anime-shed/defect-inspector-go/internal/detector"
	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/observer"
	"github.com/anime-shed/defect-inspector-go/internal/service"
	"github.com/anime-shed/defect-inspector-go/pkg/models"
)

const version = "1.0.0"

// uploadField is the multipart form field carrying the image.
const uploadField = "file"

// Dependencies are the collaborators the HTTP layer needs
type Dependencies struct {
	Service service.InspectionService
	Pool    *detector.WorkerPool
	Metrics *observer.MetricsObserver
	Hub     *observer.Hub
	Config  *config.Config
}

func NewHandler(deps Dependencies) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		corsMiddleware(deps.Config.AllowedOrigins),
		requestSizeLimiter(deps.Config.MaxRequestBodySize),
		errorHandler(),
	)

	// Configure routes
	r.POST("/detect/", detectDefects(deps.Service))
	r.GET("/inspected/:filename", serveInspected(deps.Service))
	r.GET("/health", healthCheck(deps))
	r.GET("/metrics", metrics(deps))
	if deps.Hub != nil {
		r.GET("/ws/events", gin.WrapF(deps.Hub.ServeWS))
	}

	return r
}

// corsMiddleware adds CORS headers for allowed origins. Requests from other
// origins are still served, just without the headers, and the browser enforces the policy.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[origin] = true
	}
	withHeaders := cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodPost},
		AllowHeaders: []string{"*"},
		MaxAge:       12 * time.Hour,
	})

	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" && !allowed[origin] {
			c.Next()
			return
		}
		withHeaders(c)
	}
}

func detectDefects(svc service.InspectionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// Log request start
		logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"user_agent": c.Request.UserAgent(),
			"ip":         c.ClientIP(),
		}).Info("Processing detection request")

		header, err := c.FormFile(uploadField)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(c, apperrors.NewPayloadTooLargeError("upload exceeds request size limit", err))
				return
			}
			respondError(c, apperrors.NewValidationError("multipart field \"file\" is required", err))
			return
		}

		file, err := header.Open()
		if err != nil {
			respondError(c, apperrors.NewInternalError("cannot read upload", err))
			return
		}
		defer file.Close()

		resp, err := svc.Inspect(c.Request.Context(), header.Filename, file)
		if err != nil {
			respondError(c, err)
			return
		}

		// Log successful completion
		logger.WithFields(logrus.Fields{
			"filename":           header.Filename,
			"size":               header.Size,
			"defects":            len(resp.Defects),
			"annotated_url":      resp.AnnotatedURL,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
		}).Info("Detection completed successfully")

		c.JSON(http.StatusOK, resp)
	}
}

func serveInspected(svc service.InspectionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, err := svc.AnnotatedImagePath(c.Param("filename"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.File(path)
	}
}

func healthCheck(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  "available",
			Version: version,
			Time:    time.Now().UTC().Format(time.RFC3339),
			Model:   filepath.Base(deps.Config.ModelPath),
			Classes: deps.Service.ClassNames(),
		})
	}
}

func metrics(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := models.MetricsResponse{
			Validation: deps.Service.ValidationMetrics(),
			Requests:   map[string]interface{}{},
		}
		if deps.Metrics != nil {
			resp.Requests = deps.Metrics.GetMetrics()
		}
		if deps.Pool != nil {
			resp.Pool = deps.Pool.GetStats()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 0 disables the limit
		if maxBytes > 0 {
			if c.Request.ContentLength > maxBytes {
				respondError(c, apperrors.NewPayloadTooLargeError("upload exceeds request size limit", nil))
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, c.Errors.Last().Err)
		}
	}
}

func respondError(c *gin.Context, err error) {
	code := apperrors.GetStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Detail()
	}

	// Log the error with context
	entry := logger.WithError(err).WithFields(logrus.Fields{
		"status_code": code,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(code, models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
	})
}
