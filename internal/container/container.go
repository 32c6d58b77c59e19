package container

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/config"
	"github.com/anime-shed/defect-inspector-go/internal/detector"
	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
	"github.com/anime-shed/defect-inspector-go/internal/evaluation"
	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/internal/observer"
	"github.com/anime-shed/defect-inspector-go/internal/repository"
	"github.com/anime-shed/defect-inspector-go/internal/service"
	"github.com/anime-shed/defect-inspector-go/internal/storage"
	"github.com/anime-shed/defect-inspector-go/internal/transport"
	"github.com/anime-shed/defect-inspector-go/pkg/models"
)

// Container holds all application dependencies
type Container struct {
	config            *config.Config
	engine            detector.Engine
	detector          detector.Detector
	pool              *detector.WorkerPool
	hub               *observer.Hub
	stopHub           context.CancelFunc
	validationMetrics models.ValidationMetrics
	inspectionService service.InspectionService
	handler           http.Handler
}

// Option customizes container construction
type Option func(*options)

type options struct {
	engine detector.Engine
}

// WithEngine uses engine instead of loading the ONNX model from the config.
func WithEngine(engine detector.Engine) Option {
	return func(o *options) {
		o.engine = engine
	}
}

// NewContainer builds the dependency graph and runs startup validation. Every
// failure is a startup error; the process must not serve without a model and metrics.
func NewContainer(ctx context.Context, cfg *config.Config, opts ...Option) (c *Container, err error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.Component("container")

	c = &Container{config: cfg}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	uploads, err := storage.NewDirectoryStore(cfg.UploadDir)
	if err != nil {
		return c, apperrors.NewStartupError("cannot create upload directory", err)
	}
	inspected, err := storage.NewDirectoryStore(cfg.InspectedDir)
	if err != nil {
		return c, apperrors.NewStartupError("cannot create inspected directory", err)
	}

	c.engine = o.engine
	if c.engine == nil {
		c.engine, err = detector.NewONNXEngine(detector.ONNXConfig{
			ModelPath:    cfg.ModelPath,
			SharedLib:    cfg.OnnxRuntimeLib,
			IntraThreads: cfg.IntraThreads,
		})
		if err != nil {
			return c, apperrors.NewStartupError("cannot load model", err)
		}
	}

	dataset, err := evaluation.LoadDataset(cfg.DataYAML)
	if err != nil {
		return c, apperrors.NewStartupError("cannot load dataset", err)
	}

	modelNames, _, err := detector.NamesFromMetadata(c.engine.Metadata())
	if err != nil {
		return c, apperrors.NewStartupError("cannot read model class names", err)
	}
	names, err := detector.PinNames(modelNames, dataset.Names)
	if err != nil {
		return c, apperrors.NewStartupError("cannot pin class table", err)
	}

	c.detector, err = detector.NewDetector(c.engine, names, detector.DefaultOptions().WithImageSize(cfg.ImageSize))
	if err != nil {
		return c, apperrors.NewStartupError("cannot create detector", err)
	}

	c.pool = detector.NewWorkerPool(cfg.Workers)
	c.pool.Start()

	log.WithFields(logrus.Fields{
		"model":      cfg.ModelPath,
		"dataset":    cfg.DataYAML,
		"classes":    len(names),
		"image_size": cfg.ImageSize,
		"workers":    cfg.Workers,
	}).Info("Running startup validation")

	validator := evaluation.NewValidator(c.detector, c.pool,
		detector.ValidationOptions().WithImageSize(cfg.ImageSize), cfg.ValBatchSize)
	results, err := validator.Validate(ctx, dataset)
	if err != nil {
		return c, apperrors.NewStartupError("validation failed", err)
	}
	c.validationMetrics = evaluation.FilterMetrics(results.ResultsDict())

	// Build dependency graph
	counters := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(counters)

	c.hub = observer.NewHub(cfg.AllowedOrigins)
	hubCtx, stopHub := context.WithCancel(context.Background())
	c.stopHub = stopHub
	go c.hub.Run(hubCtx)
	events.Subscribe(observer.NewWebSocketObserver(c.hub))

	imageRepository := repository.NewFileImageRepository(uploads, inspected)
	c.inspectionService = service.NewInspectionService(imageRepository, c.detector, c.pool, c.validationMetrics, events)
	c.handler = transport.NewHandler(transport.Dependencies{
		Service: c.inspectionService,
		Pool:    c.pool,
		Metrics: counters,
		Hub:     c.hub,
		Config:  cfg,
	})

	return c, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// ValidationMetrics returns the metrics computed at startup
func (c *Container) ValidationMetrics() models.ValidationMetrics {
	return c.validationMetrics.Clone()
}

// Close releases the pool, the websocket hub and the model.
func (c *Container) Close() error {
	if c.stopHub != nil {
		c.stopHub()
	}
	if c.pool != nil {
		c.pool.Close()
	}
	if c.engine != nil {
		return c.engine.Close()
	}
	return nil
}
