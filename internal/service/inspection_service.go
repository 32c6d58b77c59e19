package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
	apperrors "github.com/anime-shed/defect-inspector-go/internal/errors"
	"github.com/anime-shed/defect-inspector-go/internal/imaging"
	"github.com/anime-shed/defect-inspector-go/internal/observer"
	"github.com/anime-shed/defect-inspector-go/internal/repository"
	"github.com/anime-shed/defect-inspector-go/pkg/models"
	"github.com/anime-shed/defect-inspector-go/pkg/validation"
)

// InspectionService runs defect detection on uploaded images
type InspectionService interface {
	// Inspect stores the upload, detects defects, writes the annotated copy and
	// returns the client response.
	Inspect(ctx context.Context, filename string, data io.Reader) (*models.DetectResponse, error)

	// AnnotatedImagePath resolves a previously written annotated image.
	AnnotatedImagePath(filename string) (string, error)

	// ValidationMetrics returns a copy of the startup metrics.
	ValidationMetrics() models.ValidationMetrics

	ClassNames() []string
}

// inspectionService implements InspectionService on a single shared detector
type inspectionService struct {
	imageRepo repository.ImageRepository
	detector  detector.Detector
	pool      *detector.WorkerPool
	codec     imaging.Codec
	metrics   models.ValidationMetrics
	events    observer.Subject
	validator *validation.FilenameValidator
}

// NewInspectionService creates a new inspection service. metrics are the startup
// validation results and are returned unchanged with every response.
func NewInspectionService(
	imageRepository repository.ImageRepository,
	det detector.Detector,
	pool *detector.WorkerPool,
	metrics models.ValidationMetrics,
	events observer.Subject,
) InspectionService {
	if events == nil {
		events = observer.NewEventPublisher()
	}
	return &inspectionService{
		imageRepo: imageRepository,
		detector:  det,
		pool:      pool,
		codec:     imaging.NewCodec(),
		metrics:   metrics.Clone(),
		events:    events,
		validator: validation.NewFilenameValidator(),
	}
}

func (s *inspectionService) Inspect(ctx context.Context, filename string, data io.Reader) (*models.DetectResponse, error) {
	start := time.Now()

	upload, err := s.imageRepo.SaveUpload(filename, data)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to save upload", err)
	}
	s.events.NotifyObservers(ctx, observer.InspectionEvent{
		EventType: observer.UploadSaved,
		UploadID:  upload.ID,
		Filename:  upload.OriginalFilename,
		Success:   true,
	})
	s.events.NotifyObservers(ctx, observer.InspectionEvent{
		EventType: observer.InspectionStarted,
		UploadID:  upload.ID,
		Filename:  upload.OriginalFilename,
	})

	// Inference runs to completion even if the client goes away.
	jobCtx := context.WithoutCancel(ctx)
	var result *detector.Result
	err = s.pool.Run(func() error {
		var predictErr error
		result, predictErr = s.detector.Predict(jobCtx, upload.Path)
		return predictErr
	})
	if err != nil {
		appErr := apperrors.NewInferenceError(err)
		s.fail(ctx, upload, start, appErr)
		return nil, appErr
	}

	defects := make([]models.Detection, 0, len(result.Boxes))
	for _, box := range result.Boxes {
		defects = append(defects, models.Detection{
			Class:      result.ClassName(box),
			Confidence: float64(box.Confidence),
		})
	}

	annotated, err := s.annotate(result, upload.Ext)
	if err != nil {
		appErr := apperrors.NewInternalError("Annotation error", err)
		s.fail(ctx, upload, start, appErr)
		return nil, appErr
	}

	s.events.NotifyObservers(ctx, observer.InspectionEvent{
		EventType:      observer.InspectionCompleted,
		UploadID:       upload.ID,
		Filename:       upload.OriginalFilename,
		AnnotatedURL:   annotated.URL,
		Defects:        len(defects),
		ProcessingTime: time.Since(start),
		Success:        true,
		Metadata: map[string]interface{}{
			"inference_time": result.Inference.String(),
		},
	})

	return &models.DetectResponse{
		AnnotatedURL: annotated.URL,
		Defects:      defects,
		Metrics:      s.metrics.Clone(),
	}, nil
}

func (s *inspectionService) annotate(result *detector.Result, ext string) (*models.AnnotatedImage, error) {
	plotted, err := s.detector.Plot(result)
	if err != nil {
		return nil, err
	}
	annotated := s.imageRepo.NewAnnotatedImage(ext)
	if err := s.codec.Write(annotated.Path, plotted); err != nil {
		return nil, err
	}
	return annotated, nil
}

func (s *inspectionService) fail(ctx context.Context, upload *models.Upload, start time.Time, err *apperrors.AppError) {
	s.events.NotifyObservers(ctx, observer.InspectionEvent{
		EventType:      observer.InspectionFailed,
		UploadID:       upload.ID,
		Filename:       upload.OriginalFilename,
		ProcessingTime: time.Since(start),
		ErrorMessage:   err.Detail(),
	})
}

func (s *inspectionService) AnnotatedImagePath(filename string) (string, error) {
	if err := s.validator.ValidateFilename(filename); err != nil {
		return "", err
	}

	path, err := s.imageRepo.AnnotatedPath(filename)
	switch {
	case errors.Is(err, repository.ErrImageNotFound), errors.Is(err, repository.ErrInvalidFilename):
		return "", apperrors.NewNotFoundError("File not found", nil)
	case err != nil:
		return "", apperrors.NewInternalError("failed to resolve file", err)
	}
	return path, nil
}

func (s *inspectionService) ValidationMetrics() models.ValidationMetrics {
	return s.metrics.Clone()
}

func (s *inspectionService) ClassNames() []string {
	return s.detector.Names()
}
