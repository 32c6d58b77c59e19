package evaluation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
	"github.com/anime-shed/defect-inspector-go/internal/logger"
	"github.com/anime-shed/defect-inspector-go/pkg/models"
)

// Predictor is the slice of detector.Detector the validator needs.
type Predictor interface {
	PredictWithOptions(ctx context.Context, imagePath string, options detector.PredictOptions) (*detector.Result, error)
}

// Validator runs a predictor over a dataset's val split and scores it.
type Validator struct {
	predictor Predictor
	pool      *detector.WorkerPool
	options   detector.PredictOptions
	batchSize int
}

// NewValidator creates a validator. Images are predicted batchSize at a time on pool.
func NewValidator(predictor Predictor, pool *detector.WorkerPool, options detector.PredictOptions, batchSize int) *Validator {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Validator{
		predictor: predictor,
		pool:      pool,
		options:   options,
		batchSize: batchSize,
	}
}

// Validate scores the predictor on every sample. Any failed prediction aborts the run.
func (v *Validator) Validate(ctx context.Context, dataset *Dataset) (Results, error) {
	log := logger.Component("validator")
	start := time.Now()

	samples, err := dataset.Samples()
	if err != nil {
		return Results{}, err
	}

	calc := NewMetricsCalculator()
	for offset := 0; offset < len(samples); offset += v.batchSize {
		end := min(offset+v.batchSize, len(samples))
		batch := samples[offset:end]

		results, err := v.predictBatch(ctx, batch)
		if err != nil {
			return Results{}, err
		}
		for i, res := range results {
			b := res.Image.Bounds()
			calc.Add(res.Boxes, batch[i].Labels, b.Dx(), b.Dy())
		}
	}

	out := calc.Compute()
	log.WithFields(logrus.Fields{
		"images":    len(samples),
		"precision": out.Precision,
		"recall":    out.Recall,
		"map50":     out.MAP50,
		"map50_95":  out.MAP50_95,
		"duration":  time.Since(start).String(),
	}).Info("Validation complete")
	return out, nil
}

func (v *Validator) predictBatch(ctx context.Context, batch []Sample) ([]*detector.Result, error) {
	results := make([]*detector.Result, len(batch))
	errs := make([]error, len(batch))

	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = v.pool.Run(func() error {
				res, err := v.predictor.PredictWithOptions(ctx, batch[i].ImagePath, v.options)
				results[i] = res
				return err
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "validate %s", batch[i].ImagePath)
		}
		if results[i] == nil || results[i].Image == nil {
			return nil, errors.Errorf("validate %s: empty result", batch[i].ImagePath)
		}
	}
	return results, nil
}

// FilterMetrics keeps the four box metrics, keyed without their "metrics/" prefix.
func FilterMetrics(dict map[string]float64) models.ValidationMetrics {
	out := models.ValidationMetrics{}
	for key, value := range dict {
		if name, ok := strings.CutPrefix(key, "metrics/"); ok {
			out[name] = value
		}
	}
	return out
}
