package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
)

func centered(class int) GroundTruth {
	return GroundTruth{ClassID: class, CX: 0.5, CY: 0.5, W: 0.2, H: 0.2}
}

func TestCompute_PerfectPredictions(t *testing.T) {
	calc := NewMetricsCalculator()
	calc.Add([]detector.Box{{ClassID: 0, Confidence: 0.9, X1: 40, Y1: 40, X2: 60, Y2: 60}},
		[]GroundTruth{centered(0)}, 100, 100)

	res := calc.Compute()

	assert.InDelta(t, 0.995, res.MAP50, 1e-9)
	assert.InDelta(t, 0.995, res.MAP50_95, 1e-9)
	assert.InDelta(t, 1.0, res.Precision, 1e-9)
	assert.InDelta(t, 1.0, res.Recall, 1e-9)
	assert.InDelta(t, 0.995, res.APByClass[0], 1e-9)
}

func TestCompute_NoLabels(t *testing.T) {
	calc := NewMetricsCalculator()
	calc.Add([]detector.Box{{ClassID: 0, Confidence: 0.9, X1: 0, Y1: 0, X2: 10, Y2: 10}}, nil, 100, 100)

	res := calc.Compute()

	assert.Zero(t, res.MAP50)
	assert.Zero(t, res.Precision)
	assert.Empty(t, res.APByClass)
}

func TestCompute_MissedClassCountsAsZero(t *testing.T) {
	calc := NewMetricsCalculator()
	calc.Add([]detector.Box{{ClassID: 0, Confidence: 0.9, X1: 40, Y1: 40, X2: 60, Y2: 60}},
		[]GroundTruth{centered(0), {ClassID: 1, CX: 0.1, CY: 0.1, W: 0.1, H: 0.1}}, 100, 100)

	res := calc.Compute()

	assert.InDelta(t, 0.995/2, res.MAP50, 1e-9)
	assert.Zero(t, res.APByClass[1])
}

func TestCompute_PredictionsForUnlabelledClassesIgnored(t *testing.T) {
	calc := NewMetricsCalculator()
	calc.Add([]detector.Box{
		{ClassID: 0, Confidence: 0.9, X1: 40, Y1: 40, X2: 60, Y2: 60},
		{ClassID: 4, Confidence: 0.95, X1: 0, Y1: 0, X2: 10, Y2: 10},
	}, []GroundTruth{centered(0)}, 100, 100)

	res := calc.Compute()

	assert.InDelta(t, 0.995, res.MAP50, 1e-9)
	assert.Len(t, res.APByClass, 1)
}

func TestMatchPredictions_OneLabelPerPrediction(t *testing.T) {
	truth := []detector.Box{{ClassID: 0, X1: 40, Y1: 40, X2: 60, Y2: 60}}
	boxes := []detector.Box{
		{ClassID: 0, Confidence: 0.9, X1: 40, Y1: 40, X2: 60, Y2: 60},
		{ClassID: 0, Confidence: 0.8, X1: 41, Y1: 41, X2: 61, Y2: 61},
		{ClassID: 1, Confidence: 0.7, X1: 40, Y1: 40, X2: 60, Y2: 60},
	}

	correct := matchPredictions(boxes, truth)

	require.Len(t, correct, 3)
	for i := range iouThresholds {
		assert.True(t, correct[0][i], "exact box at threshold %d", i)
		assert.False(t, correct[1][i], "duplicate at threshold %d", i)
		assert.False(t, correct[2][i], "wrong class at threshold %d", i)
	}
}

func TestMatchPredictions_LooseBoxFailsStrictThresholds(t *testing.T) {
	truth := []detector.Box{{ClassID: 0, X1: 0, Y1: 0, X2: 100, Y2: 100}}
	// IoU 0.6
	boxes := []detector.Box{{ClassID: 0, Confidence: 0.5, X1: 0, Y1: 0, X2: 100, Y2: 60}}

	correct := matchPredictions(boxes, truth)

	assert.True(t, correct[0][0])
	assert.True(t, correct[0][1])
	assert.False(t, correct[0][3])
	assert.False(t, correct[0][9])
}

func TestComputeAP_Degenerate(t *testing.T) {
	assert.InDelta(t, 0.995, computeAP([]float64{1}, []float64{1}), 1e-9)
	assert.InDelta(t, 0.0, computeAP([]float64{0}, []float64{0}), 1e-9)
}

func TestInterp(t *testing.T) {
	xp := []float64{0, 1, 1, 2}
	fp := []float64{0, 2, 4, 6}

	assert.Equal(t, -1.0, interp(-0.5, xp, fp, -1))
	assert.InDelta(t, 1.0, interp(0.5, xp, fp, 0), 1e-12)
	assert.InDelta(t, 5.0, interp(1.5, xp, fp, 0), 1e-12)
	assert.Equal(t, 6.0, interp(2, xp, fp, 0))
	assert.Equal(t, 6.0, interp(3, xp, fp, 0))
}

func TestSmooth_PreservesLengthAndConstants(t *testing.T) {
	y := make([]float64, curvePoints)
	for i := range y {
		y[i] = 0.25
	}

	out := smooth(y, 0.1)

	require.Len(t, out, curvePoints)
	assert.InDelta(t, 0.25, out[0], 1e-12)
	assert.InDelta(t, 0.25, out[curvePoints-1], 1e-12)
}

func TestResultsDict(t *testing.T) {
	res := Results{Precision: 0.8, Recall: 0.7, MAP50: 0.6, MAP50_95: 0.4}
	dict := res.ResultsDict()

	assert.Len(t, dict, 5)
	assert.InDelta(t, 0.1*0.6+0.9*0.4, dict["fitness"], 1e-12)
	assert.Equal(t, 0.6, dict["metrics/mAP50(B)"])
}
