package evaluation

import (
	"math"
	"sort"

	"github.com/anime-shed/defect-inspector-go/internal/detector"
)

const (
	eps = 1e-16
	// curvePoints samples precision/recall over the confidence axis.
	curvePoints = 1000
	// apPoints is the recall grid used to integrate average precision.
	apPoints = 101
)

// iouThresholds are 0.50, 0.55, ..., 0.95.
var iouThresholds = func() [10]float64 {
	var t [10]float64
	for i := range t {
		t[i] = 0.5 + 0.05*float64(i)
	}
	return t
}()

type prediction struct {
	conf  float64
	class int
	tp    [10]bool
}

// MetricsCalculator accumulates matched predictions across images.
type MetricsCalculator struct {
	predictions   []prediction
	targetClasses []int
}

func NewMetricsCalculator() *MetricsCalculator {
	return &MetricsCalculator{}
}

// Add matches one image's predictions against its ground truth.
// width and height scale the normalized labels into the boxes' pixel space.
func (m *MetricsCalculator) Add(boxes []detector.Box, labels []GroundTruth, width, height int) {
	truth := make([]detector.Box, len(labels))
	for i, l := range labels {
		m.targetClasses = append(m.targetClasses, l.ClassID)
		truth[i] = detector.Box{
			ClassID: l.ClassID,
			X1:      float32((l.CX - l.W/2) * float64(width)),
			Y1:      float32((l.CY - l.H/2) * float64(height)),
			X2:      float32((l.CX + l.W/2) * float64(width)),
			Y2:      float32((l.CY + l.H/2) * float64(height)),
		}
	}

	correct := matchPredictions(boxes, truth)
	for i, b := range boxes {
		m.predictions = append(m.predictions, prediction{
			conf:  float64(b.Confidence),
			class: b.ClassID,
			tp:    correct[i],
		})
	}
}

type match struct {
	label, det int
	iou        float64
}

// matchPredictions marks each prediction correct per IoU threshold. A prediction
// claims at most one label and a label at most one prediction.
func matchPredictions(boxes, truth []detector.Box) [][10]bool {
	correct := make([][10]bool, len(boxes))
	if len(boxes) == 0 || len(truth) == 0 {
		return correct
	}

	iou := make([][]float64, len(truth))
	for l := range truth {
		iou[l] = make([]float64, len(boxes))
		for d := range boxes {
			if truth[l].ClassID == boxes[d].ClassID {
				iou[l][d] = float64(truth[l].IoU(boxes[d]))
			}
		}
	}

	for t, threshold := range iouThresholds {
		var matches []match
		for l := range truth {
			for d := range boxes {
				if iou[l][d] >= threshold && truth[l].ClassID == boxes[d].ClassID {
					matches = append(matches, match{label: l, det: d, iou: iou[l][d]})
				}
			}
		}
		if len(matches) > 1 {
			sort.SliceStable(matches, func(i, j int) bool { return matches[i].iou > matches[j].iou })
			matches = firstPerDetection(matches)
			matches = firstPerLabel(matches)
		}
		for _, mt := range matches {
			correct[mt.det][t] = true
		}
	}
	return correct
}

// firstPerDetection keeps the first (highest IoU) match of each detection, ordered by detection index.
func firstPerDetection(matches []match) []match {
	seen := map[int]bool{}
	var out []match
	for _, mt := range matches {
		if !seen[mt.det] {
			seen[mt.det] = true
			out = append(out, mt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].det < out[j].det })
	return out
}

// firstPerLabel keeps the first match of each label in the given order.
func firstPerLabel(matches []match) []match {
	seen := map[int]bool{}
	var out []match
	for _, mt := range matches {
		if !seen[mt.label] {
			seen[mt.label] = true
			out = append(out, mt)
		}
	}
	return out
}

// Results are dataset-level detection metrics.
type Results struct {
	Precision float64
	Recall    float64
	MAP50     float64
	MAP50_95  float64
	// APByClass maps class id to AP@0.5:0.95 for classes present in the labels.
	APByClass map[int]float64
}

// Fitness weights mAP50-95 heavily over mAP50.
func (r Results) Fitness() float64 {
	return 0.1*r.MAP50 + 0.9*r.MAP50_95
}

// ResultsDict reports the metrics under their canonical keys.
func (r Results) ResultsDict() map[string]float64 {
	return map[string]float64{
		"metrics/precision(B)": r.Precision,
		"metrics/recall(B)":    r.Recall,
		"metrics/mAP50(B)":     r.MAP50,
		"metrics/mAP50-95(B)":  r.MAP50_95,
		"fitness":              r.Fitness(),
	}
}

// Compute reduces everything added so far to dataset metrics.
func (m *MetricsCalculator) Compute() Results {
	results := Results{APByClass: map[int]float64{}}

	counts := map[int]int{}
	for _, c := range m.targetClasses {
		counts[c]++
	}
	classes := make([]int, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	if len(classes) == 0 {
		return results
	}

	preds := append([]prediction(nil), m.predictions...)
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].conf > preds[j].conf })

	grid := linspace(0, 1, curvePoints)
	pCurves := make([][]float64, len(classes))
	rCurves := make([][]float64, len(classes))
	ap := make([][10]float64, len(classes))

	for ci, c := range classes {
		pCurves[ci] = make([]float64, curvePoints)
		rCurves[ci] = make([]float64, curvePoints)

		var negConf []float64
		var classPreds []prediction
		for _, p := range preds {
			if p.class == c {
				classPreds = append(classPreds, p)
				negConf = append(negConf, -p.conf)
			}
		}
		nLabels := float64(counts[c])
		if len(classPreds) == 0 {
			continue
		}

		recall := make([][10]float64, len(classPreds))
		precision := make([][10]float64, len(classPreds))
		var tpc, fpc [10]float64
		for i, p := range classPreds {
			for t := range iouThresholds {
				if p.tp[t] {
					tpc[t]++
				} else {
					fpc[t]++
				}
				recall[i][t] = tpc[t] / (nLabels + eps)
				precision[i][t] = tpc[t] / (tpc[t] + fpc[t])
			}
		}

		r0 := column(recall, 0)
		p0 := column(precision, 0)
		for k, x := range grid {
			rCurves[ci][k] = interp(-x, negConf, r0, 0)
			pCurves[ci][k] = interp(-x, negConf, p0, 1)
		}
		for t := range iouThresholds {
			ap[ci][t] = computeAP(column(recall, t), column(precision, t))
		}
	}

	meanF1 := make([]float64, curvePoints)
	for k := range meanF1 {
		for ci := range classes {
			p, r := pCurves[ci][k], rCurves[ci][k]
			meanF1[k] += 2 * p * r / (p + r + eps)
		}
		meanF1[k] /= float64(len(classes))
	}
	best := argmax(smooth(meanF1, 0.1))

	n := float64(len(classes))
	for ci, c := range classes {
		results.Precision += pCurves[ci][best] / n
		results.Recall += rCurves[ci][best] / n
		results.MAP50 += ap[ci][0] / n
		var classAP float64
		for t := range iouThresholds {
			classAP += ap[ci][t] / float64(len(iouThresholds))
		}
		results.APByClass[c] = classAP
		results.MAP50_95 += classAP / n
	}
	return results
}

// computeAP integrates the precision envelope over a 101-point recall grid.
func computeAP(recall, precision []float64) float64 {
	mrec := make([]float64, 0, len(recall)+2)
	mrec = append(append(append(mrec, 0), recall...), 1)
	mpre := make([]float64, 0, len(precision)+2)
	mpre = append(append(append(mpre, 1), precision...), 0)

	for i := len(mpre) - 2; i >= 0; i-- {
		mpre[i] = math.Max(mpre[i], mpre[i+1])
	}

	x := linspace(0, 1, apPoints)
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = interp(xi, mrec, mpre, mpre[0])
	}
	return trapezoid(y, x)
}

// interp linearly interpolates fp at x over ascending xp. Below xp[0] it returns
// left; at or beyond the last point it returns the last value.
func interp(x float64, xp, fp []float64, left float64) float64 {
	n := len(xp)
	if n == 0 {
		return left
	}
	k := sort.Search(n, func(i int) bool { return xp[i] > x })
	switch k {
	case 0:
		return left
	case n:
		return fp[n-1]
	}
	j := k - 1
	slope := (fp[j+1] - fp[j]) / (xp[j+1] - xp[j])
	return fp[j] + slope*(x-xp[j])
}

func trapezoid(y, x []float64) float64 {
	var area float64
	for i := 1; i < len(x); i++ {
		area += (x[i] - x[i-1]) * (y[i] + y[i-1]) / 2
	}
	return area
}

// smooth applies a box filter spanning fraction f of the series, padding the ends.
func smooth(y []float64, f float64) []float64 {
	nf := int(math.Round(float64(len(y))*f*2))/2 + 1
	half := nf / 2
	padded := make([]float64, 0, len(y)+2*half)
	for i := 0; i < half; i++ {
		padded = append(padded, y[0])
	}
	padded = append(padded, y...)
	for i := 0; i < half; i++ {
		padded = append(padded, y[len(y)-1])
	}

	out := make([]float64, len(padded)-nf+1)
	var window float64
	for i := 0; i < nf; i++ {
		window += padded[i]
	}
	for i := range out {
		if i > 0 {
			window += padded[i+nf-1] - padded[i-1]
		}
		out[i] = window / float64(nf)
	}
	return out
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	out[n-1] = stop
	return out
}

func column(rows [][10]float64, t int) []float64 {
	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = rows[i][t]
	}
	return out
}
