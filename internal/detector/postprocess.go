package detector

import (
	"fmt"
	"image"
	"sort"
)

// maxCandidates bounds the boxes entering NMS.
const maxCandidates = 30000

// Decode turns a YOLOv8-style output tensor into boxes in source-image coordinates.
//
// The tensor is [1, 4+nc, anchors] (or its transpose [1, anchors, 4+nc]); each anchor
// carries cx, cy, w, h in network-input pixels followed by nc class scores.
func Decode(output []float32, shape []int64, numClasses int, lb Letterbox, bounds image.Rectangle, opts PredictOptions) ([]Box, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}
	attrs := int64(4 + numClasses)
	var anchors int
	var at func(anchor, attr int) float32
	switch {
	case shape[1] == attrs:
		anchors = int(shape[2])
		at = func(anchor, attr int) float32 { return output[attr*anchors+anchor] }
	case shape[2] == attrs:
		anchors = int(shape[1])
		at = func(anchor, attr int) float32 { return output[anchor*int(attrs)+attr] }
	default:
		return nil, fmt.Errorf("output shape %v does not match %d classes", shape, numClasses)
	}
	if len(output) < anchors*int(attrs) {
		return nil, fmt.Errorf("output holds %d values, shape %v needs %d", len(output), shape, anchors*int(attrs))
	}

	w, h := float32(bounds.Dx()), float32(bounds.Dy())
	candidates := make([]Box, 0, 64)
	for a := 0; a < anchors; a++ {
		classID, score := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := at(a, 4+c); classID < 0 || s > score {
				classID, score = c, s
			}
		}
		if score < opts.Confidence {
			continue
		}

		cx, cy, bw, bh := at(a, 0), at(a, 1), at(a, 2), at(a, 3)
		x1, y1 := lb.Unscale(cx-bw/2, cy-bh/2)
		x2, y2 := lb.Unscale(cx+bw/2, cy+bh/2)
		candidates = append(candidates, Box{
			ClassID:    classID,
			Confidence: score,
			X1:         clamp(x1, 0, w),
			Y1:         clamp(y1, 0, h),
			X2:         clamp(x2, 0, w),
			Y2:         clamp(y2, 0, h),
		})
	}

	return NonMaxSuppression(candidates, opts.IoU, opts.MaxDetections), nil
}

// NonMaxSuppression keeps the highest-scoring box of each overlapping same-class
// cluster. The result is ordered by descending confidence.
func NonMaxSuppression(boxes []Box, iouThreshold float32, maxDetections int) []Box {
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Confidence > boxes[j].Confidence
	})
	if len(boxes) > maxCandidates {
		boxes = boxes[:maxCandidates]
	}

	kept := make([]Box, 0, min(len(boxes), maxDetections))
	for _, candidate := range boxes {
		if len(kept) >= maxDetections {
			break
		}
		suppressed := false
		for _, k := range kept {
			if k.ClassID == candidate.ClassID && candidate.IoU(k) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}
