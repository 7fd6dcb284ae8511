package detector

import (
	"sort"

	"ai-labeller/pkg/geometry"
)

// DecodeYOLOv8 turns a YOLOv8-style output tensor of shape [4+nc, n] into
// detections. at(row, col) reads the tensor; rows 0-3 hold cx, cy, w, h in
// model input pixels and rows 4.. hold per-class scores. Coordinates are
// scaled by scaleX/scaleY into image pixels. Candidates scoring below minConf
// are skipped.
func DecodeYOLOv8(at func(row, col int) float32, rows, cols int, scaleX, scaleY, minConf float64) []Detection {
	if rows < 5 {
		return nil
	}
	var dets []Detection
	for i := 0; i < cols; i++ {
		best, bestScore := -1, float32(0)
		for r := 4; r < rows; r++ {
			if v := at(r, i); v > bestScore {
				best, bestScore = r-4, v
			}
		}
		if best < 0 || float64(bestScore) < minConf {
			continue
		}
		cx, cy := float64(at(0, i)), float64(at(1, i))
		w, h := float64(at(2, i)), float64(at(3, i))
		dets = append(dets, Detection{
			X1:         (cx - w/2) * scaleX,
			Y1:         (cy - h/2) * scaleY,
			X2:         (cx + w/2) * scaleX,
			Y2:         (cy + h/2) * scaleY,
			Confidence: float64(bestScore),
			Class:      best,
		})
	}
	return dets
}

// NMS applies per-class greedy non-maximum suppression: detections are taken
// in descending confidence and dropped when their IoU with a kept detection of
// the same class exceeds iouThreshold.
func NMS(dets []Detection, iouThreshold float64) []Detection {
	sorted := append([]Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.Class == d.Class && geometry.IoU(k.Box(0), d.Box(0)) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}
