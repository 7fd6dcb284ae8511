// Package stats summarizes the labels of a dataset split.
package stats

import (
	"fmt"
	"sort"

	"ai-labeller/internal/labels"

	"github.com/flanksource/commons/logger"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ClassStats describes the boxes of one class. Sizes are fractions of the
// image dimensions.
type ClassStats struct {
	ClassID    int     `json:"class_id" yaml:"class_id"`
	Name       string  `json:"name" yaml:"name"`
	Count      int     `json:"count" yaml:"count"`
	MeanWidth  float64 `json:"mean_width" yaml:"mean_width"`
	StdWidth   float64 `json:"std_width" yaml:"std_width"`
	MeanHeight float64 `json:"mean_height" yaml:"mean_height"`
	StdHeight  float64 `json:"std_height" yaml:"std_height"`
	MinArea    float64 `json:"min_area" yaml:"min_area"`
	MedianArea float64 `json:"median_area" yaml:"median_area"`
	MaxArea    float64 `json:"max_area" yaml:"max_area"`
}

// SplitStats describes one split.
type SplitStats struct {
	Split      string       `json:"split" yaml:"split"`
	Images     int          `json:"images" yaml:"images"`
	Labeled    int          `json:"labeled" yaml:"labeled"`
	Unlabeled  int          `json:"unlabeled" yaml:"unlabeled"`
	Unreadable int          `json:"unreadable" yaml:"unreadable"`
	Boxes      int          `json:"boxes" yaml:"boxes"`
	Classes    []ClassStats `json:"classes" yaml:"classes"`
}

// samples collects per-class normalized measurements.
type samples struct {
	widths, heights, areas []float64
}

// Compute gathers statistics for one split. Images whose dimensions cannot be
// read are counted as unreadable and skipped.
func Compute(store *labels.Store, split string, classNames []string) (*SplitStats, error) {
	images, err := store.Images(split)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s images: %w", split, err)
	}
	out := &SplitStats{Split: split, Images: len(images), Classes: []ClassStats{}}
	byClass := make(map[int]*samples)

	for _, img := range images {
		lbl, err := store.Load(split, img)
		if err != nil {
			logger.Debugf("Skipping %s: %v", img, err)
			out.Unreadable++
			continue
		}
		if lbl.HasLabelFile {
			out.Labeled++
		} else {
			out.Unlabeled++
		}
		w, h := float64(lbl.Width), float64(lbl.Height)
		for _, b := range lbl.Boxes {
			s := byClass[b.ClassID]
			if s == nil {
				s = &samples{}
				byClass[b.ClassID] = s
			}
			s.widths = append(s.widths, b.Width()/w)
			s.heights = append(s.heights, b.Height()/h)
			s.areas = append(s.areas, b.Area()/(w*h))
			out.Boxes++
		}
	}

	ids := make([]int, 0, len(byClass))
	for id := range byClass {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		s := byClass[id]
		cs := ClassStats{ClassID: id, Name: className(classNames, id), Count: len(s.areas)}
		cs.MeanWidth, cs.StdWidth = meanStd(s.widths)
		cs.MeanHeight, cs.StdHeight = meanStd(s.heights)
		sort.Float64s(s.areas)
		cs.MinArea = floats.Min(s.areas)
		cs.MaxArea = floats.Max(s.areas)
		cs.MedianArea = stat.Quantile(0.5, stat.Empirical, s.areas, nil)
		out.Classes = append(out.Classes, cs)
	}
	return out, nil
}

// ComputeAll gathers statistics for every split of the store.
func ComputeAll(store *labels.Store, classNames []string) ([]SplitStats, error) {
	var all []SplitStats
	for _, sp := range store.Splits() {
		s, err := Compute(store, sp, classNames)
		if err != nil {
			return nil, err
		}
		all = append(all, *s)
	}
	return all, nil
}

// meanStd returns the mean and sample standard deviation. A single sample has
// zero deviation.
func meanStd(x []float64) (float64, float64) {
	if len(x) < 2 {
		return stat.Mean(x, nil), 0
	}
	return stat.MeanStdDev(x, nil)
}

func className(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return fmt.Sprintf("class%d", id)
}
