// Package fusion merges overlapping boxes of the same class.
package fusion

import (
	"ai-labeller/pkg/geometry"
)

// DefaultThreshold is the IoU above which same-class boxes are merged.
const DefaultThreshold = 0.30

// Fuse merges same-class boxes whose IoU with the growing accumulator exceeds
// threshold, replacing them with their axis-aligned union.
//
// This is one greedy left-to-right pass, not a fixed point: a box that only
// overlaps an accumulator after a later absorption is not revisited.
func Fuse(boxes []geometry.Box, threshold float64) []geometry.Box {
	out := make([]geometry.Box, 0, len(boxes))
	consumed := make([]bool, len(boxes))
	for i := range boxes {
		if consumed[i] {
			continue
		}
		acc := boxes[i].Normalize()
		for j := i + 1; j < len(boxes); j++ {
			if consumed[j] || boxes[j].ClassID != acc.ClassID {
				continue
			}
			if geometry.IoU(acc, boxes[j]) > threshold {
				acc = acc.Union(boxes[j])
				consumed[j] = true
			}
		}
		out = append(out, acc)
	}
	return out
}
