// Package geometry provides the box model and the geometric primitives used
// throughout the application.
package geometry

import (
	"math"
)

// Point2D represents a 2D point in image pixel coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Finite reports whether both coordinates are finite numbers.
func (p Point2D) Finite() bool {
	return finite(p.X) && finite(p.Y)
}

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// Sub returns the difference of two points.
func (p Point2D) Sub(other Point2D) Point2D {
	return Point2D{X: p.X - other.X, Y: p.Y - other.Y}
}

// Box is an axis-aligned rectangle with a class id, in image pixel coordinates.
type Box struct {
	X1      float64 `json:"x1"`
	Y1      float64 `json:"y1"`
	X2      float64 `json:"x2"`
	Y2      float64 `json:"y2"`
	ClassID int     `json:"class_id"`
}

// NewBox creates a Box from two corners. The corners are not normalized.
func NewBox(x1, y1, x2, y2 float64, classID int) Box {
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2, ClassID: classID}
}

// BoxFromPoints creates a normalized Box spanning two points.
func BoxFromPoints(a, b Point2D, classID int) Box {
	return NewBox(a.X, a.Y, b.X, b.Y, classID).Normalize()
}

// Normalize returns the box with x1<=x2 and y1<=y2.
func (b Box) Normalize() Box {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	return b
}

// Width returns the horizontal extent of the box.
func (b Box) Width() float64 {
	return math.Abs(b.X2 - b.X1)
}

// Height returns the vertical extent of the box.
func (b Box) Height() float64 {
	return math.Abs(b.Y2 - b.Y1)
}

// Area returns the box area.
func (b Box) Area() float64 {
	return b.Width() * b.Height()
}

// Center returns the center point of the box.
func (b Box) Center() Point2D {
	return Point2D{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Contains reports whether p lies inside the box's normalized extent, edges included.
func (b Box) Contains(p Point2D) bool {
	n := b.Normalize()
	return p.X >= n.X1 && p.X <= n.X2 && p.Y >= n.Y1 && p.Y <= n.Y2
}

// Translate returns the box shifted by (dx, dy).
func (b Box) Translate(dx, dy float64) Box {
	b.X1 += dx
	b.X2 += dx
	b.Y1 += dy
	b.Y2 += dy
	return b
}

// Union returns the smallest box containing both boxes. The class of b is kept.
func (b Box) Union(other Box) Box {
	n, o := b.Normalize(), other.Normalize()
	return Box{
		X1:      math.Min(n.X1, o.X1),
		Y1:      math.Min(n.Y1, o.Y1),
		X2:      math.Max(n.X2, o.X2),
		Y2:      math.Max(n.Y2, o.Y2),
		ClassID: b.ClassID,
	}
}

// Valid reports whether the box is normalized, non-negative and within width x height.
func (b Box) Valid(width, height float64) bool {
	return b.X1 >= 0 && b.Y1 >= 0 &&
		b.X1 <= b.X2 && b.Y1 <= b.Y2 &&
		b.X2 <= width && b.Y2 <= height &&
		b.ClassID >= 0
}

// Clamp normalizes corner order and clips all coordinates into
// [0,width] x [0,height]. NaN coordinates become 0. The class id passes
// through unchanged.
func Clamp(b Box, width, height float64) Box {
	b.X1 = clampF(b.X1, 0, width)
	b.X2 = clampF(b.X2, 0, width)
	b.Y1 = clampF(b.Y1, 0, height)
	b.Y2 = clampF(b.Y2, 0, height)
	return b.Normalize()
}

// Finite reports whether all four coordinates are finite numbers.
func (b Box) Finite() bool {
	return finite(b.X1) && finite(b.Y1) && finite(b.X2) && finite(b.Y2)
}

// IoU returns the intersection-over-union of two boxes, ignoring class.
func IoU(a, b Box) float64 {
	a, b = a.Normalize(), b.Normalize()
	iw := math.Min(a.X2, b.X2) - math.Max(a.X1, b.X1)
	ih := math.Min(a.Y2, b.Y2) - math.Max(a.Y1, b.Y1)
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ToYOLO converts the box to normalized center/size form for an image of
// width x height.
func (b Box) ToYOLO(width, height float64) (cx, cy, w, h float64) {
	n := b.Normalize()
	cx = (n.X1 + n.X2) / 2 / width
	cy = (n.Y1 + n.Y2) / 2 / height
	w = (n.X2 - n.X1) / width
	h = (n.Y2 - n.Y1) / height
	return cx, cy, w, h
}

// FromYOLO builds a pixel-space box from normalized center/size values.
func FromYOLO(classID int, cx, cy, w, h, width, height float64) Box {
	return Box{
		X1:      (cx - w/2) * width,
		Y1:      (cy - h/2) * height,
		X2:      (cx + w/2) * width,
		Y2:      (cy + h/2) * height,
		ClassID: classID,
	}
}

// CloneBoxes returns a copy of boxes that shares no backing array with it.
// A nil input yields an empty, non-nil slice.
func CloneBoxes(boxes []Box) []Box {
	out := make([]Box, len(boxes))
	copy(out, boxes)
	return out
}

// EqualBoxes reports whether two box sets hold the same boxes in the same order.
func EqualBoxes(a, b []Box) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clampF(v, minVal, maxVal float64) float64 {
	if math.IsNaN(v) || v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
