// Package detector adapts object detector output to the box model and merges
// it into an annotation session.
package detector

import (
	"context"
	"fmt"
	"io"
	"sync"

	"ai-labeller/internal/session"
	"ai-labeller/pkg/geometry"

	"github.com/flanksource/commons/logger"
)

// Detection is one raw detector result in image pixel coordinates.
type Detection struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64
	// Class is the model's own class index. Boxes take the configured
	// default class instead.
	Class int
}

// Box returns the detection as a box of the given class.
func (d Detection) Box(classID int) geometry.Box {
	return geometry.NewBox(d.X1, d.Y1, d.X2, d.Y2, classID)
}

// Request describes one detector invocation.
type Request struct {
	ImagePath string
	Model     string
	// Confidence is a hint; detectors may return lower-scored results and
	// the adapter filters again.
	Confidence float64
}

// Detector runs object detection on an image.
type Detector interface {
	Detect(ctx context.Context, req Request) ([]Detection, error)
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, req Request) ([]Detection, error)

// Detect calls f.
func (f Func) Detect(ctx context.Context, req Request) ([]Detection, error) {
	return f(ctx, req)
}

// Factory builds a detector for a resolved model id.
type Factory func(model string) (Detector, error)

// Options control how detections become boxes.
type Options struct {
	Model        string
	Confidence   float64
	DefaultClass int
}

// Result reports what a detection run did.
type Result struct {
	Model string
	Raw   int // detections returned by the detector
	Added int // boxes appended to the session
}

// ToBoxes keeps detections with confidence >= opts.Confidence, converts them to
// boxes of opts.DefaultClass clamped to width x height, and drops boxes with
// non-finite coordinates or no area. A NaN confidence never passes.
func ToBoxes(dets []Detection, opts Options, width, height int) []geometry.Box {
	boxes := make([]geometry.Box, 0, len(dets))
	for _, d := range dets {
		if !(d.Confidence >= opts.Confidence) {
			continue
		}
		raw := d.Box(opts.DefaultClass)
		if !raw.Finite() {
			continue
		}
		b := geometry.Clamp(raw, float64(width), float64(height))
		if b.Area() <= 0 {
			continue
		}
		boxes = append(boxes, b)
	}
	return boxes
}

// Adapter resolves models through a Library, caches one detector per model
// and applies detections to sessions.
type Adapter struct {
	library *Library
	factory Factory

	mu    sync.Mutex
	cache map[string]Detector
}

// NewAdapter creates an Adapter.
func NewAdapter(library *Library, factory Factory) *Adapter {
	if library == nil {
		library = NewLibrary()
	}
	return &Adapter{
		library: library,
		factory: factory,
		cache:   make(map[string]Detector),
	}
}

// Library returns the model library.
func (a *Adapter) Library() *Library { return a.library }

// Detector returns the cached detector for a model, building it on first use.
// It also returns the resolved model id.
func (a *Adapter) Detector(model string) (Detector, string, error) {
	id, err := a.library.Resolve(model)
	if err != nil {
		return nil, "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if d, ok := a.cache[id]; ok {
		return d, id, nil
	}
	if a.factory == nil {
		return nil, id, fmt.Errorf("no detector backend for model %s", id)
	}
	d, err := a.factory(id)
	if err != nil {
		return nil, id, fmt.Errorf("failed to load model %s: %w", id, err)
	}
	a.cache[id] = d
	logger.Infof("Loaded detection model %s", id)
	return d, id, nil
}

// Detect runs the detector for opts.Model on an image of width x height and
// returns the filtered boxes.
func (a *Adapter) Detect(ctx context.Context, imagePath string, width, height int, opts Options) ([]geometry.Box, Result, error) {
	d, id, err := a.Detector(opts.Model)
	if err != nil {
		return nil, Result{Model: id}, err
	}
	dets, err := d.Detect(ctx, Request{ImagePath: imagePath, Model: id, Confidence: opts.Confidence})
	if err != nil {
		return nil, Result{Model: id}, fmt.Errorf("detection failed on %s: %w", imagePath, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, Result{Model: id}, err
	}
	boxes := ToBoxes(dets, opts, width, height)
	return boxes, Result{Model: id, Raw: len(dets), Added: len(boxes)}, nil
}

// Apply detects objects on the session's image and appends them to its box
// set under one history snapshot. On error the session is left untouched.
func (a *Adapter) Apply(ctx context.Context, s *session.Session, opts Options) (Result, error) {
	if s.Dragging() {
		return Result{}, session.ErrDragInProgress
	}
	w, h := s.Size()
	boxes, res, err := a.Detect(ctx, s.ImagePath(), w, h, opts)
	if err != nil {
		return res, err
	}
	added, err := s.Append(boxes...)
	if err != nil {
		return res, err
	}
	res.Added = added
	logger.Debugf("Detector %s: %d raw, %d added to %s", res.Model, res.Raw, res.Added, s.ImagePath())
	return res, nil
}

// Close releases cached detectors that hold resources.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for id, d := range a.cache {
		if c, ok := d.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		delete(a.cache, id)
	}
	return firstErr
}
