// Package onnx runs YOLOv8-style ONNX models through the OpenCV DNN module.
package onnx

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ai-labeller/internal/detector"

	"github.com/flanksource/commons/logger"
	"gocv.io/x/gocv"
)

// Params holds network input and post-processing settings.
type Params struct {
	InputSize    int     // square network input in pixels
	NMSThreshold float64 // IoU above which same-class detections are suppressed
	MinScore     float64 // floor applied before NMS when the request carries none
}

// DefaultParams returns settings for stock YOLOv8 exports.
func DefaultParams() Params {
	return Params{
		InputSize:    640,
		NMSThreshold: 0.45,
		MinScore:     0.05,
	}
}

// Detector wraps a loaded gocv.Net. The net is not safe for concurrent use,
// so Detect calls are serialized.
type Detector struct {
	model  string
	params Params

	mu  sync.Mutex
	net gocv.Net
}

// Load reads an ONNX model file.
func Load(model string, params Params) (*Detector, error) {
	if !strings.EqualFold(filepath.Ext(model), ".onnx") {
		return nil, fmt.Errorf("unsupported model format %q (want .onnx)", filepath.Ext(model))
	}
	if _, err := os.Stat(model); err != nil {
		return nil, fmt.Errorf("%s: %w", model, detector.ErrModelNotFound)
	}
	if params.InputSize <= 0 {
		params.InputSize = DefaultParams().InputSize
	}
	net := gocv.ReadNet(model, "")
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to read network %s", model)
	}
	return &Detector{model: model, params: params, net: net}, nil
}

// Factory returns a detector.Factory that loads ONNX models with params.
func Factory(params Params) detector.Factory {
	return func(model string) (detector.Detector, error) {
		return Load(model, params)
	}
}

// Model returns the loaded model path.
func (d *Detector) Model() string { return d.model }

// Detect runs the network on req.ImagePath.
func (d *Detector) Detect(ctx context.Context, req detector.Request) ([]detector.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img := gocv.IMRead(req.ImagePath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("failed to read image %s", req.ImagePath)
	}

	size := d.params.InputSize
	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.mu.Lock()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	d.mu.Unlock()
	defer out.Close()

	// Output is [1, 4+nc, n].
	dims := out.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, fmt.Errorf("unexpected output shape %v from %s", dims, d.model)
	}
	rows, cols := dims[1], dims[2]
	flat := out.Reshape(1, rows)
	defer flat.Close()

	minScore := req.Confidence
	if minScore <= 0 {
		minScore = d.params.MinScore
	}
	scaleX := float64(img.Cols()) / float64(size)
	scaleY := float64(img.Rows()) / float64(size)
	dets := detector.DecodeYOLOv8(flat.GetFloatAt, rows, cols, scaleX, scaleY, minScore)
	kept := detector.NMS(dets, d.params.NMSThreshold)
	logger.Debugf("%s: %d candidates, %d after NMS", filepath.Base(req.ImagePath), len(dets), len(kept))
	return kept, nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
