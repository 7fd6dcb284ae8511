// Command detecttest runs an ONNX detector on one image and prints the boxes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ai-labeller/internal/detector"
	"ai-labeller/internal/detector/onnx"
	labimage "ai-labeller/internal/image"
)

func main() {
	imagePath := flag.String("image", "", "Path to image (PNG, JPEG, BMP, TIFF or WebP)")
	modelPath := flag.String("model", "", "Path to ONNX model")
	conf := flag.Float64("conf", 0.5, "Confidence threshold")
	class := flag.Int("class", 0, "Class id assigned to detections")
	size := flag.Int("size", 640, "Network input size")
	nms := flag.Float64("nms", 0.45, "NMS IoU threshold")
	flag.Parse()

	if *imagePath == "" || *modelPath == "" {
		fmt.Println("Usage: detecttest -image <path> -model <model.onnx> [-conf 0.5] [-class 0] [-size 640] [-nms 0.45]")
		os.Exit(1)
	}

	info, err := labimage.Probe(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %s image: %dx%d pixels\n", info.Format, info.Width, info.Height)

	params := onnx.DefaultParams()
	params.InputSize = *size
	params.NMSThreshold = *nms
	fmt.Printf("\nDetection parameters:\n")
	fmt.Printf("  Model: %s\n", *modelPath)
	fmt.Printf("  Input: %dx%d\n", params.InputSize, params.InputSize)
	fmt.Printf("  Confidence min: %.2f\n", *conf)
	fmt.Printf("  NMS IoU: %.2f\n", params.NMSThreshold)

	adapter := detector.NewAdapter(detector.NewLibrary(), onnx.Factory(params))
	defer adapter.Close()

	fmt.Printf("\nDetecting objects...\n")
	start := time.Now()
	boxes, res, err := adapter.Detect(context.Background(), *imagePath, info.Width, info.Height, detector.Options{
		Model:        *modelPath,
		Confidence:   *conf,
		DefaultClass: *class,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Done in %s: %d raw detections, %d kept\n", time.Since(start).Round(time.Millisecond), res.Raw, len(boxes))

	fmt.Printf("\n%-6s %8s %8s %8s %8s %8s %8s\n", "#", "X1", "Y1", "X2", "Y2", "W", "H")
	fmt.Println(strings.Repeat("-", 62))
	for i, b := range boxes {
		fmt.Printf("%-6d %8.1f %8.1f %8.1f %8.1f %8.1f %8.1f\n", i, b.X1, b.Y1, b.X2, b.Y2, b.Width(), b.Height())
	}
}
