// Package export writes a dataset out as a YOLO tree or as per-split JSON
// annotation files.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	labimage "ai-labeller/internal/image"
	"ai-labeller/internal/labels"
	"ai-labeller/pkg/geometry"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
)

// Format selects the export layout.
type Format string

const (
	FormatYOLO Format = "yolo"
	FormatJSON Format = "json"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatYOLO, FormatJSON}

// ErrNoOutput is returned when no output directory is given.
var ErrNoOutput = errors.New("no output directory")

// ParseFormat validates a format name. The empty string means YOLO.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "" {
		return FormatYOLO, nil
	}
	if !lo.Contains(Formats, f) {
		return "", fmt.Errorf("unknown export format %q (want one of %v)", s, Formats)
	}
	return f, nil
}

// Options control an export run.
type Options struct {
	OutputDir string
	Format    Format
	// Split limits the export to one split; empty exports every split.
	Split string
	// Workers bounds the number of images processed at once.
	Workers int
	// Classes are written to data.yaml for YOLO exports.
	Classes []string
}

// Summary reports the outcome of an export run.
type Summary struct {
	Format   Format   `json:"format" yaml:"format"`
	Output   string   `json:"output" yaml:"output"`
	Splits   []string `json:"splits" yaml:"splits"`
	Total    int      `json:"total" yaml:"total"`
	Exported int      `json:"exported" yaml:"exported"`
	Failed   int      `json:"failed" yaml:"failed"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ImageRecord is one image entry of a JSON annotation file.
type ImageRecord struct {
	Path   string         `json:"path"`
	Width  int            `json:"width"`
	Height int            `json:"height"`
	Boxes  []geometry.Box `json:"boxes"`
}

// Annotations is the content of annotations/<split>.json.
type Annotations struct {
	Images []ImageRecord `json:"images"`
}

// job is one image to export.
type job struct {
	split string
	image string
}

// result is the outcome of one job, kept at the job's index.
type result struct {
	record *ImageRecord
	err    error
}

// Run exports the dataset of store. Per-image failures are collected in the
// summary and do not stop the run. An error is returned only when the run
// cannot start or ctx is cancelled.
func Run(ctx context.Context, store *labels.Store, opts Options) (*Summary, error) {
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, ErrNoOutput
	}
	if opts.Format == "" {
		opts.Format = FormatYOLO
	}
	if !lo.Contains(Formats, opts.Format) {
		return nil, fmt.Errorf("unknown export format %q", opts.Format)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	out, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	splits := store.Splits()
	if opts.Split != "" {
		if !store.HasSplit(opts.Split) {
			return nil, fmt.Errorf("split %q: %w", opts.Split, labels.ErrNotFound)
		}
		splits = []string{opts.Split}
	}

	var jobs []job
	for _, sp := range splits {
		images, err := store.Images(sp)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s images: %w", sp, err)
		}
		for _, img := range images {
			jobs = append(jobs, job{split: sp, image: img})
		}
	}

	e := &exporter{store: store, out: out, format: opts.Format}
	results := e.runPool(ctx, jobs, opts.Workers)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &Summary{Format: opts.Format, Output: filepath.ToSlash(out), Splits: splits, Total: len(jobs)}
	bySplit := make(map[string][]ImageRecord)
	for i, r := range results {
		if r.err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", jobs[i].image, r.err))
			continue
		}
		summary.Exported++
		bySplit[jobs[i].split] = append(bySplit[jobs[i].split], *r.record)
	}

	switch opts.Format {
	case FormatJSON:
		for _, sp := range splits {
			if err := e.writeAnnotations(sp, bySplit[sp]); err != nil {
				return summary, err
			}
		}
	case FormatYOLO:
		if err := WriteDataYAML(filepath.Join(out, "data.yaml"), out, splits, opts.Classes); err != nil {
			return summary, err
		}
	}

	logger.Infof("Exported %d/%d images as %s to %s (%d failed)",
		summary.Exported, summary.Total, summary.Format, summary.Output, summary.Failed)
	return summary, nil
}

type exporter struct {
	store  *labels.Store
	out    string
	format Format
}

// runPool processes jobs with at most workers goroutines. Results keep the
// order of jobs.
func (e *exporter) runPool(ctx context.Context, jobs []job, workers int) []result {
	results := make([]result, len(jobs))
	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(jobs)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				if err := ctx.Err(); err != nil {
					results[i] = result{err: err}
					continue
				}
				rec, err := e.exportImage(jobs[i])
				results[i] = result{record: rec, err: err}
			}
		}()
	}
	for i := range jobs {
		indices <- i
	}
	close(indices)
	wg.Wait()
	return results
}

// exportImage copies one image and, for YOLO, writes its label file when the
// source image has one.
func (e *exporter) exportImage(j job) (*ImageRecord, error) {
	lbl, err := e.store.Load(j.split, j.image)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(j.image)
	rel := filepath.ToSlash(filepath.Join("images", j.split, name))
	if err := copyFile(j.image, filepath.Join(e.out, rel)); err != nil {
		return nil, fmt.Errorf("failed to copy image: %w", err)
	}

	if e.format == FormatYOLO && lbl.HasLabelFile {
		var buf bytes.Buffer
		if err := (labels.YOLOCodec{}).Encode(&buf, lbl.Boxes, lbl.Width, lbl.Height); err != nil {
			return nil, err
		}
		dst := filepath.Join(e.out, "labels", j.split, labimage.BaseName(name)+".txt")
		if err := writeFile(dst, buf.Bytes()); err != nil {
			return nil, fmt.Errorf("failed to write labels: %w", err)
		}
	}
	return &ImageRecord{Path: rel, Width: lbl.Width, Height: lbl.Height, Boxes: lbl.Boxes}, nil
}

func (e *exporter) writeAnnotations(split string, records []ImageRecord) error {
	if records == nil {
		records = []ImageRecord{}
	}
	data, err := json.MarshalIndent(Annotations{Images: records}, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(e.out, "annotations", split+".json")
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadAnnotations reads an annotations/<split>.json file.
func ReadAnnotations(path string) (*Annotations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Annotations
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &a, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
