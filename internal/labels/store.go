// Package labels reads and writes per-image label files and manages the
// dataset layout: split discovery, image lists and the removed-images registry.
package labels

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	labimage "ai-labeller/internal/image"
	"ai-labeller/pkg/geometry"

	"github.com/flanksource/commons/logger"
	"github.com/samber/lo"
)

// ErrNotFound is returned when an image or removed file does not exist.
var ErrNotFound = errors.New("not found")

// SizeFunc returns the pixel dimensions of an image file.
type SizeFunc func(path string) (int, int, error)

// Labels is the result of loading the label file of one image.
type Labels struct {
	ImagePath string         `json:"image" yaml:"image"`
	Width     int            `json:"width" yaml:"width"`
	Height    int            `json:"height" yaml:"height"`
	Boxes     []geometry.Box `json:"boxes" yaml:"boxes"`
	// HasLabelFile is false when no label file exists or it could not be parsed.
	HasLabelFile bool `json:"has_label_file" yaml:"has_label_file"`
}

// Store gives access to the images and label files under a dataset root.
type Store struct {
	root  string
	mode  Mode
	codec Codec
	size  SizeFunc
}

// NewStore creates a Store for an already resolved dataset root.
func NewStore(root string, mode Mode) *Store {
	return &Store{
		root:  filepath.Clean(root),
		mode:  mode,
		codec: mode.Codec(),
		size:  labimage.Size,
	}
}

// Root returns the dataset root directory.
func (s *Store) Root() string { return s.root }

// Mode returns the dataset mode.
func (s *Store) Mode() Mode { return s.mode }

// Codec returns the label codec of the store.
func (s *Store) Codec() Codec { return s.codec }

// hasTree reports whether the dataset uses images/<split> directories.
func (s *Store) hasTree() bool {
	return isDir(filepath.Join(s.root, "images"))
}

// hasSplitDirs reports whether an rfdetr dataset keeps images in <root>/<split>.
func (s *Store) hasSplitDirs() bool {
	if s.mode != ModeRFDETR || s.hasTree() {
		return false
	}
	return lo.SomeBy(KnownSplits, func(sp string) bool {
		return isDir(filepath.Join(s.root, sp))
	})
}

// Splits lists the splits present in the dataset, in canonical order.
// A flat image folder has the single split "train".
func (s *Store) Splits() []string {
	switch {
	case s.hasTree():
		return lo.Filter(KnownSplits, func(sp string, _ int) bool {
			return isDir(filepath.Join(s.root, "images", sp))
		})
	case s.hasSplitDirs():
		return lo.Filter(KnownSplits, func(sp string, _ int) bool {
			return isDir(filepath.Join(s.root, sp))
		})
	default:
		return []string{SplitTrain}
	}
}

// HasSplit reports whether split exists in the dataset.
func (s *Store) HasSplit(split string) bool {
	return lo.Contains(s.Splits(), split)
}

// DefaultSplit returns "train" if it has images, else the first split with
// images, else the first split.
func (s *Store) DefaultSplit() string {
	splits := s.Splits()
	nonEmpty := lo.Filter(splits, func(sp string, _ int) bool {
		imgs, err := s.Images(sp)
		return err == nil && len(imgs) > 0
	})
	switch {
	case lo.Contains(nonEmpty, SplitTrain):
		return SplitTrain
	case len(nonEmpty) > 0:
		return nonEmpty[0]
	case len(splits) > 0:
		return splits[0]
	default:
		return SplitTrain
	}
}

// ImageDir returns the directory holding the images of split.
func (s *Store) ImageDir(split string) string {
	switch {
	case s.hasTree():
		return filepath.Join(s.root, "images", split)
	case s.hasSplitDirs():
		return filepath.Join(s.root, split)
	default:
		return s.root
	}
}

// LabelDir returns the directory holding the label files of split.
func (s *Store) LabelDir(split string) string {
	return filepath.Join(s.root, "labels", split)
}

// LabelPath returns the label file path for an image in split.
func (s *Store) LabelPath(split, imagePath string) string {
	return filepath.Join(s.LabelDir(split), labimage.BaseName(imagePath)+s.codec.Ext())
}

// EnsureLabelDirs creates labels/<split> for every split.
func (s *Store) EnsureLabelDirs() error {
	for _, sp := range s.Splits() {
		if err := os.MkdirAll(s.LabelDir(sp), 0o755); err != nil {
			return fmt.Errorf("failed to create label dir: %w", err)
		}
	}
	return nil
}

// Images lists the images of split in path order. Unknown splits are empty.
func (s *Store) Images(split string) ([]string, error) {
	if !s.HasSplit(split) {
		return []string{}, nil
	}
	return labimage.List(s.ImageDir(split))
}

// Load reads the labels of an image. A missing or unparsable label file is not
// an error: it yields no boxes and HasLabelFile=false. A missing image is.
func (s *Store) Load(split, imagePath string) (*Labels, error) {
	w, h, err := s.imageSize(imagePath)
	if err != nil {
		return nil, err
	}
	out := &Labels{ImagePath: imagePath, Width: w, Height: h, Boxes: []geometry.Box{}}

	path := s.LabelPath(split, imagePath)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Could not read label file %s: %v", path, err)
		}
		return out, nil
	}
	boxes, err := s.codec.Decode(bytes.NewReader(data), w, h)
	if err != nil {
		logger.Warnf("Ignoring label file %s: %v", path, err)
		return out, nil
	}
	out.Boxes = boxes
	out.HasLabelFile = true
	return out, nil
}

// Save writes the boxes of an image to its label file. An empty box set still
// writes a file, which records that the image has no objects.
func (s *Store) Save(split, imagePath string, boxes []geometry.Box) error {
	w, h, err := s.imageSize(imagePath)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := s.codec.Encode(&buf, boxes, w, h); err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	path := s.LabelPath(split, imagePath)
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to save labels for %s: %w", imagePath, err)
	}
	logger.Debugf("Saved %d boxes to %s", len(boxes), path)
	return nil
}

func (s *Store) imageSize(path string) (int, int, error) {
	if !isFile(path) {
		return 0, 0, fmt.Errorf("image %s: %w", path, ErrNotFound)
	}
	return s.size(path)
}

// writeFileAtomic writes data to a temp file next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".label-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Chmod(path, 0o644)
}
