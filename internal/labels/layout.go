package labels

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// Mode selects how a dataset is laid out on disk and which label codec it uses.
type Mode string

const (
	ModeImages Mode = "images" // flat folder of images
	ModeYOLO   Mode = "yolo"   // images/<split> with labels/<split>/*.txt
	ModeRFDETR Mode = "rfdetr" // images/<split> or <split>/ with labels/<split>/*.json
)

// Modes lists every supported mode.
var Modes = []Mode{ModeImages, ModeYOLO, ModeRFDETR}

// ParseMode validates a mode name. The empty string means ModeImages.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return ModeImages, nil
	}
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !lo.Contains(Modes, m) {
		return "", fmt.Errorf("unknown dataset mode %q (want one of %v)", s, Modes)
	}
	return m, nil
}

// Codec returns the label codec used by the mode.
func (m Mode) Codec() Codec {
	if m == ModeRFDETR {
		return JSONCodec{}
	}
	return YOLOCodec{}
}

// Split names in their canonical order.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// KnownSplits lists the split names a dataset tree may contain.
var KnownSplits = []string{SplitTrain, SplitVal, SplitTest}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsDatasetRoot reports whether dir contains images/<split> for a known split.
func IsDatasetRoot(dir string) bool {
	return lo.SomeBy(KnownSplits, func(s string) bool {
		return isDir(filepath.Join(dir, "images", s))
	})
}

// FindDatasetRoot looks for a dataset tree at path, its parent, its
// grandparent and finally its direct children. It returns "" when none is found.
func FindDatasetRoot(path string) string {
	p := filepath.Clean(path)
	candidates := []string{p, filepath.Dir(p), filepath.Dir(filepath.Dir(p))}
	for _, c := range candidates {
		if c != "" && IsDatasetRoot(c) {
			return c
		}
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		child := filepath.Join(p, e.Name())
		if e.IsDir() && IsDatasetRoot(child) {
			return child
		}
	}
	return ""
}

// ResolveRoot picks the dataset root for a folder opened in the given mode.
// Tree modes prefer a detected dataset tree, then the folder itself if it has
// an images/ directory; images mode uses a detected tree when there is one.
func ResolveRoot(path string, mode Mode) string {
	detected := FindDatasetRoot(path)
	switch {
	case mode != ModeImages && detected != "":
		return detected
	case mode != ModeImages && isDir(filepath.Join(path, "images")):
		return path
	case mode == ModeImages && detected != "":
		return detected
	default:
		return path
	}
}
