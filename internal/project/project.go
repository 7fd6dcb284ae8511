// Package project opens annotation datasets and tracks the active split,
// its image list and the class names.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ai-labeller/internal/labels"

	"github.com/flanksource/commons/logger"
)

// ErrUnknownSplit is returned when selecting a split the dataset does not have.
var ErrUnknownSplit = errors.New("unknown split")

// Project is an opened dataset.
type Project struct {
	Root    string
	Mode    labels.Mode
	Split   string
	Images  []string
	Classes []string

	store *labels.Store
}

// Info summarizes a project for display.
type Info struct {
	Root    string      `json:"root" yaml:"root"`
	Mode    labels.Mode `json:"mode" yaml:"mode"`
	Split   string      `json:"split" yaml:"split"`
	Splits  []string    `json:"splits" yaml:"splits"`
	Count   int         `json:"count" yaml:"count"`
	Classes []string    `json:"class_names" yaml:"class_names"`
}

// Open opens the folder at path in the given mode. The dataset root may be the
// folder itself or a detected images/<split> tree around it.
func Open(path string, mode labels.Mode) (*Project, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("folder %s: %w", abs, labels.ErrNotFound)
	}

	root := labels.ResolveRoot(abs, mode)
	store := labels.NewStore(root, mode)
	if err := store.EnsureLabelDirs(); err != nil {
		return nil, err
	}

	classes, source, err := LoadClassNames(root)
	if err != nil {
		logger.Warnf("Could not read class names from %s: %v", root, err)
		classes = DefaultClassNames()
	}

	p := &Project{
		Root:    root,
		Mode:    mode,
		Split:   store.DefaultSplit(),
		Classes: classes,
		store:   store,
	}
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	logger.Infof("Opened %s dataset at %s: split %s, %d images, classes from %s",
		mode, root, p.Split, len(p.Images), source)
	return p, nil
}

// Store returns the label store of the project.
func (p *Project) Store() *labels.Store { return p.store }

// Splits lists the dataset splits.
func (p *Project) Splits() []string { return p.store.Splits() }

// Refresh re-reads the image list of the active split.
func (p *Project) Refresh() error {
	images, err := p.store.Images(p.Split)
	if err != nil {
		return err
	}
	p.Images = images
	return nil
}

// SetSplit switches the active split and reloads its image list.
func (p *Project) SetSplit(split string) error {
	if !p.store.HasSplit(split) {
		return fmt.Errorf("%q: %w", split, ErrUnknownSplit)
	}
	prev := p.Split
	p.Split = split
	if err := p.Refresh(); err != nil {
		p.Split = prev
		return err
	}
	return nil
}

// IndexOf returns the position of imagePath in the active split, or -1.
func (p *Project) IndexOf(imagePath string) int {
	target := filepath.Clean(imagePath)
	for i, img := range p.Images {
		if filepath.Clean(img) == target {
			return i
		}
	}
	return -1
}

// SetClasses validates and persists new class names. On error the previous
// names are kept.
func (p *Project) SetClasses(names []string) error {
	clean, err := NormalizeClassNames(names)
	if err != nil {
		return err
	}
	if err := SaveClassNames(p.Root, clean); err != nil {
		return err
	}
	p.Classes = clean
	return nil
}

// ClassName returns the name of a class id, or a placeholder for unknown ids.
func (p *Project) ClassName(id int) string {
	if id >= 0 && id < len(p.Classes) {
		return p.Classes[id]
	}
	return fmt.Sprintf("class%d", id)
}

// Info returns a summary of the project.
func (p *Project) Info() Info {
	return Info{
		Root:    p.Root,
		Mode:    p.Mode,
		Split:   p.Split,
		Splits:  p.Splits(),
		Count:   len(p.Images),
		Classes: append([]string(nil), p.Classes...),
	}
}
