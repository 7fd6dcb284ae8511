// Package app owns the open dataset and the annotation session of the current
// image, and orders image transitions and events around them.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"ai-labeller/internal/config"
	"ai-labeller/internal/detector"
	"ai-labeller/internal/export"
	"ai-labeller/internal/labels"
	"ai-labeller/internal/project"
	"ai-labeller/internal/session"
	"ai-labeller/pkg/geometry"

	"github.com/flanksource/commons/logger"
)

var (
	// ErrNoProject is returned by operations that need an open dataset.
	ErrNoProject = errors.New("no project loaded")
	// ErrNoImage is returned by operations that need an open image.
	ErrNoImage = errors.New("no image open")
	// ErrNoDetector is returned when detection is requested without a backend.
	ErrNoDetector = errors.New("no detector configured")
)

// EventType identifies different application events.
type EventType int

const (
	EventProjectLoaded EventType = iota
	EventProjectClosed
	EventSplitChanged
	EventImageLoaded
	EventLabelsSaved
	EventClassesChanged
	EventImageRemoved
	EventImageRestored
	EventDetectionComplete
	EventExportComplete
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// ImageLoaded is the payload of EventImageLoaded.
type ImageLoaded struct {
	Index int
	Path  string
	// Source is where the boxes came from: "labels", "propagated",
	// "detected" or "empty".
	Source string
	Boxes  int
}

// Info describes the navigator state.
type Info struct {
	project.Info `yaml:",inline"`
	Index        int    `json:"index" yaml:"index"`
	Image        string `json:"image,omitempty" yaml:"image,omitempty"`
	Boxes        int    `json:"boxes" yaml:"boxes"`
	Dirty        bool   `json:"dirty" yaml:"dirty"`
}

// Navigator holds the open project and the session of the current image.
// Image transitions are serialized: the outgoing image is saved before the
// labels of the incoming image are read.
type Navigator struct {
	mu sync.Mutex

	cfg      *config.Config
	detector *detector.Adapter

	project *project.Project
	index   int
	sess    *session.Session
	// previous is a private copy of the box set of the last image left.
	previous []geometry.Box

	lmu       sync.RWMutex
	listeners map[EventType][]EventListener
}

// New creates a Navigator. adapter may be nil when no detector is available.
func New(cfg *config.Config, adapter *detector.Adapter) *Navigator {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Navigator{
		cfg:       cfg,
		detector:  adapter,
		index:     -1,
		listeners: make(map[EventType][]EventListener),
	}
}

// On registers an event listener for the specified event type.
func (n *Navigator) On(event EventType, listener EventListener) {
	n.lmu.Lock()
	defer n.lmu.Unlock()
	n.listeners[event] = append(n.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (n *Navigator) Emit(event EventType, data interface{}) {
	n.lmu.RLock()
	listeners := n.listeners[event]
	n.lmu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// Config returns the navigator settings.
func (n *Navigator) Config() *config.Config { return n.cfg }

// Project returns the open project, or nil.
func (n *Navigator) Project() *project.Project {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.project
}

// Session returns the session of the current image, or nil.
func (n *Navigator) Session() *session.Session {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sess
}

// Index returns the position of the current image in the split, or -1.
func (n *Navigator) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

// Image returns the path of the current image, or "".
func (n *Navigator) Image() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sess == nil {
		return ""
	}
	return n.sess.ImagePath()
}

// OpenProject opens a dataset folder, selects its default split (or the
// configured one) and loads the first image.
func (n *Navigator) OpenProject(ctx context.Context, path string, mode labels.Mode) error {
	return n.OpenProjectAt(ctx, path, mode, 0)
}

// OpenProjectAt is OpenProject starting at image index start. No other image
// is loaded first, so nothing is propagated into it.
func (n *Navigator) OpenProjectAt(ctx context.Context, path string, mode labels.Mode, start int) error {
	n.mu.Lock()
	if err := n.flush(); err != nil {
		n.mu.Unlock()
		return err
	}
	p, err := project.Open(path, mode)
	if err != nil {
		n.mu.Unlock()
		return err
	}
	if n.cfg.Split != "" && n.cfg.Split != p.Split {
		if err := p.SetSplit(n.cfg.Split); err != nil {
			logger.Warnf("Split %s not available, using %s", n.cfg.Split, p.Split)
		}
	}
	n.project = p
	n.resetImage()
	n.mu.Unlock()

	n.Emit(EventProjectLoaded, p.Info())
	if len(p.Images) == 0 && start == 0 {
		return nil
	}
	return n.Open(ctx, start)
}

// SetSplit saves the current image, switches split and loads its first image.
func (n *Navigator) SetSplit(ctx context.Context, split string) error {
	n.mu.Lock()
	if n.project == nil {
		n.mu.Unlock()
		return ErrNoProject
	}
	if err := n.flush(); err != nil {
		n.mu.Unlock()
		return err
	}
	if err := n.project.SetSplit(split); err != nil {
		n.mu.Unlock()
		return err
	}
	n.resetImage()
	count := len(n.project.Images)
	n.mu.Unlock()

	n.Emit(EventSplitChanged, split)
	if count == 0 {
		return nil
	}
	return n.Open(ctx, 0)
}

// Open saves the current image and loads the image at index.
func (n *Navigator) Open(ctx context.Context, index int) error {
	n.mu.Lock()
	ev, err := n.transition(ctx, index)
	n.mu.Unlock()
	if err != nil {
		return err
	}
	n.Emit(EventImageLoaded, ev)
	return nil
}

// Next moves to the following image. It reports false at the end of the split.
func (n *Navigator) Next(ctx context.Context) (bool, error) {
	return n.step(ctx, 1)
}

// Prev moves to the preceding image. It reports false at the start of the split.
func (n *Navigator) Prev(ctx context.Context) (bool, error) {
	return n.step(ctx, -1)
}

func (n *Navigator) step(ctx context.Context, delta int) (bool, error) {
	n.mu.Lock()
	if n.project == nil {
		n.mu.Unlock()
		return false, ErrNoProject
	}
	target := n.index + delta
	if target < 0 || target >= len(n.project.Images) {
		n.mu.Unlock()
		return false, nil
	}
	ev, err := n.transition(ctx, target)
	n.mu.Unlock()
	if err != nil {
		return false, err
	}
	n.Emit(EventImageLoaded, ev)
	return true, nil
}

// transition saves the outgoing image then loads the incoming one. Callers
// hold n.mu.
func (n *Navigator) transition(ctx context.Context, index int) (ImageLoaded, error) {
	if n.project == nil {
		return ImageLoaded{}, ErrNoProject
	}
	if index < 0 || index >= len(n.project.Images) {
		return ImageLoaded{}, fmt.Errorf("image index %d out of range [0,%d)", index, len(n.project.Images))
	}
	if n.sess != nil && n.sess.Dragging() {
		return ImageLoaded{}, session.ErrDragInProgress
	}
	if err := n.flush(); err != nil {
		return ImageLoaded{}, err
	}
	if n.sess != nil {
		n.previous = n.sess.Boxes()
	}

	path := n.project.Images[index]
	lbl, err := n.project.Store().Load(n.project.Split, path)
	if err != nil {
		return ImageLoaded{}, fmt.Errorf("failed to load %s: %w", path, err)
	}
	sess := session.New(path, lbl.Width, lbl.Height)
	sess.SetActiveClass(n.cfg.DefaultClass)

	source := "empty"
	switch {
	case lbl.HasLabelFile:
		sess.Load(lbl.Boxes)
		source = "labels"
	case n.cfg.Propagate && len(n.previous) > 0:
		sess.Propagate(n.previous)
		source = "propagated"
	case n.cfg.AutoDetect && n.detector != nil:
		boxes, _, err := n.detector.Detect(ctx, path, lbl.Width, lbl.Height, n.detectOptions())
		if err != nil {
			logger.Warnf("Auto-detect failed on %s: %v", filepath.Base(path), err)
			break
		}
		sess.Propagate(boxes)
		source = "detected"
	}

	n.sess = sess
	n.index = index
	logger.Debugf("Opened %s (%d/%d): %d boxes from %s",
		filepath.Base(path), index+1, len(n.project.Images), sess.Len(), source)
	return ImageLoaded{Index: index, Path: path, Source: source, Boxes: sess.Len()}, nil
}

// flush saves the current session if it has unsaved edits. Callers hold n.mu.
func (n *Navigator) flush() error {
	if n.sess == nil || !n.sess.Dirty() {
		return nil
	}
	return n.save()
}

// save writes the current session. Callers hold n.mu.
func (n *Navigator) save() error {
	if n.project == nil {
		return ErrNoProject
	}
	if n.sess == nil {
		return ErrNoImage
	}
	if err := n.project.Store().Save(n.project.Split, n.sess.ImagePath(), n.sess.Boxes()); err != nil {
		return err
	}
	n.sess.MarkSaved()
	return nil
}

// resetImage drops the session and the propagation source. Callers hold n.mu.
func (n *Navigator) resetImage() {
	n.sess = nil
	n.index = -1
	n.previous = nil
}

// Save writes the labels of the current image, dirty or not.
func (n *Navigator) Save() error {
	n.mu.Lock()
	err := n.save()
	var path string
	if err == nil {
		path = n.sess.ImagePath()
	}
	n.mu.Unlock()
	if err != nil {
		return err
	}

	n.Emit(EventLabelsSaved, path)
	return nil
}

// Close saves pending edits and closes the project.
func (n *Navigator) Close() error {
	n.mu.Lock()
	if n.project == nil {
		n.mu.Unlock()
		return nil
	}
	err := n.flush()
	n.project = nil
	n.resetImage()
	n.mu.Unlock()

	n.Emit(EventProjectClosed, nil)
	return err
}

// Classes returns the class names of the project.
func (n *Navigator) Classes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.project == nil {
		return nil
	}
	return append([]string(nil), n.project.Classes...)
}

// SetClasses validates and stores new class names. On error the current
// names are kept.
func (n *Navigator) SetClasses(names []string) error {
	n.mu.Lock()
	if n.project == nil {
		n.mu.Unlock()
		return ErrNoProject
	}
	if err := n.project.SetClasses(names); err != nil {
		n.mu.Unlock()
		return err
	}
	classes := append([]string(nil), n.project.Classes...)
	n.mu.Unlock()

	n.Emit(EventClassesChanged, classes)
	return nil
}

// Remove moves the current image and its labels into the removed registry and
// opens the image that takes its place.
func (n *Navigator) Remove(ctx context.Context) error {
	n.mu.Lock()
	if n.project == nil {
		n.mu.Unlock()
		return ErrNoProject
	}
	if n.sess == nil {
		n.mu.Unlock()
		return ErrNoImage
	}
	if n.sess.Dragging() {
		n.mu.Unlock()
		return session.ErrDragInProgress
	}
	if err := n.flush(); err != nil {
		n.mu.Unlock()
		return err
	}
	path := n.sess.ImagePath()
	if _, err := n.project.Store().Remove(n.project.Split, path); err != nil {
		n.mu.Unlock()
		return err
	}
	n.sess = nil
	index := n.index
	n.index = -1
	if err := n.project.Refresh(); err != nil {
		n.mu.Unlock()
		return err
	}
	count := len(n.project.Images)
	n.mu.Unlock()

	n.Emit(EventImageRemoved, path)
	if count == 0 {
		return nil
	}
	return n.Open(ctx, min(index, count-1))
}

// Removed lists the removed images of the active split.
func (n *Navigator) Removed() ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.project == nil {
		return nil, ErrNoProject
	}
	return n.project.Store().Removed(n.project.Split)
}

// Restore moves a removed image back into the active split and returns the
// files still removed.
func (n *Navigator) Restore(filename string) ([]string, error) {
	n.mu.Lock()
	if n.project == nil {
		n.mu.Unlock()
		return nil, ErrNoProject
	}
	images, removed, err := n.project.Store().Restore(n.project.Split, filename)
	if err != nil {
		n.mu.Unlock()
		return nil, err
	}
	n.project.Images = images
	if n.sess != nil {
		n.index = n.project.IndexOf(n.sess.ImagePath())
	}
	n.mu.Unlock()

	n.Emit(EventImageRestored, filename)
	return removed, nil
}

func (n *Navigator) detectOptions() detector.Options {
	return detector.Options{
		Model:        n.cfg.Model,
		Confidence:   n.cfg.Confidence,
		DefaultClass: n.cfg.DefaultClass,
	}
}

// Detect runs the detector on the current image and appends its boxes to the
// session as one undoable edit. New boxes take the session's active class.
func (n *Navigator) Detect(ctx context.Context) (detector.Result, error) {
	n.mu.Lock()
	if n.detector == nil {
		n.mu.Unlock()
		return detector.Result{}, ErrNoDetector
	}
	if n.sess == nil {
		n.mu.Unlock()
		return detector.Result{}, ErrNoImage
	}
	opts := n.detectOptions()
	opts.DefaultClass = n.sess.ActiveClass()
	res, err := n.detector.Apply(ctx, n.sess, opts)
	n.mu.Unlock()
	if err != nil {
		return res, err
	}

	n.Emit(EventDetectionComplete, res)
	return res, nil
}

// Export saves pending edits and exports the dataset. Class names default to
// the project's.
func (n *Navigator) Export(ctx context.Context, opts export.Options) (*export.Summary, error) {
	n.mu.Lock()
	if n.project == nil {
		n.mu.Unlock()
		return nil, ErrNoProject
	}
	if err := n.flush(); err != nil {
		n.mu.Unlock()
		return nil, err
	}
	if opts.Classes == nil {
		opts.Classes = append([]string(nil), n.project.Classes...)
	}
	if opts.Workers <= 0 {
		opts.Workers = n.cfg.ExportWorkers
	}
	store := n.project.Store()
	n.mu.Unlock()

	summary, err := export.Run(ctx, store, opts)
	if err != nil {
		return summary, err
	}
	n.Emit(EventExportComplete, summary)
	return summary, nil
}

// Info describes the open project and image.
func (n *Navigator) Info() (Info, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.project == nil {
		return Info{}, ErrNoProject
	}
	info := Info{Info: n.project.Info(), Index: n.index}
	if n.sess != nil {
		info.Image = n.sess.ImagePath()
		info.Boxes = n.sess.Len()
		info.Dirty = n.sess.Dirty()
	}
	return info, nil
}
