// Package session holds the annotation state of the currently open image:
// its box set, the selection, the interaction state machine and the
// undo/redo history.
package session

import (
	"errors"

	"ai-labeller/internal/fusion"
	"ai-labeller/internal/history"
	"ai-labeller/pkg/geometry"
)

// ErrDragInProgress is returned by edits attempted while a drag is active.
var ErrDragInProgress = errors.New("drag in progress")

// NoSelection is the selection index when no box is selected.
const NoSelection = -1

// Session is the editable annotation state of one image. It is not safe for
// concurrent use; the owner serializes access.
type Session struct {
	imagePath string
	width     float64
	height    float64

	boxes       []geometry.Box
	selected    int
	activeClass int
	history     *history.Manager
	dirty       bool

	// Interaction state
	state      State
	anchor     geometry.Point2D
	cursor     geometry.Point2D
	dragOrigin geometry.Box
}

// New creates an empty session for an image of width x height pixels.
func New(imagePath string, width, height int) *Session {
	return &Session{
		imagePath: imagePath,
		width:     float64(width),
		height:    float64(height),
		boxes:     []geometry.Box{},
		selected:  NoSelection,
		history:   history.New(history.DefaultLimit),
	}
}

// ImagePath returns the path of the image this session edits.
func (s *Session) ImagePath() string { return s.imagePath }

// Size returns the image dimensions in pixels.
func (s *Session) Size() (int, int) { return int(s.width), int(s.height) }

// Boxes returns a copy of the current box set.
func (s *Session) Boxes() []geometry.Box { return geometry.CloneBoxes(s.boxes) }

// Len returns the number of boxes.
func (s *Session) Len() int { return len(s.boxes) }

// Box returns the box at index i.
func (s *Session) Box(i int) (geometry.Box, bool) {
	if i < 0 || i >= len(s.boxes) {
		return geometry.Box{}, false
	}
	return s.boxes[i], true
}

// Selected returns the selection index, or NoSelection.
func (s *Session) Selected() int { return s.selected }

// SelectedBox returns the selected box, if any.
func (s *Session) SelectedBox() (geometry.Box, bool) { return s.Box(s.selected) }

// Dirty reports whether the box set changed since it was last loaded or saved.
func (s *Session) Dirty() bool { return s.dirty }

// MarkSaved clears the dirty flag.
func (s *Session) MarkSaved() { s.dirty = false }

// CanUndo reports whether there is an edit to undo.
func (s *Session) CanUndo() bool { return s.history.CanUndo() }

// CanRedo reports whether there is an undone edit to redo.
func (s *Session) CanRedo() bool { return s.history.CanRedo() }

// ActiveClass returns the class id given to newly drawn boxes.
func (s *Session) ActiveClass() int { return s.activeClass }

// SetActiveClass sets the class id for newly drawn boxes. Negative ids are ignored.
func (s *Session) SetActiveClass(classID int) {
	if classID >= 0 {
		s.activeClass = classID
	}
}

// Select selects the box at index i, or clears the selection when i is out of range.
func (s *Session) Select(i int) bool {
	if s.Dragging() {
		return false
	}
	if i < 0 || i >= len(s.boxes) {
		s.selected = NoSelection
		return false
	}
	s.selected = i
	return true
}

// HitTest returns the index of the topmost box containing p, or NoSelection.
// Later boxes are on top.
func (s *Session) HitTest(p geometry.Point2D) int {
	for i := len(s.boxes) - 1; i >= 0; i-- {
		if s.boxes[i].Contains(p) {
			return i
		}
	}
	return NoSelection
}

// clamp applies the image bounds to b.
func (s *Session) clamp(b geometry.Box) geometry.Box {
	return geometry.Clamp(b, s.width, s.height)
}

// record snapshots the current box set before a mutation.
func (s *Session) record() {
	s.history.Record(s.boxes)
	s.dirty = true
}

// replace swaps in a new box set wholesale and drops the selection.
func (s *Session) replace(boxes []geometry.Box) {
	s.boxes = geometry.CloneBoxes(boxes)
	s.selected = NoSelection
}

// SetSelectedClass changes the class id of the selected box.
func (s *Session) SetSelectedClass(classID int) bool {
	if s.Dragging() || classID < 0 {
		return false
	}
	if _, ok := s.SelectedBox(); !ok {
		return false
	}
	s.record()
	s.boxes[s.selected].ClassID = classID
	return true
}

// ResizeSelected replaces the geometry of the selected box with b's corners,
// clamped to the image. The class id is kept. A resize that leaves the box
// no larger than MinBoxSize on either side is refused without a snapshot.
func (s *Session) ResizeSelected(b geometry.Box) bool {
	if s.Dragging() || !b.Finite() {
		return false
	}
	cur, ok := s.SelectedBox()
	if !ok {
		return false
	}
	b.ClassID = cur.ClassID
	c := s.clamp(b)
	if c.Width() <= MinBoxSize || c.Height() <= MinBoxSize {
		return false
	}
	s.record()
	s.boxes[s.selected] = c
	return true
}

// DeleteSelected removes the selected box.
func (s *Session) DeleteSelected() bool {
	if s.Dragging() {
		return false
	}
	if _, ok := s.SelectedBox(); !ok {
		return false
	}
	s.record()
	s.boxes = append(s.boxes[:s.selected], s.boxes[s.selected+1:]...)
	s.selected = NoSelection
	return true
}

// ClearAll removes every box. It does nothing on an empty set.
func (s *Session) ClearAll() bool {
	if s.Dragging() || len(s.boxes) == 0 {
		return false
	}
	s.record()
	s.boxes = []geometry.Box{}
	s.selected = NoSelection
	return true
}

// Undo restores the box set before the last recorded edit.
func (s *Session) Undo() bool {
	if s.Dragging() {
		return false
	}
	prev, ok := s.history.Undo(s.boxes)
	if !ok {
		return false
	}
	s.replace(prev)
	s.dirty = true
	return true
}

// Redo re-applies the last undone edit.
func (s *Session) Redo() bool {
	if s.Dragging() {
		return false
	}
	next, ok := s.history.Redo(s.boxes)
	if !ok {
		return false
	}
	s.replace(next)
	s.dirty = true
	return true
}

// Load replaces the box set with boxes read from storage and resets history.
func (s *Session) Load(boxes []geometry.Box) {
	s.loadBoxes(boxes)
	s.dirty = false
}

// Propagate seeds the box set with a copy of another image's boxes and resets
// history. The session owns its copy; later edits never reach prev.
func (s *Session) Propagate(prev []geometry.Box) {
	s.loadBoxes(prev)
	s.dirty = len(prev) > 0
}

func (s *Session) loadBoxes(boxes []geometry.Box) {
	s.endDrag()
	clamped := make([]geometry.Box, len(boxes))
	for i, b := range boxes {
		clamped[i] = s.clamp(b)
	}
	s.replace(clamped)
	s.history.Reset()
}

// Append adds boxes under a single history snapshot. Boxes are clamped and
// those with non-finite coordinates or no area after clamping are dropped. It returns how many were added.
func (s *Session) Append(boxes ...geometry.Box) (int, error) {
	if s.Dragging() {
		return 0, ErrDragInProgress
	}
	added := make([]geometry.Box, 0, len(boxes))
	for _, b := range boxes {
		if !b.Finite() {
			continue
		}
		c := s.clamp(b)
		if c.Area() <= 0 {
			continue
		}
		added = append(added, c)
	}
	if len(added) == 0 {
		return 0, nil
	}
	s.record()
	s.boxes = append(s.boxes, added...)
	return len(added), nil
}

// Fuse merges overlapping same-class boxes. It needs at least two boxes.
func (s *Session) Fuse(threshold float64) bool {
	if s.Dragging() || len(s.boxes) < 2 {
		return false
	}
	if threshold <= 0 {
		threshold = fusion.DefaultThreshold
	}
	s.record()
	s.replace(fusion.Fuse(s.boxes, threshold))
	return true
}
