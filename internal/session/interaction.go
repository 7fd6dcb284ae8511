package session

import (
	"ai-labeller/pkg/geometry"
)

// MinBoxSize is the largest clamped width or height, in pixels, of a drawn box
// that is still treated as an accidental click and discarded.
const MinBoxSize = 2.0

// State is the interaction state of a session.
type State int

const (
	StateIdle State = iota
	StateDraggingDraw
	StateDraggingMove
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraggingDraw:
		return "dragging-draw"
	case StateDraggingMove:
		return "dragging-move"
	default:
		return "unknown"
	}
}

// State returns the current interaction state.
func (s *Session) State() State { return s.state }

// Dragging reports whether a draw or move drag is in progress.
func (s *Session) Dragging() bool { return s.state != StateIdle }

// Press starts a drag at p. Pressing on a box selects it and starts moving it;
// pressing on empty space starts drawing a new box. Presses during a drag and
// presses at non-finite points are ignored.
func (s *Session) Press(p geometry.Point2D) State {
	if s.Dragging() || !p.Finite() {
		return s.state
	}
	s.anchor = p
	s.cursor = p
	if hit := s.HitTest(p); hit != NoSelection {
		s.selected = hit
		s.record()
		s.dragOrigin = s.boxes[hit]
		s.state = StateDraggingMove
		return s.state
	}
	s.selected = NoSelection
	s.state = StateDraggingDraw
	return s.state
}

// Move updates the drag with the pointer at p. A move drag translates the
// selected box in place; the snapshot taken at Press covers the whole drag.
func (s *Session) Move(p geometry.Point2D) {
	switch s.state {
	case StateDraggingMove:
		s.cursor = p
		s.moveSelected(p)
	case StateDraggingDraw:
		s.cursor = p
	}
}

func (s *Session) moveSelected(p geometry.Point2D) {
	if s.selected < 0 || s.selected >= len(s.boxes) || !p.Finite() {
		return
	}
	d := p.Sub(s.anchor)
	s.boxes[s.selected] = s.clamp(s.dragOrigin.Translate(d.X, d.Y))
}

// Preview returns the box a draw drag would produce if released now.
func (s *Session) Preview() (geometry.Box, bool) {
	if s.state != StateDraggingDraw {
		return geometry.Box{}, false
	}
	return s.clamp(geometry.BoxFromPoints(s.anchor, s.cursor, s.activeClass)), true
}

// Release ends the drag at p. A draw drag appends a new box with the active
// class unless it is too small; it reports whether a box was added.
func (s *Session) Release(p geometry.Point2D) bool {
	defer s.endDrag()
	switch s.state {
	case StateDraggingDraw:
		if !p.Finite() {
			return false
		}
		b := s.clamp(geometry.BoxFromPoints(s.anchor, p, s.activeClass))
		if b.Width() <= MinBoxSize || b.Height() <= MinBoxSize {
			return false
		}
		s.record()
		s.boxes = append(s.boxes, b)
		s.selected = len(s.boxes) - 1
		return true
	case StateDraggingMove:
		s.moveSelected(p)
	}
	return false
}

// endDrag returns to idle and forgets the anchors.
func (s *Session) endDrag() {
	s.state = StateIdle
	s.anchor = geometry.Point2D{}
	s.cursor = geometry.Point2D{}
	s.dragOrigin = geometry.Box{}
}
