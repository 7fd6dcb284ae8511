// Package history keeps bounded undo/redo stacks of box-set snapshots.
package history

import (
	"ai-labeller/pkg/geometry"
)

// DefaultLimit is the maximum number of undo snapshots kept.
const DefaultLimit = 100

// Manager holds undo and redo stacks. Snapshots are deep copies, so callers
// may keep mutating the slices they pass in.
type Manager struct {
	undo  [][]geometry.Box
	redo  [][]geometry.Box
	limit int
}

// New creates a Manager with the given undo limit. A limit <= 0 uses DefaultLimit.
func New(limit int) *Manager {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Manager{limit: limit}
}

// Record pushes a copy of the pre-mutation box set onto the undo stack,
// evicts the oldest snapshots beyond the limit and clears the redo stack.
func (m *Manager) Record(boxes []geometry.Box) {
	m.undo = append(m.undo, geometry.CloneBoxes(boxes))
	if over := len(m.undo) - m.limit; over > 0 {
		// Drop the oldest entries and release their references.
		for i := 0; i < over; i++ {
			m.undo[i] = nil
		}
		m.undo = append(m.undo[:0:0], m.undo[over:]...)
	}
	m.redo = nil
}

// Undo returns the previous snapshot, pushing current onto the redo stack.
// It returns false and does nothing when there is nothing to undo.
func (m *Manager) Undo(current []geometry.Box) ([]geometry.Box, bool) {
	if len(m.undo) == 0 {
		return nil, false
	}
	m.redo = append(m.redo, geometry.CloneBoxes(current))
	prev := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	return prev, true
}

// Redo is the inverse of Undo.
func (m *Manager) Redo(current []geometry.Box) ([]geometry.Box, bool) {
	if len(m.redo) == 0 {
		return nil, false
	}
	m.undo = append(m.undo, geometry.CloneBoxes(current))
	next := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	return next, true
}

// Reset empties both stacks.
func (m *Manager) Reset() {
	m.undo = nil
	m.redo = nil
}

// CanUndo reports whether Undo would do anything.
func (m *Manager) CanUndo() bool { return len(m.undo) > 0 }

// CanRedo reports whether Redo would do anything.
func (m *Manager) CanRedo() bool { return len(m.redo) > 0 }

// UndoLen returns the number of undo snapshots.
func (m *Manager) UndoLen() int { return len(m.undo) }

// RedoLen returns the number of redo snapshots.
func (m *Manager) RedoLen() int { return len(m.redo) }
