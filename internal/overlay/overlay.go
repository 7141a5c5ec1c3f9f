// Package overlay tracks which overlay scratch space is currently active
// and its undo/redo stacks. The stacks are process-memory only: like the
// canonical undo manager, overlay undo/redo is never persisted, matching
// original_source/crates/engine/src/overlay.rs's OverlayManager.
package overlay

import (
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

// Manager holds the active overlay id plus that overlay's undo/redo stacks.
// Switching the active overlay (including switching to none) discards both
// stacks — an overlay's undo history doesn't follow it across activations.
type Manager struct {
	activeID  *ids.OverlayID
	undoStack []*storage.OverlayOpRecord
	redoStack []*storage.OverlayOpRecord
}

// NewManager returns a Manager with no active overlay.
func NewManager() *Manager {
	return &Manager{}
}

// Active returns the currently active overlay id, or false if none.
func (m *Manager) Active() (ids.OverlayID, bool) {
	if m.activeID == nil {
		return ids.OverlayID{}, false
	}
	return *m.activeID, true
}

// SetActive changes which overlay is active, clearing the undo/redo stacks
// whenever the active overlay actually changes. Pass nil to deactivate.
func (m *Manager) SetActive(id *ids.OverlayID) {
	if sameOverlay(m.activeID, id) {
		return
	}
	m.undoStack = nil
	m.redoStack = nil
	m.activeID = id
}

func sameOverlay(a, b *ids.OverlayID) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// PushUndo records op as undoable and clears the redo stack, since a fresh
// write invalidates any previously undone-then-redoable overlay history.
func (m *Manager) PushUndo(op *storage.OverlayOpRecord) {
	m.undoStack = append(m.undoStack, op)
	m.redoStack = nil
}

// PopUndo removes and returns the most recent undoable overlay op, or nil if
// the stack is empty.
func (m *Manager) PopUndo() *storage.OverlayOpRecord {
	n := len(m.undoStack)
	if n == 0 {
		return nil
	}
	op := m.undoStack[n-1]
	m.undoStack = m.undoStack[:n-1]
	return op
}

// PushRedo records op as redoable after an undo.
func (m *Manager) PushRedo(op *storage.OverlayOpRecord) {
	m.redoStack = append(m.redoStack, op)
}

// PopRedo removes and returns the most recently undone overlay op, or nil if
// the stack is empty.
func (m *Manager) PopRedo() *storage.OverlayOpRecord {
	n := len(m.redoStack)
	if n == 0 {
		return nil
	}
	op := m.redoStack[n-1]
	m.redoStack = m.redoStack[:n-1]
	return op
}

// Reset clears both stacks without changing the active overlay.
func (m *Manager) Reset() {
	m.undoStack = nil
	m.redoStack = nil
}
