// Package undo implements the engine's undo/redo stack: bounded history of
// executed bundles, pre-execution state snapshots, and the per-payload-kind
// inverse computation that turns a snapshot back into an executable bundle.
// Grounded on original_source/crates/engine/src/undo.rs.
package undo

import (
	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

// FieldSnapshot is a field's value and writer metadata immediately before a
// SetField or ClearField executed, or the zero value if the field had never
// been written.
type FieldSnapshot struct {
	EntityID      ids.EntityID
	FieldKey      string
	PreviousValue *fieldvalue.Value
	PreviousActor *ids.ActorID
	PreviousHLC   *[12]byte
}

// EntitySnapshot records whether an entity existed (and if so, whether it
// was already deleted) before a CreateEntity, DeleteEntity or RestoreEntity
// executed.
type EntitySnapshot struct {
	EntityID ids.EntityID
	// Existed is nil if the entity row didn't exist at all; otherwise it
	// points to whether the row was already soft-deleted.
	Existed *bool
	Facets  []*storage.FacetRecord
	Fields  []*storage.FieldRecord
}

// EdgeSnapshot is an edge's row immediately before a CreateEdge, DeleteEdge
// or RestoreEdge executed, or nil Previous if the edge didn't exist yet.
type EdgeSnapshot struct {
	EdgeID   ids.EdgeID
	Previous *storage.EdgeRecord
}

// FacetSnapshot records whether a facet was attached before an AttachFacet
// or DetachFacet executed.
type FacetSnapshot struct {
	EntityID    ids.EntityID
	FacetType   string
	WasAttached bool
}

// EdgePropertySnapshot is an edge property's value and writer metadata
// immediately before a SetEdgeProperty or ClearEdgeProperty executed.
type EdgePropertySnapshot struct {
	EdgeID        ids.EdgeID
	PropertyKey   string
	PreviousValue *fieldvalue.Value
	PreviousActor *ids.ActorID
	PreviousHLC   *[12]byte
}

// Snapshot is the full pre-execution state captured for one bundle's
// payloads, in payload order. Only the slice relevant to a given payload's
// kind gets an entry for that payload.
type Snapshot struct {
	Fields         []FieldSnapshot
	Entities       []EntitySnapshot
	Edges          []EdgeSnapshot
	Facets         []FacetSnapshot
	EdgeProperties []EdgePropertySnapshot
}

// Entry is one undoable unit: the bundle that was executed, its payloads,
// and the state snapshot taken right before execution.
type Entry struct {
	BundleID  ids.BundleID
	BundleHLC [12]byte
	Payloads  []ops.Payload
	Snapshot  Snapshot
}

// Manager is a bounded undo/redo history of executed bundles.
type Manager struct {
	undoStack []Entry
	redoStack []Entry
	maxDepth  int
}

// NewManager returns a Manager that retains at most maxDepth undo entries.
func NewManager(maxDepth int) *Manager {
	return &Manager{maxDepth: maxDepth}
}

// PushUndo records entry as undoable, evicting the oldest entry if the
// stack has grown past maxDepth, and clears the redo stack.
func (m *Manager) PushUndo(entry Entry) {
	m.undoStack = append(m.undoStack, entry)
	if m.maxDepth > 0 && len(m.undoStack) > m.maxDepth {
		m.undoStack = m.undoStack[1:]
	}
	m.redoStack = nil
}

// PopUndo removes and returns the most recent undoable entry.
func (m *Manager) PopUndo() (Entry, bool) {
	n := len(m.undoStack)
	if n == 0 {
		return Entry{}, false
	}
	e := m.undoStack[n-1]
	m.undoStack = m.undoStack[:n-1]
	return e, true
}

// PushRedo records entry as redoable after an undo.
func (m *Manager) PushRedo(entry Entry) {
	m.redoStack = append(m.redoStack, entry)
}

// PopRedo removes and returns the most recently undone entry.
func (m *Manager) PopRedo() (Entry, bool) {
	n := len(m.redoStack)
	if n == 0 {
		return Entry{}, false
	}
	e := m.redoStack[n-1]
	m.redoStack = m.redoStack[:n-1]
	return e, true
}

// UndoDepth reports how many entries can currently be undone.
func (m *Manager) UndoDepth() int { return len(m.undoStack) }

// RedoDepth reports how many entries can currently be redone.
func (m *Manager) RedoDepth() int { return len(m.redoStack) }

