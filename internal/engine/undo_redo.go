package engine

import (
	"bytes"
	"context"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage"
	"github.com/untoldecay/beadsreplica/internal/undo"
)

// UndoOutcome classifies what Undo/Redo actually did.
type UndoOutcome int

const (
	// UndoEmpty means there was nothing on the relevant stack.
	UndoEmpty UndoOutcome = iota
	// UndoApplied means the inverse bundle was executed.
	UndoApplied
	// UndoSkipped means the top entry was popped (consumed) without its
	// inverse being executed, because a later write from another actor
	// touched the same state — undoing it would silently clobber someone
	// else's concurrent edit.
	UndoSkipped
)

// UndoConflict names one field a skipped undo would have clobbered.
type UndoConflict struct {
	EntityID   ids.EntityID
	FieldKey   string
	ModifiedBy ids.ActorID
}

// UndoResult reports what Undo or Redo did.
type UndoResult struct {
	Outcome   UndoOutcome
	BundleID  ids.BundleID
	Conflicts []UndoConflict
}

// Undo pops the most recent undoable bundle and executes its inverse,
// unless doing so would overwrite a field another actor has written since —
// in that case the entry is consumed (popped) anyway but its inverse is
// never executed (skip-and-advance: the entry is gone, so the next Undo
// call naturally reaches the next-older one instead of looping forever on
// the same conflict).
func (e *Engine) Undo(ctx context.Context) (UndoResult, error) {
	entry, ok := e.undo.PopUndo()
	if !ok {
		return UndoResult{Outcome: UndoEmpty}, nil
	}

	conflicts, err := e.detectUndoConflicts(ctx, entry)
	if err != nil {
		return UndoResult{}, err
	}
	if len(conflicts) > 0 {
		return UndoResult{Outcome: UndoSkipped, Conflicts: conflicts}, nil
	}

	inverse := undo.ComputeInverse(entry)
	if len(inverse) == 0 {
		e.undo.PushRedo(entry)
		return UndoResult{Outcome: UndoApplied}, nil
	}

	// A DeleteEntity inverse (undoing a CreateEntity) carries no cascade
	// edges from the snapshot, since none existed at creation time. Recompute
	// them fresh: edges attached to the entity after it was created still
	// need to cascade-delete along with it.
	for i, p := range inverse {
		if p.Kind != ops.KindDeleteEntity {
			continue
		}
		cascade, err := e.cascadeEdgeIDs(ctx, p.EntityID)
		if err != nil {
			return UndoResult{}, fmt.Errorf("engine: recompute cascade edges for undo: %w", err)
		}
		inverse[i] = ops.NewDeleteEntity(p.EntityID, cascade)
	}

	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, inverse, false)
	if err != nil {
		return UndoResult{}, fmt.Errorf("engine: execute undo inverse: %w", err)
	}

	e.undo.PushRedo(entry)
	return UndoResult{Outcome: UndoApplied, BundleID: bundle.BundleID}, nil
}

// detectUndoConflicts checks whether any field or newly-created entity
// touched by entry has since been written by another actor after entry's
// own bundle HLC — undoing over such a write would destroy a concurrent
// edit the user never saw.
func (e *Engine) detectUndoConflicts(ctx context.Context, entry undo.Entry) ([]UndoConflict, error) {
	myActor := e.ActorID()
	var conflicts []UndoConflict

	for _, fs := range entry.Snapshot.Fields {
		rec, err := e.storage.GetField(ctx, fs.EntityID, fs.FieldKey)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		if rec.SourceActor != myActor && bytes.Compare(rec.UpdatedHLC[:], entry.BundleHLC[:]) > 0 {
			conflicts = append(conflicts, UndoConflict{EntityID: fs.EntityID, FieldKey: fs.FieldKey, ModifiedBy: rec.SourceActor})
		}
	}

	for _, es := range entry.Snapshot.Entities {
		if es.Existed != nil {
			continue // only a brand new entity (Existed == nil) needs this check
		}
		fields, err := e.storage.Fields(ctx, es.EntityID)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if f.SourceActor != myActor {
				conflicts = append(conflicts, UndoConflict{EntityID: es.EntityID, FieldKey: f.FieldKey, ModifiedBy: f.SourceActor})
			}
		}
	}

	return conflicts, nil
}

// Redo re-executes the most recently undone bundle. CreateEntity/CreateEdge
// payloads whose target entity or edge currently exists but is soft-deleted
// are rewritten to RestoreEntity/RestoreEdge instead (plus AttachFacet when
// the entity's initial facet is no longer attached), so redo never double
// creates.
func (e *Engine) Redo(ctx context.Context) (UndoResult, error) {
	entry, ok := e.undo.PopRedo()
	if !ok {
		return UndoResult{Outcome: UndoEmpty}, nil
	}

	fixed, err := e.reconcileRedoPayloads(ctx, entry.Payloads)
	if err != nil {
		return UndoResult{}, err
	}

	snap, err := undo.CaptureSnapshot(ctx, e.storage, fixed)
	if err != nil {
		return UndoResult{}, fmt.Errorf("engine: capture redo snapshot: %w", err)
	}

	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, fixed, false)
	if err != nil {
		return UndoResult{}, fmt.Errorf("engine: execute redo: %w", err)
	}

	e.undo.PushUndo(undo.Entry{
		BundleID:  bundle.BundleID,
		BundleHLC: bundle.HLC.Bytes(),
		Payloads:  fixed,
		Snapshot:  snap,
	})

	return UndoResult{Outcome: UndoApplied, BundleID: bundle.BundleID}, nil
}

func (e *Engine) reconcileRedoPayloads(ctx context.Context, payloads []ops.Payload) ([]ops.Payload, error) {
	fixed := make([]ops.Payload, 0, len(payloads))
	for _, p := range payloads {
		switch p.Kind {
		case ops.KindCreateEntity:
			rec, err := e.storage.GetEntity(ctx, p.EntityID)
			if err != nil {
				return nil, err
			}
			if rec != nil && rec.DeletedHLC != nil {
				fixed = append(fixed, ops.NewRestoreEntity(p.EntityID))
				if p.HasInitial {
					facets, err := e.storage.Facets(ctx, p.EntityID)
					if err != nil {
						return nil, err
					}
					if !hasFacet(facets, p.InitialFacet) {
						fixed = append(fixed, ops.NewAttachFacet(p.EntityID, p.InitialFacet))
					}
				}
				continue
			}
			fixed = append(fixed, p)

		case ops.KindCreateEdge:
			rec, err := e.storage.GetEdge(ctx, p.EdgeID)
			if err != nil {
				return nil, err
			}
			if rec != nil && rec.DeletedHLC != nil {
				fixed = append(fixed, ops.NewRestoreEdge(p.EdgeID))
				continue
			}
			fixed = append(fixed, p)

		default:
			fixed = append(fixed, p)
		}
	}
	return fixed, nil
}

func hasFacet(facets []*storage.FacetRecord, facetType string) bool {
	for _, f := range facets {
		if f.FacetType == facetType {
			return true
		}
	}
	return false
}
