// Package engine is the replica's command surface: it turns typed commands
// (create an entity, set a field, attach a facet, ...) into signed
// operations, appends them through storage.Backend, and maintains the
// undo/redo and overlay state machines layered on top of the oplog.
// Grounded on original_source/crates/engine/src/lib.rs.
package engine

import (
	"context"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/identity"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/overlay"
	"github.com/untoldecay/beadsreplica/internal/storage"
	"github.com/untoldecay/beadsreplica/internal/undo"
)

// DefaultUndoDepth bounds how many bundles the undo stack retains when a
// caller doesn't configure one explicitly.
const DefaultUndoDepth = 100

// Engine is one replica's command processor: one identity, one HLC clock,
// one storage backend, and the undo/overlay state layered on top.
type Engine struct {
	identity *identity.Identity
	clock    *hlc.Clock
	storage  storage.Backend
	undo     *undo.Manager
	overlay  *overlay.Manager
}

// New returns an Engine for id backed by storage, with the default undo
// depth.
func New(id *identity.Identity, backend storage.Backend) *Engine {
	return NewWithUndoDepth(id, backend, DefaultUndoDepth)
}

// NewWithUndoDepth returns an Engine with an explicit undo history bound.
func NewWithUndoDepth(id *identity.Identity, backend storage.Backend, undoDepth int) *Engine {
	return &Engine{
		identity: id,
		clock:    hlc.New(),
		storage:  backend,
		undo:     undo.NewManager(undoDepth),
		overlay:  overlay.NewManager(),
	}
}

// ActorID returns the engine's own actor identity.
func (e *Engine) ActorID() ids.ActorID { return e.identity.ActorID() }

// Storage exposes the underlying backend for callers (sync, CLI commands)
// that need direct read access beyond the engine's own query surface.
func (e *Engine) Storage() storage.Backend { return e.storage }

// UndoDepth reports how many bundles can currently be undone.
func (e *Engine) UndoDepth() int { return e.undo.UndoDepth() }

// RedoDepth reports how many undone bundles can currently be redone.
func (e *Engine) RedoDepth() int { return e.undo.RedoDepth() }

// executeInternal is the sole path by which typed commands become signed
// operations: it ticks the clock once for the batch (every operation in the
// bundle shares that HLC), signs them as one bundle, and appends it. If an overlay is active, writes route
// to executeOverlay instead and never touch the canonical oplog.
func (e *Engine) executeInternal(ctx context.Context, bundleType ops.BundleType, payloads []ops.Payload, undoable bool) (*ops.Bundle, error) {
	if overlayID, ok := e.overlay.Active(); ok {
		return e.executeOverlay(ctx, overlayID, payloads)
	}
	return e.executeCanonical(ctx, bundleType, payloads, undoable)
}

// executeCanonical appends payloads straight to the canonical oplog,
// bypassing overlay routing entirely. Used by executeInternal when no
// overlay is active, and directly by operations (like conflict resolution)
// that are canonical-only concepts regardless of overlay state.
func (e *Engine) executeCanonical(ctx context.Context, bundleType ops.BundleType, payloads []ops.Payload, undoable bool) (*ops.Bundle, error) {
	h := e.clock.Tick()

	var snap undo.Snapshot
	var haveSnapshot bool
	if undoable {
		var err error
		snap, err = undo.CaptureSnapshot(ctx, e.storage, payloads)
		if err != nil {
			return nil, fmt.Errorf("engine: capture undo snapshot: %w", err)
		}
		haveSnapshot = true
	}

	operations := make([]*ops.Operation, 0, len(payloads))
	for _, p := range payloads {
		op, err := ops.NewSigned(e.identity, h, nil, p)
		if err != nil {
			return nil, fmt.Errorf("engine: sign operation: %w", err)
		}
		operations = append(operations, op)
	}

	creatorVC, err := e.storage.VectorClock(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: read vector clock: %w", err)
	}
	creatorVC.Update(e.ActorID(), h)

	bundle, err := ops.NewSignedBundle(e.identity, h, bundleType, operations, creatorVC)
	if err != nil {
		return nil, fmt.Errorf("engine: sign bundle: %w", err)
	}

	if _, err := e.storage.AppendBundle(ctx, bundle); err != nil {
		return nil, fmt.Errorf("engine: append bundle: %w", err)
	}

	if haveSnapshot {
		e.undo.PushUndo(undo.Entry{
			BundleID:  bundle.BundleID,
			BundleHLC: h.Bytes(),
			Payloads:  payloads,
			Snapshot:  snap,
		})
	}

	return bundle, nil
}

// executeOverlay stages payloads against the active overlay instead of the
// canonical oplog: each payload gets its own synthetic op id, all of them
// share one HLC tick, and
// SetField/ClearField writes additionally capture the field's current
// canonical value so later drift detection has a baseline to compare
// against.
func (e *Engine) executeOverlay(ctx context.Context, overlayID ids.OverlayID, payloads []ops.Payload) (*ops.Bundle, error) {
	h := e.clock.Tick()
	syntheticBundleID := ids.NewBundleID()

	for _, p := range payloads {
		payloadBytes, err := p.Marshal()
		if err != nil {
			return nil, fmt.Errorf("engine: marshal overlay payload: %w", err)
		}

		rec := &storage.OverlayOpRecord{
			OverlayID: overlayID,
			OpID:      ids.NewOpID(),
			HLC:       h.Bytes(),
			Payload:   payloadBytes,
			OpType:    p.Kind.String(),
		}
		if entityID, ok := p.TargetEntity(); ok {
			rec.EntityID = &entityID
		}

		switch p.Kind {
		case ops.KindSetField, ops.KindClearField:
			rec.FieldKey = p.FieldKey
			field, err := e.storage.GetField(ctx, p.EntityID, p.FieldKey)
			if err != nil {
				return nil, fmt.Errorf("engine: read canonical field for overlay baseline: %w", err)
			}
			if field != nil {
				rec.CanonicalValueAtCreation = field.Value
			}
		}

		if err := e.storage.AppendOverlayOp(ctx, rec); err != nil {
			return nil, fmt.Errorf("engine: append overlay op: %w", err)
		}
		e.overlay.PushUndo(rec)
	}

	return &ops.Bundle{BundleID: syntheticBundleID, ActorID: e.ActorID(), HLC: h, Type: ops.BundleUserEdit}, nil
}

// requireLiveEntity errors unless id names an entity that exists and is not
// soft-deleted.
func (e *Engine) requireLiveEntity(ctx context.Context, id ids.EntityID) error {
	rec, err := e.storage.GetEntity(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	if rec.DeletedHLC != nil {
		return fmt.Errorf("%w: %s", ErrEntityAlreadyDeleted, id)
	}
	return nil
}

func (e *Engine) requireLiveEdge(ctx context.Context, id ids.EdgeID) (*storage.EdgeRecord, error) {
	rec, err := e.storage.GetEdge(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.DeletedHLC != nil {
		return nil, fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	return rec, nil
}
