package engine

import (
	"context"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

// OverlaySource names who created an overlay.
type OverlaySource string

const (
	OverlaySourceUser   OverlaySource = "user"
	OverlaySourceScript OverlaySource = "script"
)

// DriftRecord compares one overlay op's staged field value against the
// field's current canonical value, surfaced when the two have diverged.
type DriftRecord struct {
	EntityID       ids.EntityID
	FieldKey       string
	OverlayValue   *fieldvalue.Value
	CanonicalValue *fieldvalue.Value
}

// CreateOverlay creates a new overlay scratch space and makes it the active
// overlay, stashing whichever overlay was active before.
func (e *Engine) CreateOverlay(ctx context.Context, displayName string, source OverlaySource, sourceID string) (ids.OverlayID, error) {
	if active, ok := e.overlay.Active(); ok {
		if err := e.StashOverlay(ctx, active); err != nil {
			return ids.OverlayID{}, err
		}
	}
	h := e.clock.Tick()
	overlayID := ids.NewOverlayID()
	rec := &storage.OverlayRecord{
		OverlayID:   overlayID,
		DisplayName: displayName,
		Source:      string(source),
		SourceID:    sourceID,
		Status:      storage.OverlayActive,
		CreatedHLC:  h.Bytes(),
		UpdatedHLC:  h.Bytes(),
	}
	if err := e.storage.CreateOverlay(ctx, rec); err != nil {
		return ids.OverlayID{}, err
	}
	e.overlay.SetActive(&overlayID)
	return overlayID, nil
}

// ActivateOverlay makes overlayID the active overlay, so subsequent typed
// commands route to it instead of the canonical oplog.
func (e *Engine) ActivateOverlay(ctx context.Context, overlayID ids.OverlayID) error {
	rec, err := e.storage.GetOverlay(ctx, overlayID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrOverlayNotFound, overlayID)
	}
	h := e.clock.Tick()
	if err := e.storage.SetOverlayStatus(ctx, overlayID, storage.OverlayActive, h.Bytes()); err != nil {
		return err
	}
	e.overlay.SetActive(&overlayID)
	return nil
}

// DeactivateOverlay routes subsequent commands back to the canonical oplog
// without changing the overlay's persisted status (use StashOverlay for
// that).
func (e *Engine) DeactivateOverlay() {
	e.overlay.SetActive(nil)
}

// ActiveOverlay returns the currently active overlay id, if any.
func (e *Engine) ActiveOverlay() (ids.OverlayID, bool) {
	return e.overlay.Active()
}

// StashOverlay deactivates and marks an overlay stashed, so it survives
// (its staged ops remain) but no longer receives writes until reactivated.
func (e *Engine) StashOverlay(ctx context.Context, overlayID ids.OverlayID) error {
	h := e.clock.Tick()
	if err := e.storage.SetOverlayStatus(ctx, overlayID, storage.OverlayStashed, h.Bytes()); err != nil {
		return err
	}
	if active, ok := e.overlay.Active(); ok && active == overlayID {
		e.overlay.SetActive(nil)
	}
	return nil
}

// StashedOverlays lists every overlay currently in the stashed state.
func (e *Engine) StashedOverlays(ctx context.Context) ([]*storage.OverlayRecord, error) {
	return e.storage.ListOverlays(ctx, storage.OverlayStashed)
}

// DiscardOverlay abandons an overlay's staged writes entirely: the overlay
// and its ops are removed, and it's deactivated first if it was active.
func (e *Engine) DiscardOverlay(ctx context.Context, overlayID ids.OverlayID) error {
	if active, ok := e.overlay.Active(); ok && active == overlayID {
		e.overlay.SetActive(nil)
	}
	return e.storage.DeleteOverlay(ctx, overlayID)
}

// OverlayUndo moves the most recent op staged in the active overlay from the
// in-memory undo stack to the redo stack and returns it. The op's
// overlay_ops row is not removed, so overlay reads and CommitOverlay still
// include the staged write.
func (e *Engine) OverlayUndo() (*storage.OverlayOpRecord, bool) {
	op := e.overlay.PopUndo()
	if op == nil {
		return nil, false
	}
	e.overlay.PushRedo(op)
	return op, true
}

// OverlayRedo re-stages the most recently overlay-undone op.
func (e *Engine) OverlayRedo() (*storage.OverlayOpRecord, bool) {
	op := e.overlay.PopRedo()
	if op == nil {
		return nil, false
	}
	e.overlay.PushUndo(op)
	return op, true
}

// CheckDrift returns every field the active overlay has staged a write
// against whose canonical value has since changed underneath it.
func (e *Engine) CheckDrift(ctx context.Context) ([]DriftRecord, error) {
	overlayID, ok := e.overlay.Active()
	if !ok {
		return nil, ErrNoActiveOverlay
	}
	return e.checkDriftFor(ctx, overlayID)
}

func (e *Engine) checkDriftFor(ctx context.Context, overlayID ids.OverlayID) ([]DriftRecord, error) {
	rows, err := e.storage.DriftedOverlayOps(ctx, overlayID)
	if err != nil {
		return nil, err
	}
	var out []DriftRecord
	for _, row := range rows {
		if row.EntityID == nil {
			continue
		}
		payload, err := ops.Unmarshal(row.Payload)
		if err != nil {
			return nil, err
		}
		var overlayValue *fieldvalue.Value
		if payload.Kind == ops.KindSetField {
			v := payload.Value
			overlayValue = &v
		}

		var canonicalValue *fieldvalue.Value
		field, err := e.storage.GetField(ctx, *row.EntityID, row.FieldKey)
		if err != nil {
			return nil, err
		}
		if field != nil && field.Value != nil {
			v, err := fieldvalue.Unmarshal(field.Value)
			if err != nil {
				return nil, err
			}
			canonicalValue = &v
		}

		out = append(out, DriftRecord{
			EntityID:       *row.EntityID,
			FieldKey:       row.FieldKey,
			OverlayValue:   overlayValue,
			CanonicalValue: canonicalValue,
		})
	}
	return out, nil
}

// HasUnresolvedDrift reports whether overlayID has any field flagged as
// canonically drifted.
func (e *Engine) HasUnresolvedDrift(ctx context.Context, overlayID ids.OverlayID) (bool, error) {
	n, err := e.storage.CountUnresolvedDrift(ctx, overlayID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AcknowledgeDrift clears the drift flag on overlayID's ops touching
// (entity, fieldKey) by re-baselining their canonical snapshot against the
// field's current value — "keep my staged value, I've seen the change".
func (e *Engine) AcknowledgeDrift(ctx context.Context, overlayID ids.OverlayID, entity ids.EntityID, fieldKey string) error {
	rows, err := e.storage.OverlayOpsFor(ctx, overlayID, entity, fieldKey)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	field, err := e.storage.GetField(ctx, entity, fieldKey)
	if err != nil {
		return err
	}
	var canonicalValue []byte
	if field != nil {
		canonicalValue = field.Value
	}

	rowIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		rowIDs = append(rowIDs, row.RowID)
	}
	if err := e.storage.UpdateCanonicalSnapshot(ctx, rowIDs, canonicalValue); err != nil {
		return err
	}
	for _, rowID := range rowIDs {
		if err := e.storage.MarkOverlayOpDrifted(ctx, rowID, false); err != nil {
			return err
		}
	}
	return nil
}

// KnockoutField discards the active overlay's staged writes to (entity,
// fieldKey) entirely — "drop mine, defer to canonical".
func (e *Engine) KnockoutField(ctx context.Context, entity ids.EntityID, fieldKey string) error {
	overlayID, ok := e.overlay.Active()
	if !ok {
		return ErrNoActiveOverlay
	}
	rows, err := e.storage.OverlayOpsFor(ctx, overlayID, entity, fieldKey)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	rowIDs := make([]int64, 0, len(rows))
	for _, row := range rows {
		rowIDs = append(rowIDs, row.RowID)
	}
	return e.storage.DeleteOverlayOps(ctx, overlayID, rowIDs)
}

// CommitOverlay promotes every staged op in the active overlay into one
// canonical bundle, in the order they were staged. Fails if any field still
// has unresolved drift, or if the overlay has nothing staged.
func (e *Engine) CommitOverlay(ctx context.Context) (ids.BundleID, error) {
	overlayID, ok := e.overlay.Active()
	if !ok {
		return ids.BundleID{}, ErrNoActiveOverlay
	}

	unresolved, err := e.storage.CountUnresolvedDrift(ctx, overlayID)
	if err != nil {
		return ids.BundleID{}, err
	}
	if unresolved > 0 {
		return ids.BundleID{}, fmt.Errorf("%w: %s", ErrUnresolvedDrift, overlayID)
	}

	rows, err := e.storage.ListOverlayOps(ctx, overlayID)
	if err != nil {
		return ids.BundleID{}, err
	}
	if len(rows) == 0 {
		return ids.BundleID{}, fmt.Errorf("%w: %s", ErrEmptyOverlay, overlayID)
	}

	payloads := make([]ops.Payload, 0, len(rows))
	for _, row := range rows {
		payload, err := ops.Unmarshal(row.Payload)
		if err != nil {
			return ids.BundleID{}, err
		}
		payloads = append(payloads, payload)
	}

	e.overlay.SetActive(nil)

	// Committed overlay writes become canonical history directly; they are
	// not undoable through the normal undo stack (the overlay's own
	// undo/redo already governed them while staged).
	bundle, err := e.executeCanonical(ctx, ops.BundleUserEdit, payloads, false)
	if err != nil {
		reactivated := overlayID
		e.overlay.SetActive(&reactivated)
		return ids.BundleID{}, err
	}

	err = e.storage.RunInTransaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		h := e.clock.Tick()
		if err := tx.SetOverlayStatus(ctx, overlayID, storage.OverlayCommitted, h.Bytes()); err != nil {
			return err
		}
		// Drift source #2: any other overlay with a staged write to a field
		// this commit just changed canonically must be flagged, the same way
		// an ingested bundle flags drift on the fields it touches.
		for _, p := range payloads {
			switch p.Kind {
			case ops.KindSetField, ops.KindClearField:
				if err := tx.MarkFieldDrifted(ctx, p.EntityID, p.FieldKey); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return bundle.BundleID, err
	}

	return bundle.BundleID, nil
}
