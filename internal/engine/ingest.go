package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

// fieldMetadataSnapshot captures, for one SetField/ClearField operation in
// an incoming bundle, who currently owns that field's materialized value —
// taken before the bundle is appended, so detectConflicts can compare the
// pre-ingest owner against the ingested write's causal history.
type fieldMetadataSnapshot struct {
	entityID        ids.EntityID
	fieldKey        string
	currentActor    *ids.ActorID
	currentHLC      *[12]byte
	currentOpID     *ids.OpID
	currentBundleVC *storage.FieldSource
	ingestedOpID    ids.OpID
	ingestedValue   []byte
}

// IngestBundle appends a foreign bundle (and its operations) to the oplog
// and detects field-level conflicts: for every field the bundle touches,
// compares the ingested bundle's creator vector clock against what the
// field's current writer had seen, and opens, extends or reopens a conflict
// record when the two writes are causally concurrent. Never touches the
// undo stack — undo only tracks locally-executed commands.
func (e *Engine) IngestBundle(ctx context.Context, bundle *ops.Bundle) ([]*storage.ConflictRecord, error) {
	if err := bundle.VerifySignature(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	// Fold the remote bundle's timestamp into the local clock so every
	// subsequent local Tick() stays causally ahead of what this replica has
	// now seen, not just of its own prior writes.
	if _, err := e.clock.Receive(bundle.HLC); err != nil {
		var driftErr *hlc.DriftError
		if errors.As(err, &driftErr) {
			return nil, fmt.Errorf("%w: %v", ErrHLCDriftTooLarge, err)
		}
		return nil, err
	}

	var conflicts []*storage.ConflictRecord
	err := e.storage.RunInTransaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		pre, err := snapshotFieldMetadata(ctx, tx, bundle.Operations)
		if err != nil {
			return err
		}

		if _, err := tx.AppendBundle(ctx, bundle); err != nil {
			return err
		}

		detected, err := detectConflicts(ctx, tx, bundle, pre)
		if err != nil {
			return err
		}
		conflicts = detected

		for _, op := range bundle.Operations {
			switch op.Payload.Kind {
			case ops.KindSetField, ops.KindClearField:
				if err := tx.MarkFieldDrifted(ctx, op.Payload.EntityID, op.Payload.FieldKey); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return conflicts, err
}

func snapshotFieldMetadata(ctx context.Context, tx storage.Backend, operations []*ops.Operation) ([]fieldMetadataSnapshot, error) {
	var out []fieldMetadataSnapshot
	for _, op := range operations {
		switch op.Payload.Kind {
		case ops.KindSetField, ops.KindClearField:
			fs, err := tx.FieldSourceVC(ctx, op.Payload.EntityID, op.Payload.FieldKey)
			if err != nil {
				return nil, err
			}
			snap := fieldMetadataSnapshot{
				entityID:     op.Payload.EntityID,
				fieldKey:     op.Payload.FieldKey,
				ingestedOpID: op.OpID,
			}
			if op.Payload.Kind == ops.KindSetField {
				valueBytes, err := op.Payload.Value.Marshal()
				if err != nil {
					return nil, err
				}
				snap.ingestedValue = valueBytes
			}
			if fs != nil {
				actor := fs.Actor
				h := fs.HLC
				opID := fs.OpID
				snap.currentActor = &actor
				snap.currentHLC = &h
				snap.currentOpID = &opID
				snap.currentBundleVC = fs
			}
			out = append(out, snap)
		}
	}
	return out, nil
}

// detectConflicts compares each touched field's pre-ingest writer against
// the ingested bundle's causal metadata. Two writes are concurrent (and so
// conflict) unless one demonstrably knew about the other: the ingested
// bundle's vector clock has seen the current writer's HLC, or the current
// writer's own bundle vector clock had already seen the ingested actor's
// HLC.
func detectConflicts(ctx context.Context, tx storage.Backend, bundle *ops.Bundle, snapshots []fieldMetadataSnapshot) ([]*storage.ConflictRecord, error) {
	ingestedActor := bundle.ActorID
	ingestedVC := bundle.CreatorVC

	var conflicts []*storage.ConflictRecord

	for _, snap := range snapshots {
		if snap.currentActor == nil {
			continue // field never written before; nothing to conflict with
		}
		currentActor := *snap.currentActor
		currentHLC := *snap.currentHLC
		currentOpID := *snap.currentOpID

		if currentActor == ingestedActor {
			continue // same writer, no conflict by definition
		}

		ingestedHLC, ok := operationHLC(bundle.Operations, snap.ingestedOpID)
		if !ok {
			continue
		}
		ingestedHLCBytes := ingestedHLC.Bytes()

		if ingestedVC != nil {
			if knownHLC, ok := ingestedVC.Get(currentActor); ok && bytes.Compare(knownHLC.Bytes()[:], currentHLC[:]) >= 0 {
				continue // ingested bundle already knew about the current write
			}
		}

		if snap.currentBundleVC != nil && snap.currentBundleVC.BundleVC != nil {
			if knownHLC, ok := snap.currentBundleVC.BundleVC.Get(ingestedActor); ok && bytes.Compare(knownHLC.Bytes()[:], ingestedHLCBytes[:]) >= 0 {
				continue // the current write's bundle already knew about this ingested write
			}
		}

		rec, err := recordConflict(ctx, tx, bundle, snap, currentActor, currentHLC, currentOpID, ingestedHLCBytes)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, rec)
	}

	return conflicts, nil
}

func operationHLC(operations []*ops.Operation, opID ids.OpID) (hlc.HLC, bool) {
	for _, op := range operations {
		if op.OpID == opID {
			return op.HLC, true
		}
	}
	return hlc.HLC{}, false
}

// recordConflict opens a new conflict, extends an already-open one, or
// reopens a resolved one, depending on what LatestConflictFor finds for this
// field — mirrors the conflict lifecycle in SPEC_FULL.md.
func recordConflict(ctx context.Context, tx storage.Backend, bundle *ops.Bundle, snap fieldMetadataSnapshot,
	currentActor ids.ActorID, currentHLC [12]byte, currentOpID ids.OpID, ingestedHLCBytes [12]byte) (*storage.ConflictRecord, error) {

	incomingTip := storage.ConflictBranchTip{
		ActorID: bundle.ActorID,
		HLC:     ingestedHLCBytes,
		OpID:    snap.ingestedOpID,
		Value:   snap.ingestedValue,
	}

	existing, _, err := tx.LatestConflictFor(ctx, snap.entityID, snap.fieldKey)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		currentValueBytes, err := tx.OpFieldValue(ctx, currentOpID)
		if err != nil {
			return nil, err
		}
		conflictID := ids.NewConflictID()
		rec := &storage.ConflictRecord{
			ConflictID:       conflictID,
			EntityID:         snap.entityID,
			FieldKey:         snap.fieldKey,
			Status:           storage.ConflictOpen,
			DetectedHLC:      ingestedHLCBytes,
			DetectedInBundle: bundle.BundleID,
		}
		currentTip := storage.ConflictBranchTip{ActorID: currentActor, HLC: currentHLC, OpID: currentOpID, Value: currentValueBytes}
		if err := tx.OpenConflict(ctx, rec, []storage.ConflictBranchTip{currentTip, incomingTip}); err != nil {
			return nil, err
		}
		return rec, nil
	}

	if existing.Status == storage.ConflictResolved {
		// ReopenConflict drops every existing branch tip; the resolution tip
		// and the incoming tip are inserted fresh below so a reopened
		// conflict carries exactly those two, never the pre-resolution ones.
		if err := tx.ReopenConflict(ctx, existing.ConflictID, ingestedHLCBytes, snap.ingestedOpID); err != nil {
			return nil, err
		}
		if existing.ResolvedBy != nil && existing.ResolvedHLC != nil && existing.ResolvedOpID != nil {
			resolutionTip := storage.ConflictBranchTip{
				ActorID: *existing.ResolvedBy,
				HLC:     *existing.ResolvedHLC,
				OpID:    *existing.ResolvedOpID,
				Value:   existing.ResolvedValue,
			}
			if err := tx.ExtendConflict(ctx, existing.ConflictID, resolutionTip); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.ExtendConflict(ctx, existing.ConflictID, incomingTip); err != nil {
		return nil, err
	}

	rec, _, err := tx.GetConflict(ctx, existing.ConflictID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
