package engine

import (
	"context"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

// ResolveConflict picks one value to resolve an open conflict with: either
// chosen, or nil to resolve by clearing the field. The resolution is itself
// a signed ResolveConflict operation, so every replica converges on the
// same resolved value once the bundle propagates.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID ids.ConflictID, chosen *fieldvalue.Value) (ids.BundleID, error) {
	conflict, _, err := e.storage.GetConflict(ctx, conflictID)
	if err != nil {
		return ids.BundleID{}, err
	}
	if conflict == nil {
		return ids.BundleID{}, fmt.Errorf("%w: %s", ErrConflictNotFound, conflictID)
	}
	if conflict.Status == storage.ConflictResolved {
		return ids.BundleID{}, fmt.Errorf("%w: %s", ErrConflictAlreadyResolved, conflictID)
	}

	payload := ops.NewResolveConflict(conflictID, conflict.EntityID, conflict.FieldKey, chosen)

	// Resolution is a canonical-oplog concept; overlays have no notion of
	// conflicts, so this always lands in the canonical bundle regardless of
	// which overlay (if any) is currently active.
	bundle, err := e.executeCanonical(ctx, ops.BundleUserEdit, []ops.Payload{payload}, false)
	if err != nil {
		return ids.BundleID{}, err
	}

	resolveOpID := bundle.Operations[0].OpID
	var valueBytes []byte
	if chosen != nil {
		valueBytes, err = chosen.Marshal()
		if err != nil {
			return ids.BundleID{}, err
		}
	}
	if err := e.storage.ResolveConflict(ctx, conflictID, bundle.HLC.Bytes(), e.ActorID(), resolveOpID, valueBytes); err != nil {
		return ids.BundleID{}, err
	}

	return bundle.BundleID, nil
}
