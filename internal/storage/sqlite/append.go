package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
)

// AppendBundle idempotently writes bundle and its operations into the oplog,
// then materializes each operation's effect under the strict LWW guard:
// a field/edge-property write only lands if (op.hlc, op.op_id) sorts after
// the row's current (updated_at, source_op). Everything happens on s's
// current execer, so callers get atomicity by calling this inside
// RunInTransaction.
func (s *Store) AppendBundle(ctx context.Context, bundle *ops.Bundle) (bool, error) {
	var exists int
	err := s.queryRow(ctx, `SELECT 1 FROM bundles WHERE bundle_id = ?`, bundle.BundleID.Bytes()).Scan(&exists)
	if err == nil {
		return false, nil // already appended: idempotent no-op
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, wrapDBError("check existing bundle", err)
	}

	creatorVCBytes, err := bundle.CreatorVC.MarshalMsgpack()
	if err != nil {
		return false, fmt.Errorf("sqlite: marshal creator vector clock: %w", err)
	}

	hlcBytes := bundle.HLC.Bytes()
	if _, err := s.exec(ctx, `
		INSERT INTO bundles (bundle_id, actor_id, hlc, bundle_type, op_count, checksum, creates, deletes, signature, creator_vector_clock)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bundle.BundleID.Bytes(), bundle.ActorID.Bytes(), hlcBytes[:], int(bundle.Type), len(bundle.Operations),
		bundle.Checksum[:], encodeEntityIDs(bundle.CreatedEntities), encodeEntityIDs(bundle.DeletedEntities),
		bundle.Signature.Bytes(), creatorVCBytes,
	); err != nil {
		return false, wrapDBError("insert bundle", err)
	}

	if err := s.touchActor(ctx, bundle.ActorID); err != nil {
		return false, err
	}
	if err := s.bumpVectorClock(ctx, bundle.ActorID, bundle.HLC); err != nil {
		return false, err
	}

	for _, op := range bundle.Operations {
		if err := s.appendOperation(ctx, bundle.BundleID, op); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Store) appendOperation(ctx context.Context, bundleID ids.BundleID, op *ops.Operation) error {
	payloadBytes, err := op.Payload.Marshal()
	if err != nil {
		return fmt.Errorf("sqlite: marshal payload: %w", err)
	}
	moduleVersionsBytes := ops.EncodeModuleVersions(op.ModuleVersions)

	var entityIDCol any
	if entity, ok := op.Payload.TargetEntity(); ok {
		entityIDCol = entity.Bytes()
	}

	hlcBytes := op.HLC.Bytes()
	if _, err := s.exec(ctx, `
		INSERT INTO oplog (op_id, actor_id, hlc, bundle_id, payload, module_versions, signature, op_type, entity_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.OpID.Bytes(), op.ActorID.Bytes(), hlcBytes[:], bundleID.Bytes(), payloadBytes,
		moduleVersionsBytes, op.Signature.Bytes(), op.Payload.Kind.String(), entityIDCol,
	); err != nil {
		return wrapDBError("insert oplog row", err)
	}

	if !op.Payload.Kind.Materializes() {
		return nil
	}
	return s.materialize(ctx, op)
}

func (s *Store) touchActor(ctx context.Context, actor ids.ActorID) error {
	_, err := s.exec(ctx, `
		INSERT INTO actors (actor_id, first_seen_at) VALUES (?, ?)
		ON CONFLICT(actor_id) DO NOTHING`,
		actor.Bytes(), nowHLCPlaceholder())
	return wrapDBError("touch actor", err)
}

// nowHLCPlaceholder stores a zero HLC as the actor's first_seen_at marker;
// the column exists for display/debugging only and is never compared
// against for causal ordering, so an exact first-seen timestamp isn't
// load-bearing.
func nowHLCPlaceholder() []byte {
	var h hlc.HLC
	b := h.Bytes()
	return b[:]
}

func (s *Store) bumpVectorClock(ctx context.Context, actor ids.ActorID, h hlc.HLC) error {
	hBytes := h.Bytes()
	_, err := s.exec(ctx, `
		INSERT INTO vector_clock (actor_id, max_hlc) VALUES (?, ?)
		ON CONFLICT(actor_id) DO UPDATE SET max_hlc = excluded.max_hlc WHERE excluded.max_hlc > vector_clock.max_hlc`,
		actor.Bytes(), hBytes[:])
	return wrapDBError("bump vector clock", err)
}

func encodeEntityIDs(ids []ids.EntityID) []byte {
	if len(ids) == 0 {
		return nil
	}
	out := make([]byte, 0, len(ids)*16)
	for _, id := range ids {
		out = append(out, id.Bytes()...)
	}
	return out
}

