package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

// FieldSourceVC returns who currently owns a field's value (a tombstone
// counts: source_actor/source_op are always populated) and, if that
// writer's bundle carried a creator vector clock, the decoded clock.
func (s *Store) FieldSourceVC(ctx context.Context, entity ids.EntityID, fieldKey string) (*storage.FieldSource, error) {
	row := s.queryRow(ctx, `
		SELECT f.source_actor, f.updated_at, f.source_op, b.creator_vector_clock
		FROM fields f
		JOIN oplog o ON o.op_id = f.source_op
		JOIN bundles b ON b.bundle_id = o.bundle_id
		WHERE f.entity_id = ? AND f.field_key = ?`, entity.Bytes(), fieldKey)

	var sourceActor, updatedAt, sourceOp, creatorVC []byte
	if err := row.Scan(&sourceActor, &updatedAt, &sourceOp, &creatorVC); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("field source vc", err)
	}

	out := &storage.FieldSource{}
	var err error
	if out.Actor, err = ids.ActorIDFromBytes(sourceActor); err != nil {
		return nil, err
	}
	if out.HLC, err = blobTo16(updatedAt); err != nil {
		return nil, err
	}
	if out.OpID, err = ids.OpIDFromBytes(sourceOp); err != nil {
		return nil, err
	}
	if creatorVC != nil {
		vc, err := vclock.UnmarshalMsgpack(creatorVC)
		if err != nil {
			return nil, err
		}
		out.BundleVC = vc
	}
	return out, nil
}

// OpFieldValue extracts the msgpack-encoded field value (nil for a
// ClearField) carried by a historical oplog operation, looked up by op id.
func (s *Store) OpFieldValue(ctx context.Context, opID ids.OpID) ([]byte, error) {
	var payloadBytes []byte
	err := s.queryRow(ctx, `SELECT payload FROM oplog WHERE op_id = ?`, opID.Bytes()).Scan(&payloadBytes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("op field value", err)
	}
	payload, err := ops.Unmarshal(payloadBytes)
	if err != nil {
		return nil, err
	}
	switch payload.Kind {
	case ops.KindSetField:
		return payload.Value.Marshal()
	default:
		return nil, nil
	}
}
