package sqlite

import (
	"context"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
)

// RebuildFromOplog truncates the materialized projection (entities, fields,
// facets, edges, edge_properties, conflicts, conflict_values, vector_clock)
// and replays every operation currently in oplog, in canonical (hlc, op_id)
// order, through materialize. bundles/oplog/actors themselves are untouched:
// they are the source of truth being replayed, not part of the projection.
//
// Callers should run this inside RunInTransaction so a crash mid-rebuild
// leaves the prior projection intact rather than half-truncated.
func (s *Store) RebuildFromOplog(ctx context.Context) error {
	for _, table := range []string{
		"conflict_values", "conflicts", "edge_properties", "edges", "facets", "fields", "entities", "vector_clock",
	} {
		if _, err := s.exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return wrapDBError("truncate "+table, err)
		}
	}

	rows, err := s.query(ctx, `
		SELECT op_id, actor_id, hlc, payload, module_versions, signature
		FROM oplog ORDER BY hlc, op_id`)
	if err != nil {
		return wrapDBError("read oplog for rebuild", err)
	}

	type rawOp struct {
		opID, actor, hlcBytes, payload, moduleVersions, sig []byte
	}
	var buffered []rawOp
	for rows.Next() {
		var r rawOp
		if err := rows.Scan(&r.opID, &r.actor, &r.hlcBytes, &r.payload, &r.moduleVersions, &r.sig); err != nil {
			rows.Close()
			return wrapDBError("scan oplog row for rebuild", err)
		}
		buffered = append(buffered, r)
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return wrapDBError("iterate oplog for rebuild", rowsErr)
	}

	for _, r := range buffered {
		op, err := decodeOplogRow(r.opID, r.actor, r.hlcBytes, r.payload, r.sig)
		if err != nil {
			return fmt.Errorf("sqlite: rebuild: decode op: %w", err)
		}
		if err := s.bumpVectorClock(ctx, op.ActorID, op.HLC); err != nil {
			return err
		}
		if op.Payload.Kind.Materializes() {
			if err := s.materialize(ctx, op); err != nil {
				return fmt.Errorf("sqlite: rebuild: materialize op %x: %w", op.OpID.Bytes(), err)
			}
		}
	}
	return nil
}

// decodeOplogRow reconstructs an *ops.Operation from its stored columns.
// module_versions is dropped here: it is re-derived from nothing (the
// decoded operation carries none), since materialization never consults
// module versions — they exist only to let a future reader refuse payloads
// from modules it doesn't understand yet.
func decodeOplogRow(opIDBytes, actorBytes, hlcBytes, payloadBytes, sigBytes []byte) (*ops.Operation, error) {
	opID, err := ids.OpIDFromBytes(opIDBytes)
	if err != nil {
		return nil, err
	}
	actor, err := ids.ActorIDFromBytes(actorBytes)
	if err != nil {
		return nil, err
	}
	h, err := hlc.FromBytes(hlcBytes)
	if err != nil {
		return nil, err
	}
	payload, err := ops.Unmarshal(payloadBytes)
	if err != nil {
		return nil, err
	}
	sig, err := ids.SignatureFromBytes(sigBytes)
	if err != nil {
		return nil, err
	}
	return &ops.Operation{OpID: opID, ActorID: actor, HLC: h, Payload: payload, Signature: sig}, nil
}
