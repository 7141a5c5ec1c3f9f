package sqlite

import (
	"context"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

// BundlesByActorAfter reconstructs every bundle actor authored with an HLC
// strictly after afterHLC, in canonical order, for shipping to a peer whose
// vector clock shows it is missing them.
func (s *Store) BundlesByActorAfter(ctx context.Context, actor ids.ActorID, afterHLC [12]byte) ([]*ops.Bundle, error) {
	rows, err := s.query(ctx, `
		SELECT bundle_id, hlc, bundle_type, checksum, creates, deletes, signature, creator_vector_clock
		FROM bundles WHERE actor_id = ? AND hlc > ? ORDER BY hlc`,
		actor.Bytes(), afterHLC[:])
	if err != nil {
		return nil, wrapDBError("bundles by actor after", err)
	}

	type rawBundle struct {
		bundleID, hlcBytes                   []byte
		bundleType                           int
		checksum, creates, deletes, sig, cvc []byte
	}
	var buffered []rawBundle
	for rows.Next() {
		var r rawBundle
		if err := rows.Scan(&r.bundleID, &r.hlcBytes, &r.bundleType, &r.checksum, &r.creates, &r.deletes, &r.sig, &r.cvc); err != nil {
			rows.Close()
			return nil, wrapDBError("scan bundle row", err)
		}
		buffered = append(buffered, r)
	}
	rowsErr := rows.Err()
	rows.Close()
	if rowsErr != nil {
		return nil, wrapDBError("iterate bundles by actor after", rowsErr)
	}

	out := make([]*ops.Bundle, 0, len(buffered))
	for _, r := range buffered {
		bundleID, err := ids.BundleIDFromBytes(r.bundleID)
		if err != nil {
			return nil, err
		}
		h, err := hlc.FromBytes(r.hlcBytes)
		if err != nil {
			return nil, err
		}
		var checksum [32]byte
		copy(checksum[:], r.checksum)
		sig, err := ids.SignatureFromBytes(r.sig)
		if err != nil {
			return nil, err
		}
		creatorVC := vclock.New()
		if r.cvc != nil {
			creatorVC, err = vclock.UnmarshalMsgpack(r.cvc)
			if err != nil {
				return nil, err
			}
		}

		operations, err := s.operationsForBundle(ctx, bundleID)
		if err != nil {
			return nil, err
		}

		out = append(out, &ops.Bundle{
			BundleID:        bundleID,
			ActorID:         actor,
			HLC:             h,
			Type:            ops.BundleType(r.bundleType),
			Operations:      operations,
			Checksum:        checksum,
			CreatorVC:       creatorVC,
			Signature:       sig,
			CreatedEntities: decodeEntityIDs(r.creates),
			DeletedEntities: decodeEntityIDs(r.deletes),
		})
	}
	return out, nil
}

func (s *Store) operationsForBundle(ctx context.Context, bundleID ids.BundleID) ([]*ops.Operation, error) {
	rows, err := s.query(ctx, `
		SELECT op_id, actor_id, hlc, payload, module_versions, signature
		FROM oplog WHERE bundle_id = ? ORDER BY hlc, op_id`, bundleID.Bytes())
	if err != nil {
		return nil, wrapDBError("operations for bundle", err)
	}
	defer rows.Close()

	var out []*ops.Operation
	for rows.Next() {
		var opID, actorBytes, hlcBytes, payload, moduleVersions, sig []byte
		if err := rows.Scan(&opID, &actorBytes, &hlcBytes, &payload, &moduleVersions, &sig); err != nil {
			return nil, wrapDBError("scan operation row", err)
		}
		op, err := decodeOplogRow(opID, actorBytes, hlcBytes, payload, sig)
		if err != nil {
			return nil, fmt.Errorf("sqlite: decode op for bundle %x: %w", bundleID.Bytes(), err)
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func decodeEntityIDs(b []byte) []ids.EntityID {
	if len(b) == 0 {
		return nil
	}
	out := make([]ids.EntityID, 0, len(b)/16)
	for i := 0; i+16 <= len(b); i += 16 {
		id, err := ids.EntityIDFromBytes(b[i : i+16])
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
