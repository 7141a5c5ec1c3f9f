package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ops"
)

// materialize applies op's effect to the LWW-materialized projection
// (entities/fields/facets/edges/edge_properties), per SPEC_FULL.md §4.4. Only
// called for payload kinds where op.Payload.Kind.Materializes() is true.
func (s *Store) materialize(ctx context.Context, op *ops.Operation) error {
	switch op.Payload.Kind {
	case ops.KindCreateEntity:
		return s.materializeCreateEntity(ctx, op)
	case ops.KindDeleteEntity:
		return s.materializeDeleteEntity(ctx, op)
	case ops.KindRestoreEntity:
		return s.materializeRestoreEntity(ctx, op)
	case ops.KindAttachFacet:
		return s.materializeAttachFacet(ctx, op)
	case ops.KindDetachFacet:
		return s.materializeDetachFacet(ctx, op)
	case ops.KindRestoreFacet:
		return s.materializeRestoreFacet(ctx, op)
	case ops.KindSetField:
		return s.materializeSetField(ctx, op, &op.Payload.Value)
	case ops.KindClearField:
		return s.materializeSetField(ctx, op, nil)
	case ops.KindCreateEdge:
		return s.materializeCreateEdge(ctx, op)
	case ops.KindDeleteEdge:
		return s.materializeDeleteEdge(ctx, op)
	case ops.KindRestoreEdge:
		return s.materializeRestoreEdge(ctx, op)
	case ops.KindSetEdgeProperty:
		return s.materializeSetEdgeProperty(ctx, op, &op.Payload.Value)
	case ops.KindClearEdgeProperty:
		return s.materializeSetEdgeProperty(ctx, op, nil)
	case ops.KindResolveConflict:
		return s.materializeResolveConflict(ctx, op)
	default:
		return fmt.Errorf("sqlite: payload kind %s does not materialize", op.Payload.Kind)
	}
}

// rowKey is (updated_at_hlc_bytes, source_op_bytes): the strict LWW
// comparison key. opWins reports whether an incoming (hlc, op_id) sorts
// strictly after the row's current key — ties (same op replayed) are not a
// win, keeping AppendBundle's materialization idempotent.
func opWins(opHLC, opID, rowHLC, rowOpID []byte) bool {
	if c := bytes.Compare(opHLC, rowHLC); c != 0 {
		return c > 0
	}
	return bytes.Compare(opID, rowOpID) > 0
}

func (s *Store) materializeCreateEntity(ctx context.Context, op *ops.Operation) error {
	hlcBytes := op.HLC.Bytes()
	_, err := s.exec(ctx, `
		INSERT INTO entities (entity_id, created_at, created_by, created_in_bundle)
		VALUES (?, ?, ?, (SELECT bundle_id FROM oplog WHERE op_id = ?))
		ON CONFLICT(entity_id) DO NOTHING`,
		op.Payload.EntityID.Bytes(), hlcBytes[:], op.ActorID.Bytes(), op.OpID.Bytes())
	if err != nil {
		return wrapDBError("materialize create_entity", err)
	}
	if op.Payload.HasInitial {
		return s.materializeAttachFacet(ctx, op)
	}
	return nil
}

func (s *Store) materializeDeleteEntity(ctx context.Context, op *ops.Operation) error {
	row := s.queryRow(ctx, `SELECT deleted_at FROM entities WHERE entity_id = ?`, op.Payload.EntityID.Bytes())
	var curHLC []byte
	err := row.Scan(&curHLC)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: delete_entity: entity not found")
	}
	if err != nil {
		return wrapDBError("read entity for delete", err)
	}
	hlcBytes := op.HLC.Bytes()
	if curHLC != nil && bytes.Compare(hlcBytes[:], curHLC) <= 0 {
		return nil // an equal-or-newer delete already recorded
	}
	_, err = s.exec(ctx, `
		UPDATE entities SET deleted_at = ?, deleted_by = ?,
			deleted_in_bundle = (SELECT bundle_id FROM oplog WHERE op_id = ?)
		WHERE entity_id = ?`,
		hlcBytes[:], op.ActorID.Bytes(), op.OpID.Bytes(), op.Payload.EntityID.Bytes())
	if err != nil {
		return wrapDBError("materialize delete_entity", err)
	}
	for _, edgeID := range op.Payload.CascadeEdges {
		_, err := s.exec(ctx, `
			UPDATE edges SET deleted_at = ?, deleted_by = ?,
				deleted_in_bundle = (SELECT bundle_id FROM oplog WHERE op_id = ?)
			WHERE edge_id = ? AND (deleted_at IS NULL OR ? > deleted_at)`,
			hlcBytes[:], op.ActorID.Bytes(), op.OpID.Bytes(), edgeID.Bytes(), hlcBytes[:])
		if err != nil {
			return wrapDBError("materialize delete_entity cascade edge", err)
		}
	}
	return nil
}

func (s *Store) materializeRestoreEntity(ctx context.Context, op *ops.Operation) error {
	_, err := s.exec(ctx, `
		UPDATE entities SET deleted_at = NULL, deleted_by = NULL, deleted_in_bundle = NULL
		WHERE entity_id = ?`, op.Payload.EntityID.Bytes())
	return wrapDBError("materialize restore_entity", err)
}

func (s *Store) materializeAttachFacet(ctx context.Context, op *ops.Operation) error {
	hlcBytes := op.HLC.Bytes()
	facetType := op.Payload.FacetType
	if op.Payload.Kind == ops.KindCreateEntity {
		facetType = op.Payload.InitialFacet
	}
	_, err := s.exec(ctx, `
		INSERT INTO facets (entity_id, facet_type, attached_at, attached_by, attached_in_bundle)
		VALUES (?, ?, ?, ?, (SELECT bundle_id FROM oplog WHERE op_id = ?))
		ON CONFLICT(entity_id, facet_type) DO UPDATE SET
			detached_at = NULL, detached_by = NULL, detached_in_bundle = NULL
		WHERE excluded.attached_at > facets.attached_at OR facets.detached_at IS NOT NULL`,
		op.Payload.EntityID.Bytes(), facetType, hlcBytes[:], op.ActorID.Bytes(), op.OpID.Bytes())
	return wrapDBError("materialize attach_facet", err)
}

func (s *Store) materializeDetachFacet(ctx context.Context, op *ops.Operation) error {
	hlcBytes := op.HLC.Bytes()
	var preserve any
	if op.Payload.PreserveValues {
		preserve = []byte{1}
	}
	_, err := s.exec(ctx, `
		UPDATE facets SET detached_at = ?, detached_by = ?,
			detached_in_bundle = (SELECT bundle_id FROM oplog WHERE op_id = ?),
			preserve_values = ?
		WHERE entity_id = ? AND facet_type = ? AND (detached_at IS NULL OR ? > detached_at)`,
		hlcBytes[:], op.ActorID.Bytes(), op.OpID.Bytes(), preserve,
		op.Payload.EntityID.Bytes(), op.Payload.FacetType, hlcBytes[:])
	return wrapDBError("materialize detach_facet", err)
}

func (s *Store) materializeRestoreFacet(ctx context.Context, op *ops.Operation) error {
	_, err := s.exec(ctx, `
		UPDATE facets SET detached_at = NULL, detached_by = NULL, detached_in_bundle = NULL
		WHERE entity_id = ? AND facet_type = ?`,
		op.Payload.EntityID.Bytes(), op.Payload.FacetType)
	return wrapDBError("materialize restore_facet", err)
}

// materializeSetField applies a SetField or ClearField, enforcing the LWW
// guard against the row's current (updated_at, source_op). value is nil for
// a ClearField tombstone: NULL value column, metadata (source_op/updated_at)
// retained.
func (s *Store) materializeSetField(ctx context.Context, op *ops.Operation, value *fieldvalue.Value) error {
	var valueBytes []byte
	if value != nil {
		b, err := value.Marshal()
		if err != nil {
			return fmt.Errorf("sqlite: marshal field value: %w", err)
		}
		valueBytes = b
	}

	row := s.queryRow(ctx, `SELECT updated_at, source_op FROM fields WHERE entity_id = ? AND field_key = ?`,
		op.Payload.EntityID.Bytes(), op.Payload.FieldKey)
	var curHLC, curOpID []byte
	err := row.Scan(&curHLC, &curOpID)
	hlcBytes := op.HLC.Bytes()
	if errors.Is(err, sql.ErrNoRows) {
		_, err := s.exec(ctx, `
			INSERT INTO fields (entity_id, field_key, value, source_op, source_actor, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			op.Payload.EntityID.Bytes(), op.Payload.FieldKey, nullable(valueBytes),
			op.OpID.Bytes(), op.ActorID.Bytes(), hlcBytes[:])
		return wrapDBError("materialize set_field (insert)", err)
	}
	if err != nil {
		return wrapDBError("read field for lww check", err)
	}
	if !opWins(hlcBytes[:], op.OpID.Bytes(), curHLC, curOpID) {
		return nil
	}
	_, err = s.exec(ctx, `
		UPDATE fields SET value = ?, source_op = ?, source_actor = ?, updated_at = ?
		WHERE entity_id = ? AND field_key = ?`,
		nullable(valueBytes), op.OpID.Bytes(), op.ActorID.Bytes(), hlcBytes[:],
		op.Payload.EntityID.Bytes(), op.Payload.FieldKey)
	return wrapDBError("materialize set_field (update)", err)
}

func (s *Store) materializeCreateEdge(ctx context.Context, op *ops.Operation) error {
	hlcBytes := op.HLC.Bytes()
	_, err := s.exec(ctx, `
		INSERT INTO edges (edge_id, edge_type, source_id, target_id, created_at, created_by, created_in_bundle)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT bundle_id FROM oplog WHERE op_id = ?))
		ON CONFLICT(edge_id) DO NOTHING`,
		op.Payload.EdgeID.Bytes(), op.Payload.EdgeType, op.Payload.SourceID.Bytes(), op.Payload.TargetID.Bytes(),
		hlcBytes[:], op.ActorID.Bytes(), op.OpID.Bytes())
	if err != nil {
		return wrapDBError("materialize create_edge", err)
	}
	for _, prop := range op.Payload.Properties {
		if err := s.setEdgePropertyRow(ctx, op, op.Payload.EdgeID.Bytes(), prop.Key, &prop.Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) materializeDeleteEdge(ctx context.Context, op *ops.Operation) error {
	hlcBytes := op.HLC.Bytes()
	_, err := s.exec(ctx, `
		UPDATE edges SET deleted_at = ?, deleted_by = ?,
			deleted_in_bundle = (SELECT bundle_id FROM oplog WHERE op_id = ?)
		WHERE edge_id = ? AND (deleted_at IS NULL OR ? > deleted_at)`,
		hlcBytes[:], op.ActorID.Bytes(), op.OpID.Bytes(), op.Payload.EdgeID.Bytes(), hlcBytes[:])
	return wrapDBError("materialize delete_edge", err)
}

func (s *Store) materializeRestoreEdge(ctx context.Context, op *ops.Operation) error {
	_, err := s.exec(ctx, `
		UPDATE edges SET deleted_at = NULL, deleted_by = NULL, deleted_in_bundle = NULL
		WHERE edge_id = ?`, op.Payload.EdgeID.Bytes())
	return wrapDBError("materialize restore_edge", err)
}

func (s *Store) materializeSetEdgeProperty(ctx context.Context, op *ops.Operation, value *fieldvalue.Value) error {
	return s.setEdgePropertyRow(ctx, op, op.Payload.EdgeID.Bytes(), op.Payload.PropertyKey, value)
}

func (s *Store) setEdgePropertyRow(ctx context.Context, op *ops.Operation, edgeID []byte, key string, value *fieldvalue.Value) error {
	var valueBytes []byte
	if value != nil {
		b, err := value.Marshal()
		if err != nil {
			return fmt.Errorf("sqlite: marshal edge property value: %w", err)
		}
		valueBytes = b
	}
	row := s.queryRow(ctx, `SELECT updated_at, source_op FROM edge_properties WHERE edge_id = ? AND property_key = ?`, edgeID, key)
	var curHLC, curOpID []byte
	err := row.Scan(&curHLC, &curOpID)
	hlcBytes := op.HLC.Bytes()
	if errors.Is(err, sql.ErrNoRows) {
		_, err := s.exec(ctx, `
			INSERT INTO edge_properties (edge_id, property_key, value, source_op, source_actor, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			edgeID, key, nullable(valueBytes), op.OpID.Bytes(), op.ActorID.Bytes(), hlcBytes[:])
		return wrapDBError("materialize edge_property (insert)", err)
	}
	if err != nil {
		return wrapDBError("read edge property for lww check", err)
	}
	if !opWins(hlcBytes[:], op.OpID.Bytes(), curHLC, curOpID) {
		return nil
	}
	_, err = s.exec(ctx, `
		UPDATE edge_properties SET value = ?, source_op = ?, source_actor = ?, updated_at = ?
		WHERE edge_id = ? AND property_key = ?`,
		nullable(valueBytes), op.OpID.Bytes(), op.ActorID.Bytes(), hlcBytes[:], edgeID, key)
	return wrapDBError("materialize edge_property (update)", err)
}

func (s *Store) materializeResolveConflict(ctx context.Context, op *ops.Operation) error {
	if op.Payload.HasChosen {
		if err := s.materializeSetField(ctx, op, &op.Payload.ChosenValue); err != nil {
			return err
		}
	} else {
		// Resolved by clearing rather than picking a value: tombstone the
		// field the same way a ClearField would, so the losing value doesn't
		// linger as the materialized state.
		if err := s.materializeSetField(ctx, op, nil); err != nil {
			return err
		}
	}
	hlcBytes := op.HLC.Bytes()
	var resolvedValue []byte
	if op.Payload.HasChosen {
		b, err := op.Payload.ChosenValue.Marshal()
		if err != nil {
			return err
		}
		resolvedValue = b
	}
	_, err := s.exec(ctx, `
		UPDATE conflicts SET status = 'resolved', resolved_at = ?, resolved_by = ?, resolved_op_id = ?, resolved_value = ?
		WHERE conflict_id = ?`,
		hlcBytes[:], op.ActorID.Bytes(), op.OpID.Bytes(), nullable(resolvedValue), op.Payload.ConflictID.Bytes())
	return wrapDBError("materialize resolve_conflict", err)
}
