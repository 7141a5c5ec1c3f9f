package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

func blobTo16(b []byte) (out [12]byte, err error) {
	if len(b) != 12 {
		return out, fmt.Errorf("sqlite: expected 12-byte hlc column, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func optionalEntityID(b []byte) (*ids.EntityID, error) {
	if b == nil {
		return nil, nil
	}
	id, err := ids.EntityIDFromBytes(b)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalActorID(b []byte) (*ids.ActorID, error) {
	if b == nil {
		return nil, nil
	}
	id, err := ids.ActorIDFromBytes(b)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalBundleID(b []byte) (*ids.BundleID, error) {
	if b == nil {
		return nil, nil
	}
	id, err := ids.BundleIDFromBytes(b)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalHLC(b []byte) (*[12]byte, error) {
	if b == nil {
		return nil, nil
	}
	h, err := blobTo16(b)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetEntity returns a materialized entity row.
func (s *Store) GetEntity(ctx context.Context, id ids.EntityID) (*storage.EntityRecord, error) {
	row := s.queryRow(ctx, `
		SELECT created_at, created_by, created_in_bundle, deleted_at, deleted_by, deleted_in_bundle, redirect_to, redirect_at
		FROM entities WHERE entity_id = ?`, id.Bytes())

	var createdAt, createdBy, createdInBundle []byte
	var deletedAt, deletedBy, deletedInBundle, redirectTo, redirectAt []byte
	if err := row.Scan(&createdAt, &createdBy, &createdInBundle, &deletedAt, &deletedBy, &deletedInBundle, &redirectTo, &redirectAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("get entity", err)
	}

	rec := &storage.EntityRecord{EntityID: id}
	createdHLC, err := blobTo16(createdAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedHLC = createdHLC
	if rec.CreatedBy, err = ids.ActorIDFromBytes(createdBy); err != nil {
		return nil, err
	}
	if rec.CreatedInBundle, err = ids.BundleIDFromBytes(createdInBundle); err != nil {
		return nil, err
	}
	if rec.DeletedHLC, err = optionalHLC(deletedAt); err != nil {
		return nil, err
	}
	if rec.DeletedBy, err = optionalActorID(deletedBy); err != nil {
		return nil, err
	}
	if rec.DeletedInBundle, err = optionalBundleID(deletedInBundle); err != nil {
		return nil, err
	}
	if rec.RedirectTo, err = optionalEntityID(redirectTo); err != nil {
		return nil, err
	}
	if rec.RedirectHLC, err = optionalHLC(redirectAt); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetField returns a materialized field row, including tombstones.
func (s *Store) GetField(ctx context.Context, entity ids.EntityID, fieldKey string) (*storage.FieldRecord, error) {
	row := s.queryRow(ctx, `
		SELECT value, source_op, source_actor, updated_at FROM fields WHERE entity_id = ? AND field_key = ?`,
		entity.Bytes(), fieldKey)

	var value, sourceOp, sourceActor, updatedAt []byte
	if err := row.Scan(&value, &sourceOp, &sourceActor, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("get field", err)
	}

	rec := &storage.FieldRecord{EntityID: entity, FieldKey: fieldKey, Value: value}
	var err error
	if rec.SourceOp, err = ids.OpIDFromBytes(sourceOp); err != nil {
		return nil, err
	}
	if rec.SourceActor, err = ids.ActorIDFromBytes(sourceActor); err != nil {
		return nil, err
	}
	if rec.UpdatedHLC, err = blobTo16(updatedAt); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetFacet returns a materialized facet row.
func (s *Store) GetFacet(ctx context.Context, entity ids.EntityID, facetType string) (*storage.FacetRecord, error) {
	row := s.queryRow(ctx, `
		SELECT attached_at, attached_by, attached_in_bundle, source_type, detached_at, detached_by, detached_in_bundle, preserve_values
		FROM facets WHERE entity_id = ? AND facet_type = ?`, entity.Bytes(), facetType)

	var attachedAt, attachedBy, attachedInBundle []byte
	var sourceType string
	var detachedAt, detachedBy, detachedInBundle, preserveValues []byte
	if err := row.Scan(&attachedAt, &attachedBy, &attachedInBundle, &sourceType, &detachedAt, &detachedBy, &detachedInBundle, &preserveValues); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("get facet", err)
	}

	rec := &storage.FacetRecord{EntityID: entity, FacetType: facetType, SourceType: sourceType, PreserveValues: preserveValues}
	var err error
	if rec.AttachedHLC, err = blobTo16(attachedAt); err != nil {
		return nil, err
	}
	if rec.AttachedBy, err = ids.ActorIDFromBytes(attachedBy); err != nil {
		return nil, err
	}
	if rec.AttachedInBundle, err = ids.BundleIDFromBytes(attachedInBundle); err != nil {
		return nil, err
	}
	if rec.DetachedHLC, err = optionalHLC(detachedAt); err != nil {
		return nil, err
	}
	if rec.DetachedBy, err = optionalActorID(detachedBy); err != nil {
		return nil, err
	}
	if rec.DetachedInBundle, err = optionalBundleID(detachedInBundle); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetEdge returns a materialized edge row.
func (s *Store) GetEdge(ctx context.Context, id ids.EdgeID) (*storage.EdgeRecord, error) {
	row := s.queryRow(ctx, `
		SELECT edge_type, source_id, target_id, created_at, created_by, created_in_bundle, deleted_at, deleted_by, deleted_in_bundle
		FROM edges WHERE edge_id = ?`, id.Bytes())
	return scanEdgeRow(id, row)
}

func scanEdgeRow(id ids.EdgeID, row *sql.Row) (*storage.EdgeRecord, error) {
	var edgeType string
	var sourceID, targetID, createdAt, createdBy, createdInBundle []byte
	var deletedAt, deletedBy, deletedInBundle []byte
	if err := row.Scan(&edgeType, &sourceID, &targetID, &createdAt, &createdBy, &createdInBundle, &deletedAt, &deletedBy, &deletedInBundle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("get edge", err)
	}
	rec := &storage.EdgeRecord{EdgeID: id, EdgeType: edgeType}
	var err error
	if rec.SourceID, err = ids.EntityIDFromBytes(sourceID); err != nil {
		return nil, err
	}
	if rec.TargetID, err = ids.EntityIDFromBytes(targetID); err != nil {
		return nil, err
	}
	if rec.CreatedHLC, err = blobTo16(createdAt); err != nil {
		return nil, err
	}
	if rec.CreatedBy, err = ids.ActorIDFromBytes(createdBy); err != nil {
		return nil, err
	}
	if rec.CreatedInBundle, err = ids.BundleIDFromBytes(createdInBundle); err != nil {
		return nil, err
	}
	if rec.DeletedHLC, err = optionalHLC(deletedAt); err != nil {
		return nil, err
	}
	if rec.DeletedBy, err = optionalActorID(deletedBy); err != nil {
		return nil, err
	}
	if rec.DeletedInBundle, err = optionalBundleID(deletedInBundle); err != nil {
		return nil, err
	}
	return rec, nil
}

// EdgesFromAll returns every edge (any type, deleted or not) with the given
// source.
func (s *Store) EdgesFromAll(ctx context.Context, source ids.EntityID) ([]*storage.EdgeRecord, error) {
	return s.edgesWhere(ctx, "source_id = ?", source.Bytes())
}

// EdgesToAll returns every edge (any type, deleted or not) with the given
// target.
func (s *Store) EdgesToAll(ctx context.Context, target ids.EntityID) ([]*storage.EdgeRecord, error) {
	return s.edgesWhere(ctx, "target_id = ?", target.Bytes())
}

func (s *Store) edgesWhere(ctx context.Context, where string, arg any) ([]*storage.EdgeRecord, error) {
	rows, err := s.query(ctx, `
		SELECT edge_id, edge_type, source_id, target_id, created_at, created_by, created_in_bundle, deleted_at, deleted_by, deleted_in_bundle
		FROM edges WHERE `+where, arg)
	if err != nil {
		return nil, wrapDBError("edges where", err)
	}
	defer rows.Close()

	var out []*storage.EdgeRecord
	for rows.Next() {
		var edgeIDBytes []byte
		var rec storage.EdgeRecord
		var edgeType string
		var sourceID, targetID, createdAt, createdBy, createdInBundle []byte
		var deletedAt, deletedBy, deletedInBundle []byte
		if err := rows.Scan(&edgeIDBytes, &edgeType, &sourceID, &targetID, &createdAt, &createdBy, &createdInBundle, &deletedAt, &deletedBy, &deletedInBundle); err != nil {
			return nil, wrapDBError("scan edge", err)
		}
		edgeID, err := ids.EdgeIDFromBytes(edgeIDBytes)
		if err != nil {
			return nil, err
		}
		rec.EdgeID = edgeID
		rec.EdgeType = edgeType
		if rec.SourceID, err = ids.EntityIDFromBytes(sourceID); err != nil {
			return nil, err
		}
		if rec.TargetID, err = ids.EntityIDFromBytes(targetID); err != nil {
			return nil, err
		}
		if rec.CreatedHLC, err = blobTo16(createdAt); err != nil {
			return nil, err
		}
		if rec.CreatedBy, err = ids.ActorIDFromBytes(createdBy); err != nil {
			return nil, err
		}
		if rec.CreatedInBundle, err = ids.BundleIDFromBytes(createdInBundle); err != nil {
			return nil, err
		}
		if rec.DeletedHLC, err = optionalHLC(deletedAt); err != nil {
			return nil, err
		}
		if rec.DeletedBy, err = optionalActorID(deletedBy); err != nil {
			return nil, err
		}
		if rec.DeletedInBundle, err = optionalBundleID(deletedInBundle); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// Fields returns every non-tombstone field currently set on entity.
func (s *Store) Fields(ctx context.Context, entity ids.EntityID) ([]*storage.FieldRecord, error) {
	rows, err := s.query(ctx, `
		SELECT field_key, value, source_op, source_actor, updated_at
		FROM fields WHERE entity_id = ? AND value IS NOT NULL`, entity.Bytes())
	if err != nil {
		return nil, wrapDBError("fields", err)
	}
	defer rows.Close()

	var out []*storage.FieldRecord
	for rows.Next() {
		var fieldKey string
		var value, sourceOp, sourceActor, updatedAt []byte
		if err := rows.Scan(&fieldKey, &value, &sourceOp, &sourceActor, &updatedAt); err != nil {
			return nil, wrapDBError("scan field", err)
		}
		rec := &storage.FieldRecord{EntityID: entity, FieldKey: fieldKey, Value: value}
		var err error
		if rec.SourceOp, err = ids.OpIDFromBytes(sourceOp); err != nil {
			return nil, err
		}
		if rec.SourceActor, err = ids.ActorIDFromBytes(sourceActor); err != nil {
			return nil, err
		}
		if rec.UpdatedHLC, err = blobTo16(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Facets returns every currently-attached facet on entity.
func (s *Store) Facets(ctx context.Context, entity ids.EntityID) ([]*storage.FacetRecord, error) {
	rows, err := s.query(ctx, `
		SELECT facet_type, attached_at, attached_by, attached_in_bundle, source_type, preserve_values
		FROM facets WHERE entity_id = ? AND detached_at IS NULL`, entity.Bytes())
	if err != nil {
		return nil, wrapDBError("facets", err)
	}
	defer rows.Close()

	var out []*storage.FacetRecord
	for rows.Next() {
		var facetType, sourceType string
		var attachedAt, attachedBy, attachedInBundle, preserveValues []byte
		if err := rows.Scan(&facetType, &attachedAt, &attachedBy, &attachedInBundle, &sourceType, &preserveValues); err != nil {
			return nil, wrapDBError("scan facet", err)
		}
		rec := &storage.FacetRecord{EntityID: entity, FacetType: facetType, SourceType: sourceType, PreserveValues: preserveValues}
		var err error
		if rec.AttachedHLC, err = blobTo16(attachedAt); err != nil {
			return nil, err
		}
		if rec.AttachedBy, err = ids.ActorIDFromBytes(attachedBy); err != nil {
			return nil, err
		}
		if rec.AttachedInBundle, err = ids.BundleIDFromBytes(attachedInBundle); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EntitiesByFacet returns every entity with an attached facet of the given
// type.
func (s *Store) EntitiesByFacet(ctx context.Context, facetType string) ([]ids.EntityID, error) {
	rows, err := s.query(ctx, `
		SELECT entity_id FROM facets WHERE facet_type = ? AND detached_at IS NULL`, facetType)
	if err != nil {
		return nil, wrapDBError("entities by facet", err)
	}
	defer rows.Close()

	var out []ids.EntityID
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, wrapDBError("scan entity id", err)
		}
		id, err := ids.EntityIDFromBytes(b)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetEdgeProperty returns a materialized edge property row, including
// tombstones.
func (s *Store) GetEdgeProperty(ctx context.Context, edge ids.EdgeID, propertyKey string) (*storage.EdgePropertyRecord, error) {
	row := s.queryRow(ctx, `
		SELECT value, source_op, source_actor, updated_at FROM edge_properties WHERE edge_id = ? AND property_key = ?`,
		edge.Bytes(), propertyKey)

	var value, sourceOp, sourceActor, updatedAt []byte
	if err := row.Scan(&value, &sourceOp, &sourceActor, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapDBError("get edge property", err)
	}
	rec := &storage.EdgePropertyRecord{EdgeID: edge, PropertyKey: propertyKey, Value: value}
	var err error
	if rec.SourceOp, err = ids.OpIDFromBytes(sourceOp); err != nil {
		return nil, err
	}
	if rec.SourceActor, err = ids.ActorIDFromBytes(sourceActor); err != nil {
		return nil, err
	}
	if rec.UpdatedHLC, err = blobTo16(updatedAt); err != nil {
		return nil, err
	}
	return rec, nil
}

// EdgeProperties returns every non-tombstone property on edge.
func (s *Store) EdgeProperties(ctx context.Context, edge ids.EdgeID) ([]*storage.EdgePropertyRecord, error) {
	rows, err := s.query(ctx, `
		SELECT property_key, value, source_op, source_actor, updated_at
		FROM edge_properties WHERE edge_id = ? AND value IS NOT NULL`, edge.Bytes())
	if err != nil {
		return nil, wrapDBError("edge properties", err)
	}
	defer rows.Close()

	var out []*storage.EdgePropertyRecord
	for rows.Next() {
		var propertyKey string
		var value, sourceOp, sourceActor, updatedAt []byte
		if err := rows.Scan(&propertyKey, &value, &sourceOp, &sourceActor, &updatedAt); err != nil {
			return nil, wrapDBError("scan edge property", err)
		}
		rec := &storage.EdgePropertyRecord{EdgeID: edge, PropertyKey: propertyKey, Value: value}
		var err error
		if rec.SourceOp, err = ids.OpIDFromBytes(sourceOp); err != nil {
			return nil, err
		}
		if rec.SourceActor, err = ids.ActorIDFromBytes(sourceActor); err != nil {
			return nil, err
		}
		if rec.UpdatedHLC, err = blobTo16(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EdgesFrom returns non-deleted edges with the given source and type.
func (s *Store) EdgesFrom(ctx context.Context, source ids.EntityID, edgeType string) ([]*storage.EdgeRecord, error) {
	rows, err := s.query(ctx, `
		SELECT edge_id, edge_type, source_id, target_id, created_at, created_by, created_in_bundle, deleted_at, deleted_by, deleted_in_bundle
		FROM edges WHERE source_id = ? AND edge_type = ? AND deleted_at IS NULL`, source.Bytes(), edgeType)
	if err != nil {
		return nil, wrapDBError("edges from", err)
	}
	defer rows.Close()

	var out []*storage.EdgeRecord
	for rows.Next() {
		var edgeIDBytes []byte
		var rec storage.EdgeRecord
		var edgeType string
		var sourceID, targetID, createdAt, createdBy, createdInBundle []byte
		var deletedAt, deletedBy, deletedInBundle []byte
		if err := rows.Scan(&edgeIDBytes, &edgeType, &sourceID, &targetID, &createdAt, &createdBy, &createdInBundle, &deletedAt, &deletedBy, &deletedInBundle); err != nil {
			return nil, wrapDBError("scan edge", err)
		}
		edgeID, err := ids.EdgeIDFromBytes(edgeIDBytes)
		if err != nil {
			return nil, err
		}
		rec.EdgeID = edgeID
		rec.EdgeType = edgeType
		if rec.SourceID, err = ids.EntityIDFromBytes(sourceID); err != nil {
			return nil, err
		}
		if rec.TargetID, err = ids.EntityIDFromBytes(targetID); err != nil {
			return nil, err
		}
		if rec.CreatedHLC, err = blobTo16(createdAt); err != nil {
			return nil, err
		}
		if rec.CreatedBy, err = ids.ActorIDFromBytes(createdBy); err != nil {
			return nil, err
		}
		if rec.CreatedInBundle, err = ids.BundleIDFromBytes(createdInBundle); err != nil {
			return nil, err
		}
		if rec.DeletedHLC, err = optionalHLC(deletedAt); err != nil {
			return nil, err
		}
		if rec.DeletedBy, err = optionalActorID(deletedBy); err != nil {
			return nil, err
		}
		if rec.DeletedInBundle, err = optionalBundleID(deletedInBundle); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
