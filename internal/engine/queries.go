package engine

import (
	"context"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

// FieldValuePair is one materialized (or overlay-staged) field value.
type FieldValuePair struct {
	Key   string
	Value fieldvalue.Value
}

// GetEntity returns a materialized entity row.
func (e *Engine) GetEntity(ctx context.Context, id ids.EntityID) (*storage.EntityRecord, error) {
	return e.storage.GetEntity(ctx, id)
}

// GetFacets returns every facet currently attached to entity.
func (e *Engine) GetFacets(ctx context.Context, entity ids.EntityID) ([]*storage.FacetRecord, error) {
	return e.storage.Facets(ctx, entity)
}

// GetEntitiesByFacet returns every entity with facetType attached.
func (e *Engine) GetEntitiesByFacet(ctx context.Context, facetType string) ([]ids.EntityID, error) {
	return e.storage.EntitiesByFacet(ctx, facetType)
}

// GetEdgesFrom returns non-deleted edges of edgeType originating at source.
func (e *Engine) GetEdgesFrom(ctx context.Context, source ids.EntityID, edgeType string) ([]*storage.EdgeRecord, error) {
	return e.storage.EdgesFrom(ctx, source, edgeType)
}

// GetEdge returns a materialized edge row.
func (e *Engine) GetEdge(ctx context.Context, id ids.EdgeID) (*storage.EdgeRecord, error) {
	return e.storage.GetEdge(ctx, id)
}

// GetEdgeProperties returns every non-tombstone property on edge.
func (e *Engine) GetEdgeProperties(ctx context.Context, edge ids.EdgeID) ([]*storage.EdgePropertyRecord, error) {
	return e.storage.EdgeProperties(ctx, edge)
}

// GetEdgeProperty returns one materialized edge property, including
// tombstones.
func (e *Engine) GetEdgeProperty(ctx context.Context, edge ids.EdgeID, key string) (*storage.EdgePropertyRecord, error) {
	return e.storage.GetEdgeProperty(ctx, edge, key)
}

// VectorClock returns the store's current per-actor max-HLC map.
func (e *Engine) VectorClock(ctx context.Context) (*vclock.Clock, error) {
	return e.storage.VectorClock(ctx)
}

// GetVectorClock is an alias for VectorClock, named to match the sync
// transport's one-directional consumption of the engine's public getters.
func (e *Engine) GetVectorClock(ctx context.Context) (*vclock.Clock, error) {
	return e.VectorClock(ctx)
}

// GetOpsByActorAfter returns every bundle actor authored after afterHLC, in
// canonical order, fully reconstructed and ready to ship to a peer or feed
// straight into another engine's IngestBundle.
func (e *Engine) GetOpsByActorAfter(ctx context.Context, actor ids.ActorID, afterHLC [12]byte) ([]*ops.Bundle, error) {
	return e.storage.BundlesByActorAfter(ctx, actor, afterHLC)
}

// GetOpenConflicts returns every currently open conflict record.
func (e *Engine) GetOpenConflicts(ctx context.Context) ([]*storage.ConflictRecord, error) {
	return e.storage.ListOpenConflicts(ctx)
}

// GetConflict returns one conflict record with its branch tips.
func (e *Engine) GetConflict(ctx context.Context, conflictID ids.ConflictID) (*storage.ConflictRecord, []storage.ConflictBranchTip, error) {
	c, tips, err := e.storage.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, nil, err
	}
	if c == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrConflictNotFound, conflictID)
	}
	return c, tips, nil
}

// GetFields returns every materialized field on entity, with the active
// overlay's staged writes (if any touch this entity) merged on top.
func (e *Engine) GetFields(ctx context.Context, entity ids.EntityID) ([]FieldValuePair, error) {
	records, err := e.storage.Fields(ctx, entity)
	if err != nil {
		return nil, err
	}
	out := make([]FieldValuePair, 0, len(records))
	for _, f := range records {
		v, err := fieldvalue.Unmarshal(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, FieldValuePair{Key: f.FieldKey, Value: v})
	}

	overlayID, active := e.overlay.Active()
	if !active {
		return out, nil
	}

	rows, err := e.storage.ListOverlayOps(ctx, overlayID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.FieldKey == "" || row.EntityID == nil || *row.EntityID != entity {
			continue
		}
		payload, err := ops.Unmarshal(row.Payload)
		if err != nil {
			return nil, err
		}
		out = removeFieldKey(out, payload.FieldKey)
		switch payload.Kind {
		case ops.KindSetField:
			out = append(out, FieldValuePair{Key: payload.FieldKey, Value: payload.Value})
		case ops.KindClearField:
			// tombstoned in the overlay: leave it out of the result
		}
	}
	return out, nil
}

func removeFieldKey(fields []FieldValuePair, key string) []FieldValuePair {
	out := fields[:0]
	for _, f := range fields {
		if f.Key != key {
			out = append(out, f)
		}
	}
	return out
}

// GetField reads one field, preferring the active overlay's most recent
// staged write (if any) over the canonical materialized value.
func (e *Engine) GetField(ctx context.Context, entity ids.EntityID, key string) (*fieldvalue.Value, error) {
	if overlayID, ok := e.overlay.Active(); ok {
		row, err := e.storage.LatestOverlayFieldOp(ctx, overlayID, entity, key)
		if err != nil {
			return nil, err
		}
		if row != nil {
			payload, err := ops.Unmarshal(row.Payload)
			if err != nil {
				return nil, err
			}
			switch payload.Kind {
			case ops.KindSetField:
				v := payload.Value
				return &v, nil
			case ops.KindClearField:
				return nil, nil
			}
		}
	}

	rec, err := e.storage.GetField(ctx, entity, key)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Value == nil {
		return nil, nil
	}
	v, err := fieldvalue.Unmarshal(rec.Value)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// RebuildState replays the entire oplog into a fresh materialized
// projection, discarding the current one.
func (e *Engine) RebuildState(ctx context.Context) error {
	return e.storage.RebuildFromOplog(ctx)
}
