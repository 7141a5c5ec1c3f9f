package undo

import (
	"context"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

// CaptureSnapshot reads the current state touched by payloads, before they
// execute, so ComputeInverse can later reconstruct the pre-execution state.
// Only payload kinds the engine executes undoably are handled; anything
// else is skipped (its absence from the snapshot means ComputeInverse emits
// no inverse for it).
func CaptureSnapshot(ctx context.Context, s storage.Backend, payloads []ops.Payload) (Snapshot, error) {
	var snap Snapshot
	for _, p := range payloads {
		switch p.Kind {
		case ops.KindCreateEntity:
			existed, err := entityDeletedFlag(ctx, s, p.EntityID)
			if err != nil {
				return snap, err
			}
			snap.Entities = append(snap.Entities, EntitySnapshot{EntityID: p.EntityID, Existed: existed})

		case ops.KindRestoreEntity:
			existed, err := entityDeletedFlag(ctx, s, p.EntityID)
			if err != nil {
				return snap, err
			}
			snap.Entities = append(snap.Entities, EntitySnapshot{EntityID: p.EntityID, Existed: existed})

		case ops.KindDeleteEntity:
			existed, err := entityDeletedFlag(ctx, s, p.EntityID)
			if err != nil {
				return snap, err
			}
			facets, err := s.Facets(ctx, p.EntityID)
			if err != nil {
				return snap, err
			}
			fields, err := s.Fields(ctx, p.EntityID)
			if err != nil {
				return snap, err
			}
			edgesFrom, err := s.EdgesFromAll(ctx, p.EntityID)
			if err != nil {
				return snap, err
			}
			edgesTo, err := s.EdgesToAll(ctx, p.EntityID)
			if err != nil {
				return snap, err
			}
			seen := make(map[ids.EdgeID]bool)
			for _, e := range append(edgesFrom, edgesTo...) {
				if e.DeletedHLC != nil || seen[e.EdgeID] {
					continue
				}
				seen[e.EdgeID] = true
				snap.Edges = append(snap.Edges, EdgeSnapshot{EdgeID: e.EdgeID, Previous: e})
			}
			snap.Entities = append(snap.Entities, EntitySnapshot{EntityID: p.EntityID, Existed: existed, Facets: facets, Fields: fields})

		case ops.KindSetField, ops.KindClearField:
			fs, err := captureField(ctx, s, p.EntityID, p.FieldKey)
			if err != nil {
				return snap, err
			}
			snap.Fields = append(snap.Fields, fs)

		case ops.KindAttachFacet, ops.KindDetachFacet:
			facets, err := s.Facets(ctx, p.EntityID)
			if err != nil {
				return snap, err
			}
			wasAttached := false
			for _, f := range facets {
				if f.FacetType == p.FacetType {
					wasAttached = true
					break
				}
			}
			snap.Facets = append(snap.Facets, FacetSnapshot{EntityID: p.EntityID, FacetType: p.FacetType, WasAttached: wasAttached})

		case ops.KindCreateEdge:
			edge, err := s.GetEdge(ctx, p.EdgeID)
			if err != nil {
				return snap, err
			}
			snap.Edges = append(snap.Edges, EdgeSnapshot{EdgeID: p.EdgeID, Previous: edge})
			for _, prop := range p.Properties {
				ps, err := captureEdgeProperty(ctx, s, p.EdgeID, prop.Key)
				if err != nil {
					return snap, err
				}
				snap.EdgeProperties = append(snap.EdgeProperties, ps)
			}

		case ops.KindDeleteEdge, ops.KindRestoreEdge:
			edge, err := s.GetEdge(ctx, p.EdgeID)
			if err != nil {
				return snap, err
			}
			snap.Edges = append(snap.Edges, EdgeSnapshot{EdgeID: p.EdgeID, Previous: edge})

		case ops.KindSetEdgeProperty, ops.KindClearEdgeProperty:
			ps, err := captureEdgeProperty(ctx, s, p.EdgeID, p.PropertyKey)
			if err != nil {
				return snap, err
			}
			snap.EdgeProperties = append(snap.EdgeProperties, ps)
		}
	}
	return snap, nil
}

func entityDeletedFlag(ctx context.Context, s storage.Backend, id ids.EntityID) (*bool, error) {
	rec, err := s.GetEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	deleted := rec.DeletedHLC != nil
	return &deleted, nil
}

func captureField(ctx context.Context, s storage.Backend, entity ids.EntityID, key string) (FieldSnapshot, error) {
	snap := FieldSnapshot{EntityID: entity, FieldKey: key}
	rec, err := s.GetField(ctx, entity, key)
	if err != nil {
		return snap, err
	}
	if rec == nil {
		return snap, nil
	}
	if rec.Value != nil {
		v, err := fieldvalue.Unmarshal(rec.Value)
		if err != nil {
			return snap, err
		}
		snap.PreviousValue = &v
	}
	actor := rec.SourceActor
	updated := rec.UpdatedHLC
	snap.PreviousActor = &actor
	snap.PreviousHLC = &updated
	return snap, nil
}

func captureEdgeProperty(ctx context.Context, s storage.Backend, edge ids.EdgeID, key string) (EdgePropertySnapshot, error) {
	snap := EdgePropertySnapshot{EdgeID: edge, PropertyKey: key}
	rec, err := s.GetEdgeProperty(ctx, edge, key)
	if err != nil {
		return snap, err
	}
	if rec == nil {
		return snap, nil
	}
	if rec.Value != nil {
		v, err := fieldvalue.Unmarshal(rec.Value)
		if err != nil {
			return snap, err
		}
		snap.PreviousValue = &v
	}
	actor := rec.SourceActor
	updated := rec.UpdatedHLC
	snap.PreviousActor = &actor
	snap.PreviousHLC = &updated
	return snap, nil
}
