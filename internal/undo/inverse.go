package undo

import (
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
)

// ComputeInverse builds the payload batch that undoes entry, using its
// snapshot to recover pre-execution values. Only the field and
// edge-property kinds consult the snapshot; the other kinds are inverted
// from the payload alone.
func ComputeInverse(entry Entry) []ops.Payload {
	var inverse []ops.Payload
	for _, p := range entry.Payloads {
		switch p.Kind {
		case ops.KindCreateEntity:
			inverse = append(inverse, ops.NewDeleteEntity(p.EntityID, nil))

		case ops.KindRestoreEntity:
			inverse = append(inverse, ops.NewDeleteEntity(p.EntityID, nil))

		case ops.KindDeleteEntity:
			inverse = append(inverse, ops.NewRestoreEntity(p.EntityID))
			for _, es := range entry.Snapshot.Edges {
				if es.Previous == nil {
					continue
				}
				if es.Previous.SourceID == p.EntityID || es.Previous.TargetID == p.EntityID {
					inverse = append(inverse, ops.NewRestoreEdge(es.EdgeID))
				}
			}

		case ops.KindSetField:
			if fs, ok := findField(entry.Snapshot.Fields, p.EntityID, p.FieldKey); ok {
				if fs.PreviousValue != nil {
					inverse = append(inverse, ops.NewSetField(p.EntityID, p.FieldKey, *fs.PreviousValue))
				} else {
					inverse = append(inverse, ops.NewClearField(p.EntityID, p.FieldKey))
				}
			}

		case ops.KindClearField:
			if fs, ok := findField(entry.Snapshot.Fields, p.EntityID, p.FieldKey); ok && fs.PreviousValue != nil {
				inverse = append(inverse, ops.NewSetField(p.EntityID, p.FieldKey, *fs.PreviousValue))
			}

		case ops.KindAttachFacet:
			inverse = append(inverse, ops.NewDetachFacet(p.EntityID, p.FacetType, true))

		case ops.KindDetachFacet:
			if p.PreserveValues {
				inverse = append(inverse, ops.NewRestoreFacet(p.EntityID, p.FacetType))
			} else {
				inverse = append(inverse, ops.NewAttachFacet(p.EntityID, p.FacetType))
			}

		case ops.KindCreateEdge:
			inverse = append(inverse, ops.NewDeleteEdge(p.EdgeID))

		case ops.KindDeleteEdge:
			inverse = append(inverse, ops.NewRestoreEdge(p.EdgeID))

		case ops.KindRestoreEdge:
			inverse = append(inverse, ops.NewDeleteEdge(p.EdgeID))

		case ops.KindSetEdgeProperty:
			if ps, ok := findEdgeProperty(entry.Snapshot.EdgeProperties, p.EdgeID, p.PropertyKey); ok {
				if ps.PreviousValue != nil {
					inverse = append(inverse, ops.NewSetEdgeProperty(p.EdgeID, p.PropertyKey, *ps.PreviousValue))
				} else {
					inverse = append(inverse, ops.NewClearEdgeProperty(p.EdgeID, p.PropertyKey))
				}
			}

		case ops.KindClearEdgeProperty:
			if ps, ok := findEdgeProperty(entry.Snapshot.EdgeProperties, p.EdgeID, p.PropertyKey); ok && ps.PreviousValue != nil {
				inverse = append(inverse, ops.NewSetEdgeProperty(p.EdgeID, p.PropertyKey, *ps.PreviousValue))
			}
		}
	}
	return inverse
}

func findField(fields []FieldSnapshot, entity ids.EntityID, key string) (FieldSnapshot, bool) {
	for _, f := range fields {
		if f.EntityID == entity && f.FieldKey == key {
			return f, true
		}
	}
	return FieldSnapshot{}, false
}

func findEdgeProperty(props []EdgePropertySnapshot, edge ids.EdgeID, key string) (EdgePropertySnapshot, bool) {
	for _, p := range props {
		if p.EdgeID == edge && p.PropertyKey == key {
			return p, true
		}
	}
	return EdgePropertySnapshot{}, false
}
