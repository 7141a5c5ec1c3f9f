package engine

import (
	"context"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
)

// FieldInput is one (key, value) pair supplied to CreateEntityWithFields.
type FieldInput struct {
	Key   string
	Value fieldvalue.Value
}

// CreateEntity creates a new entity, optionally attaching initialFacet in
// the same bundle.
func (e *Engine) CreateEntity(ctx context.Context, initialFacet string) (ids.EntityID, ids.BundleID, error) {
	entityID := ids.NewEntityID()
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{ops.NewCreateEntity(entityID, initialFacet)}, true)
	if err != nil {
		return ids.EntityID{}, ids.BundleID{}, err
	}
	return entityID, bundle.BundleID, nil
}

// CreateEntityWithFields creates an entity with an initial facet and a
// batch of field values, all in one undoable bundle.
func (e *Engine) CreateEntityWithFields(ctx context.Context, facetType string, fields []FieldInput) (ids.EntityID, ids.BundleID, error) {
	entityID := ids.NewEntityID()
	payloads := make([]ops.Payload, 0, len(fields)+1)
	payloads = append(payloads, ops.NewCreateEntity(entityID, facetType))
	for _, f := range fields {
		payloads = append(payloads, ops.NewSetField(entityID, f.Key, f.Value))
	}
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, payloads, true)
	if err != nil {
		return ids.EntityID{}, ids.BundleID{}, err
	}
	return entityID, bundle.BundleID, nil
}

// SetField writes a field's value on a live entity.
func (e *Engine) SetField(ctx context.Context, entity ids.EntityID, key string, value fieldvalue.Value) (ids.BundleID, error) {
	if err := e.requireLiveEntity(ctx, entity); err != nil {
		return ids.BundleID{}, err
	}
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{ops.NewSetField(entity, key, value)}, true)
	if err != nil {
		return ids.BundleID{}, err
	}
	return bundle.BundleID, nil
}

// ClearField tombstones a field's value on a live entity.
func (e *Engine) ClearField(ctx context.Context, entity ids.EntityID, key string) (ids.BundleID, error) {
	if err := e.requireLiveEntity(ctx, entity); err != nil {
		return ids.BundleID{}, err
	}
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{ops.NewClearField(entity, key)}, true)
	if err != nil {
		return ids.BundleID{}, err
	}
	return bundle.BundleID, nil
}

// DeleteEntity soft-deletes a live entity along with every edge currently
// touching it (cascade), recorded in the same payload so undo can restore
// both in one inverse bundle.
func (e *Engine) DeleteEntity(ctx context.Context, entity ids.EntityID) (ids.BundleID, error) {
	if err := e.requireLiveEntity(ctx, entity); err != nil {
		return ids.BundleID{}, err
	}
	cascade, err := e.cascadeEdgeIDs(ctx, entity)
	if err != nil {
		return ids.BundleID{}, err
	}
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{ops.NewDeleteEntity(entity, cascade)}, true)
	if err != nil {
		return ids.BundleID{}, err
	}
	return bundle.BundleID, nil
}

func (e *Engine) cascadeEdgeIDs(ctx context.Context, entity ids.EntityID) ([]ids.EdgeID, error) {
	from, err := e.storage.EdgesFromAll(ctx, entity)
	if err != nil {
		return nil, err
	}
	to, err := e.storage.EdgesToAll(ctx, entity)
	if err != nil {
		return nil, err
	}
	seen := make(map[ids.EdgeID]bool)
	var out []ids.EdgeID
	for _, e2 := range from {
		if e2.DeletedHLC == nil && !seen[e2.EdgeID] {
			seen[e2.EdgeID] = true
			out = append(out, e2.EdgeID)
		}
	}
	for _, e2 := range to {
		if e2.DeletedHLC == nil && !seen[e2.EdgeID] {
			seen[e2.EdgeID] = true
			out = append(out, e2.EdgeID)
		}
	}
	return out, nil
}

// AttachFacet attaches facetType to a live entity.
func (e *Engine) AttachFacet(ctx context.Context, entity ids.EntityID, facetType string) (ids.BundleID, error) {
	if err := e.requireLiveEntity(ctx, entity); err != nil {
		return ids.BundleID{}, err
	}
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{ops.NewAttachFacet(entity, facetType)}, true)
	if err != nil {
		return ids.BundleID{}, err
	}
	return bundle.BundleID, nil
}

// DetachFacet detaches facetType from a live entity. The entity's field
// values are left in place either way; preserve is only recorded on the
// facet row.
func (e *Engine) DetachFacet(ctx context.Context, entity ids.EntityID, facetType string, preserve bool) (ids.BundleID, error) {
	if err := e.requireLiveEntity(ctx, entity); err != nil {
		return ids.BundleID{}, err
	}
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{ops.NewDetachFacet(entity, facetType, preserve)}, true)
	if err != nil {
		return ids.BundleID{}, err
	}
	return bundle.BundleID, nil
}

// CreateEdge creates an edge between two live entities.
func (e *Engine) CreateEdge(ctx context.Context, edgeType string, source, target ids.EntityID) (ids.EdgeID, ids.BundleID, error) {
	return e.CreateEdgeWithProperties(ctx, edgeType, source, target, nil)
}

// CreateEdgeWithProperties creates an edge and sets a batch of edge
// properties in the same bundle.
func (e *Engine) CreateEdgeWithProperties(ctx context.Context, edgeType string, source, target ids.EntityID, props []ops.EdgeProperty) (ids.EdgeID, ids.BundleID, error) {
	if err := e.requireLiveEntity(ctx, source); err != nil {
		return ids.EdgeID{}, ids.BundleID{}, err
	}
	if err := e.requireLiveEntity(ctx, target); err != nil {
		return ids.EdgeID{}, ids.BundleID{}, err
	}
	edgeID := ids.NewEdgeID()
	payload := ops.NewCreateEdge(edgeID, edgeType, source, target, props)
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{payload}, true)
	if err != nil {
		return ids.EdgeID{}, ids.BundleID{}, err
	}
	return edgeID, bundle.BundleID, nil
}

// SetEdgeProperty writes a property value on a live edge.
func (e *Engine) SetEdgeProperty(ctx context.Context, edge ids.EdgeID, key string, value fieldvalue.Value) (ids.BundleID, error) {
	if _, err := e.requireLiveEdge(ctx, edge); err != nil {
		return ids.BundleID{}, err
	}
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{ops.NewSetEdgeProperty(edge, key, value)}, true)
	if err != nil {
		return ids.BundleID{}, err
	}
	return bundle.BundleID, nil
}

// ClearEdgeProperty tombstones a property on a live edge.
func (e *Engine) ClearEdgeProperty(ctx context.Context, edge ids.EdgeID, key string) (ids.BundleID, error) {
	if _, err := e.requireLiveEdge(ctx, edge); err != nil {
		return ids.BundleID{}, err
	}
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{ops.NewClearEdgeProperty(edge, key)}, true)
	if err != nil {
		return ids.BundleID{}, err
	}
	return bundle.BundleID, nil
}

// DeleteEdge soft-deletes a live edge.
func (e *Engine) DeleteEdge(ctx context.Context, edge ids.EdgeID) (ids.BundleID, error) {
	if _, err := e.requireLiveEdge(ctx, edge); err != nil {
		return ids.BundleID{}, err
	}
	bundle, err := e.executeInternal(ctx, ops.BundleUserEdit, []ops.Payload{ops.NewDeleteEdge(edge)}, true)
	if err != nil {
		return ids.BundleID{}, err
	}
	return bundle.BundleID, nil
}

// Execute runs an arbitrary batch of payloads as one bundle, e.g. for
// carried-only payload kinds (table linking, rule creation) that have no
// dedicated typed command. Only BundleUserEdit bundles are undoable; script
// output, imports and system bundles never touch the undo stack.
func (e *Engine) Execute(ctx context.Context, bundleType ops.BundleType, payloads []ops.Payload) (ids.BundleID, error) {
	if len(payloads) == 0 {
		return ids.BundleID{}, fmt.Errorf("engine: execute requires at least one payload")
	}
	bundle, err := e.executeInternal(ctx, bundleType, payloads, bundleType == ops.BundleUserEdit)
	if err != nil {
		return ids.BundleID{}, err
	}
	return bundle.BundleID, nil
}
