// Package ops implements the signed operation and bundle types: the
// OperationPayload variants, canonical signing-byte layout, and bundle
// checksum/signature construction described in SPEC_FULL.md.
package ops

import (
	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ids"
)

// Kind tags which OperationPayload variant a Payload holds.
type Kind byte

const (
	KindCreateEntity Kind = iota
	KindDeleteEntity
	KindAttachFacet
	KindDetachFacet
	KindRestoreFacet
	KindSetField
	KindClearField
	KindApplyCrdt
	KindClearAndAdd
	KindCreateEdge
	KindDeleteEdge
	KindSetEdgeProperty
	KindClearEdgeProperty
	KindCreateOrderedEdge
	KindMoveOrderedEdge
	KindLinkTables
	KindUnlinkTables
	KindAddToTable
	KindRemoveFromTable
	KindConfirmFieldMapping
	KindMergeEntities
	KindSplitEntity
	KindCreateRule
	KindRestoreEntity
	KindRestoreEdge
	KindResolveConflict
)

// String returns the storage/indexing name of the kind, matching
// op_type_name in original_source/crates/core/src/operations.rs.
func (k Kind) String() string {
	switch k {
	case KindCreateEntity:
		return "CreateEntity"
	case KindDeleteEntity:
		return "DeleteEntity"
	case KindAttachFacet:
		return "AttachFacet"
	case KindDetachFacet:
		return "DetachFacet"
	case KindRestoreFacet:
		return "RestoreFacet"
	case KindSetField:
		return "SetField"
	case KindClearField:
		return "ClearField"
	case KindApplyCrdt:
		return "ApplyCrdt"
	case KindClearAndAdd:
		return "ClearAndAdd"
	case KindCreateEdge:
		return "CreateEdge"
	case KindDeleteEdge:
		return "DeleteEdge"
	case KindSetEdgeProperty:
		return "SetEdgeProperty"
	case KindClearEdgeProperty:
		return "ClearEdgeProperty"
	case KindCreateOrderedEdge:
		return "CreateOrderedEdge"
	case KindMoveOrderedEdge:
		return "MoveOrderedEdge"
	case KindLinkTables:
		return "LinkTables"
	case KindUnlinkTables:
		return "UnlinkTables"
	case KindAddToTable:
		return "AddToTable"
	case KindRemoveFromTable:
		return "RemoveFromTable"
	case KindConfirmFieldMapping:
		return "ConfirmFieldMapping"
	case KindMergeEntities:
		return "MergeEntities"
	case KindSplitEntity:
		return "SplitEntity"
	case KindCreateRule:
		return "CreateRule"
	case KindRestoreEntity:
		return "RestoreEntity"
	case KindRestoreEdge:
		return "RestoreEdge"
	case KindResolveConflict:
		return "ResolveConflict"
	default:
		return "Unknown"
	}
}

// CrdtType names which opaque CRDT merge algorithm an ApplyCrdt delta
// targets. The core never interprets the delta; see SPEC_FULL.md's
// "Open question — CRDT payload merge".
type CrdtType byte

const (
	CrdtText CrdtType = iota
	CrdtList
)

// EdgeProperty is a single (key, value) pair attached to an edge at
// creation time.
type EdgeProperty struct {
	Key   string
	Value fieldvalue.Value
}

// TableDefault is a single (field, value) default applied when adding an
// entity to a table.
type TableDefault struct {
	Field string
	Value fieldvalue.Value
}

// FieldMapping pairs a source column name with a target field key for
// LinkTables.
type FieldMapping struct {
	SourceColumn string
	TargetColumn string
}

// Payload is the materialized-or-carried body of one signed operation. Only
// the fields relevant to Kind are meaningful; this mirrors the core's tagged
// union (see the OperationPayload match arms this type replaces).
//
// The materialized variants (CreateEntity through RestoreEntity/RestoreEdge/
// ResolveConflict) are interpreted by internal/storage/sqlite. The rest are
// carried and signed but never materialized, per SPEC_FULL.md's
// "SUPPLEMENTED FEATURES" section.
type Payload struct {
	Kind Kind

	// CreateEntity
	EntityID      ids.EntityID
	InitialFacet  string // optional; empty means none
	HasInitial    bool

	// DeleteEntity
	CascadeEdges []ids.EdgeID

	// AttachFacet / DetachFacet / RestoreFacet
	FacetType      string
	PreserveValues bool

	// SetField / ClearField / ResolveConflict / ApplyCrdt / ClearAndAdd
	FieldKey     string
	Value        fieldvalue.Value
	HasValue     bool
	AddedValues  []fieldvalue.Value
	CrdtKind     CrdtType
	Delta        []byte

	// CreateEdge / DeleteEdge / RestoreEdge / CreateOrderedEdge / MoveOrderedEdge
	EdgeID     ids.EdgeID
	EdgeType   string
	SourceID   ids.EntityID
	TargetID   ids.EntityID
	Properties []EdgeProperty
	After      *ids.EdgeID
	Before     *ids.EdgeID

	// SetEdgeProperty / ClearEdgeProperty
	PropertyKey string

	// LinkTables / UnlinkTables / ConfirmFieldMapping
	SourceTable    ids.TableID
	TargetTable    ids.TableID
	FieldMappings  []FieldMapping
	DataHandling   string
	SourceField    string
	TargetField    string

	// AddToTable / RemoveFromTable
	Table        string
	TableDefault []TableDefault

	// MergeEntities / SplitEntity
	SurvivorID ids.EntityID
	AbsorbedID ids.EntityID
	NewEntityIDs []ids.EntityID
	SplitFacets  []string

	// CreateRule
	RuleID        ids.RuleID
	RuleName      string
	WhenClause    string
	ActionType    string
	ActionParams  []byte
	AutoAccept    bool

	// ResolveConflict
	ConflictID   ids.ConflictID
	ChosenValue  fieldvalue.Value
	HasChosen    bool
}

// TargetEntity returns the primary entity this payload targets, if any,
// matching OperationPayload::entity_id in original_source.
func (p Payload) TargetEntity() (ids.EntityID, bool) {
	switch p.Kind {
	case KindCreateEntity, KindDeleteEntity, KindAttachFacet, KindDetachFacet,
		KindRestoreFacet, KindSetField, KindClearField, KindApplyCrdt,
		KindClearAndAdd, KindAddToTable, KindRemoveFromTable, KindRestoreEntity,
		KindResolveConflict:
		return p.EntityID, true
	case KindCreateEdge, KindCreateOrderedEdge:
		return p.SourceID, true
	case KindMergeEntities:
		return p.SurvivorID, true
	case KindSplitEntity:
		return p.SourceID, true
	default:
		return ids.EntityID{}, false
	}
}

// Materializes reports whether the core's storage layer interprets this
// payload kind (vs. carrying it opaquely in the oplog only).
func (k Kind) Materializes() bool {
	switch k {
	case KindCreateEntity, KindDeleteEntity, KindAttachFacet, KindDetachFacet,
		KindRestoreFacet, KindSetField, KindClearField, KindCreateEdge,
		KindDeleteEdge, KindRestoreEdge, KindRestoreEntity, KindSetEdgeProperty,
		KindClearEdgeProperty, KindResolveConflict:
		return true
	default:
		return false
	}
}

// Constructors for the materialized payload kinds (the common path through
// internal/engine). Carried-only payload kinds are built by callers setting
// fields directly with the appropriate Kind, since they are far less
// frequently constructed and a constructor per kind would be pure
// boilerplate.

func NewCreateEntity(entityID ids.EntityID, initialFacet string) Payload {
	p := Payload{Kind: KindCreateEntity, EntityID: entityID}
	if initialFacet != "" {
		p.InitialFacet = initialFacet
		p.HasInitial = true
	}
	return p
}

func NewDeleteEntity(entityID ids.EntityID, cascadeEdges []ids.EdgeID) Payload {
	return Payload{Kind: KindDeleteEntity, EntityID: entityID, CascadeEdges: cascadeEdges}
}

func NewRestoreEntity(entityID ids.EntityID) Payload {
	return Payload{Kind: KindRestoreEntity, EntityID: entityID}
}

func NewAttachFacet(entityID ids.EntityID, facetType string) Payload {
	return Payload{Kind: KindAttachFacet, EntityID: entityID, FacetType: facetType}
}

func NewDetachFacet(entityID ids.EntityID, facetType string, preserve bool) Payload {
	return Payload{Kind: KindDetachFacet, EntityID: entityID, FacetType: facetType, PreserveValues: preserve}
}

func NewRestoreFacet(entityID ids.EntityID, facetType string) Payload {
	return Payload{Kind: KindRestoreFacet, EntityID: entityID, FacetType: facetType}
}

func NewSetField(entityID ids.EntityID, fieldKey string, value fieldvalue.Value) Payload {
	return Payload{Kind: KindSetField, EntityID: entityID, FieldKey: fieldKey, Value: value, HasValue: true}
}

func NewClearField(entityID ids.EntityID, fieldKey string) Payload {
	return Payload{Kind: KindClearField, EntityID: entityID, FieldKey: fieldKey}
}

func NewCreateEdge(edgeID ids.EdgeID, edgeType string, source, target ids.EntityID, props []EdgeProperty) Payload {
	return Payload{Kind: KindCreateEdge, EdgeID: edgeID, EdgeType: edgeType, SourceID: source, TargetID: target, Properties: props}
}

func NewDeleteEdge(edgeID ids.EdgeID) Payload {
	return Payload{Kind: KindDeleteEdge, EdgeID: edgeID}
}

func NewRestoreEdge(edgeID ids.EdgeID) Payload {
	return Payload{Kind: KindRestoreEdge, EdgeID: edgeID}
}

func NewSetEdgeProperty(edgeID ids.EdgeID, key string, value fieldvalue.Value) Payload {
	return Payload{Kind: KindSetEdgeProperty, EdgeID: edgeID, PropertyKey: key, Value: value, HasValue: true}
}

func NewClearEdgeProperty(edgeID ids.EdgeID, key string) Payload {
	return Payload{Kind: KindClearEdgeProperty, EdgeID: edgeID, PropertyKey: key}
}

func NewResolveConflict(conflictID ids.ConflictID, entityID ids.EntityID, fieldKey string, chosen *fieldvalue.Value) Payload {
	p := Payload{Kind: KindResolveConflict, ConflictID: conflictID, EntityID: entityID, FieldKey: fieldKey}
	if chosen != nil {
		p.ChosenValue = *chosen
		p.HasChosen = true
	}
	return p
}
