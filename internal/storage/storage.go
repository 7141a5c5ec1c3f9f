// Package storage defines the interface for the replicated data store's
// persistent backend: the append-only oplog, the LWW-materialized entity
// graph, conflict records, and overlay scratch spaces.
package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

// ErrDBNotInitialized is returned when a storage feature is used before the
// schema has been applied.
var ErrDBNotInitialized = errors.New("storage: database not initialized")

// ErrBundleExists names the duplicate-bundle case. AppendBundle does not
// return it: appending a bundle_id that is already present is a no-op that
// reports (false, nil).
var ErrBundleExists = errors.New("storage: bundle already appended")

// EntityRecord is a materialized entity row.
type EntityRecord struct {
	EntityID        ids.EntityID
	CreatedAt       uint64 // not populated by the sqlite backend; the creation time is in CreatedHLC
	CreatedHLC      [12]byte
	CreatedBy       ids.ActorID
	CreatedInBundle ids.BundleID
	DeletedHLC      *[12]byte
	DeletedBy       *ids.ActorID
	DeletedInBundle *ids.BundleID
	RedirectTo      *ids.EntityID
	RedirectHLC     *[12]byte
}

// FieldRecord is one materialized (entity, field_key) row, including
// tombstones (Value == nil after a ClearField).
type FieldRecord struct {
	EntityID    ids.EntityID
	FieldKey    string
	Value       []byte // msgpack-encoded fieldvalue.Value, nil if cleared
	SourceOp    ids.OpID
	SourceActor ids.ActorID
	UpdatedHLC  [12]byte
}

// FacetRecord is one materialized (entity, facet_type) row.
type FacetRecord struct {
	EntityID          ids.EntityID
	FacetType         string
	AttachedHLC       [12]byte
	AttachedBy        ids.ActorID
	AttachedInBundle  ids.BundleID
	SourceType        string
	DetachedHLC       *[12]byte
	DetachedBy        *ids.ActorID
	DetachedInBundle  *ids.BundleID
	PreserveValues    []byte
}

// EdgeRecord is a materialized edge row.
type EdgeRecord struct {
	EdgeID          ids.EdgeID
	EdgeType        string
	SourceID        ids.EntityID
	TargetID        ids.EntityID
	CreatedHLC      [12]byte
	CreatedBy       ids.ActorID
	CreatedInBundle ids.BundleID
	DeletedHLC      *[12]byte
	DeletedBy       *ids.ActorID
	DeletedInBundle *ids.BundleID
}

// EdgePropertyRecord is one materialized (edge, property_key) row, including
// tombstones (Value == nil after a ClearEdgeProperty).
type EdgePropertyRecord struct {
	EdgeID      ids.EdgeID
	PropertyKey string
	Value       []byte
	SourceOp    ids.OpID
	SourceActor ids.ActorID
	UpdatedHLC  [12]byte
}

// FieldSource describes who last wrote a field and what that writer's
// bundle-level vector clock looked like at the time — the causal metadata
// the conflict-detection algorithm compares an ingested bundle's creator
// vector clock against.
type FieldSource struct {
	Actor     ids.ActorID
	HLC       [12]byte
	OpID      ids.OpID
	BundleVC  *vclock.Clock
}

// ConflictStatus is the lifecycle state of a conflict record.
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// ConflictRecord is one open or resolved field-level conflict.
type ConflictRecord struct {
	ConflictID       ids.ConflictID
	EntityID         ids.EntityID
	FieldKey         string
	Status           ConflictStatus
	DetectedHLC      [12]byte
	DetectedInBundle ids.BundleID
	ResolvedHLC      *[12]byte
	ResolvedBy       *ids.ActorID
	ResolvedOpID     *ids.OpID
	ResolvedValue    []byte
	ReopenedHLC      *[12]byte
	ReopenedByOp     *ids.OpID
}

// ConflictBranchTip is one actor's surviving value in an open conflict —
// the N-way branch-tip set the conflict machine tracks.
type ConflictBranchTip struct {
	ConflictID ids.ConflictID
	ActorID    ids.ActorID
	HLC        [12]byte
	OpID       ids.OpID
	Value      []byte
}

// OverlayStatus is the lifecycle state of an overlay scratch space.
type OverlayStatus string

const (
	OverlayActive    OverlayStatus = "active"
	OverlayStashed   OverlayStatus = "stashed"
	OverlayCommitted OverlayStatus = "committed"
	OverlayDiscarded OverlayStatus = "discarded"
)

// OverlayRecord describes one overlay scratch space.
type OverlayRecord struct {
	OverlayID   ids.OverlayID
	DisplayName string
	Source      string
	SourceID    string
	Status      OverlayStatus
	CreatedHLC  [12]byte
	UpdatedHLC  [12]byte
}

// OverlayOpRecord is one write recorded against an overlay but never
// entered into the canonical oplog.
type OverlayOpRecord struct {
	RowID                    int64
	OverlayID                ids.OverlayID
	OpID                     ids.OpID
	HLC                      [12]byte
	Payload                  []byte
	EntityID                 *ids.EntityID
	FieldKey                 string
	OpType                   string
	CanonicalValueAtCreation []byte
	CanonicalDrifted         bool
}

// Backend is the persistent store behind one replica: the append-only oplog,
// its LWW-materialized projection, and the conflict/overlay side tables.
//
// Every mutating method is expected to run inside a single SQLite
// transaction (BEGIN IMMEDIATE, per SPEC_FULL.md's transaction model) so a
// bundle either fully lands or not at all.
type Backend interface {
	// AppendBundle idempotently appends bundle and its operations to the
	// oplog, then applies the strict LWW materialization rule per field/edge
	// row touched. Appending a bundle_id already present is a no-op (not an
	// error): it returns (false, nil).
	AppendBundle(ctx context.Context, bundle *ops.Bundle) (applied bool, err error)

	// RebuildFromOplog replays every bundle currently in the oplog, in
	// canonical (hlc, op_id) order, into a freshly truncated materialized
	// projection. Used to recover from projection corruption or schema
	// changes; must be idempotent and must reach the same state as
	// incremental AppendBundle calls would have.
	RebuildFromOplog(ctx context.Context) error

	// GetEntity returns a materialized entity row.
	GetEntity(ctx context.Context, id ids.EntityID) (*EntityRecord, error)
	// GetField returns a materialized field row (including tombstones).
	GetField(ctx context.Context, entity ids.EntityID, fieldKey string) (*FieldRecord, error)
	// GetFacet returns a materialized facet row.
	GetFacet(ctx context.Context, entity ids.EntityID, facetType string) (*FacetRecord, error)
	// GetEdge returns a materialized edge row.
	GetEdge(ctx context.Context, id ids.EdgeID) (*EdgeRecord, error)
	// EdgesFrom returns non-deleted edges with the given source and type.
	EdgesFrom(ctx context.Context, source ids.EntityID, edgeType string) ([]*EdgeRecord, error)
	// EdgesFromAll returns every edge (any type, deleted or not) with the
	// given source, for cascade-delete and undo-snapshot computation.
	EdgesFromAll(ctx context.Context, source ids.EntityID) ([]*EdgeRecord, error)
	// EdgesToAll returns every edge (any type, deleted or not) with the
	// given target.
	EdgesToAll(ctx context.Context, target ids.EntityID) ([]*EdgeRecord, error)

	// Fields returns every non-tombstone field currently set on entity.
	Fields(ctx context.Context, entity ids.EntityID) ([]*FieldRecord, error)
	// Facets returns every currently-attached facet on entity.
	Facets(ctx context.Context, entity ids.EntityID) ([]*FacetRecord, error)
	// EntitiesByFacet returns every entity with an attached facet of the
	// given type.
	EntitiesByFacet(ctx context.Context, facetType string) ([]ids.EntityID, error)

	// GetEdgeProperty returns a materialized edge property row, including
	// tombstones.
	GetEdgeProperty(ctx context.Context, edge ids.EdgeID, propertyKey string) (*EdgePropertyRecord, error)
	// EdgeProperties returns every non-tombstone property on edge.
	EdgeProperties(ctx context.Context, edge ids.EdgeID) ([]*EdgePropertyRecord, error)

	// FieldSourceVC returns who currently owns a field's value (including a
	// cleared/tombstoned field) and, if that writer's bundle carried one, its
	// creator vector clock. Returns nil if the field has never been written.
	FieldSourceVC(ctx context.Context, entity ids.EntityID, fieldKey string) (*FieldSource, error)
	// OpFieldValue extracts the msgpack-encoded field value (or nil for a
	// ClearField) carried by a historical oplog operation, looked up by op
	// id — used to recover a field's previous value for a conflict record
	// after the field row has already been overwritten by a later write.
	OpFieldValue(ctx context.Context, opID ids.OpID) ([]byte, error)

	// VectorClock returns the store's current per-actor max-HLC map, derived
	// from every bundle ever appended.
	VectorClock(ctx context.Context) (*vclock.Clock, error)

	// BundlesByActorAfter returns every bundle authored by actor with an HLC
	// strictly greater than afterHLC, in canonical order, fully reconstructed
	// (operations, signature, creator vector clock) so the result is ready to
	// hand to a peer's AppendBundle/IngestBundle without a further read. Used
	// by the sync transport's causal diff: ship what a peer's vector clock
	// shows it hasn't seen yet.
	BundlesByActorAfter(ctx context.Context, actor ids.ActorID, afterHLC [12]byte) ([]*ops.Bundle, error)

	// Conflicts

	OpenConflict(ctx context.Context, c *ConflictRecord, tips []ConflictBranchTip) error
	ExtendConflict(ctx context.Context, conflictID ids.ConflictID, tip ConflictBranchTip) error
	ResolveConflict(ctx context.Context, conflictID ids.ConflictID, resolvedHLC [12]byte, resolvedBy ids.ActorID, resolvedOp ids.OpID, value []byte) error
	ReopenConflict(ctx context.Context, conflictID ids.ConflictID, reopenedHLC [12]byte, reopenedByOp ids.OpID) error
	GetConflict(ctx context.Context, conflictID ids.ConflictID) (*ConflictRecord, []ConflictBranchTip, error)
	OpenConflictFor(ctx context.Context, entity ids.EntityID, fieldKey string) (*ConflictRecord, []ConflictBranchTip, error)
	// LatestConflictFor returns the most recently detected conflict on
	// (entity, fieldKey) regardless of status — open or resolved — used to
	// decide between extending an open conflict and reopening a resolved
	// one when a new concurrent write lands.
	LatestConflictFor(ctx context.Context, entity ids.EntityID, fieldKey string) (*ConflictRecord, []ConflictBranchTip, error)
	ListOpenConflicts(ctx context.Context) ([]*ConflictRecord, error)

	// Overlays

	CreateOverlay(ctx context.Context, o *OverlayRecord) error
	GetOverlay(ctx context.Context, id ids.OverlayID) (*OverlayRecord, error)
	ListOverlays(ctx context.Context, status OverlayStatus) ([]*OverlayRecord, error)
	SetOverlayStatus(ctx context.Context, id ids.OverlayID, status OverlayStatus, updatedHLC [12]byte) error
	DeleteOverlay(ctx context.Context, id ids.OverlayID) error
	AppendOverlayOp(ctx context.Context, op *OverlayOpRecord) error
	ListOverlayOps(ctx context.Context, overlayID ids.OverlayID) ([]*OverlayOpRecord, error)
	OverlayOpsFor(ctx context.Context, overlayID ids.OverlayID, entity ids.EntityID, fieldKey string) ([]*OverlayOpRecord, error)
	// LatestOverlayFieldOp returns the most recently appended overlay op for
	// (overlayID, entity, fieldKey), if any — the value reads fall through
	// to when an overlay is active.
	LatestOverlayFieldOp(ctx context.Context, overlayID ids.OverlayID, entity ids.EntityID, fieldKey string) (*OverlayOpRecord, error)
	MarkOverlayOpDrifted(ctx context.Context, rowID int64, drifted bool) error
	// MarkFieldDrifted flags every overlay op (across every overlay) staged
	// against (entity, fieldKey) as canonically drifted — called after any
	// canonical write lands on a field that one or more overlays have also
	// staged a write against.
	MarkFieldDrifted(ctx context.Context, entity ids.EntityID, fieldKey string) error
	// DriftedOverlayOps returns the overlay ops in overlayID currently
	// flagged as canonically drifted.
	DriftedOverlayOps(ctx context.Context, overlayID ids.OverlayID) ([]*OverlayOpRecord, error)
	// CountUnresolvedDrift returns how many of overlayID's ops are currently
	// flagged as drifted.
	CountUnresolvedDrift(ctx context.Context, overlayID ids.OverlayID) (int, error)
	// UpdateCanonicalSnapshot rewrites the canonical_value_at_creation
	// baseline recorded for the given overlay ops — used by "keep mine"
	// drift acknowledgment to re-baseline against the new canonical value.
	UpdateCanonicalSnapshot(ctx context.Context, rowIDs []int64, canonicalValue []byte) error
	DeleteOverlayOps(ctx context.Context, overlayID ids.OverlayID, rowIDs []int64) error

	// RunInTransaction executes fn inside one BEGIN IMMEDIATE transaction;
	// if fn returns an error (or panics) the transaction is rolled back.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error

	// Lifecycle
	Close() error
	Path() string
	UnderlyingDB() *sql.DB
}
