// Package storage tests for interface compliance.
package storage

import (
	"context"
	"database/sql"

	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

// Compile-time check that a minimal mock can satisfy Backend; the real
// conformance tests for the sqlite implementation live in
// internal/storage/sqlite.
var _ Backend = (*mockBackend)(nil)

type mockBackend struct{}

func (m *mockBackend) AppendBundle(ctx context.Context, bundle *ops.Bundle) (bool, error) {
	return false, nil
}
func (m *mockBackend) RebuildFromOplog(ctx context.Context) error { return nil }
func (m *mockBackend) GetEntity(ctx context.Context, id ids.EntityID) (*EntityRecord, error) {
	return nil, nil
}
func (m *mockBackend) GetField(ctx context.Context, entity ids.EntityID, fieldKey string) (*FieldRecord, error) {
	return nil, nil
}
func (m *mockBackend) GetFacet(ctx context.Context, entity ids.EntityID, facetType string) (*FacetRecord, error) {
	return nil, nil
}
func (m *mockBackend) GetEdge(ctx context.Context, id ids.EdgeID) (*EdgeRecord, error) {
	return nil, nil
}
func (m *mockBackend) EdgesFrom(ctx context.Context, source ids.EntityID, edgeType string) ([]*EdgeRecord, error) {
	return nil, nil
}
func (m *mockBackend) EdgesFromAll(ctx context.Context, source ids.EntityID) ([]*EdgeRecord, error) {
	return nil, nil
}
func (m *mockBackend) EdgesToAll(ctx context.Context, target ids.EntityID) ([]*EdgeRecord, error) {
	return nil, nil
}
func (m *mockBackend) Fields(ctx context.Context, entity ids.EntityID) ([]*FieldRecord, error) {
	return nil, nil
}
func (m *mockBackend) Facets(ctx context.Context, entity ids.EntityID) ([]*FacetRecord, error) {
	return nil, nil
}
func (m *mockBackend) EntitiesByFacet(ctx context.Context, facetType string) ([]ids.EntityID, error) {
	return nil, nil
}
func (m *mockBackend) GetEdgeProperty(ctx context.Context, edge ids.EdgeID, propertyKey string) (*EdgePropertyRecord, error) {
	return nil, nil
}
func (m *mockBackend) EdgeProperties(ctx context.Context, edge ids.EdgeID) ([]*EdgePropertyRecord, error) {
	return nil, nil
}
func (m *mockBackend) FieldSourceVC(ctx context.Context, entity ids.EntityID, fieldKey string) (*FieldSource, error) {
	return nil, nil
}
func (m *mockBackend) OpFieldValue(ctx context.Context, opID ids.OpID) ([]byte, error) {
	return nil, nil
}
func (m *mockBackend) VectorClock(ctx context.Context) (*vclock.Clock, error) {
	return vclock.New(), nil
}
func (m *mockBackend) BundlesByActorAfter(ctx context.Context, actor ids.ActorID, afterHLC [12]byte) ([]*ops.Bundle, error) {
	return nil, nil
}
func (m *mockBackend) OpenConflict(ctx context.Context, c *ConflictRecord, tips []ConflictBranchTip) error {
	return nil
}
func (m *mockBackend) ExtendConflict(ctx context.Context, conflictID ids.ConflictID, tip ConflictBranchTip) error {
	return nil
}
func (m *mockBackend) ResolveConflict(ctx context.Context, conflictID ids.ConflictID, resolvedHLC [12]byte, resolvedBy ids.ActorID, resolvedOp ids.OpID, value []byte) error {
	return nil
}
func (m *mockBackend) ReopenConflict(ctx context.Context, conflictID ids.ConflictID, reopenedHLC [12]byte, reopenedByOp ids.OpID) error {
	return nil
}
func (m *mockBackend) GetConflict(ctx context.Context, conflictID ids.ConflictID) (*ConflictRecord, []ConflictBranchTip, error) {
	return nil, nil, nil
}
func (m *mockBackend) OpenConflictFor(ctx context.Context, entity ids.EntityID, fieldKey string) (*ConflictRecord, []ConflictBranchTip, error) {
	return nil, nil, nil
}
func (m *mockBackend) LatestConflictFor(ctx context.Context, entity ids.EntityID, fieldKey string) (*ConflictRecord, []ConflictBranchTip, error) {
	return nil, nil, nil
}
func (m *mockBackend) ListOpenConflicts(ctx context.Context) ([]*ConflictRecord, error) {
	return nil, nil
}
func (m *mockBackend) CreateOverlay(ctx context.Context, o *OverlayRecord) error { return nil }
func (m *mockBackend) GetOverlay(ctx context.Context, id ids.OverlayID) (*OverlayRecord, error) {
	return nil, nil
}
func (m *mockBackend) ListOverlays(ctx context.Context, status OverlayStatus) ([]*OverlayRecord, error) {
	return nil, nil
}
func (m *mockBackend) SetOverlayStatus(ctx context.Context, id ids.OverlayID, status OverlayStatus, updatedHLC [12]byte) error {
	return nil
}
func (m *mockBackend) DeleteOverlay(ctx context.Context, id ids.OverlayID) error { return nil }
func (m *mockBackend) AppendOverlayOp(ctx context.Context, op *OverlayOpRecord) error { return nil }
func (m *mockBackend) ListOverlayOps(ctx context.Context, overlayID ids.OverlayID) ([]*OverlayOpRecord, error) {
	return nil, nil
}
func (m *mockBackend) OverlayOpsFor(ctx context.Context, overlayID ids.OverlayID, entity ids.EntityID, fieldKey string) ([]*OverlayOpRecord, error) {
	return nil, nil
}
func (m *mockBackend) LatestOverlayFieldOp(ctx context.Context, overlayID ids.OverlayID, entity ids.EntityID, fieldKey string) (*OverlayOpRecord, error) {
	return nil, nil
}
func (m *mockBackend) MarkOverlayOpDrifted(ctx context.Context, rowID int64, drifted bool) error {
	return nil
}
func (m *mockBackend) MarkFieldDrifted(ctx context.Context, entity ids.EntityID, fieldKey string) error {
	return nil
}
func (m *mockBackend) DriftedOverlayOps(ctx context.Context, overlayID ids.OverlayID) ([]*OverlayOpRecord, error) {
	return nil, nil
}
func (m *mockBackend) CountUnresolvedDrift(ctx context.Context, overlayID ids.OverlayID) (int, error) {
	return 0, nil
}
func (m *mockBackend) UpdateCanonicalSnapshot(ctx context.Context, rowIDs []int64, canonicalValue []byte) error {
	return nil
}
func (m *mockBackend) DeleteOverlayOps(ctx context.Context, overlayID ids.OverlayID, rowIDs []int64) error {
	return nil
}
func (m *mockBackend) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error {
	return fn(ctx, m)
}
func (m *mockBackend) Close() error          { return nil }
func (m *mockBackend) Path() string          { return "" }
func (m *mockBackend) UnderlyingDB() *sql.DB { return nil }
