package sqlite

import (
	"context"
	"testing"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

func TestAppendBundleCreatesEntity(t *testing.T) {
	env := newTestEnv(t)
	entity := env.CreateEntity()

	rec, err := env.Store.GetEntity(env.Ctx, entity)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected entity to exist after CreateEntity")
	}
	if rec.DeletedHLC != nil {
		t.Fatalf("expected fresh entity to not be deleted")
	}
}

func TestAppendBundleIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	entityID := ids.NewEntityID()
	op := env.SignOp(ops.NewCreateEntity(entityID, ""))
	b := env.Bundle(ops.BundleUserEdit, op)

	applied, err := env.Store.AppendBundle(env.Ctx, b)
	if err != nil || !applied {
		t.Fatalf("first append: applied=%v err=%v", applied, err)
	}
	applied, err = env.Store.AppendBundle(env.Ctx, b)
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if applied {
		t.Fatalf("expected duplicate bundle_id append to be a no-op")
	}
}

func TestSetFieldLastWriterWins(t *testing.T) {
	env := newTestEnv(t)
	entity := env.CreateEntity()

	env.SetField(entity, "title", fieldvalue.TextValue("first"))
	env.SetField(entity, "title", fieldvalue.TextValue("second"))

	rec, err := env.Store.GetField(env.Ctx, entity, "title")
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	v, err := fieldvalue.Unmarshal(rec.Value)
	if err != nil {
		t.Fatalf("unmarshal field value: %v", err)
	}
	got, _ := v.AsText()
	if got != "second" {
		t.Fatalf("expected LWW to keep the later write, got %q", got)
	}
}

func TestClearFieldRetainsTombstoneMetadata(t *testing.T) {
	env := newTestEnv(t)
	entity := env.CreateEntity()
	env.SetField(entity, "title", fieldvalue.TextValue("value"))

	clearOp := env.SignOp(ops.NewClearField(entity, "title"))
	env.Append(ops.BundleUserEdit, clearOp)

	rec, err := env.Store.GetField(env.Ctx, entity, "title")
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected tombstone row to remain, not be deleted")
	}
	if rec.Value != nil {
		t.Fatalf("expected cleared field's value column to be NULL")
	}
	if rec.SourceOp != clearOp.OpID {
		t.Fatalf("expected tombstone row's source_op to be the clearing operation")
	}
}

func TestDeleteEntityThenRestore(t *testing.T) {
	env := newTestEnv(t)
	entity := env.CreateEntity()

	deleteOp := env.SignOp(ops.NewDeleteEntity(entity, nil))
	env.Append(ops.BundleUserEdit, deleteOp)

	rec, err := env.Store.GetEntity(env.Ctx, entity)
	if err != nil {
		t.Fatalf("GetEntity after delete: %v", err)
	}
	if rec.DeletedHLC == nil {
		t.Fatalf("expected entity to be marked deleted")
	}

	restoreOp := env.SignOp(ops.NewRestoreEntity(entity))
	env.Append(ops.BundleUserEdit, restoreOp)

	rec, err = env.Store.GetEntity(env.Ctx, entity)
	if err != nil {
		t.Fatalf("GetEntity after restore: %v", err)
	}
	if rec.DeletedHLC != nil {
		t.Fatalf("expected entity to no longer be deleted after restore")
	}
}

func TestEdgeCreateAndProperty(t *testing.T) {
	env := newTestEnv(t)
	a := env.CreateEntity()
	b := env.CreateEntity()

	edgeID := ids.NewEdgeID()
	createOp := env.SignOp(ops.NewCreateEdge(edgeID, "blocks", a, b, []ops.EdgeProperty{
		{Key: "weight", Value: fieldvalue.IntegerValue(1)},
	}))
	env.Append(ops.BundleUserEdit, createOp)

	edges, err := env.Store.EdgesFrom(env.Ctx, a, "blocks")
	if err != nil {
		t.Fatalf("EdgesFrom: %v", err)
	}
	if len(edges) != 1 || edges[0].EdgeID != edgeID {
		t.Fatalf("expected one edge %s, got %+v", edgeID, edges)
	}

	propOp := env.SignOp(ops.NewSetEdgeProperty(edgeID, "weight", fieldvalue.IntegerValue(5)))
	env.Append(ops.BundleUserEdit, propOp)

	edge, err := env.Store.GetEdge(env.Ctx, edgeID)
	if err != nil {
		t.Fatalf("GetEdge: %v", err)
	}
	if edge == nil {
		t.Fatalf("expected edge to exist")
	}
}

func TestVectorClockTracksAppendedBundles(t *testing.T) {
	env := newTestEnv(t)
	env.CreateEntity()
	env.CreateEntity()

	vc, err := env.Store.VectorClock(env.Ctx)
	if err != nil {
		t.Fatalf("VectorClock: %v", err)
	}
	got, ok := vc.Get(env.Actor.ActorID())
	if !ok {
		t.Fatalf("expected vector clock to have an entry for the test actor")
	}
	if got.WallMS == 0 && got.Counter == 0 {
		t.Fatalf("expected a non-zero HLC recorded for the test actor")
	}
}

func TestConflictOpenExtendResolve(t *testing.T) {
	env := newTestEnv(t)
	entity := env.CreateEntity()

	bundleID := ids.NewBundleID()
	conflictID := ids.NewConflictID()
	detected := env.Clock.Tick()

	err := env.Store.OpenConflict(env.Ctx, &storage.ConflictRecord{
		ConflictID:       conflictID,
		EntityID:         entity,
		FieldKey:         "title",
		Status:           storage.ConflictOpen,
		DetectedHLC:      detected.Bytes(),
		DetectedInBundle: bundleID,
	}, []storage.ConflictBranchTip{
		{ActorID: env.Actor.ActorID(), HLC: detected.Bytes(), OpID: ids.NewOpID(), Value: []byte("a")},
	})
	if err != nil {
		t.Fatalf("OpenConflict: %v", err)
	}

	c, tips, err := env.Store.GetConflict(env.Ctx, conflictID)
	if err != nil {
		t.Fatalf("GetConflict: %v", err)
	}
	if c == nil || c.Status != storage.ConflictOpen {
		t.Fatalf("expected open conflict, got %+v", c)
	}
	if len(tips) != 1 {
		t.Fatalf("expected 1 branch tip, got %d", len(tips))
	}

	extendedHLC := env.Clock.Tick()
	if err := env.Store.ExtendConflict(env.Ctx, conflictID, storage.ConflictBranchTip{
		ActorID: env.Actor.ActorID(), HLC: extendedHLC.Bytes(), OpID: ids.NewOpID(), Value: []byte("b"),
	}); err != nil {
		t.Fatalf("ExtendConflict: %v", err)
	}

	_, tips, err = env.Store.GetConflict(env.Ctx, conflictID)
	if err != nil {
		t.Fatalf("GetConflict after extend: %v", err)
	}
	if len(tips) != 1 || string(tips[0].Value) != "b" {
		t.Fatalf("expected the actor's tip replaced by %q, got %+v", "b", tips)
	}

	resolvedHLC := env.Clock.Tick()
	if err := env.Store.ResolveConflict(env.Ctx, conflictID, resolvedHLC.Bytes(), env.Actor.ActorID(), ids.NewOpID(), []byte("a")); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}

	c, _, err = env.Store.GetConflict(env.Ctx, conflictID)
	if err != nil {
		t.Fatalf("GetConflict after resolve: %v", err)
	}
	if c.Status != storage.ConflictResolved {
		t.Fatalf("expected resolved status, got %s", c.Status)
	}
}

func TestOverlayLifecycle(t *testing.T) {
	env := newTestEnv(t)
	entity := env.CreateEntity()

	overlayID := ids.NewOverlayID()
	createdHLC := env.Clock.Tick()
	if err := env.Store.CreateOverlay(env.Ctx, &storage.OverlayRecord{
		OverlayID:   overlayID,
		DisplayName: "scratch",
		Status:      storage.OverlayActive,
		CreatedHLC:  createdHLC.Bytes(),
		UpdatedHLC:  createdHLC.Bytes(),
	}); err != nil {
		t.Fatalf("CreateOverlay: %v", err)
	}

	opHLC := env.Clock.Tick()
	opID := ids.NewOpID()
	payload, err := ops.NewSetField(entity, "title", fieldvalue.TextValue("staged")).Marshal()
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := env.Store.AppendOverlayOp(env.Ctx, &storage.OverlayOpRecord{
		OverlayID: overlayID,
		OpID:      opID,
		HLC:       opHLC.Bytes(),
		Payload:   payload,
		EntityID:  &entity,
		FieldKey:  "title",
		OpType:    "SetField",
	}); err != nil {
		t.Fatalf("AppendOverlayOp: %v", err)
	}

	rows, err := env.Store.OverlayOpsFor(env.Ctx, overlayID, entity, "title")
	if err != nil {
		t.Fatalf("OverlayOpsFor: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 staged overlay op, got %d", len(rows))
	}

	if err := env.Store.SetOverlayStatus(env.Ctx, overlayID, storage.OverlayCommitted, env.Clock.Tick().Bytes()); err != nil {
		t.Fatalf("SetOverlayStatus: %v", err)
	}
	overlay, err := env.Store.GetOverlay(env.Ctx, overlayID)
	if err != nil {
		t.Fatalf("GetOverlay: %v", err)
	}
	if overlay.Status != storage.OverlayCommitted {
		t.Fatalf("expected committed status, got %s", overlay.Status)
	}

	if err := env.Store.DeleteOverlayOps(env.Ctx, overlayID, []int64{rows[0].RowID}); err != nil {
		t.Fatalf("DeleteOverlayOps: %v", err)
	}
	rows, err = env.Store.ListOverlayOps(env.Ctx, overlayID)
	if err != nil {
		t.Fatalf("ListOverlayOps: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected overlay ops cleared after commit, got %d", len(rows))
	}
}

func TestRebuildFromOplogReachesSameState(t *testing.T) {
	env := newTestEnv(t)
	entity := env.CreateEntity()
	env.SetField(entity, "title", fieldvalue.TextValue("first"))
	env.SetField(entity, "title", fieldvalue.TextValue("second"))

	if err := env.Store.RunInTransaction(env.Ctx, func(ctx context.Context, tx storage.Backend) error {
		return tx.RebuildFromOplog(ctx)
	}); err != nil {
		t.Fatalf("RebuildFromOplog: %v", err)
	}

	rec, err := env.Store.GetField(env.Ctx, entity, "title")
	if err != nil {
		t.Fatalf("GetField after rebuild: %v", err)
	}
	v, err := fieldvalue.Unmarshal(rec.Value)
	if err != nil {
		t.Fatalf("unmarshal field value: %v", err)
	}
	got, _ := v.AsText()
	if got != "second" {
		t.Fatalf("expected rebuild to reach the same LWW state, got %q", got)
	}
}
