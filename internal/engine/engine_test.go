package engine_test

import (
	"context"
	"testing"

	"github.com/untoldecay/beadsreplica/internal/engine"
	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/identity"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/storage/sqlite"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

func newTestEngine(t *testing.T) (*engine.Engine, *identity.Identity) {
	t.Helper()
	store, err := sqlite.New(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	actor, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	return engine.New(actor, store), actor
}

func TestCreateEntitySetFieldRoundTrip(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	entityID, _, err := eng.CreateEntity(ctx, "task")
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}

	if _, err := eng.SetField(ctx, entityID, "title", fieldvalue.TextValue("write tests")); err != nil {
		t.Fatalf("set field: %v", err)
	}

	v, err := eng.GetField(ctx, entityID, "title")
	if err != nil {
		t.Fatalf("get field: %v", err)
	}
	if v == nil {
		t.Fatal("expected a field value, got nil")
	}
	text, ok := v.AsText()
	if !ok || text != "write tests" {
		t.Fatalf("expected title %q, got %q (ok=%v)", "write tests", text, ok)
	}
}

func TestUndoRedoSetField(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	entityID, _, err := eng.CreateEntity(ctx, "task")
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	if _, err := eng.SetField(ctx, entityID, "title", fieldvalue.TextValue("first")); err != nil {
		t.Fatalf("set field: %v", err)
	}
	if _, err := eng.SetField(ctx, entityID, "title", fieldvalue.TextValue("second")); err != nil {
		t.Fatalf("set field: %v", err)
	}

	result, err := eng.Undo(ctx)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if result.Outcome != engine.UndoApplied {
		t.Fatalf("expected undo applied, got %v (conflicts=%v)", result.Outcome, result.Conflicts)
	}

	v, err := eng.GetField(ctx, entityID, "title")
	if err != nil {
		t.Fatalf("get field after undo: %v", err)
	}
	if text, _ := v.AsText(); text != "first" {
		t.Fatalf("expected title reverted to %q, got %q", "first", text)
	}

	redoResult, err := eng.Redo(ctx)
	if err != nil {
		t.Fatalf("redo: %v", err)
	}
	if redoResult.Outcome != engine.UndoApplied {
		t.Fatalf("expected redo applied, got %v", redoResult.Outcome)
	}

	v, err = eng.GetField(ctx, entityID, "title")
	if err != nil {
		t.Fatalf("get field after redo: %v", err)
	}
	if text, _ := v.AsText(); text != "second" {
		t.Fatalf("expected title restored to %q, got %q", "second", text)
	}
}

func TestUndoDeleteEntityRestoresCascadeEdges(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	a, _, err := eng.CreateEntity(ctx, "task")
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, _, err := eng.CreateEntity(ctx, "task")
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	edgeID, _, err := eng.CreateEdge(ctx, "blocks", a, b)
	if err != nil {
		t.Fatalf("create edge: %v", err)
	}

	if _, err := eng.DeleteEntity(ctx, a); err != nil {
		t.Fatalf("delete entity: %v", err)
	}

	edge, err := eng.GetEdge(ctx, edgeID)
	if err != nil {
		t.Fatalf("get edge: %v", err)
	}
	if edge.DeletedHLC == nil {
		t.Fatal("expected edge to be cascade-deleted")
	}

	result, err := eng.Undo(ctx)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if result.Outcome != engine.UndoApplied {
		t.Fatalf("expected undo applied, got %v", result.Outcome)
	}

	edge, err = eng.GetEdge(ctx, edgeID)
	if err != nil {
		t.Fatalf("get edge after undo: %v", err)
	}
	if edge.DeletedHLC != nil {
		t.Fatal("expected edge to be restored by undo")
	}

	entity, err := eng.GetEntity(ctx, a)
	if err != nil {
		t.Fatalf("get entity after undo: %v", err)
	}
	if entity.DeletedHLC != nil {
		t.Fatal("expected entity to be restored by undo")
	}
}

func TestUndoSkipsWhenAnotherActorWroteSince(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	entityID, _, err := eng.CreateEntity(ctx, "task")
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	if _, err := eng.SetField(ctx, entityID, "title", fieldvalue.TextValue("mine")); err != nil {
		t.Fatalf("set field: %v", err)
	}

	other, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate other identity: %v", err)
	}
	otherEngine := engine.New(other, eng.Storage())
	if _, err := otherEngine.SetField(ctx, entityID, "title", fieldvalue.TextValue("theirs")); err != nil {
		t.Fatalf("other actor set field: %v", err)
	}

	result, err := eng.Undo(ctx)
	if err != nil {
		t.Fatalf("undo: %v", err)
	}
	if result.Outcome != engine.UndoSkipped {
		t.Fatalf("expected undo skipped due to cross-actor write, got %v", result.Outcome)
	}
	if len(result.Conflicts) == 0 {
		t.Fatal("expected at least one undo conflict reported")
	}
	if result.Conflicts[0].ModifiedBy != other.ActorID() {
		t.Fatalf("expected conflict attributed to other actor, got %s", result.Conflicts[0].ModifiedBy)
	}
}

func TestOverlayStageAndCommit(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	entityID, _, err := eng.CreateEntity(ctx, "task")
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}

	overlayID, err := eng.CreateOverlay(ctx, "draft", engine.OverlaySourceUser, "")
	if err != nil {
		t.Fatalf("create overlay: %v", err)
	}
	if err := eng.ActivateOverlay(ctx, overlayID); err != nil {
		t.Fatalf("activate overlay: %v", err)
	}

	if _, err := eng.SetField(ctx, entityID, "title", fieldvalue.TextValue("staged")); err != nil {
		t.Fatalf("set field in overlay: %v", err)
	}

	// The canonical value is untouched while the overlay is active.
	v, err := eng.GetEntity(ctx, entityID)
	if err != nil || v == nil {
		t.Fatalf("get entity: %v", err)
	}
	canonical, err := eng.Storage().GetField(ctx, entityID, "title")
	if err != nil {
		t.Fatalf("get canonical field: %v", err)
	}
	if canonical != nil {
		t.Fatalf("expected no canonical title while the overlay is active, got %+v", canonical)
	}

	staged, err := eng.GetField(ctx, entityID, "title")
	if err != nil {
		t.Fatalf("get field through overlay: %v", err)
	}
	if text, _ := staged.AsText(); text != "staged" {
		t.Fatalf("expected overlay value %q, got %q", "staged", text)
	}

	if _, err := eng.CommitOverlay(ctx); err != nil {
		t.Fatalf("commit overlay: %v", err)
	}

	committed, err := eng.GetField(ctx, entityID, "title")
	if err != nil {
		t.Fatalf("get field after commit: %v", err)
	}
	if text, _ := committed.AsText(); text != "staged" {
		t.Fatalf("expected committed value %q, got %q", "staged", text)
	}
}

func TestCommitOverlayWithoutStagedOpsFails(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	overlayID, err := eng.CreateOverlay(ctx, "empty", engine.OverlaySourceUser, "")
	if err != nil {
		t.Fatalf("create overlay: %v", err)
	}
	if err := eng.ActivateOverlay(ctx, overlayID); err != nil {
		t.Fatalf("activate overlay: %v", err)
	}

	if _, err := eng.CommitOverlay(ctx); err == nil {
		t.Fatal("expected CommitOverlay to fail on an empty overlay")
	}
}

func TestIngestBundleDetectsConcurrentFieldConflict(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	entityID, _, err := eng.CreateEntity(ctx, "task")
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	if _, err := eng.SetField(ctx, entityID, "title", fieldvalue.TextValue("local")); err != nil {
		t.Fatalf("set field: %v", err)
	}

	remote, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate remote identity: %v", err)
	}

	remoteClock := hlc.New()
	remoteHLC := remoteClock.Tick()
	payload := ops.NewSetField(entityID, "title", fieldvalue.TextValue("remote"))
	op, err := ops.NewSigned(remote, remoteHLC, nil, payload)
	if err != nil {
		t.Fatalf("sign remote op: %v", err)
	}
	// The remote bundle's creator vector clock is empty: it never saw the
	// local actor's write, so the two writes are concurrent.
	bundle, err := ops.NewSignedBundle(remote, remoteHLC, ops.BundleUserEdit, []*ops.Operation{op}, vclock.New())
	if err != nil {
		t.Fatalf("sign remote bundle: %v", err)
	}

	conflicts, err := eng.IngestBundle(ctx, bundle)
	if err != nil {
		t.Fatalf("ingest bundle: %v", err)
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly one conflict, got %d", len(conflicts))
	}
	if conflicts[0].FieldKey != "title" {
		t.Fatalf("expected conflict on field %q, got %q", "title", conflicts[0].FieldKey)
	}
}
