package sync_test

import (
	"context"
	"testing"

	"github.com/untoldecay/beadsreplica/internal/engine"
	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/identity"
	"github.com/untoldecay/beadsreplica/internal/storage/sqlite"
	syncpkg "github.com/untoldecay/beadsreplica/internal/sync"
)

func newTestEngine(t *testing.T) *engine.Engine {
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
	return engine.New(actor, store)
}

func TestEncodeDecodeBundleRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	entityID, _, err := eng.CreateEntity(ctx, "task")
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}
	if _, err := eng.SetField(ctx, entityID, "title", fieldvalue.TextValue("hello")); err != nil {
		t.Fatalf("set field: %v", err)
	}

	var zero [12]byte
	bundles, err := eng.GetOpsByActorAfter(ctx, eng.ActorID(), zero)
	if err != nil {
		t.Fatalf("load bundles: %v", err)
	}
	if len(bundles) != 2 {
		t.Fatalf("expected 2 bundles, got %d", len(bundles))
	}
	bundle := bundles[0]

	wb, err := syncpkg.EncodeBundle(bundle)
	if err != nil {
		t.Fatalf("encode bundle: %v", err)
	}

	decoded, err := syncpkg.DecodeBundle(wb)
	if err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	if err := decoded.VerifySignature(); err != nil {
		t.Fatalf("decoded bundle failed signature verification: %v", err)
	}
	if decoded.BundleID != bundle.BundleID {
		t.Fatalf("bundle id mismatch: got %s, want %s", decoded.BundleID, bundle.BundleID)
	}
	if len(decoded.Operations) != len(bundle.Operations) {
		t.Fatalf("operation count mismatch: got %d, want %d", len(decoded.Operations), len(bundle.Operations))
	}
}

func TestMarshalUnmarshalBundleJSON(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	if _, _, err := eng.CreateEntity(ctx, "task"); err != nil {
		t.Fatalf("create entity: %v", err)
	}

	var zero [12]byte
	bundles, err := eng.GetOpsByActorAfter(ctx, eng.ActorID(), zero)
	if err != nil {
		t.Fatalf("load bundles: %v", err)
	}
	if len(bundles) != 1 {
		t.Fatalf("expected 1 bundle, got %d", len(bundles))
	}
	bundle := bundles[0]

	data, err := syncpkg.MarshalBundleJSON(bundle)
	if err != nil {
		t.Fatalf("marshal bundle json: %v", err)
	}
	decoded, err := syncpkg.UnmarshalBundleJSON(data)
	if err != nil {
		t.Fatalf("unmarshal bundle json: %v", err)
	}
	if err := decoded.VerifySignature(); err != nil {
		t.Fatalf("decoded bundle failed signature verification: %v", err)
	}
	if decoded.BundleID != bundle.BundleID {
		t.Fatalf("bundle id mismatch after json round trip")
	}
}
