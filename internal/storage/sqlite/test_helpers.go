package sqlite

import (
	"context"
	"testing"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/identity"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

// testEnv bundles a fresh Store, a signing identity, and an HLC clock so
// storage tests can build and append bundles without repeating boilerplate.
type testEnv struct {
	t     *testing.T
	Store *Store
	Actor *identity.Identity
	Clock *hlc.Clock
	Ctx   context.Context
}

// newTestEnv creates a test environment with an isolated temp-file-backed
// store, cleaned up automatically when the test completes. A temp file
// (rather than ":memory:") is used because Store's single-connection pool
// already gives per-test isolation and a real file exercises the same pragma
// batch (WAL, mmap) production runs with.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newTestStore(t, "")
	actor, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate test identity: %v", err)
	}
	return &testEnv{
		t:     t,
		Store: store,
		Actor: actor,
		Clock: hlc.New(),
		Ctx:   context.Background(),
	}
}

func newTestStore(t *testing.T, dbPath string) *Store {
	t.Helper()
	if dbPath == "" {
		dbPath = t.TempDir() + "/test.db"
	}

	ctx := context.Background()
	store, err := New(ctx, dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("failed to close test database: %v", err)
		}
	})
	return store
}

// SignOp builds and signs a single operation for payload, stamped with the
// env's next HLC tick.
func (e *testEnv) SignOp(payload ops.Payload) *ops.Operation {
	e.t.Helper()
	op, err := ops.NewSigned(e.Actor, e.Clock.Tick(), nil, payload)
	if err != nil {
		e.t.Fatalf("sign operation: %v", err)
	}
	return op
}

// Bundle wraps operations in a single signed bundle authored by env.Actor,
// stamped with a fresh HLC tick and creator vector clock snapshot.
func (e *testEnv) Bundle(bundleType ops.BundleType, operations ...*ops.Operation) *ops.Bundle {
	e.t.Helper()
	creatorVC := vclock.New()
	for _, op := range operations {
		creatorVC.Update(op.ActorID, op.HLC)
	}
	b, err := ops.NewSignedBundle(e.Actor, e.Clock.Tick(), bundleType, operations, creatorVC)
	if err != nil {
		e.t.Fatalf("sign bundle: %v", err)
	}
	return b
}

// Append signs bundleType/operations into a bundle and appends it, failing
// the test on error.
func (e *testEnv) Append(bundleType ops.BundleType, operations ...*ops.Operation) *ops.Bundle {
	e.t.Helper()
	b := e.Bundle(bundleType, operations...)
	applied, err := e.Store.AppendBundle(e.Ctx, b)
	if err != nil {
		e.t.Fatalf("append bundle: %v", err)
	}
	if !applied {
		e.t.Fatalf("expected bundle to apply, got no-op")
	}
	return b
}

// CreateEntity appends a CreateEntity bundle and returns the new entity id.
func (e *testEnv) CreateEntity() ids.EntityID {
	e.t.Helper()
	entityID := ids.NewEntityID()
	op := e.SignOp(ops.NewCreateEntity(entityID, ""))
	e.Append(ops.BundleUserEdit, op)
	return entityID
}

// SetField appends a SetField bundle for (entity, key, value).
func (e *testEnv) SetField(entity ids.EntityID, key string, value fieldvalue.Value) {
	e.t.Helper()
	op := e.SignOp(ops.NewSetField(entity, key, value))
	e.Append(ops.BundleUserEdit, op)
}
