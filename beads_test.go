package beadsreplica_test

import (
	"context"
	"path/filepath"
	"testing"

	beadsreplica "github.com/untoldecay/beadsreplica"
)

func TestNewSQLiteStorage(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	ctx := context.Background()
	store, err := beadsreplica.NewSQLiteStorage(ctx, dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStorage failed: %v", err)
	}
	defer store.Close()

	if store == nil {
		t.Error("expected non-nil storage")
	}
}

func TestNewEngineRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	ctx := context.Background()

	store, err := beadsreplica.NewSQLiteStorage(ctx, dbPath)
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	defer store.Close()

	id, err := beadsreplica.NewIdentity()
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}

	eng := beadsreplica.NewEngine(id, store)
	if eng.ActorID() != id.ActorID() {
		t.Fatalf("expected engine's actor id to match the identity it was built with")
	}
}

func TestIdentityFromSecretIsDeterministic(t *testing.T) {
	id, err := beadsreplica.NewIdentity()
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	seed := id.SecretBytes()

	recreated := beadsreplica.IdentityFromSecret(seed)
	if recreated.ActorID() != id.ActorID() {
		t.Fatalf("expected identity reconstructed from its own secret to have the same actor id")
	}
}
