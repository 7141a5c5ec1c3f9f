package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateIdentityPersistsAcrossCalls(t *testing.T) {
	dir := t.TempDir()

	first, err := loadOrCreateIdentity(dir)
	if err != nil {
		t.Fatalf("loadOrCreateIdentity: %v", err)
	}

	second, err := loadOrCreateIdentity(dir)
	if err != nil {
		t.Fatalf("loadOrCreateIdentity (second call): %v", err)
	}

	if first.ActorID() != second.ActorID() {
		t.Fatalf("expected the same actor id across calls, got %s and %s", first.ActorID(), second.ActorID())
	}
}

func TestLoadOrCreateIdentityRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, identityFileName)
	if err := os.WriteFile(path, []byte("not 32 bytes"), 0o600); err != nil {
		t.Fatalf("write corrupt identity file: %v", err)
	}

	if _, err := loadOrCreateIdentity(dir); err == nil {
		t.Fatal("expected an error reading a corrupt identity file")
	}
}

func TestParseEntityIDRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	eng, store, err := openEngineAt(rootCtx, dataDir)
	if err != nil {
		t.Fatalf("openEngineAt: %v", err)
	}
	defer store.Close()

	entityID, _, err := eng.CreateEntity(rootCtx, "")
	if err != nil {
		t.Fatalf("create entity: %v", err)
	}

	parsed, err := parseEntityID(entityID.String())
	if err != nil {
		t.Fatalf("parseEntityID: %v", err)
	}
	if parsed != entityID {
		t.Fatalf("expected parsed id to round-trip, got %s want %s", parsed, entityID)
	}
}

func TestParseEntityIDRejectsGarbage(t *testing.T) {
	if _, err := parseEntityID("not-a-uuid"); err == nil {
		t.Fatal("expected an error for a malformed entity id")
	}
}
