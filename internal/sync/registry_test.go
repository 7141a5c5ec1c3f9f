package sync_test

import (
	"testing"
	"time"

	syncpkg "github.com/untoldecay/beadsreplica/internal/sync"
)

func TestRegistryUpsertAndList(t *testing.T) {
	dir := t.TempDir()
	reg, err := syncpkg.NewRegistry(dir)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := reg.Upsert("actor-a", "/tmp/a.sock", true, now); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := reg.Upsert("actor-b", "/tmp/b.sock", false, now); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entries, err := reg.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	last, err := reg.LastSynced("actor-a")
	if err != nil {
		t.Fatalf("last synced: %v", err)
	}
	if !last.Equal(now) {
		t.Fatalf("expected last synced %v, got %v", now, last)
	}

	last, err = reg.LastSynced("actor-b")
	if err != nil {
		t.Fatalf("last synced: %v", err)
	}
	if !last.IsZero() {
		t.Fatalf("expected zero last synced for actor-b, got %v", last)
	}
}

func TestRegistryUpsertReplacesExistingEntry(t *testing.T) {
	dir := t.TempDir()
	reg, err := syncpkg.NewRegistry(dir)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := reg.Upsert("actor-a", "/tmp/old.sock", true, now); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := reg.Upsert("actor-a", "/tmp/new.sock", false, time.Time{}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	entries, err := reg.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after re-upsert, got %d", len(entries))
	}
	if entries[0].SocketPath != "/tmp/new.sock" {
		t.Fatalf("expected socket path to update, got %q", entries[0].SocketPath)
	}
	if !entries[0].LastSynced.Equal(now) {
		t.Fatalf("expected LastSynced to be preserved across the non-synced upsert, got %v", entries[0].LastSynced)
	}
}
