package sync_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	syncpkg "github.com/untoldecay/beadsreplica/internal/sync"
)

func TestClientServerSyncBothDirections(t *testing.T) {
	ctx := context.Background()
	engA := newTestEngine(t)
	engB := newTestEngine(t)

	// A creates an entity and sets a field locally; B starts with nothing.
	entityID, _, err := engA.CreateEntity(ctx, "task")
	if err != nil {
		t.Fatalf("create entity on A: %v", err)
	}
	if _, err := engA.SetField(ctx, entityID, "title", fieldvalue.TextValue("from A")); err != nil {
		t.Fatalf("set field on A: %v", err)
	}

	socketPath := filepath.Join(t.TempDir(), "sync.sock")
	adapterB := &syncpkg.EngineAdapter{Engine: engB}
	server := syncpkg.NewServer(socketPath, adapterB, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	adapterA := &syncpkg.EngineAdapter{Engine: engA}
	client := syncpkg.NewClient(socketPath)

	result, err := client.Sync(ctx, adapterA)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Pushed == 0 {
		t.Fatalf("expected at least one bundle pushed to B, got %d", result.Pushed)
	}
	if result.VersionSkew != "" {
		t.Fatalf("expected no version skew between two builds of the same binary, got %q", result.VersionSkew)
	}

	rec, err := engB.GetEntity(ctx, entityID)
	if err != nil {
		t.Fatalf("get entity on B: %v", err)
	}
	if rec == nil {
		t.Fatal("expected entity to have replicated to B")
	}

	v, err := engB.GetField(ctx, entityID, "title")
	if err != nil {
		t.Fatalf("get field on B: %v", err)
	}
	if v == nil {
		t.Fatal("expected field to have replicated to B")
	}
	if text, ok := v.AsText(); !ok || text != "from A" {
		t.Fatalf("expected title %q on B, got %q (ok=%v)", "from A", text, ok)
	}
}

func TestClientServerPing(t *testing.T) {
	eng := newTestEngine(t)
	adapter := &syncpkg.EngineAdapter{Engine: eng}
	socketPath := filepath.Join(t.TempDir(), "sync.sock")

	server := syncpkg.NewServer(socketPath, adapter, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	client := syncpkg.NewClient(socketPath)
	if err := client.Ping(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	version, err := client.PingVersion()
	if err != nil {
		t.Fatalf("ping version: %v", err)
	}
	if version != syncpkg.ProtocolVersion {
		t.Fatalf("expected protocol version %q, got %q", syncpkg.ProtocolVersion, version)
	}
}
