// Package beadsreplica provides a minimal public API for embedding the
// replica engine in Go programs without depending on internal packages
// directly. Most callers only need NewSQLiteStorage, NewIdentity, and
// NewEngine; this package re-exports exactly that surface, the way
// BeadsLog's own top-level package re-exports its storage layer for
// Go-based extensions.
package beadsreplica

import (
	"context"

	"github.com/untoldecay/beadsreplica/internal/engine"
	"github.com/untoldecay/beadsreplica/internal/identity"
	"github.com/untoldecay/beadsreplica/internal/storage"
	"github.com/untoldecay/beadsreplica/internal/storage/sqlite"
)

// Storage is the backend interface one replica's oplog and materialized
// state are stored through.
type Storage = storage.Backend

// Engine is one replica's command processor: signing, appending,
// undo/redo, overlays, and bundle ingestion.
type Engine = engine.Engine

// Identity is one replica's actor keypair.
type Identity = identity.Identity

// NewSQLiteStorage opens (creating if needed) a single-file SQLite-backed
// Storage at dbPath.
func NewSQLiteStorage(ctx context.Context, dbPath string) (Storage, error) {
	return sqlite.New(ctx, dbPath)
}

// NewIdentity generates a fresh random actor identity.
func NewIdentity() (*Identity, error) {
	return identity.Generate()
}

// IdentityFromSecret reconstructs an actor identity from a previously
// generated 32-byte secret seed.
func IdentityFromSecret(seed [32]byte) *Identity {
	return identity.FromSecretBytes(seed)
}

// NewEngine returns an Engine for id backed by store, with the default
// undo depth.
func NewEngine(id *Identity, store Storage) *Engine {
	return engine.New(id, store)
}

// NewEngineWithUndoDepth returns an Engine with an explicit undo history
// bound.
func NewEngineWithUndoDepth(id *Identity, store Storage, undoDepth int) *Engine {
	return engine.NewWithUndoDepth(id, store, undoDepth)
}
