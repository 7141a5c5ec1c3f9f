package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	beadsreplica "github.com/untoldecay/beadsreplica"
	"github.com/untoldecay/beadsreplica/internal/config"
	"github.com/untoldecay/beadsreplica/internal/identity"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

const identityFileName = "identity.key"
const dbFileName = "replica.db"

// replicaDataDir resolves the data directory for the current invocation,
// honoring --data-dir over config/env over the ".replica" default.
func replicaDataDir() string {
	return config.DataDir(dataDirFlag)
}

// loadOrCreateIdentity reads the actor identity from dataDir/identity.key,
// generating and persisting a new one on first run. The secret never
// leaves this file; only the derived public actor id is ever signed over
// the wire or shown in output.
func loadOrCreateIdentity(dataDir string) (*identity.Identity, error) {
	path := filepath.Join(dataDir, identityFileName)
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("identity file %s is corrupt: expected 32 bytes, got %d", path, len(b))
		}
		var seed [32]byte
		copy(seed[:], b)
		return identity.FromSecretBytes(seed), nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read identity file: %w", err)
	}

	id, err := identity.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	seed := id.SecretBytes()
	if err := os.WriteFile(path, seed[:], 0o600); err != nil {
		return nil, fmt.Errorf("write identity file: %w", err)
	}
	return id, nil
}

// openEngine opens the replica's storage and wires an engine, creating the
// data directory and identity on first use, using the data directory
// resolved from the current invocation's flags/config/env.
func openEngine(ctx context.Context) (*beadsreplica.Engine, beadsreplica.Storage, error) {
	return openEngineAt(ctx, replicaDataDir())
}

// openEngineAt is openEngine with an explicit data directory, split out so
// tests can exercise it without going through the package-level
// --data-dir/config resolution.
func openEngineAt(ctx context.Context, dataDir string) (*beadsreplica.Engine, beadsreplica.Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir %s: %w", dataDir, err)
	}

	id, err := loadOrCreateIdentity(dataDir)
	if err != nil {
		return nil, nil, err
	}

	store, err := beadsreplica.NewSQLiteStorage(ctx, filepath.Join(dataDir, dbFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	eng := beadsreplica.NewEngineWithUndoDepth(id, store, config.UndoDepth())

	// Each invocation is a fresh engine: re-enter the overlay whose persisted
	// status is active so this invocation's writes route to it.
	active, err := store.ListOverlays(ctx, storage.OverlayActive)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("list active overlays: %w", err)
	}
	if len(active) > 0 {
		if err := eng.ActivateOverlay(ctx, active[0].OverlayID); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("restore active overlay: %w", err)
		}
	}
	return eng, store, nil
}

// parseEntityID parses a UUID string into an EntityID.
func parseEntityID(s string) (ids.EntityID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ids.EntityID{}, fmt.Errorf("invalid entity id %q: %w", s, err)
	}
	return ids.EntityIDFromBytes(u[:])
}

// parseConflictID parses a UUID string into a ConflictID.
func parseConflictID(s string) (ids.ConflictID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ids.ConflictID{}, fmt.Errorf("invalid conflict id %q: %w", s, err)
	}
	return ids.ConflictIDFromBytes(u[:])
}

// parseOverlayID parses a UUID string into an OverlayID.
func parseOverlayID(s string) (ids.OverlayID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ids.OverlayID{}, fmt.Errorf("invalid overlay id %q: %w", s, err)
	}
	return ids.OverlayIDFromBytes(u[:])
}
