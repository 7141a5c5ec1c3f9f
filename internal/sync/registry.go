package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// PeerEntry is one known peer in the registry: enough to dial it and to
// remember how far this replica has synced with it.
type PeerEntry struct {
	ActorID    string    `json:"actor_id"`
	SocketPath string    `json:"socket_path"`
	LastSynced time.Time `json:"last_synced"`
}

// Registry is the on-disk record of peers this replica has synced with,
// persisted as JSON and guarded by a real file lock so two sync sessions
// (or a daemon and a CLI invocation) never race on a read-modify-write.
// Adapted from BeadsLog's internal/daemon.Registry, swapping its
// internal/lockfile for github.com/gofrs/flock.
type Registry struct {
	path     string
	lockPath string
}

// NewRegistry returns a Registry rooted at dataDir/peers.json.
func NewRegistry(dataDir string) (*Registry, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("sync: create data dir: %w", err)
	}
	return &Registry{
		path:     filepath.Join(dataDir, "peers.json"),
		lockPath: filepath.Join(dataDir, "peers.lock"),
	}, nil
}

func (r *Registry) withLock(fn func() error) error {
	lock := flock.New(r.lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("sync: lock peer registry: %w", err)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

func (r *Registry) readLocked() ([]PeerEntry, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("sync: read peer registry: %w", err)
	}
	var entries []PeerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// A corrupted registry is not fatal: it just means peer bookkeeping
		// starts over, not that sync itself is broken.
		return nil, nil
	}
	return entries, nil
}

func (r *Registry) writeLocked(entries []PeerEntry) error {
	if entries == nil {
		entries = []PeerEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("sync: marshal peer registry: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), "peers-*.json.tmp")
	if err != nil {
		return fmt.Errorf("sync: create temp registry file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync: write temp registry file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync: sync temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync: close temp registry file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync: rename temp registry file: %w", err)
	}
	return nil
}

// List returns every known peer.
func (r *Registry) List() ([]PeerEntry, error) {
	var out []PeerEntry
	err := r.withLock(func() error {
		entries, err := r.readLocked()
		out = entries
		return err
	})
	return out, err
}

// Upsert records actorID's socket path and, if syncedNow is true, stamps
// LastSynced with now (the caller's clock reading, not time.Now(), so
// callers stay deterministic in tests).
func (r *Registry) Upsert(actorID, socketPath string, syncedNow bool, now time.Time) error {
	return r.withLock(func() error {
		entries, err := r.readLocked()
		if err != nil {
			return err
		}
		filtered := entries[:0]
		var existing *PeerEntry
		for i := range entries {
			if entries[i].ActorID == actorID {
				e := entries[i]
				existing = &e
				continue
			}
			filtered = append(filtered, entries[i])
		}
		entry := PeerEntry{ActorID: actorID, SocketPath: socketPath}
		if existing != nil {
			entry.LastSynced = existing.LastSynced
		}
		if syncedNow {
			entry.LastSynced = now
		}
		filtered = append(filtered, entry)
		return r.writeLocked(filtered)
	})
}

// LastSynced returns the last time this replica successfully synced with
// actorID, or the zero time if never.
func (r *Registry) LastSynced(actorID string) (time.Time, error) {
	entries, err := r.List()
	if err != nil {
		return time.Time{}, err
	}
	for _, e := range entries {
		if e.ActorID == actorID {
			return e.LastSynced, nil
		}
	}
	return time.Time{}, nil
}
