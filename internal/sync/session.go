package sync

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Session guards one sync exchange with an exclusive file lock, the same
// TryLock-or-fail pattern BeadsLog's own cmd/bd sync command uses to stop
// two overlapping syncs from corrupting local state: a bundle ingest that
// races a concurrent pull could interleave reads and writes in ways
// internal/engine's transaction boundary doesn't protect against, since
// that boundary is per-bundle, not per-sync-session.
type Session struct {
	lock *flock.Flock
}

// NewSession returns a Session locking dataDir/.sync.lock.
func NewSession(dataDir string) *Session {
	return &Session{lock: flock.New(filepath.Join(dataDir, ".sync.lock"))}
}

// Run acquires the session lock, runs fn, and releases it. Returns an
// error immediately, without running fn, if another sync session already
// holds the lock.
func (s *Session) Run(fn func() (Result, error)) (Result, error) {
	locked, err := s.lock.TryLock()
	if err != nil {
		return Result{}, fmt.Errorf("sync: acquire session lock: %w", err)
	}
	if !locked {
		return Result{}, fmt.Errorf("sync: another sync session is already in progress")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

// SyncWithPeer is the top-level entry point cmd/replica's sync subcommand
// calls: lock the session, dial the peer, and exchange bundles in both
// directions.
func SyncWithPeer(ctx context.Context, dataDir, peerSocketPath string, local ReplicaEngine) (Result, error) {
	session := NewSession(dataDir)
	return session.Run(func() (Result, error) {
		client := NewClient(peerSocketPath)
		return client.Sync(ctx, local)
	})
}
