package sync_test

import (
	"testing"

	syncpkg "github.com/untoldecay/beadsreplica/internal/sync"
)

func TestSessionRejectsConcurrentRun(t *testing.T) {
	dir := t.TempDir()
	outer := syncpkg.NewSession(dir)

	started := make(chan struct{})
	release := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		_, err := outer.Run(func() (syncpkg.Result, error) {
			close(started)
			<-release
			return syncpkg.Result{}, nil
		})
		errCh <- err
	}()
	<-started

	inner := syncpkg.NewSession(dir)
	if _, err := inner.Run(func() (syncpkg.Result, error) {
		return syncpkg.Result{}, nil
	}); err == nil {
		t.Fatal("expected second concurrent session to fail to acquire the lock")
	}

	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("outer session returned error: %v", err)
	}
}
