package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// DropBundle writes bundle as a JSON file into dir for a peer's Watcher to
// pick up: an alternative to the socket transport for peers that only
// share a filesystem (a synced folder, a removable drive) rather than a
// live daemon. Written to a temp name and renamed into place so the
// watcher never observes a partially written file.
func DropBundle(dir string, wb WireBundle) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("sync: create drop dir: %w", err)
	}
	data, err := json.Marshal(wb)
	if err != nil {
		return fmt.Errorf("sync: marshal bundle: %w", err)
	}
	name := uuid.New().String() + ".bundle.json"
	tmp, err := os.CreateTemp(dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("sync: create temp bundle file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync: write bundle file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync: close bundle file: %w", err)
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}

// Watcher watches a drop directory for bundle files other replicas (or
// DropBundle itself, run out-of-process) have written, and ingests each one
// as it appears. Grounded on the fsnotify usage pattern BeadsLog's own
// dependency set already carries for watching config/workspace files.
type Watcher struct {
	dir           string
	engine        ReplicaEngine
	log           *EventLog
	fsw           *fsnotify.Watcher
	ingestedCount int
}

// NewWatcher returns a Watcher over dir, not yet started.
func NewWatcher(dir string, engine ReplicaEngine, log *EventLog) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("sync: create drop dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sync: create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("sync: watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, engine: engine, log: log, fsw: fsw}, nil
}

// Run processes filesystem events until ctx is canceled. Errors ingesting
// one bundle are logged (when an EventLog is configured) and otherwise
// don't stop the watcher: one malformed drop shouldn't wedge the loop.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".bundle.json") {
				continue
			}
			w.ingestDropped(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if w.log != nil {
				w.log.Warn("sync: watch error: %v", err)
			}
		}
	}
}

// Close releases the underlying filesystem watch. Run closes it internally
// when ctx is canceled; callers that only use ScanOnce must call Close
// themselves once done.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// ScanOnce ingests every bundle file already sitting in the drop directory
// and returns, without waiting for further filesystem events. Useful for a
// one-shot "pick up whatever's been dropped" pass instead of running the
// watcher loop as a daemon.
func (w *Watcher) ScanOnce(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("sync: read drop dir: %w", err)
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".bundle.json") {
			continue
		}
		before := w.ingestedCount
		w.ingestDropped(ctx, filepath.Join(w.dir, entry.Name()))
		if w.ingestedCount > before {
			n++
		}
	}
	return n, nil
}

func (w *Watcher) ingestDropped(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		// The file may have already been consumed by a concurrent watcher
		// or removed; nothing to do.
		return
	}
	bundle, err := UnmarshalBundleJSON(data)
	if err != nil {
		if w.log != nil {
			w.log.Warn("sync: malformed dropped bundle %s: %v", filepath.Base(path), err)
		}
		return
	}
	wb, err := EncodeBundle(bundle)
	if err != nil {
		return
	}
	if err := w.engine.IngestWireBundle(ctx, wb); err != nil {
		if w.log != nil {
			w.log.Warn("sync: ingest dropped bundle %s: %v", filepath.Base(path), err)
		}
		return
	}
	if w.log != nil {
		w.log.BundleIngested(wb)
	}
	w.ingestedCount++
	_ = os.Remove(path)
}
