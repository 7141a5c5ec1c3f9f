package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EventLog writes one structured JSON line per sync-relevant event (a
// bundle ingested from a peer, a conflict the ingest detected, an HLC
// drift rejection) to a rotated log file, the way BeadsLog's daemon keeps
// its own operational log rotated instead of growing unbounded.
type EventLog struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
}

// logEvent is one line written to the event log.
type logEvent struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level"`
	Msg   string    `json:"msg"`
}

// NewEventLog opens (creating if needed) a rotated event log at
// dataDir/sync.log, capped at 10MB per file with 5 rotated backups kept.
func NewEventLog(dataDir string) (*EventLog, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("sync: create data dir: %w", err)
	}
	return &EventLog{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(dataDir, "sync.log"),
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		},
	}, nil
}

func (l *EventLog) write(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	evt := logEvent{Time: time.Now(), Level: level, Msg: fmt.Sprintf(format, args...)}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = l.writer.Write(data)
}

// Info records an informational event.
func (l *EventLog) Info(format string, args ...any) { l.write("info", format, args...) }

// Warn records a warning event.
func (l *EventLog) Warn(format string, args ...any) { l.write("warn", format, args...) }

// BundleIngested records that a bundle from a peer was ingested.
func (l *EventLog) BundleIngested(b WireBundle) {
	l.Info("bundle ingested: %d operation(s)", len(b.Operations))
}

// ConflictDetected records that ingesting a bundle opened, extended, or
// reopened a field conflict.
func (l *EventLog) ConflictDetected(entity, fieldKey string) {
	l.write("conflict", "conflict detected on %s.%s", entity, fieldKey)
}

// DriftRejected records that a peer's HLC was too far ahead to merge.
func (l *EventLog) DriftRejected(deltaMS, maxMS int64) {
	l.write("drift", "rejected remote clock drift of %dms (max %dms)", deltaMS, maxMS)
}

// Close flushes and closes the underlying rotated log file.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writer.Close()
}
