// Package hlc implements a Hybrid Logical Clock: a 12-byte timestamp
// (wall_ms:u64 big-endian, counter:u32 big-endian) whose lexicographic byte
// order equals temporal order.
package hlc

import (
	"encoding/binary"
	"fmt"
	"time"
)

// MaxDriftMS is the largest acceptable difference between a remote
// timestamp's wall clock and the local physical clock before Receive
// rejects it.
const MaxDriftMS uint64 = 300_000 // 5 minutes

// HLC is a single hybrid logical clock reading.
type HLC struct {
	WallMS  uint64
	Counter uint32
}

// Bytes encodes the HLC as 12 bytes: 8-byte big-endian wall_ms followed by
// 4-byte big-endian counter.
func (h HLC) Bytes() [12]byte {
	var b [12]byte
	binary.BigEndian.PutUint64(b[:8], h.WallMS)
	binary.BigEndian.PutUint32(b[8:], h.Counter)
	return b
}

// FromBytes decodes a 12-byte encoding produced by Bytes.
func FromBytes(b []byte) (HLC, error) {
	if len(b) != 12 {
		return HLC{}, fmt.Errorf("hlc: encoded timestamp must be 12 bytes, got %d", len(b))
	}
	return HLC{
		WallMS:  binary.BigEndian.Uint64(b[:8]),
		Counter: binary.BigEndian.Uint32(b[8:]),
	}, nil
}

// Compare returns -1, 0 or 1 as h is less than, equal to or greater than
// other, by lexicographic byte order (equivalently, by wall_ms then
// counter).
func (h HLC) Compare(other HLC) int {
	a, b := h.Bytes(), other.Bytes()
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether h sorts strictly before other.
func (h HLC) Less(other HLC) bool { return h.Compare(other) < 0 }

// physicalNowMS returns the current wall-clock time in milliseconds since
// the Unix epoch.
func physicalNowMS() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Clock generates monotonically increasing HLC timestamps for one actor.
// A Clock is not safe for concurrent use; the engine that owns it serializes
// all access (see the concurrency model in SPEC_FULL.md).
type Clock struct {
	wallMS  uint64
	counter uint32
}

// New returns a fresh clock with zeroed state.
func New() *Clock {
	return &Clock{}
}

// Tick produces the next monotonically increasing timestamp from the local
// physical clock.
func (c *Clock) Tick() HLC {
	now := physicalNowMS()

	var next HLC
	if now > c.wallMS {
		next = HLC{WallMS: now, Counter: 0}
	} else {
		next = HLC{WallMS: c.wallMS, Counter: c.counter + 1}
	}

	c.wallMS = next.WallMS
	c.counter = next.Counter
	return next
}

// DriftError is returned by Receive when a remote timestamp is further in
// the future than MaxDriftMS allows.
type DriftError struct {
	DeltaMS uint64
	MaxMS   uint64
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("hlc: remote clock drift %dms exceeds max %dms", e.DeltaMS, e.MaxMS)
}

// Receive merges a remote timestamp into the local clock, producing a
// timestamp greater than both the local and remote inputs. It rejects
// remote timestamps whose wall clock is implausibly far ahead of the local
// physical clock.
func (c *Clock) Receive(remote HLC) (HLC, error) {
	now := physicalNowMS()

	if remote.WallMS > now+MaxDriftMS {
		return HLC{}, &DriftError{DeltaMS: remote.WallMS - now, MaxMS: MaxDriftMS}
	}

	var next HLC
	switch {
	case now > c.wallMS && now > remote.WallMS:
		// Physical time is greatest.
		next = HLC{WallMS: now, Counter: 0}
	case c.wallMS == remote.WallMS:
		// Local and remote tied (whether or not physical time also ties).
		next = HLC{WallMS: c.wallMS, Counter: maxU32(c.counter, remote.Counter) + 1}
	case c.wallMS > remote.WallMS:
		// Local is greatest.
		if c.wallMS == now {
			next = HLC{WallMS: now, Counter: c.counter + 1}
		} else {
			next = HLC{WallMS: c.wallMS, Counter: c.counter + 1}
		}
	default:
		// Remote is greatest.
		if remote.WallMS == now {
			next = HLC{WallMS: now, Counter: remote.Counter + 1}
		} else {
			next = HLC{WallMS: remote.WallMS, Counter: remote.Counter + 1}
		}
	}

	c.wallMS = next.WallMS
	c.counter = next.Counter
	return next, nil
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
