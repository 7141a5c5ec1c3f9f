// Package vclock implements per-actor vector clocks used to detect causal
// concurrency between bundles authored by different replicas.
package vclock

import (
	"fmt"
	"sort"

	"github.com/tinylib/msgp/msgp"
	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/ids"
)

// Clock maps an actor to the highest HLC timestamp seen from that actor.
type Clock struct {
	entries map[ids.ActorID]hlc.HLC
}

// New returns an empty vector clock.
func New() *Clock {
	return &Clock{entries: make(map[ids.ActorID]hlc.HLC)}
}

// Update records hlc as the latest timestamp seen for actor, keeping the max
// per actor.
func (c *Clock) Update(actor ids.ActorID, h hlc.HLC) {
	if c.entries == nil {
		c.entries = make(map[ids.ActorID]hlc.HLC)
	}
	if prev, ok := c.entries[actor]; !ok || prev.Less(h) {
		c.entries[actor] = h
	}
}

// Get returns the latest HLC recorded for actor, and whether one exists.
func (c *Clock) Get(actor ids.ActorID) (hlc.HLC, bool) {
	h, ok := c.entries[actor]
	return h, ok
}

// Merge folds other into c, keeping the per-actor max.
func (c *Clock) Merge(other *Clock) {
	for actor, h := range other.entries {
		c.Update(actor, h)
	}
}

// Entry pairs an actor with an HLC; used by Diff's return value.
type Entry struct {
	Actor ids.ActorID
	HLC   hlc.HLC
	Known bool // false when c has no entry at all for Actor
}

// Diff returns, for every actor where other is strictly ahead of c, c's
// current HLC for that actor (Known=true) or a zero value (Known=false) if c
// has never seen that actor.
func (c *Clock) Diff(other *Clock) []Entry {
	var out []Entry
	for actor, otherHLC := range other.entries {
		ourHLC, ok := c.entries[actor]
		if ok && !ourHLC.Less(otherHLC) {
			continue // caught up
		}
		if ok {
			out = append(out, Entry{Actor: actor, HLC: ourHLC, Known: true})
		} else {
			out = append(out, Entry{Actor: actor, Known: false})
		}
	}
	return out
}

// Covers reports whether c has seen everything other has seen.
func (c *Clock) Covers(other *Clock) bool {
	return len(c.Diff(other)) == 0
}

// Entries returns the clock's entries sorted by actor id bytes, so callers
// that need deterministic iteration (signing, msgpack encoding) don't have
// to sort themselves.
func (c *Clock) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for actor, h := range c.entries {
		out = append(out, Entry{Actor: actor, HLC: h, Known: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Actor.Less(out[j].Actor) })
	return out
}

// Clone returns a deep copy of c.
func (c *Clock) Clone() *Clock {
	out := New()
	for actor, h := range c.entries {
		out.entries[actor] = h
	}
	return out
}

// MarshalMsgpack encodes the clock as an array of (actor_bytes, hlc_bytes)
// pairs, sorted by actor id bytes so the encoding is deterministic — this is
// load-bearing because a bundle's signature covers the encoded creator
// vector clock (see SPEC_FULL.md DOMAIN STACK).
func (c *Clock) MarshalMsgpack() ([]byte, error) {
	entries := c.Entries()
	var buf []byte
	buf = msgp.AppendArrayHeader(buf, uint32(len(entries)))
	for _, e := range entries {
		buf = msgp.AppendArrayHeader(buf, 2)
		actorBytes := e.Actor.Bytes()
		buf = msgp.AppendBytes(buf, actorBytes)
		hlcBytes := e.HLC.Bytes()
		buf = msgp.AppendBytes(buf, hlcBytes[:])
	}
	return buf, nil
}

// UnmarshalMsgpack decodes the encoding produced by MarshalMsgpack.
func UnmarshalMsgpack(b []byte) (*Clock, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, fmt.Errorf("vclock: read array header: %w", err)
	}
	c := New()
	for i := uint32(0); i < n; i++ {
		pairLen, r, err := msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return nil, fmt.Errorf("vclock: read pair header: %w", err)
		}
		if pairLen != 2 {
			return nil, fmt.Errorf("vclock: expected 2-element pair, got %d", pairLen)
		}
		rest = r
		var actorBytes []byte
		actorBytes, rest, err = msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return nil, fmt.Errorf("vclock: read actor bytes: %w", err)
		}
		actor, err := ids.ActorIDFromBytes(actorBytes)
		if err != nil {
			return nil, err
		}
		var hlcBytes []byte
		hlcBytes, rest, err = msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return nil, fmt.Errorf("vclock: read hlc bytes: %w", err)
		}
		h, err := hlc.FromBytes(hlcBytes)
		if err != nil {
			return nil, err
		}
		c.Update(actor, h)
	}
	return c, nil
}
