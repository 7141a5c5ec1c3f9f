// Package ids defines the byte-exact typed identifiers used throughout the
// replica: 16-byte time-ordered ids for entities, operations, bundles, edges,
// tables, rules, conflicts and overlays; 32-byte actor ids; 64-byte
// signatures; and 32-byte blob hashes.
//
// Every id type wraps a fixed-size byte array rather than a string so that
// lexicographic byte comparison (used throughout the oplog for canonical
// ordering) is the same as comparing the Go value directly.
package ids

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// EntityID identifies an entity. Time-ordered (UUIDv7) so insertion order in
// the materialized tables tracks creation order.
type EntityID [16]byte

// OpID identifies a single signed operation.
type OpID [16]byte

// BundleID identifies a bundle of operations authored together.
type BundleID [16]byte

// EdgeID identifies an edge between two entities.
type EdgeID [16]byte

// TableID identifies a table grouping (carried, not materialized by the core).
type TableID [16]byte

// RuleID identifies a rule definition (carried, not materialized by the core).
type RuleID [16]byte

// ConflictID identifies an open or resolved conflict record.
type ConflictID [16]byte

// OverlayID identifies an overlay scratch space.
type OverlayID [16]byte

// ActorID is a replica's public signing key, 32 bytes.
type ActorID [32]byte

// Signature is a 64-byte ed25519 signature.
type Signature [64]byte

// BlobHash is a 32-byte content hash for a preserved-values blob.
type BlobHash [32]byte

func newV7() [16]byte {
	u, err := uuid.NewV7()
	if err != nil {
		// uuid.NewV7 only fails if the system clock/random source is broken;
		// fall back to a random v4 rather than propagating an error through
		// every id constructor in the codebase.
		u = uuid.New()
	}
	return [16]byte(u)
}

// NewEntityID allocates a fresh time-ordered entity id.
func NewEntityID() EntityID { return EntityID(newV7()) }

// NewOpID allocates a fresh time-ordered operation id.
func NewOpID() OpID { return OpID(newV7()) }

// NewBundleID allocates a fresh time-ordered bundle id.
func NewBundleID() BundleID { return BundleID(newV7()) }

// NewEdgeID allocates a fresh time-ordered edge id.
func NewEdgeID() EdgeID { return EdgeID(newV7()) }

// NewTableID allocates a fresh time-ordered table id.
func NewTableID() TableID { return TableID(newV7()) }

// NewRuleID allocates a fresh time-ordered rule id.
func NewRuleID() RuleID { return RuleID(newV7()) }

// NewConflictID allocates a fresh time-ordered conflict id.
func NewConflictID() ConflictID { return ConflictID(newV7()) }

// NewOverlayID allocates a fresh time-ordered overlay id.
func NewOverlayID() OverlayID { return OverlayID(newV7()) }

func (id EntityID) Bytes() []byte   { return id[:] }
func (id OpID) Bytes() []byte       { return id[:] }
func (id BundleID) Bytes() []byte   { return id[:] }
func (id EdgeID) Bytes() []byte     { return id[:] }
func (id TableID) Bytes() []byte    { return id[:] }
func (id RuleID) Bytes() []byte     { return id[:] }
func (id ConflictID) Bytes() []byte { return id[:] }
func (id OverlayID) Bytes() []byte  { return id[:] }
func (id ActorID) Bytes() []byte    { return id[:] }
func (id Signature) Bytes() []byte  { return id[:] }
func (id BlobHash) Bytes() []byte   { return id[:] }

func (id EntityID) String() string   { return uuid.UUID(id).String() }
func (id OpID) String() string       { return uuid.UUID(id).String() }
func (id BundleID) String() string   { return uuid.UUID(id).String() }
func (id EdgeID) String() string     { return uuid.UUID(id).String() }
func (id TableID) String() string    { return uuid.UUID(id).String() }
func (id RuleID) String() string     { return uuid.UUID(id).String() }
func (id ConflictID) String() string { return uuid.UUID(id).String() }
func (id OverlayID) String() string  { return uuid.UUID(id).String() }

func (id ActorID) String() string {
	return hex.EncodeToString(id[:8])
}

func (id Signature) String() string {
	return fmt.Sprintf("Signature(%02x%02x...)", id[0], id[1])
}

func (id BlobHash) String() string {
	return fmt.Sprintf("BlobHash(%02x%02x...)", id[0], id[1])
}

// EntityIDFromBytes validates and wraps a 16-byte entity id.
func EntityIDFromBytes(b []byte) (EntityID, error) {
	var id EntityID
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: entity id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// OpIDFromBytes validates and wraps a 16-byte operation id.
func OpIDFromBytes(b []byte) (OpID, error) {
	var id OpID
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: op id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// BundleIDFromBytes validates and wraps a 16-byte bundle id.
func BundleIDFromBytes(b []byte) (BundleID, error) {
	var id BundleID
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: bundle id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// EdgeIDFromBytes validates and wraps a 16-byte edge id.
func EdgeIDFromBytes(b []byte) (EdgeID, error) {
	var id EdgeID
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: edge id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ConflictIDFromBytes validates and wraps a 16-byte conflict id.
func ConflictIDFromBytes(b []byte) (ConflictID, error) {
	var id ConflictID
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: conflict id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// OverlayIDFromBytes validates and wraps a 16-byte overlay id.
func OverlayIDFromBytes(b []byte) (OverlayID, error) {
	var id OverlayID
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: overlay id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ActorIDFromBytes validates and wraps a 32-byte actor id (public key).
func ActorIDFromBytes(b []byte) (ActorID, error) {
	var id ActorID
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: actor id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// SignatureFromBytes validates and wraps a 64-byte signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != len(sig) {
		return sig, fmt.Errorf("ids: signature must be %d bytes, got %d", len(sig), len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// TableIDFromBytes validates and wraps a 16-byte table id.
func TableIDFromBytes(b []byte) (TableID, error) {
	var id TableID
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: table id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// RuleIDFromBytes validates and wraps a 16-byte rule id.
func RuleIDFromBytes(b []byte) (RuleID, error) {
	var id RuleID
	if len(b) != len(id) {
		return id, fmt.Errorf("ids: rule id must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// BlobHashFromBytes validates and wraps a 32-byte blob hash.
func BlobHashFromBytes(b []byte) (BlobHash, error) {
	var h BlobHash
	if len(b) != len(h) {
		return h, fmt.Errorf("ids: blob hash must be %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Less reports whether id sorts before other under byte-lex order. Used for
// canonical vector-clock serialization (actors sorted by id bytes).
func (id ActorID) Less(other ActorID) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}
