package ops

import (
	"encoding/binary"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/identity"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/vclock"
	"lukechampine.com/blake3"
)

// BundleType classifies who/what produced a bundle, matching BundleType in
// original_source/crates/core/src/operations.rs.
type BundleType byte

const (
	BundleUserEdit    BundleType = 1
	BundleScriptOutput BundleType = 2
	BundleImport       BundleType = 3
	BundleSystem       BundleType = 4
)

// Bundle groups one or more operations authored together under a single
// signature and a snapshot of the author's vector clock at authoring time.
// The creator vector clock is what the conflict-detection algorithm in
// internal/engine consults, not any single operation's HLC.
type Bundle struct {
	BundleID   ids.BundleID
	ActorID    ids.ActorID
	HLC        hlc.HLC
	Type       BundleType
	Operations []*Operation
	Checksum   [32]byte
	CreatorVC  *vclock.Clock
	Signature  ids.Signature

	// Derived at construction time, not re-derived on load: the entity ids
	// created and deleted by this bundle's operations.
	CreatedEntities []ids.EntityID
	DeletedEntities []ids.EntityID
}

// computeChecksum hashes the concatenated msgpack encoding of every
// operation's payload, in Operations order, with BLAKE3 — this is the
// bundle-level integrity check independent of any one operation's signature.
func computeChecksum(ops []*Operation) ([32]byte, error) {
	h := blake3.New(32, nil)
	for _, op := range ops {
		payloadBytes, err := op.Payload.Marshal()
		if err != nil {
			return [32]byte{}, fmt.Errorf("ops: marshal payload for checksum: %w", err)
		}
		if _, err := h.Write(payloadBytes); err != nil {
			return [32]byte{}, err
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func extractCreatesDeletes(ops []*Operation) (created, deleted []ids.EntityID) {
	for _, op := range ops {
		switch op.Payload.Kind {
		case KindCreateEntity:
			created = append(created, op.Payload.EntityID)
		case KindDeleteEntity:
			deleted = append(deleted, op.Payload.EntityID)
		}
	}
	return created, deleted
}

// SigningBytes returns the exact byte sequence signed by NewSignedBundle:
// bundle_id || actor_id || hlc_bytes || type_byte || op_count_be ||
// checksum || encoded(creator_vc). The creator vector clock is included so a
// tampered or replayed-with-stale-clock bundle fails verification.
func (b *Bundle) SigningBytes() ([]byte, error) {
	vcBytes, err := b.CreatorVC.MarshalMsgpack()
	if err != nil {
		return nil, fmt.Errorf("ops: marshal creator vector clock: %w", err)
	}

	hlcBytes := b.HLC.Bytes()
	var opCount [4]byte
	binary.BigEndian.PutUint32(opCount[:], uint32(len(b.Operations)))

	var buf []byte
	buf = append(buf, b.BundleID.Bytes()...)
	buf = append(buf, b.ActorID.Bytes()...)
	buf = append(buf, hlcBytes[:]...)
	buf = append(buf, byte(b.Type))
	buf = append(buf, opCount[:]...)
	buf = append(buf, b.Checksum[:]...)
	buf = append(buf, vcBytes...)
	return buf, nil
}

// NewSignedBundle builds, checksums, and signs a fresh bundle of operations
// authored together by id, snapshotting creatorVC as the bundle's causal
// metadata.
func NewSignedBundle(id *identity.Identity, h hlc.HLC, bundleType BundleType, operations []*Operation, creatorVC *vclock.Clock) (*Bundle, error) {
	checksum, err := computeChecksum(operations)
	if err != nil {
		return nil, err
	}
	created, deleted := extractCreatesDeletes(operations)

	b := &Bundle{
		BundleID:        ids.NewBundleID(),
		ActorID:         id.ActorID(),
		HLC:             h,
		Type:            bundleType,
		Operations:      operations,
		Checksum:        checksum,
		CreatorVC:       creatorVC.Clone(),
		CreatedEntities: created,
		DeletedEntities: deleted,
	}

	signingBytes, err := b.SigningBytes()
	if err != nil {
		return nil, err
	}
	b.Signature = id.Sign(signingBytes)
	return b, nil
}

// VerifySignature checks b.Signature against b.SigningBytes() and that the
// stored checksum matches a fresh recomputation over b.Operations, then
// verifies every individual operation's own signature.
func (b *Bundle) VerifySignature() error {
	signingBytes, err := b.SigningBytes()
	if err != nil {
		return err
	}
	if err := identity.Verify(b.ActorID, signingBytes, b.Signature); err != nil {
		return fmt.Errorf("ops: bundle signature: %w", err)
	}

	checksum, err := computeChecksum(b.Operations)
	if err != nil {
		return err
	}
	if checksum != b.Checksum {
		return fmt.Errorf("ops: bundle checksum mismatch")
	}

	for _, op := range b.Operations {
		if err := op.VerifySignature(); err != nil {
			return fmt.Errorf("ops: operation %s: %w", op.OpID, err)
		}
	}
	return nil
}
