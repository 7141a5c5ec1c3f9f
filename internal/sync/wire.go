// Package sync is the replica's peer transport: a Unix-domain-socket
// protocol for exchanging vector clocks and shipping bundles between
// replicas, plus a drop-directory watcher for disk-based exchange. It is a
// one-directional consumer of internal/engine's public surface
// (GetVectorClock, GetOpsByActorAfter, IngestBundle); engine and storage
// never import this package. Grounded on BeadsLog's internal/rpc (wire
// framing, socket path resolution) and internal/daemon (peer registry).
package sync

import (
	"encoding/json"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/ops"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

// WireOperation is the JSON-safe transcription of an ops.Operation. Fixed-
// width id/signature fields travel as raw bytes (encoding/json base64's any
// []byte automatically); the payload travels pre-marshaled through
// ops.Payload.Marshal, so the wire format never needs to know about
// individual payload kinds.
type WireOperation struct {
	OpID           []byte             `json:"op_id"`
	ActorID        []byte             `json:"actor_id"`
	HLC            []byte             `json:"hlc"`
	ModuleVersions []ops.ModuleVersion `json:"module_versions,omitempty"`
	Payload        []byte             `json:"payload"`
	Signature      []byte             `json:"signature"`
}

// WireBundle is the JSON-safe transcription of an ops.Bundle.
type WireBundle struct {
	BundleID   []byte          `json:"bundle_id"`
	ActorID    []byte          `json:"actor_id"`
	HLC        []byte          `json:"hlc"`
	Type       byte            `json:"type"`
	Operations []WireOperation `json:"operations"`
	Checksum   []byte          `json:"checksum"`
	CreatorVC  []byte          `json:"creator_vc"`
	Signature  []byte          `json:"signature"`
}

// EncodeOperation converts a live Operation into its wire form.
func EncodeOperation(op *ops.Operation) (WireOperation, error) {
	payloadBytes, err := op.Payload.Marshal()
	if err != nil {
		return WireOperation{}, fmt.Errorf("sync: marshal operation payload: %w", err)
	}
	hlcBytes := op.HLC.Bytes()
	return WireOperation{
		OpID:           op.OpID.Bytes(),
		ActorID:        op.ActorID.Bytes(),
		HLC:            hlcBytes[:],
		ModuleVersions: op.ModuleVersions,
		Payload:        payloadBytes,
		Signature:      op.Signature.Bytes(),
	}, nil
}

// DecodeOperation reconstructs an Operation from its wire form.
func DecodeOperation(w WireOperation) (*ops.Operation, error) {
	opID, err := ids.OpIDFromBytes(w.OpID)
	if err != nil {
		return nil, fmt.Errorf("sync: op id: %w", err)
	}
	actorID, err := ids.ActorIDFromBytes(w.ActorID)
	if err != nil {
		return nil, fmt.Errorf("sync: actor id: %w", err)
	}
	h, err := hlc.FromBytes(w.HLC)
	if err != nil {
		return nil, fmt.Errorf("sync: hlc: %w", err)
	}
	payload, err := ops.Unmarshal(w.Payload)
	if err != nil {
		return nil, fmt.Errorf("sync: payload: %w", err)
	}
	sig, err := ids.SignatureFromBytes(w.Signature)
	if err != nil {
		return nil, fmt.Errorf("sync: signature: %w", err)
	}
	return &ops.Operation{
		OpID:           opID,
		ActorID:        actorID,
		HLC:            h,
		ModuleVersions: w.ModuleVersions,
		Payload:        payload,
		Signature:      sig,
	}, nil
}

// EncodeBundle converts a live, signed Bundle into its wire form. Does not
// re-derive CreatedEntities/DeletedEntities; DecodeBundle recomputes them the
// same way ops.NewSignedBundle does so a round trip doesn't depend on the
// wire carrying derived fields.
func EncodeBundle(b *ops.Bundle) (WireBundle, error) {
	wireOps := make([]WireOperation, 0, len(b.Operations))
	for _, op := range b.Operations {
		wo, err := EncodeOperation(op)
		if err != nil {
			return WireBundle{}, err
		}
		wireOps = append(wireOps, wo)
	}
	vcBytes, err := b.CreatorVC.MarshalMsgpack()
	if err != nil {
		return WireBundle{}, fmt.Errorf("sync: marshal creator vector clock: %w", err)
	}
	hlcBytes := b.HLC.Bytes()
	return WireBundle{
		BundleID:   b.BundleID.Bytes(),
		ActorID:    b.ActorID.Bytes(),
		HLC:        hlcBytes[:],
		Type:       byte(b.Type),
		Operations: wireOps,
		Checksum:   b.Checksum[:],
		CreatorVC:  vcBytes,
		Signature:  b.Signature.Bytes(),
	}, nil
}

// DecodeBundle reconstructs a Bundle from its wire form. The caller is
// expected to call VerifySignature (engine.IngestBundle always does) before
// trusting the result; DecodeBundle itself only checks structural validity.
func DecodeBundle(w WireBundle) (*ops.Bundle, error) {
	bundleID, err := ids.BundleIDFromBytes(w.BundleID)
	if err != nil {
		return nil, fmt.Errorf("sync: bundle id: %w", err)
	}
	actorID, err := ids.ActorIDFromBytes(w.ActorID)
	if err != nil {
		return nil, fmt.Errorf("sync: actor id: %w", err)
	}
	h, err := hlc.FromBytes(w.HLC)
	if err != nil {
		return nil, fmt.Errorf("sync: hlc: %w", err)
	}
	vc, err := vclock.UnmarshalMsgpack(w.CreatorVC)
	if err != nil {
		return nil, fmt.Errorf("sync: creator vector clock: %w", err)
	}
	sig, err := ids.SignatureFromBytes(w.Signature)
	if err != nil {
		return nil, fmt.Errorf("sync: signature: %w", err)
	}
	if len(w.Checksum) != 32 {
		return nil, fmt.Errorf("sync: checksum must be 32 bytes, got %d", len(w.Checksum))
	}
	var checksum [32]byte
	copy(checksum[:], w.Checksum)

	operations := make([]*ops.Operation, 0, len(w.Operations))
	var created, deleted []ids.EntityID
	for _, wo := range w.Operations {
		op, err := DecodeOperation(wo)
		if err != nil {
			return nil, err
		}
		operations = append(operations, op)
		switch op.Payload.Kind {
		case ops.KindCreateEntity:
			created = append(created, op.Payload.EntityID)
		case ops.KindDeleteEntity:
			deleted = append(deleted, op.Payload.EntityID)
		}
	}

	return &ops.Bundle{
		BundleID:        bundleID,
		ActorID:         actorID,
		HLC:             h,
		Type:            ops.BundleType(w.Type),
		Operations:      operations,
		Checksum:        checksum,
		CreatorVC:       vc,
		Signature:       sig,
		CreatedEntities: created,
		DeletedEntities: deleted,
	}, nil
}

// MarshalBundleJSON and UnmarshalBundleJSON are the convenience entry
// points used by both the socket protocol and the drop-directory watcher:
// every on-wire or on-disk bundle is plain JSON built from WireBundle.
func MarshalBundleJSON(b *ops.Bundle) ([]byte, error) {
	w, err := EncodeBundle(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func UnmarshalBundleJSON(data []byte) (*ops.Bundle, error) {
	var w WireBundle
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("sync: unmarshal wire bundle: %w", err)
	}
	return DecodeBundle(w)
}
