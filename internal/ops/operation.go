package ops

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/identity"
	"github.com/untoldecay/beadsreplica/internal/ids"
)

// ModuleVersion pins the schema version of one facet/field module the
// payload touches, so a replica can refuse operations it doesn't understand
// yet rather than silently misinterpreting them.
type ModuleVersion struct {
	Module  string
	Version uint32
}

// Operation is one signed, causally-timestamped unit in the oplog.
type Operation struct {
	OpID           ids.OpID
	ActorID        ids.ActorID
	HLC            hlc.HLC
	ModuleVersions []ModuleVersion
	Payload        Payload
	Signature      ids.Signature
}

// EncodeModuleVersions produces the deterministic byte encoding used both
// inside SigningBytes and as the stored column, so re-encoding after load is
// always byte-identical to what was signed.
func EncodeModuleVersions(mv []ModuleVersion) []byte {
	var buf []byte
	buf = msgp.AppendArrayHeader(buf, uint32(len(mv)))
	for _, v := range mv {
		buf = msgp.AppendArrayHeader(buf, 2)
		buf = msgp.AppendString(buf, v.Module)
		buf = msgp.AppendUint32(buf, v.Version)
	}
	return buf
}

func decodeModuleVersions(b []byte) ([]ModuleVersion, []byte, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([]ModuleVersion, 0, n)
	for i := uint32(0); i < n; i++ {
		pairLen, r, err := msgp.ReadArrayHeaderBytes(rest)
		if err != nil || pairLen != 2 {
			return nil, nil, fmt.Errorf("ops: bad module version pair")
		}
		rest = r
		var mod string
		mod, rest, err = msgp.ReadStringBytes(rest)
		if err != nil {
			return nil, nil, err
		}
		var ver uint32
		ver, rest, err = msgp.ReadUint32Bytes(rest)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, ModuleVersion{Module: mod, Version: ver})
	}
	return out, rest, nil
}

// SigningBytes returns the exact byte sequence signed by NewSigned and
// checked by VerifySignature: op_id || actor_id || hlc_bytes ||
// encoded(module_versions) || encoded(payload). Every component is fixed
// width or length-prefixed by msgpack, so this is unambiguous to reconstruct
// from a loaded row.
func (op *Operation) SigningBytes() ([]byte, error) {
	payloadBytes, err := op.Payload.Marshal()
	if err != nil {
		return nil, fmt.Errorf("ops: marshal payload: %w", err)
	}
	hlcBytes := op.HLC.Bytes()

	var buf []byte
	buf = append(buf, op.OpID.Bytes()...)
	buf = append(buf, op.ActorID.Bytes()...)
	buf = append(buf, hlcBytes[:]...)
	buf = append(buf, EncodeModuleVersions(op.ModuleVersions)...)
	buf = append(buf, payloadBytes...)
	return buf, nil
}

// NewSigned builds and signs a fresh operation authored by id, stamped with
// h and carrying payload.
func NewSigned(id *identity.Identity, h hlc.HLC, moduleVersions []ModuleVersion, payload Payload) (*Operation, error) {
	op := &Operation{
		OpID:           ids.NewOpID(),
		ActorID:        id.ActorID(),
		HLC:            h,
		ModuleVersions: moduleVersions,
		Payload:        payload,
	}
	signingBytes, err := op.SigningBytes()
	if err != nil {
		return nil, err
	}
	op.Signature = id.Sign(signingBytes)
	return op, nil
}

// VerifySignature checks that op.Signature is a valid signature over
// op.SigningBytes() under op.ActorID.
func (op *Operation) VerifySignature() error {
	signingBytes, err := op.SigningBytes()
	if err != nil {
		return err
	}
	return identity.Verify(op.ActorID, signingBytes, op.Signature)
}

// Compare orders operations by (hlc, op_id) byte-lex — the sole canonical
// replay order (see SPEC_FULL.md §4.3).
func (op *Operation) Compare(other *Operation) int {
	if c := op.HLC.Compare(other.HLC); c != 0 {
		return c
	}
	a, b := op.OpID.Bytes(), other.OpID.Bytes()
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

// Less reports whether op sorts strictly before other under canonical
// ordering.
func (op *Operation) Less(other *Operation) bool { return op.Compare(other) < 0 }
