// Package fieldvalue implements the tagged-variant value type stored in
// field and edge-property rows.
package fieldvalue

import (
	"fmt"
	"math"

	"github.com/tinylib/msgp/msgp"
	"github.com/untoldecay/beadsreplica/internal/ids"
)

// Kind tags which variant a Value holds.
type Kind byte

const (
	KindNull Kind = iota
	KindText
	KindInteger
	KindFloat
	KindBoolean
	KindTimestamp
	KindEntityRef
	KindBlobRef
	KindBytes
)

// Value is a tagged union mirroring the core FieldValue enum: Null, Text,
// Integer, Float, Boolean, Timestamp (unix ms), EntityRef, BlobRef, Bytes.
// Only the field matching Kind is meaningful.
type Value struct {
	Kind      Kind
	Text      string
	Integer   int64
	Float     float64
	Boolean   bool
	Timestamp int64
	EntityRef ids.EntityID
	BlobRef   ids.BlobHash
	Bytes     []byte
}

// Null returns the null variant.
func Null() Value { return Value{Kind: KindNull} }

// TextValue returns the Text variant.
func TextValue(s string) Value { return Value{Kind: KindText, Text: s} }

// IntegerValue returns the Integer variant.
func IntegerValue(n int64) Value { return Value{Kind: KindInteger, Integer: n} }

// FloatValue returns the Float variant.
func FloatValue(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// BooleanValue returns the Boolean variant.
func BooleanValue(b bool) Value { return Value{Kind: KindBoolean, Boolean: b} }

// TimestampValue returns the Timestamp variant (unix milliseconds).
func TimestampValue(ms int64) Value { return Value{Kind: KindTimestamp, Timestamp: ms} }

// EntityRefValue returns the EntityRef variant.
func EntityRefValue(id ids.EntityID) Value { return Value{Kind: KindEntityRef, EntityRef: id} }

// BlobRefValue returns the BlobRef variant.
func BlobRefValue(h ids.BlobHash) Value { return Value{Kind: KindBlobRef, BlobRef: h} }

// BytesValue returns the Bytes variant.
func BytesValue(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// IsNull reports whether v is the Null variant.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsText returns (v.Text, true) if v is a Text variant.
func (v Value) AsText() (string, bool) {
	if v.Kind != KindText {
		return "", false
	}
	return v.Text, true
}

// AsInteger returns (v.Integer, true) if v is an Integer variant.
func (v Value) AsInteger() (int64, bool) {
	if v.Kind != KindInteger {
		return 0, false
	}
	return v.Integer, true
}

// AsBoolean returns (v.Boolean, true) if v is a Boolean variant.
func (v Value) AsBoolean() (bool, bool) {
	if v.Kind != KindBoolean {
		return false, false
	}
	return v.Boolean, true
}

// Equal compares two values for equality, using total ordering for floats
// (so NaN == NaN, matching Rust's total_cmp semantics in the original
// implementation) rather than IEEE-754 equality.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindText:
		return v.Text == other.Text
	case KindInteger:
		return v.Integer == other.Integer
	case KindFloat:
		return totalOrderEqual(v.Float, other.Float)
	case KindBoolean:
		return v.Boolean == other.Boolean
	case KindTimestamp:
		return v.Timestamp == other.Timestamp
	case KindEntityRef:
		return v.EntityRef == other.EntityRef
	case KindBlobRef:
		return v.BlobRef == other.BlobRef
	case KindBytes:
		return string(v.Bytes) == string(other.Bytes)
	default:
		return false
	}
}

func totalOrderEqual(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// Marshal encodes v as msgpack: a 2-element array [kind, payload].
func (v Value) Marshal() ([]byte, error) {
	var buf []byte
	buf = msgp.AppendArrayHeader(buf, 2)
	buf = msgp.AppendInt(buf, int(v.Kind))
	switch v.Kind {
	case KindNull:
		buf = msgp.AppendNil(buf)
	case KindText:
		buf = msgp.AppendString(buf, v.Text)
	case KindInteger:
		buf = msgp.AppendInt64(buf, v.Integer)
	case KindFloat:
		buf = msgp.AppendFloat64(buf, v.Float)
	case KindBoolean:
		buf = msgp.AppendBool(buf, v.Boolean)
	case KindTimestamp:
		buf = msgp.AppendInt64(buf, v.Timestamp)
	case KindEntityRef:
		buf = msgp.AppendBytes(buf, v.EntityRef.Bytes())
	case KindBlobRef:
		buf = msgp.AppendBytes(buf, v.BlobRef.Bytes())
	case KindBytes:
		buf = msgp.AppendBytes(buf, v.Bytes)
	default:
		return nil, fmt.Errorf("fieldvalue: unknown kind %d", v.Kind)
	}
	return buf, nil
}

// Unmarshal decodes the encoding produced by Marshal.
func Unmarshal(b []byte) (Value, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Value{}, fmt.Errorf("fieldvalue: read array header: %w", err)
	}
	if n != 2 {
		return Value{}, fmt.Errorf("fieldvalue: expected 2-element array, got %d", n)
	}
	kindInt, rest, err := msgp.ReadIntBytes(rest)
	if err != nil {
		return Value{}, fmt.Errorf("fieldvalue: read kind: %w", err)
	}
	kind := Kind(kindInt)
	switch kind {
	case KindNull:
		rest, err = msgp.ReadNilBytes(rest)
		if err != nil {
			return Value{}, err
		}
		return Null(), nil
	case KindText:
		s, _, err := msgp.ReadStringBytes(rest)
		if err != nil {
			return Value{}, err
		}
		return TextValue(s), nil
	case KindInteger:
		n, _, err := msgp.ReadInt64Bytes(rest)
		if err != nil {
			return Value{}, err
		}
		return IntegerValue(n), nil
	case KindFloat:
		f, _, err := msgp.ReadFloat64Bytes(rest)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil
	case KindBoolean:
		bl, _, err := msgp.ReadBoolBytes(rest)
		if err != nil {
			return Value{}, err
		}
		return BooleanValue(bl), nil
	case KindTimestamp:
		n, _, err := msgp.ReadInt64Bytes(rest)
		if err != nil {
			return Value{}, err
		}
		return TimestampValue(n), nil
	case KindEntityRef:
		raw, _, err := msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return Value{}, err
		}
		id, err := ids.EntityIDFromBytes(raw)
		if err != nil {
			return Value{}, err
		}
		return EntityRefValue(id), nil
	case KindBlobRef:
		raw, _, err := msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return Value{}, err
		}
		h, err := ids.BlobHashFromBytes(raw)
		if err != nil {
			return Value{}, err
		}
		return BlobRefValue(h), nil
	case KindBytes:
		raw, _, err := msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return Value{}, err
		}
		return BytesValue(raw), nil
	default:
		return Value{}, fmt.Errorf("fieldvalue: unknown kind %d", kind)
	}
}
