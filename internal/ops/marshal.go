package ops

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
	"github.com/untoldecay/beadsreplica/internal/ids"
)

// Marshal encodes a Payload as msgpack. The wire shape is a 2-element array
// [kind, fields], where fields is itself an array whose layout depends on
// kind. This mirrors to_msgpack in original_source/crates/core/src/operations.rs,
// adapted from rmp_serde's struct-as-array encoding to hand-written msgp calls
// since this package generates no _gen.go marshalers.
func (p Payload) Marshal() ([]byte, error) {
	var buf []byte
	buf = msgp.AppendArrayHeader(buf, 2)
	buf = msgp.AppendInt(buf, int(p.Kind))

	switch p.Kind {
	case KindCreateEntity:
		buf = msgp.AppendArrayHeader(buf, 2)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = appendOptionalString(buf, p.HasInitial, p.InitialFacet)

	case KindDeleteEntity:
		buf = msgp.AppendArrayHeader(buf, 2)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendArrayHeader(buf, uint32(len(p.CascadeEdges)))
		for _, e := range p.CascadeEdges {
			buf = msgp.AppendBytes(buf, e.Bytes())
		}

	case KindRestoreEntity:
		buf = msgp.AppendArrayHeader(buf, 1)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())

	case KindAttachFacet:
		buf = msgp.AppendArrayHeader(buf, 2)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendString(buf, p.FacetType)

	case KindDetachFacet:
		buf = msgp.AppendArrayHeader(buf, 3)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendString(buf, p.FacetType)
		buf = msgp.AppendBool(buf, p.PreserveValues)

	case KindRestoreFacet:
		buf = msgp.AppendArrayHeader(buf, 2)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendString(buf, p.FacetType)

	case KindSetField:
		buf = msgp.AppendArrayHeader(buf, 3)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendString(buf, p.FieldKey)
		valBytes, err := p.Value.Marshal()
		if err != nil {
			return nil, err
		}
		buf = msgp.AppendBytes(buf, valBytes)

	case KindClearField:
		buf = msgp.AppendArrayHeader(buf, 2)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendString(buf, p.FieldKey)

	case KindApplyCrdt:
		buf = msgp.AppendArrayHeader(buf, 4)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendString(buf, p.FieldKey)
		buf = msgp.AppendInt(buf, int(p.CrdtKind))
		buf = msgp.AppendBytes(buf, p.Delta)

	case KindClearAndAdd:
		buf = msgp.AppendArrayHeader(buf, 3)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendString(buf, p.FieldKey)
		buf = msgp.AppendArrayHeader(buf, uint32(len(p.AddedValues)))
		for _, v := range p.AddedValues {
			vb, err := v.Marshal()
			if err != nil {
				return nil, err
			}
			buf = msgp.AppendBytes(buf, vb)
		}

	case KindCreateEdge, KindCreateOrderedEdge:
		n := 5
		if p.Kind == KindCreateOrderedEdge {
			n = 7
		}
		buf = msgp.AppendArrayHeader(buf, uint32(n))
		buf = msgp.AppendBytes(buf, p.EdgeID.Bytes())
		buf = msgp.AppendString(buf, p.EdgeType)
		buf = msgp.AppendBytes(buf, p.SourceID.Bytes())
		buf = msgp.AppendBytes(buf, p.TargetID.Bytes())
		buf = msgp.AppendArrayHeader(buf, uint32(len(p.Properties)))
		for _, pr := range p.Properties {
			buf = msgp.AppendArrayHeader(buf, 2)
			buf = msgp.AppendString(buf, pr.Key)
			vb, err := pr.Value.Marshal()
			if err != nil {
				return nil, err
			}
			buf = msgp.AppendBytes(buf, vb)
		}
		if p.Kind == KindCreateOrderedEdge {
			buf = appendOptionalEdgeID(buf, p.After)
			buf = appendOptionalEdgeID(buf, p.Before)
		}

	case KindDeleteEdge:
		buf = msgp.AppendArrayHeader(buf, 1)
		buf = msgp.AppendBytes(buf, p.EdgeID.Bytes())

	case KindRestoreEdge:
		buf = msgp.AppendArrayHeader(buf, 1)
		buf = msgp.AppendBytes(buf, p.EdgeID.Bytes())

	case KindMoveOrderedEdge:
		buf = msgp.AppendArrayHeader(buf, 3)
		buf = msgp.AppendBytes(buf, p.EdgeID.Bytes())
		buf = appendOptionalEdgeID(buf, p.After)
		buf = appendOptionalEdgeID(buf, p.Before)

	case KindSetEdgeProperty:
		buf = msgp.AppendArrayHeader(buf, 3)
		buf = msgp.AppendBytes(buf, p.EdgeID.Bytes())
		buf = msgp.AppendString(buf, p.PropertyKey)
		vb, err := p.Value.Marshal()
		if err != nil {
			return nil, err
		}
		buf = msgp.AppendBytes(buf, vb)

	case KindClearEdgeProperty:
		buf = msgp.AppendArrayHeader(buf, 2)
		buf = msgp.AppendBytes(buf, p.EdgeID.Bytes())
		buf = msgp.AppendString(buf, p.PropertyKey)

	case KindLinkTables, KindUnlinkTables, KindConfirmFieldMapping:
		buf = msgp.AppendArrayHeader(buf, 5)
		buf = msgp.AppendBytes(buf, p.SourceTable.Bytes())
		buf = msgp.AppendBytes(buf, p.TargetTable.Bytes())
		buf = msgp.AppendArrayHeader(buf, uint32(len(p.FieldMappings)))
		for _, m := range p.FieldMappings {
			buf = msgp.AppendArrayHeader(buf, 2)
			buf = msgp.AppendString(buf, m.SourceColumn)
			buf = msgp.AppendString(buf, m.TargetColumn)
		}
		buf = msgp.AppendString(buf, p.SourceField)
		buf = msgp.AppendString(buf, p.TargetField)

	case KindAddToTable, KindRemoveFromTable:
		buf = msgp.AppendArrayHeader(buf, 3)
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendString(buf, p.Table)
		buf = msgp.AppendArrayHeader(buf, uint32(len(p.TableDefault)))
		for _, d := range p.TableDefault {
			buf = msgp.AppendArrayHeader(buf, 2)
			buf = msgp.AppendString(buf, d.Field)
			vb, err := d.Value.Marshal()
			if err != nil {
				return nil, err
			}
			buf = msgp.AppendBytes(buf, vb)
		}

	case KindMergeEntities:
		buf = msgp.AppendArrayHeader(buf, 2)
		buf = msgp.AppendBytes(buf, p.SurvivorID.Bytes())
		buf = msgp.AppendBytes(buf, p.AbsorbedID.Bytes())

	case KindSplitEntity:
		buf = msgp.AppendArrayHeader(buf, 3)
		buf = msgp.AppendBytes(buf, p.SourceID.Bytes())
		buf = msgp.AppendArrayHeader(buf, uint32(len(p.NewEntityIDs)))
		for _, id := range p.NewEntityIDs {
			buf = msgp.AppendBytes(buf, id.Bytes())
		}
		buf = msgp.AppendArrayHeader(buf, uint32(len(p.SplitFacets)))
		for _, f := range p.SplitFacets {
			buf = msgp.AppendString(buf, f)
		}

	case KindCreateRule:
		buf = msgp.AppendArrayHeader(buf, 6)
		buf = msgp.AppendBytes(buf, p.RuleID.Bytes())
		buf = msgp.AppendString(buf, p.RuleName)
		buf = msgp.AppendString(buf, p.WhenClause)
		buf = msgp.AppendString(buf, p.ActionType)
		buf = msgp.AppendBytes(buf, p.ActionParams)
		buf = msgp.AppendBool(buf, p.AutoAccept)

	case KindResolveConflict:
		buf = msgp.AppendArrayHeader(buf, 4)
		buf = msgp.AppendBytes(buf, p.ConflictID.Bytes())
		buf = msgp.AppendBytes(buf, p.EntityID.Bytes())
		buf = msgp.AppendString(buf, p.FieldKey)
		if p.HasChosen {
			buf = msgp.AppendBool(buf, true)
			vb, err := p.ChosenValue.Marshal()
			if err != nil {
				return nil, err
			}
			buf = msgp.AppendBytes(buf, vb)
		} else {
			buf = msgp.AppendBool(buf, false)
			buf = msgp.AppendNil(buf)
		}

	default:
		return nil, fmt.Errorf("ops: unknown payload kind %d", p.Kind)
	}

	return buf, nil
}

func appendOptionalString(buf []byte, has bool, s string) []byte {
	if has {
		return msgp.AppendString(buf, s)
	}
	return msgp.AppendNil(buf)
}

func appendOptionalEdgeID(buf []byte, id *ids.EdgeID) []byte {
	if id == nil {
		return msgp.AppendNil(buf)
	}
	return msgp.AppendBytes(buf, id.Bytes())
}

// Unmarshal decodes the encoding produced by Marshal.
func Unmarshal(b []byte) (Payload, error) {
	n, rest, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return Payload{}, fmt.Errorf("ops: read outer array header: %w", err)
	}
	if n != 2 {
		return Payload{}, fmt.Errorf("ops: expected 2-element payload array, got %d", n)
	}
	kindInt, rest, err := msgp.ReadIntBytes(rest)
	if err != nil {
		return Payload{}, fmt.Errorf("ops: read kind: %w", err)
	}
	kind := Kind(kindInt)

	fieldN, rest, err := msgp.ReadArrayHeaderBytes(rest)
	if err != nil {
		return Payload{}, fmt.Errorf("ops: read field array header: %w", err)
	}
	_ = fieldN

	p := Payload{Kind: kind}

	readEntityID := func() (ids.EntityID, error) {
		var raw []byte
		raw, rest, err = msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return ids.EntityID{}, err
		}
		return ids.EntityIDFromBytes(raw)
	}
	readEdgeID := func() (ids.EdgeID, error) {
		var raw []byte
		raw, rest, err = msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return ids.EdgeID{}, err
		}
		return ids.EdgeIDFromBytes(raw)
	}
	readOptionalEdgeID := func() (*ids.EdgeID, error) {
		if msgp.IsNil(rest) {
			rest = rest[msgp.NilSize:]
			return nil, nil
		}
		id, err := readEdgeID()
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	readString := func() (string, error) {
		var s string
		s, rest, err = msgp.ReadStringBytes(rest)
		return s, err
	}
	readBool := func() (bool, error) {
		var v bool
		v, rest, err = msgp.ReadBoolBytes(rest)
		return v, err
	}
	readBytes := func() ([]byte, error) {
		var raw []byte
		raw, rest, err = msgp.ReadBytesBytes(rest, nil)
		return raw, err
	}
	readValue := func() (fieldvalue.Value, error) {
		raw, err := readBytes()
		if err != nil {
			return fieldvalue.Value{}, err
		}
		return fieldvalue.Unmarshal(raw)
	}

	switch kind {
	case KindCreateEntity:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if msgp.IsNil(rest) {
			rest = rest[msgp.NilSize:]
		} else {
			if p.InitialFacet, err = readString(); err != nil {
				return Payload{}, err
			}
			p.HasInitial = true
		}

	case KindDeleteEntity:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		var cnt uint32
		cnt, rest, err = msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return Payload{}, err
		}
		for i := uint32(0); i < cnt; i++ {
			e, err := readEdgeID()
			if err != nil {
				return Payload{}, err
			}
			p.CascadeEdges = append(p.CascadeEdges, e)
		}

	case KindRestoreEntity:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}

	case KindAttachFacet:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.FacetType, err = readString(); err != nil {
			return Payload{}, err
		}

	case KindDetachFacet:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.FacetType, err = readString(); err != nil {
			return Payload{}, err
		}
		if p.PreserveValues, err = readBool(); err != nil {
			return Payload{}, err
		}

	case KindRestoreFacet:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.FacetType, err = readString(); err != nil {
			return Payload{}, err
		}

	case KindSetField:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.FieldKey, err = readString(); err != nil {
			return Payload{}, err
		}
		if p.Value, err = readValue(); err != nil {
			return Payload{}, err
		}
		p.HasValue = true

	case KindClearField:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.FieldKey, err = readString(); err != nil {
			return Payload{}, err
		}

	case KindApplyCrdt:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.FieldKey, err = readString(); err != nil {
			return Payload{}, err
		}
		var ck int
		ck, rest, err = msgp.ReadIntBytes(rest)
		if err != nil {
			return Payload{}, err
		}
		p.CrdtKind = CrdtType(ck)
		if p.Delta, err = readBytes(); err != nil {
			return Payload{}, err
		}

	case KindClearAndAdd:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.FieldKey, err = readString(); err != nil {
			return Payload{}, err
		}
		var cnt uint32
		cnt, rest, err = msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return Payload{}, err
		}
		for i := uint32(0); i < cnt; i++ {
			v, err := readValue()
			if err != nil {
				return Payload{}, err
			}
			p.AddedValues = append(p.AddedValues, v)
		}

	case KindCreateEdge, KindCreateOrderedEdge:
		if p.EdgeID, err = readEdgeID(); err != nil {
			return Payload{}, err
		}
		if p.EdgeType, err = readString(); err != nil {
			return Payload{}, err
		}
		if p.SourceID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.TargetID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		var cnt uint32
		cnt, rest, err = msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return Payload{}, err
		}
		for i := uint32(0); i < cnt; i++ {
			var pairLen uint32
			pairLen, rest, err = msgp.ReadArrayHeaderBytes(rest)
			if err != nil || pairLen != 2 {
				return Payload{}, fmt.Errorf("ops: bad edge property pair")
			}
			key, err := readString()
			if err != nil {
				return Payload{}, err
			}
			val, err := readValue()
			if err != nil {
				return Payload{}, err
			}
			p.Properties = append(p.Properties, EdgeProperty{Key: key, Value: val})
		}
		if kind == KindCreateOrderedEdge {
			if p.After, err = readOptionalEdgeID(); err != nil {
				return Payload{}, err
			}
			if p.Before, err = readOptionalEdgeID(); err != nil {
				return Payload{}, err
			}
		}

	case KindDeleteEdge, KindRestoreEdge:
		if p.EdgeID, err = readEdgeID(); err != nil {
			return Payload{}, err
		}

	case KindMoveOrderedEdge:
		if p.EdgeID, err = readEdgeID(); err != nil {
			return Payload{}, err
		}
		if p.After, err = readOptionalEdgeID(); err != nil {
			return Payload{}, err
		}
		if p.Before, err = readOptionalEdgeID(); err != nil {
			return Payload{}, err
		}

	case KindSetEdgeProperty:
		if p.EdgeID, err = readEdgeID(); err != nil {
			return Payload{}, err
		}
		if p.PropertyKey, err = readString(); err != nil {
			return Payload{}, err
		}
		if p.Value, err = readValue(); err != nil {
			return Payload{}, err
		}
		p.HasValue = true

	case KindClearEdgeProperty:
		if p.EdgeID, err = readEdgeID(); err != nil {
			return Payload{}, err
		}
		if p.PropertyKey, err = readString(); err != nil {
			return Payload{}, err
		}

	case KindLinkTables, KindUnlinkTables, KindConfirmFieldMapping:
		var raw []byte
		raw, rest, err = msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return Payload{}, err
		}
		if p.SourceTable, err = ids.TableIDFromBytes(raw); err != nil {
			return Payload{}, err
		}
		raw, rest, err = msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return Payload{}, err
		}
		if p.TargetTable, err = ids.TableIDFromBytes(raw); err != nil {
			return Payload{}, err
		}
		var cnt uint32
		cnt, rest, err = msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return Payload{}, err
		}
		for i := uint32(0); i < cnt; i++ {
			var pairLen uint32
			pairLen, rest, err = msgp.ReadArrayHeaderBytes(rest)
			if err != nil || pairLen != 2 {
				return Payload{}, fmt.Errorf("ops: bad field mapping pair")
			}
			sc, err := readString()
			if err != nil {
				return Payload{}, err
			}
			tc, err := readString()
			if err != nil {
				return Payload{}, err
			}
			p.FieldMappings = append(p.FieldMappings, FieldMapping{SourceColumn: sc, TargetColumn: tc})
		}
		if p.SourceField, err = readString(); err != nil {
			return Payload{}, err
		}
		if p.TargetField, err = readString(); err != nil {
			return Payload{}, err
		}

	case KindAddToTable, KindRemoveFromTable:
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.Table, err = readString(); err != nil {
			return Payload{}, err
		}
		var cnt uint32
		cnt, rest, err = msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return Payload{}, err
		}
		for i := uint32(0); i < cnt; i++ {
			var pairLen uint32
			pairLen, rest, err = msgp.ReadArrayHeaderBytes(rest)
			if err != nil || pairLen != 2 {
				return Payload{}, fmt.Errorf("ops: bad table default pair")
			}
			field, err := readString()
			if err != nil {
				return Payload{}, err
			}
			val, err := readValue()
			if err != nil {
				return Payload{}, err
			}
			p.TableDefault = append(p.TableDefault, TableDefault{Field: field, Value: val})
		}

	case KindMergeEntities:
		if p.SurvivorID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.AbsorbedID, err = readEntityID(); err != nil {
			return Payload{}, err
		}

	case KindSplitEntity:
		if p.SourceID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		var cnt uint32
		cnt, rest, err = msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return Payload{}, err
		}
		for i := uint32(0); i < cnt; i++ {
			id, err := readEntityID()
			if err != nil {
				return Payload{}, err
			}
			p.NewEntityIDs = append(p.NewEntityIDs, id)
		}
		cnt, rest, err = msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return Payload{}, err
		}
		for i := uint32(0); i < cnt; i++ {
			f, err := readString()
			if err != nil {
				return Payload{}, err
			}
			p.SplitFacets = append(p.SplitFacets, f)
		}

	case KindCreateRule:
		var raw []byte
		raw, rest, err = msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return Payload{}, err
		}
		if p.RuleID, err = ids.RuleIDFromBytes(raw); err != nil {
			return Payload{}, err
		}
		if p.RuleName, err = readString(); err != nil {
			return Payload{}, err
		}
		if p.WhenClause, err = readString(); err != nil {
			return Payload{}, err
		}
		if p.ActionType, err = readString(); err != nil {
			return Payload{}, err
		}
		if p.ActionParams, err = readBytes(); err != nil {
			return Payload{}, err
		}
		if p.AutoAccept, err = readBool(); err != nil {
			return Payload{}, err
		}

	case KindResolveConflict:
		var raw []byte
		raw, rest, err = msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return Payload{}, err
		}
		if p.ConflictID, err = ids.ConflictIDFromBytes(raw); err != nil {
			return Payload{}, err
		}
		if p.EntityID, err = readEntityID(); err != nil {
			return Payload{}, err
		}
		if p.FieldKey, err = readString(); err != nil {
			return Payload{}, err
		}
		hasChosen, err := readBool()
		if err != nil {
			return Payload{}, err
		}
		if hasChosen {
			if p.ChosenValue, err = readValue(); err != nil {
				return Payload{}, err
			}
			p.HasChosen = true
		} else {
			if !msgp.IsNil(rest) {
				return Payload{}, fmt.Errorf("ops: expected nil chosen value")
			}
			rest = rest[msgp.NilSize:]
		}

	default:
		return Payload{}, fmt.Errorf("ops: unknown payload kind %d", kind)
	}

	return p, nil
}
