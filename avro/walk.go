package avro

import (
	"fmt"

	"github.com/negram/aq/schema"
)

// readBlockCount reads Avro's zero-terminated array/map block-count
// prefix. A negative count is followed by a byte-size hint covering the
// block; callers may use it to skip the block in a single Buffer.Skip
// instead of decoding element-by-element when nothing inside the block
// is observed.
func readBlockCount(buf *Buffer) (count int64, byteSize int64, err error) {
	count, err = buf.ReadLong()
	if err != nil {
		return 0, 0, err
	}
	if count < 0 {
		byteSize, err = buf.ReadLong()
		if err != nil {
			return 0, 0, err
		}
		count = -count
	}
	return count, byteSize, nil
}

func validateMapValueKind(values schema.Node) error {
	switch values.Kind() {
	case schema.KindString, schema.KindBytes, schema.KindInt, schema.KindLong:
		return nil
	default:
		return fmt.Errorf("%w: map value kind %s (only string/bytes/int/long are supported)", ErrUnknownSchemaType, values.Kind())
	}
}

// WalkFilter decodes node from buf, applying every bound predicate value
// as it goes. It is the reference recursive walker of spec.md §4.4 run in
// filter mode: no dumper involved, used purely to evaluate the predicate
// tree before deciding whether a record passes.
func WalkFilter(buf *Buffer, node schema.Node, pl *PredicateList) error {
	switch t := node.(type) {
	case *schema.Record:
		for _, f := range t.Fields {
			if err := WalkFilter(buf, f.Schema, pl); err != nil {
				return err
			}
		}
		return nil

	case *schema.Union:
		tag, err := buf.ReadLong()
		if err != nil {
			return err
		}
		idx := int(tag)
		if idx < 0 || idx >= len(t.Branches) {
			return fmt.Errorf("%w: union tag %d out of range", ErrMalformedVarint, idx)
		}
		if pl.BoundToUnion(t.ID()) {
			pl.ApplyUnionTag(t.ID(), idx == t.NullIndex)
		}
		return WalkFilter(buf, t.Branches[idx], pl)

	case *schema.Array:
		return walkArrayFilter(buf, t, pl)

	case *schema.Map:
		return walkMapFilter(buf, t, pl)

	case *schema.Custom:
		if t.Definition == nil {
			return fmt.Errorf("%w: unresolved type %q", ErrUnknownSchemaType, t.Name)
		}
		return WalkFilter(buf, t.Definition, pl)

	case *schema.Enum:
		v, err := buf.ReadInt()
		if err != nil {
			return err
		}
		if pl.BoundToNode(t.ID()) {
			pl.ApplyInt(t.ID(), int64(v))
		}
		return nil

	default:
		return walkPrimitiveFilter(buf, node, pl)
	}
}

func walkArrayFilter(buf *Buffer, arr *schema.Array, pl *PredicateList) error {
	bound := pl.BoundToArray(arr.ID()) || referencesAnyNode(arr.Items, pl)
	for {
		count, byteSize, err := readBlockCount(buf)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if !bound && byteSize > 0 {
			if err := buf.Skip(int(byteSize)); err != nil {
				return err
			}
			continue
		}
		for i := int64(0); i < count; i++ {
			if err := WalkFilter(buf, arr.Items, pl); err != nil {
				return err
			}
			if pl.BoundToArray(arr.ID()) {
				pl.PushArrayState(arr.ID())
			}
		}
	}
}

func walkMapFilter(buf *Buffer, m *schema.Map, pl *PredicateList) error {
	if err := validateMapValueKind(m.Values); err != nil {
		return err
	}
	bound := referencesAnyNode(m.Values, pl)
	for {
		count, byteSize, err := readBlockCount(buf)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if !bound && byteSize > 0 {
			if err := buf.Skip(int(byteSize)); err != nil {
				return err
			}
			continue
		}
		for i := int64(0); i < count; i++ {
			if err := buf.SkipString(); err != nil { // map key
				return err
			}
			if err := WalkFilter(buf, m.Values, pl); err != nil {
				return err
			}
		}
	}
}

// referencesAnyNode reports whether any predicate leaf is bound
// somewhere under node, used to decide whether an array/map block can be
// skipped wholesale via its byte-size hint.
func referencesAnyNode(node schema.Node, pl *PredicateList) bool {
	if pl.BoundToNode(node.ID()) {
		return true
	}
	switch t := node.(type) {
	case *schema.Record:
		for _, f := range t.Fields {
			if referencesAnyNode(f.Schema, pl) {
				return true
			}
		}
	case *schema.Union:
		if pl.BoundToUnion(t.ID()) {
			return true
		}
		for _, b := range t.Branches {
			if referencesAnyNode(b, pl) {
				return true
			}
		}
	case *schema.Array:
		return referencesAnyNode(t.Items, pl)
	case *schema.Map:
		return referencesAnyNode(t.Values, pl)
	case *schema.Custom:
		if t.Definition != nil {
			return referencesAnyNode(t.Definition, pl)
		}
	}
	return false
}

func walkPrimitiveFilter(buf *Buffer, node schema.Node, pl *PredicateList) error {
	bound := pl.BoundToNode(node.ID())
	switch node.Kind() {
	case schema.KindString, schema.KindBytes:
		if bound {
			s, err := buf.ReadString()
			if err != nil {
				return err
			}
			pl.ApplyString(node.ID(), s)
			return nil
		}
		return buf.SkipString()
	case schema.KindInt:
		v, err := buf.ReadInt()
		if err != nil {
			return err
		}
		if bound {
			pl.ApplyInt(node.ID(), int64(v))
		}
		return nil
	case schema.KindLong:
		v, err := buf.ReadLong()
		if err != nil {
			return err
		}
		if bound {
			pl.ApplyInt(node.ID(), v)
		}
		return nil
	case schema.KindFloat:
		if _, err := buf.ReadFloat(); err != nil {
			return err
		}
		return nil
	case schema.KindDouble:
		if _, err := buf.ReadDouble(); err != nil {
			return err
		}
		return nil
	case schema.KindBoolean:
		v, err := buf.ReadBoolean()
		if err != nil {
			return err
		}
		if bound {
			pl.ApplyBool(node.ID(), v)
		}
		return nil
	case schema.KindNull:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSchemaType, node.Kind())
	}
}

// WalkDump decodes node from buf and emits every value to d. It assumes
// the record has already passed any filter (or no filter is set) and
// never touches a PredicateList, mirroring avroq's separate
// dumpDocument pass.
func WalkDump(buf *Buffer, node schema.Node, d Dumper) error {
	switch t := node.(type) {
	case *schema.Record:
		d.RecordBegin()
		for _, f := range t.Fields {
			d.FieldName(f.Name)
			if err := WalkDump(buf, f.Schema, d); err != nil {
				return err
			}
		}
		d.RecordEnd()
		return nil

	case *schema.Union:
		tag, err := buf.ReadLong()
		if err != nil {
			return err
		}
		idx := int(tag)
		if idx < 0 || idx >= len(t.Branches) {
			return fmt.Errorf("%w: union tag %d out of range", ErrMalformedVarint, idx)
		}
		return WalkDump(buf, t.Branches[idx], d)

	case *schema.Array:
		d.ArrayBegin()
		for {
			count, byteSize, err := readBlockCount(buf)
			if err != nil {
				return err
			}
			if count == 0 {
				break
			}
			_ = byteSize
			for i := int64(0); i < count; i++ {
				if err := WalkDump(buf, t.Items, d); err != nil {
					return err
				}
			}
		}
		d.ArrayEnd()
		return nil

	case *schema.Map:
		if err := validateMapValueKind(t.Values); err != nil {
			return err
		}
		d.MapBegin()
		for {
			count, byteSize, err := readBlockCount(buf)
			if err != nil {
				return err
			}
			if count == 0 {
				break
			}
			_ = byteSize
			for i := int64(0); i < count; i++ {
				key, err := buf.ReadString()
				if err != nil {
					return err
				}
				d.MapName(key)
				if err := WalkDump(buf, t.Values, d); err != nil {
					return err
				}
			}
		}
		d.MapEnd()
		return nil

	case *schema.Custom:
		if t.Definition == nil {
			return fmt.Errorf("%w: unresolved type %q", ErrUnknownSchemaType, t.Name)
		}
		return WalkDump(buf, t.Definition, d)

	case *schema.Enum:
		v, err := buf.ReadInt()
		if err != nil {
			return err
		}
		idx := int(v)
		symbol := ""
		if idx >= 0 && idx < len(t.Symbols) {
			symbol = t.Symbols[idx]
		}
		d.Enum(t.ID(), symbol, idx)
		return nil

	default:
		return dumpPrimitive(buf, node, d)
	}
}

func dumpPrimitive(buf *Buffer, node schema.Node, d Dumper) error {
	switch node.Kind() {
	case schema.KindString, schema.KindBytes:
		s, err := buf.ReadString()
		if err != nil {
			return err
		}
		d.String(node.ID(), s)
		return nil
	case schema.KindInt:
		v, err := buf.ReadInt()
		if err != nil {
			return err
		}
		d.Int(node.ID(), v)
		return nil
	case schema.KindLong:
		v, err := buf.ReadLong()
		if err != nil {
			return err
		}
		d.Long(node.ID(), v)
		return nil
	case schema.KindFloat:
		v, err := buf.ReadFloat()
		if err != nil {
			return err
		}
		d.Float(node.ID(), v)
		return nil
	case schema.KindDouble:
		v, err := buf.ReadDouble()
		if err != nil {
			return err
		}
		d.Double(node.ID(), v)
		return nil
	case schema.KindBoolean:
		v, err := buf.ReadBoolean()
		if err != nil {
			return err
		}
		d.Boolean(node.ID(), v)
		return nil
	case schema.KindNull:
		d.Null(node.ID())
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSchemaType, node.Kind())
	}
}
