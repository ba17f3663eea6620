package avro

import (
	"fmt"

	"github.com/negram/aq/schema"
)

// tsvInstr is one slot of a compiled TSV projection program — the same
// shape as filterInstr but it also carries a Dumper, since every leaf
// slot needs to hand its value to the output sink rather than a
// predicate.
type tsvInstr func(buf *Buffer, d Dumper) (int, error)

// CompileTSVProgram compiles root into a flat tsvInstr program that
// emits every value relevant to proj to whatever Dumper it's run with.
func CompileTSVProgram(root schema.Node, proj *Projection) ([]tsvInstr, error) {
	return compileTSVNode(root, proj, 0)
}

// RunTSVProgram executes a program compiled by CompileTSVProgram.
func RunTSVProgram(prog []tsvInstr, buf *Buffer, d Dumper) error {
	for i := 0; i < len(prog); {
		n, err := prog[i](buf, d)
		if err != nil {
			return err
		}
		i += n
	}
	return nil
}

func marker(fn func(d Dumper)) tsvInstr {
	return func(_ *Buffer, d Dumper) (int, error) {
		fn(d)
		return 1, nil
	}
}

// markerSkip is marker with trailingSkip folded into the returned
// offset, for the one marker instruction (RecordEnd, ArrayEnd, MapEnd)
// that's genuinely the last slot of its node's program.
func markerSkip(fn func(d Dumper), trailingSkip int) tsvInstr {
	return func(_ *Buffer, d Dumper) (int, error) {
		fn(d)
		return 1 + trailingSkip, nil
	}
}

// compileTSVNode compiles node into a self-contained slice of
// instructions, with trailingSkip carrying the same meaning as in
// compileFilterNode: however the node finishes, the net advance from its
// start must be len(returned program) + trailingSkip.
func compileTSVNode(node schema.Node, proj *Projection, trailingSkip int) ([]tsvInstr, error) {
	switch t := node.(type) {
	case *schema.Record:
		prog := []tsvInstr{marker(func(d Dumper) { d.RecordBegin() })}
		for _, f := range t.Fields {
			name := f.Name
			prog = append(prog, marker(func(d Dumper) { d.FieldName(name) }))
			sub, err := compileTSVNode(f.Schema, proj, 0)
			if err != nil {
				return nil, err
			}
			prog = append(prog, sub...)
		}
		prog = append(prog, markerSkip(func(d Dumper) { d.RecordEnd() }, trailingSkip))
		return prog, nil

	case *schema.Union:
		return compileUnionTSV(t, proj, trailingSkip)

	case *schema.Array:
		return compileArrayTSV(t, proj, trailingSkip)

	case *schema.Map:
		return compileMapTSV(t, proj, trailingSkip)

	case *schema.Custom:
		if t.Definition == nil {
			return nil, fmt.Errorf("%w: unresolved type %q", ErrUnknownSchemaType, t.Name)
		}
		return compileTSVNode(t.Definition, proj, trailingSkip)

	case *schema.Enum:
		id := t.ID()
		symbols := t.Symbols
		instr := func(buf *Buffer, d Dumper) (int, error) {
			v, err := buf.ReadInt()
			if err != nil {
				return 0, err
			}
			idx := int(v)
			symbol := ""
			if idx >= 0 && idx < len(symbols) {
				symbol = symbols[idx]
			}
			if _, ok := proj.ColumnForNode(id); ok {
				d.Enum(id, symbol, idx)
			}
			return 1 + trailingSkip, nil
		}
		return []tsvInstr{instr}, nil

	default:
		return compilePrimitiveTSV(node, proj, trailingSkip)
	}
}

// compileUnionTSV mirrors compileUnionFilter's precomputed-offset jump
// table and the same trailing-skip propagation: each branch is compiled
// with its own trailing skip set to "every branch to its right, plus
// whatever trailingSkip the union itself was asked to honor", so
// finishing any branch — not just the last one — lands on the union's
// end. No marker call wraps the dispatch itself since avroq's own
// dumpDocument never calls the dumper for a Union node, only for the
// branch it resolves to.
func compileUnionTSV(u *schema.Union, proj *Projection, trailingSkip int) ([]tsvInstr, error) {
	lens := make([]int, len(u.Branches))
	for i, b := range u.Branches {
		sub, err := compileTSVNode(b, proj, 0)
		if err != nil {
			return nil, err
		}
		lens[i] = len(sub)
	}
	offsets := make([]int, len(u.Branches))
	acc := 1
	for i, l := range lens {
		offsets[i] = acc
		acc += l
	}

	branchProgs := make([][]tsvInstr, len(u.Branches))
	for i, b := range u.Branches {
		suffix := acc - (offsets[i] + lens[i]) + trailingSkip
		sub, err := compileTSVNode(b, proj, suffix)
		if err != nil {
			return nil, err
		}
		branchProgs[i] = sub
	}

	dispatch := func(buf *Buffer, _ Dumper) (int, error) {
		tag, err := buf.ReadLong()
		if err != nil {
			return 0, err
		}
		idx := int(tag)
		if idx < 0 || idx >= len(offsets) {
			return 0, fmt.Errorf("%w: union tag %d out of range", ErrMalformedVarint, idx)
		}
		return offsets[idx], nil
	}

	prog := make([]tsvInstr, 0, acc)
	prog = append(prog, dispatch)
	for _, bp := range branchProgs {
		prog = append(prog, bp...)
	}
	return prog, nil
}

func compileArrayTSV(arr *schema.Array, proj *Projection, trailingSkip int) ([]tsvInstr, error) {
	itemProg, err := compileTSVNode(arr.Items, proj, 0)
	if err != nil {
		return nil, err
	}
	prog := []tsvInstr{marker(func(d Dumper) { d.ArrayBegin() })}
	loop := func(buf *Buffer, d Dumper) (int, error) {
		for {
			count, _, err := readBlockCount(buf)
			if err != nil {
				return 0, err
			}
			if count == 0 {
				return 1, nil
			}
			for i := int64(0); i < count; i++ {
				if err := RunTSVProgram(itemProg, buf, d); err != nil {
					return 0, err
				}
			}
		}
	}
	prog = append(prog, loop, markerSkip(func(d Dumper) { d.ArrayEnd() }, trailingSkip))
	return prog, nil
}

func compileMapTSV(m *schema.Map, proj *Projection, trailingSkip int) ([]tsvInstr, error) {
	if err := validateMapValueKind(m.Values); err != nil {
		return nil, err
	}
	valueProg, err := compileTSVNode(m.Values, proj, 0)
	if err != nil {
		return nil, err
	}
	prog := []tsvInstr{marker(func(d Dumper) { d.MapBegin() })}
	loop := func(buf *Buffer, d Dumper) (int, error) {
		for {
			count, _, err := readBlockCount(buf)
			if err != nil {
				return 0, err
			}
			if count == 0 {
				return 1, nil
			}
			for i := int64(0); i < count; i++ {
				key, err := buf.ReadString()
				if err != nil {
					return 0, err
				}
				d.MapName(key)
				if err := RunTSVProgram(valueProg, buf, d); err != nil {
					return 0, err
				}
			}
		}
	}
	prog = append(prog, loop, markerSkip(func(d Dumper) { d.MapEnd() }, trailingSkip))
	return prog, nil
}

// compilePrimitiveTSV gates every dumper call on proj actually projecting
// this node: a node outside the projection still has to be read off buf
// (to keep the cursor in sync) but never needs to reach the Dumper,
// matching compilePrimitiveFilter's bound check. dumper.TSV.set already
// no-ops for unmapped column ids, but skipping the call here avoids
// paying for it on every unprojected leaf of the hot compiled path.
func compilePrimitiveTSV(node schema.Node, proj *Projection, trailingSkip int) ([]tsvInstr, error) {
	id := node.ID()
	_, projected := proj.ColumnForNode(id)
	switch node.Kind() {
	case schema.KindString, schema.KindBytes:
		instr := func(buf *Buffer, d Dumper) (int, error) {
			if projected {
				s, err := buf.ReadString()
				if err != nil {
					return 0, err
				}
				d.String(id, s)
				return 1 + trailingSkip, nil
			}
			if err := buf.SkipString(); err != nil {
				return 0, err
			}
			return 1 + trailingSkip, nil
		}
		return []tsvInstr{instr}, nil
	case schema.KindInt:
		instr := func(buf *Buffer, d Dumper) (int, error) {
			v, err := buf.ReadInt()
			if err != nil {
				return 0, err
			}
			if projected {
				d.Int(id, v)
			}
			return 1 + trailingSkip, nil
		}
		return []tsvInstr{instr}, nil
	case schema.KindLong:
		instr := func(buf *Buffer, d Dumper) (int, error) {
			v, err := buf.ReadLong()
			if err != nil {
				return 0, err
			}
			if projected {
				d.Long(id, v)
			}
			return 1 + trailingSkip, nil
		}
		return []tsvInstr{instr}, nil
	case schema.KindFloat:
		instr := func(buf *Buffer, d Dumper) (int, error) {
			v, err := buf.ReadFloat()
			if err != nil {
				return 0, err
			}
			if projected {
				d.Float(id, v)
			}
			return 1 + trailingSkip, nil
		}
		return []tsvInstr{instr}, nil
	case schema.KindDouble:
		instr := func(buf *Buffer, d Dumper) (int, error) {
			v, err := buf.ReadDouble()
			if err != nil {
				return 0, err
			}
			if projected {
				d.Double(id, v)
			}
			return 1 + trailingSkip, nil
		}
		return []tsvInstr{instr}, nil
	case schema.KindBoolean:
		instr := func(buf *Buffer, d Dumper) (int, error) {
			v, err := buf.ReadBoolean()
			if err != nil {
				return 0, err
			}
			if projected {
				d.Boolean(id, v)
			}
			return 1 + trailingSkip, nil
		}
		return []tsvInstr{instr}, nil
	case schema.KindNull:
		instr := func(_ *Buffer, d Dumper) (int, error) {
			if projected {
				d.Null(id)
			}
			return 1 + trailingSkip, nil
		}
		return []tsvInstr{instr}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchemaType, node.Kind())
	}
}
