package avro

import (
	"fmt"

	"github.com/negram/aq/schema"
)

// filterInstr is one slot of a compiled filter program. It returns how
// many slots to advance past itself — 1 plus any trailing skip it was
// compiled with (the last slot of a union branch skips the branches to
// its right), except the union dispatch instruction, which jumps straight
// to the branch the record's tag selected instead of executing every
// earlier branch's slots.
//
// This is spec.md §4.5's Compiled Walker: a flat instruction array built
// once per distinct schema (never per record), avoiding the recursive
// walker's per-record schema traversal. The teacher's decoder.go
// (instr []decodeInstruction, executed by a sequential for-loop with a
// fast-path switch) is the Go idiom this follows; the actual control
// flow — instructions returning how far to jump, union branches resolved
// by a precomputed per-tag offset table rather than a fixed stride — is
// necessary here because Avro union branches aren't fixed-width the way
// glint's wire-tagged fields are.
type filterInstr func(buf *Buffer) (int, error)

// CompileFilterProgram compiles root into a flat filterInstr program
// that applies every predicate leaf in pl as it consumes buf.
func CompileFilterProgram(root schema.Node, pl *PredicateList) ([]filterInstr, error) {
	return compileFilterNode(root, pl, 0)
}

// RunFilterProgram executes a program compiled by CompileFilterProgram
// against buf.
func RunFilterProgram(prog []filterInstr, buf *Buffer) error {
	for i := 0; i < len(prog); {
		n, err := prog[i](buf)
		if err != nil {
			return err
		}
		i += n
	}
	return nil
}

// compileFilterNode compiles node into a self-contained slice of
// instructions. trailingSkip is how many extra slots, beyond this node's
// own program, the caller needs skipped once the node is fully consumed
// — e.g. a field buried inside a union branch that must land past every
// sibling branch, not just past its own program. Every node type must
// guarantee that, however it finishes (and a Union may finish by any one
// of several branches), the net effect is advancing exactly
// len(returned program) + trailingSkip slots from the node's start. This
// mirrors avroq's blockdecoder.cc elementsToSkip parameter threaded
// through compileFilteringParser, generalized to Go's value-returning
// closures instead of a shared mutable instruction vector built back to
// front.
func compileFilterNode(node schema.Node, pl *PredicateList, trailingSkip int) ([]filterInstr, error) {
	switch t := node.(type) {
	case *schema.Record:
		if len(t.Fields) == 0 {
			return []filterInstr{skipFilterInstr(trailingSkip)}, nil
		}
		var prog []filterInstr
		for i, f := range t.Fields {
			skip := 0
			if i == len(t.Fields)-1 {
				skip = trailingSkip
			}
			sub, err := compileFilterNode(f.Schema, pl, skip)
			if err != nil {
				return nil, err
			}
			prog = append(prog, sub...)
		}
		return prog, nil

	case *schema.Union:
		return compileUnionFilter(t, pl, trailingSkip)

	case *schema.Array:
		return compileArrayFilter(t, pl, trailingSkip)

	case *schema.Map:
		return compileMapFilter(t, pl, trailingSkip)

	case *schema.Custom:
		if t.Definition == nil {
			return nil, fmt.Errorf("%w: unresolved type %q", ErrUnknownSchemaType, t.Name)
		}
		return compileFilterNode(t.Definition, pl, trailingSkip)

	case *schema.Enum:
		id := t.ID()
		instr := func(buf *Buffer) (int, error) {
			v, err := buf.ReadInt()
			if err != nil {
				return 0, err
			}
			if pl.BoundToNode(id) {
				pl.ApplyInt(id, int64(v))
			}
			return 1 + trailingSkip, nil
		}
		return []filterInstr{instr}, nil

	default:
		return compilePrimitiveFilter(node, pl, trailingSkip)
	}
}

// skipFilterInstr is the degenerate program for a fieldless record: it
// consumes nothing but still has to carry trailingSkip past whatever
// sits after it.
func skipFilterInstr(trailingSkip int) filterInstr {
	return func(*Buffer) (int, error) { return 1 + trailingSkip, nil }
}

// compileUnionFilter lays out a dispatch instruction followed by every
// branch's compiled program back to back, with a precomputed per-tag
// jump table into the chosen branch. Every branch is itself compiled
// with its OWN trailing skip set to "the length of every branch to its
// right, plus whatever the union's caller asked us to skip" — so no
// matter which branch a record's tag selects, finishing that branch
// lands exactly at the union's end, not at the start of the next
// unselected branch. This is the piece avroq's compileFilteringParser
// gets from iterating branches back to front and accumulating
// elementsLeft; branch lengths here don't depend on trailingSkip, so a
// first pass measures them and a second pass compiles each branch with
// the skip value it actually needs.
//
// NullIndex always comes from the schema's own explicit, always-computed
// field (schema.Union.NullIndex is -1 only when genuinely no branch is
// Null) — never an unset sentinel that's silently never populated.
func compileUnionFilter(u *schema.Union, pl *PredicateList, trailingSkip int) ([]filterInstr, error) {
	lens := make([]int, len(u.Branches))
	for i, b := range u.Branches {
		sub, err := compileFilterNode(b, pl, 0)
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

	branchProgs := make([][]filterInstr, len(u.Branches))
	for i, b := range u.Branches {
		suffix := acc - (offsets[i] + lens[i]) + trailingSkip
		sub, err := compileFilterNode(b, pl, suffix)
		if err != nil {
			return nil, err
		}
		branchProgs[i] = sub
	}

	unionID := u.ID()
	nullIndex := u.NullIndex

	dispatch := func(buf *Buffer) (int, error) {
		tag, err := buf.ReadLong()
		if err != nil {
			return 0, err
		}
		idx := int(tag)
		if idx < 0 || idx >= len(offsets) {
			return 0, fmt.Errorf("%w: union tag %d out of range", ErrMalformedVarint, idx)
		}
		if pl.BoundToUnion(unionID) {
			pl.ApplyUnionTag(unionID, idx == nullIndex)
		}
		return offsets[idx], nil
	}

	prog := make([]filterInstr, 0, acc)
	prog = append(prog, dispatch)
	for _, bp := range branchProgs {
		prog = append(prog, bp...)
	}
	return prog, nil
}

// compileArrayFilter and compileMapFilter fall back to running their
// element/value sub-program in a loop from a single instruction rather
// than unrolling it per element into the outer array — the same
// pragmatic choice avroq's SkipArray/ApplyArray/SkipMap make by calling
// back into the recursive decoder for the element type instead of
// inlining it into the compiled instruction stream.
func compileArrayFilter(arr *schema.Array, pl *PredicateList, trailingSkip int) ([]filterInstr, error) {
	itemProg, err := compileFilterNode(arr.Items, pl, 0)
	if err != nil {
		return nil, err
	}
	arrID := arr.ID()
	bound := pl.BoundToArray(arrID) || referencesAnyNode(arr.Items, pl)

	instr := func(buf *Buffer) (int, error) {
		for {
			count, byteSize, err := readBlockCount(buf)
			if err != nil {
				return 0, err
			}
			if count == 0 {
				return 1 + trailingSkip, nil
			}
			if !bound && byteSize > 0 {
				if err := buf.Skip(int(byteSize)); err != nil {
					return 0, err
				}
				continue
			}
			for i := int64(0); i < count; i++ {
				if err := RunFilterProgram(itemProg, buf); err != nil {
					return 0, err
				}
				if pl.BoundToArray(arrID) {
					pl.PushArrayState(arrID)
				}
			}
		}
	}
	return []filterInstr{instr}, nil
}

func compileMapFilter(m *schema.Map, pl *PredicateList, trailingSkip int) ([]filterInstr, error) {
	if err := validateMapValueKind(m.Values); err != nil {
		return nil, err
	}
	valueProg, err := compileFilterNode(m.Values, pl, 0)
	if err != nil {
		return nil, err
	}
	bound := referencesAnyNode(m.Values, pl)

	instr := func(buf *Buffer) (int, error) {
		for {
			count, byteSize, err := readBlockCount(buf)
			if err != nil {
				return 0, err
			}
			if count == 0 {
				return 1 + trailingSkip, nil
			}
			if !bound && byteSize > 0 {
				if err := buf.Skip(int(byteSize)); err != nil {
					return 0, err
				}
				continue
			}
			for i := int64(0); i < count; i++ {
				if err := buf.SkipString(); err != nil {
					return 0, err
				}
				if err := RunFilterProgram(valueProg, buf); err != nil {
					return 0, err
				}
			}
		}
	}
	return []filterInstr{instr}, nil
}

func compilePrimitiveFilter(node schema.Node, pl *PredicateList, trailingSkip int) ([]filterInstr, error) {
	id := node.ID()
	bound := pl.BoundToNode(id)
	switch node.Kind() {
	case schema.KindString, schema.KindBytes:
		instr := func(buf *Buffer) (int, error) {
			if bound {
				s, err := buf.ReadString()
				if err != nil {
					return 0, err
				}
				pl.ApplyString(id, s)
				return 1 + trailingSkip, nil
			}
			if err := buf.SkipString(); err != nil {
				return 0, err
			}
			return 1 + trailingSkip, nil
		}
		return []filterInstr{instr}, nil
	case schema.KindInt:
		instr := func(buf *Buffer) (int, error) {
			v, err := buf.ReadInt()
			if err != nil {
				return 0, err
			}
			if bound {
				pl.ApplyInt(id, int64(v))
			}
			return 1 + trailingSkip, nil
		}
		return []filterInstr{instr}, nil
	case schema.KindLong:
		instr := func(buf *Buffer) (int, error) {
			v, err := buf.ReadLong()
			if err != nil {
				return 0, err
			}
			if bound {
				pl.ApplyInt(id, v)
			}
			return 1 + trailingSkip, nil
		}
		return []filterInstr{instr}, nil
	case schema.KindFloat:
		instr := func(buf *Buffer) (int, error) {
			_, err := buf.ReadFloat()
			if err != nil {
				return 0, err
			}
			return 1 + trailingSkip, nil
		}
		return []filterInstr{instr}, nil
	case schema.KindDouble:
		instr := func(buf *Buffer) (int, error) {
			_, err := buf.ReadDouble()
			if err != nil {
				return 0, err
			}
			return 1 + trailingSkip, nil
		}
		return []filterInstr{instr}, nil
	case schema.KindBoolean:
		instr := func(buf *Buffer) (int, error) {
			v, err := buf.ReadBoolean()
			if err != nil {
				return 0, err
			}
			if bound {
				pl.ApplyBool(id, v)
			}
			return 1 + trailingSkip, nil
		}
		return []filterInstr{instr}, nil
	case schema.KindNull:
		instr := func(buf *Buffer) (int, error) { return 1 + trailingSkip, nil }
		return []filterInstr{instr}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchemaType, node.Kind())
	}
}
