// Package schema models an Avro schema as a tagged tree of Node values.
//
// Unlike the C++ system this was ported from, there is no runtime
// is<T>()/as<T>() dynamic_cast chain: every Node reports its own Kind and
// callers switch on it (or type-switch on the concrete Node).
package schema

// Kind identifies the concrete shape of a Node.
type Kind int

const (
	KindRecord Kind = iota
	KindUnion
	KindArray
	KindMap
	KindEnum
	KindCustom
	KindString
	KindBytes
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindBoolean
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindUnion:
		return "union"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindEnum:
		return "enum"
	case KindCustom:
		return "custom"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindBoolean:
		return "boolean"
	case KindNull:
		return "null"
	default:
		return "unknown"
	}
}

// Node is a single node in a parsed schema tree. IDs are assigned in
// pre-order during parsing and are stable for the lifetime of the tree;
// the predicate engine and the compiled walker both index by Node ID
// rather than by name.
type Node interface {
	ID() int
	Kind() Kind
	// TypeName is the declared Avro type name (the record, enum or
	// referenced type's name for named types, the kind name otherwise).
	TypeName() string
	// ItemName is the name this node is reached by from its parent: a
	// field name inside a Record, empty elsewhere.
	ItemName() string
}

type base struct {
	id       int
	itemName string
}

func (b *base) ID() int          { return b.id }
func (b *base) ItemName() string { return b.itemName }

// Field is a named child of a Record.
type Field struct {
	Name   string
	Schema Node
}

// Record is an ordered sequence of named fields.
type Record struct {
	base
	Name   string
	Fields []Field
}

func (r *Record) Kind() Kind       { return KindRecord }
func (r *Record) TypeName() string { return r.Name }

// Union is an ordered sequence of branch schemas. NullIndex is -1 when no
// branch is null.
type Union struct {
	base
	Branches  []Node
	NullIndex int
}

func (u *Union) Kind() Kind       { return KindUnion }
func (u *Union) TypeName() string { return "union" }

// ContainsNull reports whether one of the union's branches is Null.
func (u *Union) ContainsNull() bool { return u.NullIndex >= 0 }

// Array has exactly one item-type child.
type Array struct {
	base
	Items Node
}

func (a *Array) Kind() Kind       { return KindArray }
func (a *Array) TypeName() string { return "array" }

// Map has exactly one value-type child. Only string, bytes, int and long
// value types are supported by the core decoder; other value kinds parse
// successfully here (so a structurally valid schema always loads) but are
// rejected with ErrUnknownSchemaType when the decoder compiles a program
// over the map or walks it.
type Map struct {
	base
	Values Node
}

func (m *Map) Kind() Kind       { return KindMap }
func (m *Map) TypeName() string { return "map" }

// Enum carries an ordered symbol table.
type Enum struct {
	base
	Name    string
	Symbols []string
}

func (e *Enum) Kind() Kind       { return KindEnum }
func (e *Enum) TypeName() string { return e.Name }

// Custom is a by-name reference to a previously-declared named type
// (record or enum), resolved against the parser's registry once parsing
// completes. Definition is nil until resolved.
type Custom struct {
	base
	Name       string
	Definition Node
}

func (c *Custom) Kind() Kind       { return KindCustom }
func (c *Custom) TypeName() string { return c.Name }

type primitive struct {
	base
	kind Kind
}

func (p *primitive) Kind() Kind       { return p.kind }
func (p *primitive) TypeName() string { return p.kind.String() }

// NodeByPath walks dotted path segments from root, descending through
// Record fields, Union branches (a record branch whose name is the
// segment, else the first branch in which the segment resolves), and
// Custom definitions. It returns nil if no such path exists.
func NodeByPath(root Node, path []string) Node {
	n := root
	for _, seg := range path {
		n = descend(n, seg)
		if n == nil {
			return nil
		}
	}
	return n
}

func descend(n Node, seg string) Node {
	switch t := n.(type) {
	case *Record:
		for _, f := range t.Fields {
			if f.Name == seg {
				return f.Schema
			}
		}
		return nil
	case *Union:
		for _, b := range t.Branches {
			if r, ok := b.(*Record); ok && r.Name == seg {
				return r
			}
		}
		for _, b := range t.Branches {
			if d := descend(b, seg); d != nil {
				return d
			}
		}
		return nil
	case *Custom:
		if t.Definition != nil {
			return descend(t.Definition, seg)
		}
		return nil
	default:
		return nil
	}
}
