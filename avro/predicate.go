package avro

import "github.com/negram/aq/schema"

// CompareOp is the comparison a predicate leaf applies.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
)

// ValueKind tags the kind of constant or decoded value a predicate leaf
// compares against. Only the kinds the filter grammar can produce
// (spec.md §6: string, int, nil) are modelled.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueString
	ValueInt
)

// Value is a small tagged union for predicate constants and the values
// read off the wire to compare against them.
type Value struct {
	Kind ValueKind
	Str  string
	Int  int64
}

func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }
func IntValue(v int64) Value     { return Value{Kind: ValueInt, Int: v} }

var NullConstant = Value{Kind: ValueNull}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ValueString:
		return a.Str == b.Str
	case ValueInt:
		return a.Int == b.Int
	default:
		return true
	}
}

// Expr is a node in a compiled filter expression tree: And, Or, or Leaf.
// filter.Compile builds these; the core never imports the filter grammar
// package, only this result type.
type Expr interface{ isExpr() }

type And struct{ Left, Right Expr }
type Or struct{ Left, Right Expr }

// Leaf compares the value reached by Path (dotted field names) against
// Constant using Op.
type Leaf struct {
	Path     []string
	Op       CompareOp
	Constant Value
}

func (*And) isExpr()  {}
func (*Or) isExpr()   {}
func (*Leaf) isExpr() {}

// leafState is the transient, per-record binding of a Leaf to a schema
// node: which node ID the walker will report values for, whether that
// node sits behind a union (for null-branch tracking) or inside an array
// (for "exists" accumulation across elements).
type leafState struct {
	op       CompareOp
	constant Value

	nodeID  int
	unionID int
	arrayID int

	isNull         bool
	valueSet       bool
	value          Value
	arraySatisfied bool
}

func (l *leafState) calcSatisfied() bool {
	if l.constant.Kind == ValueNull {
		if l.op == OpEq {
			return l.isNull
		}
		return !l.isNull
	}
	if l.isNull {
		return l.op == OpNe
	}
	if !l.valueSet {
		return l.op == OpNe
	}
	eq := valuesEqual(l.value, l.constant)
	if l.op == OpEq {
		return eq
	}
	return !eq
}

func (l *leafState) satisfied() bool {
	if l.arrayID >= 0 {
		return l.arraySatisfied
	}
	return l.calcSatisfied()
}

// PredicateList binds a compiled filter Expr tree against a concrete
// schema, resolving every Leaf's dotted path to a schema node ID once so
// the walker (recursive or compiled) only ever does an O(1) map lookup
// per node it visits, the same way avroq's BlockDecoder looks predicates
// up by schema node via getEqualRange instead of re-walking paths per
// record.
type PredicateList struct {
	root schema.Node
	expr Expr

	leaves  []*leafState
	byExpr  map[*Leaf]*leafState
	byNode  map[int][]*leafState
	byUnion map[int][]*leafState
	byArray map[int][]*leafState
}

// NewPredicateList binds expr against root. It fails with ErrPathNotFound
// if any leaf's path does not resolve against the schema.
func NewPredicateList(root schema.Node, expr Expr) (*PredicateList, error) {
	pl := &PredicateList{
		root:    root,
		expr:    expr,
		byExpr:  map[*Leaf]*leafState{},
		byNode:  map[int][]*leafState{},
		byUnion: map[int][]*leafState{},
		byArray: map[int][]*leafState{},
	}
	if err := pl.bindExpr(expr); err != nil {
		return nil, err
	}
	return pl, nil
}

func (pl *PredicateList) bindExpr(e Expr) error {
	switch t := e.(type) {
	case *And:
		if err := pl.bindExpr(t.Left); err != nil {
			return err
		}
		return pl.bindExpr(t.Right)
	case *Or:
		if err := pl.bindExpr(t.Left); err != nil {
			return err
		}
		return pl.bindExpr(t.Right)
	case *Leaf:
		return pl.bindLeaf(t)
	default:
		return nil
	}
}

func (pl *PredicateList) bindLeaf(leaf *Leaf) error {
	ls := &leafState{op: leaf.Op, constant: leaf.Constant, arrayID: -1, unionID: -1}
	nodeID, unionID, arrayID, err := bindPath(pl.root, leaf.Path)
	if err != nil {
		return err
	}
	ls.nodeID, ls.unionID, ls.arrayID = nodeID, unionID, arrayID

	pl.leaves = append(pl.leaves, ls)
	pl.byExpr[leaf] = ls
	pl.byNode[ls.nodeID] = append(pl.byNode[ls.nodeID], ls)
	if ls.unionID >= 0 {
		pl.byUnion[ls.unionID] = append(pl.byUnion[ls.unionID], ls)
	}
	if ls.arrayID >= 0 {
		pl.byArray[ls.arrayID] = append(pl.byArray[ls.arrayID], ls)
	}
	return nil
}

// unwrapTransparent skips over Array and Custom nodes that don't consume
// a path segment (arrays are indexed implicitly, custom references are
// resolved by name already), recording the nearest enclosing array's ID.
func unwrapTransparent(n schema.Node, arrayID *int) schema.Node {
	for {
		switch t := n.(type) {
		case *schema.Array:
			*arrayID = t.ID()
			n = t.Items
		case *schema.Custom:
			if t.Definition == nil {
				return nil
			}
			n = t.Definition
		default:
			return n
		}
	}
}

// promotableBranch picks the branch a predicate leaf binds its value to
// when a dotted path resolves to a union: the first branch found by
// kind, trying String, Int, Long, Boolean, Double, Float in that order.
// The walkers never feed Float or Double values to predicates. The
// union's own ID is tracked separately so ApplyUnionTag can still set
// isNull when the record actually took the null branch.
func promotableBranch(u *schema.Union) schema.Node {
	for _, kind := range []schema.Kind{schema.KindString, schema.KindInt, schema.KindLong, schema.KindBoolean, schema.KindDouble, schema.KindFloat} {
		for _, b := range u.Branches {
			if b.Kind() == kind {
				return b
			}
		}
	}
	return nil
}

func bindPath(root schema.Node, path []string) (nodeID, unionID, arrayID int, err error) {
	node := root
	arrayID = -1
	for _, seg := range path {
		node = unwrapTransparent(node, &arrayID)
		if node == nil {
			return 0, 0, 0, ErrPathNotFound
		}
		switch t := node.(type) {
		case *schema.Record:
			next := fieldByName(t, seg)
			if next == nil {
				return 0, 0, 0, ErrPathNotFound
			}
			node = next
		case *schema.Union:
			next := recordBranchByName(t, seg)
			if next == nil {
				return 0, 0, 0, ErrPathNotFound
			}
			node = next
		default:
			return 0, 0, 0, ErrPathNotFound
		}
	}
	node = unwrapTransparent(node, &arrayID)
	if node == nil {
		return 0, 0, 0, ErrPathNotFound
	}
	unionID = -1
	resolvedID := node.ID()
	if u, ok := node.(*schema.Union); ok {
		unionID = u.ID()
		if branch := promotableBranch(u); branch != nil {
			resolvedID = branch.ID()
		}
	}
	return resolvedID, unionID, arrayID, nil
}

func fieldByName(r *schema.Record, name string) schema.Node {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Schema
		}
	}
	return nil
}

func recordBranchByName(u *schema.Union, name string) schema.Node {
	for _, b := range u.Branches {
		if r, ok := b.(*schema.Record); ok && r.Name == name {
			return r
		}
	}
	return nil
}

// ResetState clears every leaf's transient per-record state. Call before
// decoding each record.
func (pl *PredicateList) ResetState() {
	for _, l := range pl.leaves {
		l.isNull = false
		l.valueSet = false
		l.arraySatisfied = false
	}
}

// BoundToNode reports whether any leaf reads its value from node id.
func (pl *PredicateList) BoundToNode(id int) bool { return len(pl.byNode[id]) > 0 }

// BoundToUnion reports whether any leaf needs this union's null-branch
// tag.
func (pl *PredicateList) BoundToUnion(id int) bool { return len(pl.byUnion[id]) > 0 }

// BoundToArray reports whether any leaf accumulates "exists" state across
// this array's elements.
func (pl *PredicateList) BoundToArray(id int) bool { return len(pl.byArray[id]) > 0 }

// ApplyString feeds a decoded string value to every leaf bound to nodeID.
func (pl *PredicateList) ApplyString(nodeID int, s string) {
	for _, l := range pl.byNode[nodeID] {
		l.isNull, l.valueSet, l.value = false, true, StringValue(s)
	}
}

// ApplyInt feeds a decoded int/long value to every leaf bound to nodeID.
func (pl *PredicateList) ApplyInt(nodeID int, v int64) {
	for _, l := range pl.byNode[nodeID] {
		l.isNull, l.valueSet, l.value = false, true, IntValue(v)
	}
}

// ApplyBool feeds a decoded boolean value (as Int 0/1) to every leaf
// bound to nodeID.
func (pl *PredicateList) ApplyBool(nodeID int, v bool) {
	var i int64
	if v {
		i = 1
	}
	pl.ApplyInt(nodeID, i)
}

// ApplyUnionTag notifies every leaf bound to unionID whether the union
// resolved to its null branch this record.
func (pl *PredicateList) ApplyUnionTag(unionID int, isNullBranch bool) {
	for _, l := range pl.byUnion[unionID] {
		if isNullBranch {
			l.isNull, l.valueSet = true, false
		}
	}
}

// PushArrayState commits each array-bound leaf's per-element result into
// its "exists" accumulator and clears the transient per-element state,
// implementing the exists-within-array semantics of spec.md §4.3.
func (pl *PredicateList) PushArrayState(arrayID int) {
	for _, l := range pl.byArray[arrayID] {
		if l.valueSet || l.isNull {
			if l.calcSatisfied() {
				l.arraySatisfied = true
			}
		}
		l.valueSet, l.isNull = false, false
	}
}

// Evaluate runs the AND/OR tree against the current per-record state.
func (pl *PredicateList) Evaluate() bool {
	return pl.eval(pl.expr)
}

func (pl *PredicateList) eval(e Expr) bool {
	switch t := e.(type) {
	case *And:
		return pl.eval(t.Left) && pl.eval(t.Right)
	case *Or:
		return pl.eval(t.Left) || pl.eval(t.Right)
	case *Leaf:
		return pl.byExpr[t].satisfied()
	default:
		return false
	}
}
