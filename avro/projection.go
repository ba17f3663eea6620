package avro

import (
	"fmt"
	"strings"

	"github.com/negram/aq/schema"
)

// Projection maps dotted field paths to TSV column indices. A union
// branch is mapped to the same column as the union itself, so whichever
// branch a record actually took (including the null branch), the TSV
// dumper fills the same output column — matching spec.md's TSV
// Projection Spec.
type Projection struct {
	Paths      []string
	columnOf   map[int]int
	numColumns int
}

// NewProjection resolves each dotted path in paths against root.
func NewProjection(root schema.Node, paths []string) (*Projection, error) {
	p := &Projection{Paths: paths, columnOf: map[int]int{}, numColumns: len(paths)}
	for i, raw := range paths {
		segs := strings.Split(raw, ".")
		ids, err := bindProjectionPath(root, segs)
		if err != nil {
			return nil, fmt.Errorf("projection path %q: %w", raw, err)
		}
		for _, id := range ids {
			p.columnOf[id] = i
		}
	}
	return p, nil
}

// ColumnForNode reports which output column node id fills, if any.
func (p *Projection) ColumnForNode(id int) (int, bool) {
	c, ok := p.columnOf[id]
	return c, ok
}

// NumColumns is the number of projected output columns.
func (p *Projection) NumColumns() int { return p.numColumns }

func bindProjectionPath(root schema.Node, path []string) ([]int, error) {
	node := root
	arrayID := -1
	for _, seg := range path {
		node = unwrapTransparent(node, &arrayID)
		if node == nil {
			return nil, ErrPathNotFound
		}
		switch t := node.(type) {
		case *schema.Record:
			next := fieldByName(t, seg)
			if next == nil {
				return nil, ErrPathNotFound
			}
			node = next
		case *schema.Union:
			next := recordBranchByName(t, seg)
			if next == nil {
				return nil, ErrPathNotFound
			}
			node = next
		default:
			return nil, ErrPathNotFound
		}
	}
	node = unwrapTransparent(node, &arrayID)
	if node == nil {
		return nil, ErrPathNotFound
	}
	ids := []int{node.ID()}
	if u, ok := node.(*schema.Union); ok {
		for _, b := range u.Branches {
			ids = append(ids, b.ID())
		}
	}
	return ids, nil
}
