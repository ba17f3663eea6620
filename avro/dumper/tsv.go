// Package dumper implements the two output Dumper implementations the
// core decoder feeds: TSV (projection-driven, one row per record) and
// Fool (an indented structured dump for interactive inspection), in the
// spirit of the teacher's printer.go tree-drawing output.
package dumper

import (
	"io"
	"strconv"
	"strings"

	"github.com/negram/aq/avro"
)

// TSV emits one tab-separated row per record, columns laid out by a
// Projection. A column no value touched in a record (e.g. a path inside
// a union branch the record did not take) is emitted empty; a projected
// union field whose record took the null branch is emitted as "null".
type TSV struct {
	w          io.Writer
	projection *avro.Projection
	slots      []string
	filled     []bool
}

// NewTSV builds a TSV dumper writing to w, columns ordered per
// projection.
func NewTSV(w io.Writer, projection *avro.Projection) *TSV {
	n := projection.NumColumns()
	return &TSV{
		w:          w,
		projection: projection,
		slots:      make([]string, n),
		filled:     make([]bool, n),
	}
}

func (t *TSV) set(id int, s string) {
	col, ok := t.projection.ColumnForNode(id)
	if !ok {
		return
	}
	t.slots[col] = s
	t.filled[col] = true
}

func (t *TSV) RecordBegin()        {}
func (t *TSV) RecordEnd()          {}
func (t *TSV) FieldName(string)    {}
func (t *TSV) ArrayBegin()         {}
func (t *TSV) ArrayEnd()           {}
func (t *TSV) MapBegin()           {}
func (t *TSV) MapEnd()             {}
func (t *TSV) MapName(string)      {}

func (t *TSV) String(id int, v string)   { t.set(id, v) }
func (t *TSV) Int(id int, v int32)       { t.set(id, strconv.FormatInt(int64(v), 10)) }
func (t *TSV) Long(id int, v int64)      { t.set(id, strconv.FormatInt(v, 10)) }
func (t *TSV) Float(id int, v float32)   { t.set(id, strconv.FormatFloat(float64(v), 'g', -1, 32)) }
func (t *TSV) Double(id int, v float64)  { t.set(id, strconv.FormatFloat(v, 'g', -1, 64)) }
func (t *TSV) Boolean(id int, v bool)    { t.set(id, strconv.FormatBool(v)) }
func (t *TSV) Null(id int)               { t.set(id, "null") }
func (t *TSV) Enum(id int, symbol string, _ int) { t.set(id, symbol) }

// EndDocument writes the accumulated row and resets for the next record.
// Columns no value ever touched this record are written empty, never
// causing a short row. The row goes to w in a single Write call.
func (t *TSV) EndDocument() {
	var row strings.Builder
	for i, s := range t.slots {
		if i > 0 {
			row.WriteString("\t")
		}
		row.WriteString(s)
		t.slots[i] = ""
		t.filled[i] = false
	}
	row.WriteString("\n")
	io.WriteString(t.w, row.String())
}
