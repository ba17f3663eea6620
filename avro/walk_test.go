package avro_test

import (
	"bytes"
	"testing"

	"github.com/negram/aq/avro"
	"github.com/negram/aq/avro/dumper"
	"github.com/negram/aq/schema"
)

func zigzag(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }

func appendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

func appendLong(dst []byte, v int64) []byte { return appendVarint(dst, zigzag(v)) }

func appendString(dst []byte, s string) []byte {
	dst = appendLong(dst, int64(len(s)))
	return append(dst, s...)
}

func userSchema(t *testing.T) schema.Node {
	t.Helper()
	doc := []byte(`{
		"type": "record",
		"name": "User",
		"fields": [
			{"name": "id", "type": "long"},
			{"name": "name", "type": "string"},
			{"name": "nickname", "type": ["null", "string"]},
			{"name": "tags", "type": {"type": "array", "items": "string"}}
		]
	}`)
	n, err := schema.Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return n
}

func encodeUser(id int64, name string, nickname *string, tags []string) []byte {
	var raw []byte
	raw = appendLong(raw, id)
	raw = appendString(raw, name)
	if nickname == nil {
		raw = appendLong(raw, 0) // union tag 0 = null
	} else {
		raw = appendLong(raw, 1) // union tag 1 = string
		raw = appendString(raw, *nickname)
	}
	if len(tags) == 0 {
		raw = appendLong(raw, 0)
	} else {
		raw = appendLong(raw, int64(len(tags)))
		for _, tg := range tags {
			raw = appendString(raw, tg)
		}
		raw = appendLong(raw, 0)
	}
	return raw
}

func TestWalkFilterEqualityOnNestedField(t *testing.T) {
	root := userSchema(t)
	expr := &avro.Leaf{Path: []string{"name"}, Op: avro.OpEq, Constant: avro.StringValue("bob")}
	pl, err := avro.NewPredicateList(root, expr)
	if err != nil {
		t.Fatalf("NewPredicateList: %v", err)
	}

	nick := "bobby"
	raw := encodeUser(1, "bob", &nick, []string{"x"})
	buf := avro.NewBuffer(raw)
	pl.ResetState()
	if err := avro.WalkFilter(buf, root, pl); err != nil {
		t.Fatalf("WalkFilter: %v", err)
	}
	if !pl.Evaluate() {
		t.Fatalf("expected predicate to pass for name==bob")
	}

	raw2 := encodeUser(2, "alice", nil, nil)
	buf2 := avro.NewBuffer(raw2)
	pl.ResetState()
	if err := avro.WalkFilter(buf2, root, pl); err != nil {
		t.Fatalf("WalkFilter: %v", err)
	}
	if pl.Evaluate() {
		t.Fatalf("did not expect predicate to pass for name==alice")
	}
}

func TestWalkFilterUnionNullBranch(t *testing.T) {
	root := userSchema(t)
	expr := &avro.Leaf{Path: []string{"nickname"}, Op: avro.OpEq, Constant: avro.NullConstant}
	pl, err := avro.NewPredicateList(root, expr)
	if err != nil {
		t.Fatalf("NewPredicateList: %v", err)
	}

	raw := encodeUser(1, "bob", nil, nil)
	buf := avro.NewBuffer(raw)
	pl.ResetState()
	if err := avro.WalkFilter(buf, root, pl); err != nil {
		t.Fatalf("WalkFilter: %v", err)
	}
	if !pl.Evaluate() {
		t.Fatalf("expected nickname==nil to pass when nickname is null")
	}

	nick := "bobby"
	raw2 := encodeUser(1, "bob", &nick, nil)
	buf2 := avro.NewBuffer(raw2)
	pl.ResetState()
	if err := avro.WalkFilter(buf2, root, pl); err != nil {
		t.Fatalf("WalkFilter: %v", err)
	}
	if pl.Evaluate() {
		t.Fatalf("did not expect nickname==nil to pass when nickname is set")
	}
}

func TestWalkFilterArrayExists(t *testing.T) {
	root := userSchema(t)
	expr := &avro.Leaf{Path: []string{"tags"}, Op: avro.OpEq, Constant: avro.StringValue("vip")}
	pl, err := avro.NewPredicateList(root, expr)
	if err != nil {
		t.Fatalf("NewPredicateList: %v", err)
	}

	raw := encodeUser(1, "bob", nil, []string{"a", "vip", "b"})
	buf := avro.NewBuffer(raw)
	pl.ResetState()
	if err := avro.WalkFilter(buf, root, pl); err != nil {
		t.Fatalf("WalkFilter: %v", err)
	}
	if !pl.Evaluate() {
		t.Fatalf("expected tags==vip to pass when vip is among the tags")
	}

	raw2 := encodeUser(1, "bob", nil, []string{"a", "b"})
	buf2 := avro.NewBuffer(raw2)
	pl.ResetState()
	if err := avro.WalkFilter(buf2, root, pl); err != nil {
		t.Fatalf("WalkFilter: %v", err)
	}
	if pl.Evaluate() {
		t.Fatalf("did not expect tags==vip to pass when vip is absent")
	}
}

func TestWalkDumpTSVProjection(t *testing.T) {
	root := userSchema(t)
	proj, err := avro.NewProjection(root, []string{"name", "nickname"})
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}

	var out bytes.Buffer
	tsv := dumper.NewTSV(&out, proj)

	raw := encodeUser(1, "bob", nil, nil)
	buf := avro.NewBuffer(raw)
	if err := avro.WalkDump(buf, root, tsv); err != nil {
		t.Fatalf("WalkDump: %v", err)
	}
	tsv.EndDocument()

	nick := "bobby"
	raw2 := encodeUser(2, "alice", &nick, nil)
	buf2 := avro.NewBuffer(raw2)
	if err := avro.WalkDump(buf2, root, tsv); err != nil {
		t.Fatalf("WalkDump: %v", err)
	}
	tsv.EndDocument()

	want := "bob\tnull\nalice\tbobby\n"
	if out.String() != want {
		t.Fatalf("TSV output = %q, want %q", out.String(), want)
	}
}
