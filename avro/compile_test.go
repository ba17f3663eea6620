package avro_test

import (
	"bytes"
	"testing"

	"github.com/negram/aq/avro"
	"github.com/negram/aq/avro/dumper"
	"github.com/negram/aq/schema"
)

func TestCompiledFilterMatchesRecursiveWalker(t *testing.T) {
	root := userSchema(t)
	expr := &avro.Leaf{Path: []string{"nickname"}, Op: avro.OpEq, Constant: avro.NullConstant}

	recursivePL, err := avro.NewPredicateList(root, expr)
	if err != nil {
		t.Fatalf("NewPredicateList: %v", err)
	}
	compiledPL, err := avro.NewPredicateList(root, expr)
	if err != nil {
		t.Fatalf("NewPredicateList: %v", err)
	}
	prog, err := avro.CompileFilterProgram(root, compiledPL)
	if err != nil {
		t.Fatalf("CompileFilterProgram: %v", err)
	}

	nick := "bobby"
	records := [][]byte{
		encodeUser(1, "bob", nil, []string{"x"}),
		encodeUser(2, "alice", &nick, nil),
	}

	for _, raw := range records {
		recursivePL.ResetState()
		if err := avro.WalkFilter(avro.NewBuffer(raw), root, recursivePL); err != nil {
			t.Fatalf("WalkFilter: %v", err)
		}
		compiledPL.ResetState()
		if err := avro.RunFilterProgram(prog, avro.NewBuffer(raw)); err != nil {
			t.Fatalf("RunFilterProgram: %v", err)
		}
		if recursivePL.Evaluate() != compiledPL.Evaluate() {
			t.Fatalf("recursive/compiled filter disagreement: %v != %v", recursivePL.Evaluate(), compiledPL.Evaluate())
		}
	}
}

func TestCompiledTSVMatchesRecursiveWalker(t *testing.T) {
	root := userSchema(t)
	proj, err := avro.NewProjection(root, []string{"id", "name", "nickname"})
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}
	prog, err := avro.CompileTSVProgram(root, proj)
	if err != nil {
		t.Fatalf("CompileTSVProgram: %v", err)
	}

	nick := "bobby"
	raw := encodeUser(7, "carol", &nick, []string{"vip"})

	var recursiveOut, compiledOut bytes.Buffer
	recursiveTSV := dumper.NewTSV(&recursiveOut, proj)
	if err := avro.WalkDump(avro.NewBuffer(raw), root, recursiveTSV); err != nil {
		t.Fatalf("WalkDump: %v", err)
	}
	recursiveTSV.EndDocument()

	compiledTSV := dumper.NewTSV(&compiledOut, proj)
	if err := avro.RunTSVProgram(prog, avro.NewBuffer(raw), compiledTSV); err != nil {
		t.Fatalf("RunTSVProgram: %v", err)
	}
	compiledTSV.EndDocument()

	if recursiveOut.String() != compiledOut.String() {
		t.Fatalf("recursive TSV %q != compiled TSV %q", recursiveOut.String(), compiledOut.String())
	}
	if recursiveOut.String() != "7\tcarol\tbobby\n" {
		t.Fatalf("unexpected TSV output %q", recursiveOut.String())
	}
}

// TestUnionNullIndexAlwaysComputed guards the spec's explicit Open
// Question: a union's NullIndex must be a real computed value (or an
// explicit -1 when no branch is null), never an unset/ignored sentinel.
func TestUnionNullIndexAlwaysComputed(t *testing.T) {
	withNull, err := schema.Parse([]byte(`["string", "null", "int"]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	u := withNull.(*schema.Union)
	if u.NullIndex != 1 {
		t.Fatalf("NullIndex = %d, want 1", u.NullIndex)
	}

	withoutNull, err := schema.Parse([]byte(`["string", "int"]`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	u2 := withoutNull.(*schema.Union)
	if u2.NullIndex != -1 {
		t.Fatalf("NullIndex = %d, want -1", u2.NullIndex)
	}
}

func TestMapValuesBeyondStringIntRejected(t *testing.T) {
	doc := []byte(`{
		"type": "record",
		"name": "Bag",
		"fields": [
			{"name": "scores", "type": {"type": "map", "values": "double"}}
		]
	}`)
	root, err := schema.Parse(doc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	proj, err := avro.NewProjection(root, []string{})
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}
	_, err = avro.CompileTSVProgram(root, proj)
	if err == nil {
		t.Fatalf("expected ErrUnknownSchemaType for a map[string]double")
	}
}
