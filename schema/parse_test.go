package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRecordWithUnionAndArray(t *testing.T) {
	doc := []byte(`{
		"type": "record",
		"name": "Event",
		"fields": [
			{"name": "id", "type": "long"},
			{"name": "tag", "type": ["null", "string"]},
			{"name": "scores", "type": {"type": "array", "items": "int"}}
		]
	}`)

	n, err := Parse(doc)
	require.NoError(t, err)
	rec, ok := n.(*Record)
	require.True(t, ok, "expected *Record, got %T", n)
	require.Equal(t, "Event", rec.Name)
	require.Len(t, rec.Fields, 3)

	idField := rec.Fields[0]
	require.Equal(t, KindLong, idField.Schema.Kind())

	tagField := rec.Fields[1]
	union, ok := tagField.Schema.(*Union)
	require.True(t, ok, "tag: expected *Union, got %T", tagField.Schema)
	require.Equal(t, 0, union.NullIndex)
	require.True(t, union.ContainsNull())

	scoresField := rec.Fields[2]
	arr, ok := scoresField.Schema.(*Array)
	require.True(t, ok, "scores: expected *Array, got %T", scoresField.Schema)
	require.Equal(t, KindInt, arr.Items.Kind())
}

func TestParseUnionWithoutNull(t *testing.T) {
	doc := []byte(`["string", "int"]`)
	n, err := Parse(doc)
	require.NoError(t, err)
	u := n.(*Union)
	require.Equal(t, -1, u.NullIndex)
	require.False(t, u.ContainsNull())
}

func TestParseRecursiveRecord(t *testing.T) {
	doc := []byte(`{
		"type": "record",
		"name": "Node",
		"fields": [
			{"name": "value", "type": "int"},
			{"name": "next", "type": ["null", "Node"]}
		]
	}`)
	n, err := Parse(doc)
	require.NoError(t, err)
	rec := n.(*Record)
	next := rec.Fields[1].Schema.(*Union)
	custom := next.Branches[1].(*Custom)
	require.Same(t, rec, custom.Definition, "recursive reference did not resolve to the same *Record")
}

func TestNodeByPath(t *testing.T) {
	doc := []byte(`{
		"type": "record",
		"name": "Outer",
		"fields": [
			{"name": "inner", "type": {
				"type": "record",
				"name": "Inner",
				"fields": [{"name": "leaf", "type": "string"}]
			}}
		]
	}`)
	root, err := Parse(doc)
	require.NoError(t, err)
	leaf := NodeByPath(root, []string{"inner", "leaf"})
	require.NotNil(t, leaf)
	require.Equal(t, KindString, leaf.Kind())
	require.Nil(t, NodeByPath(root, []string{"missing"}))
}
