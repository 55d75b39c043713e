package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseFieldType(t *testing.T) {
	cases := map[string]FieldType{
		"int":                  Int,
		" any ":                Any,
		"list[int]":            ListOf(Int),
		"list[ list[string] ]": ListOf(ListOf(String)),
	}
	for in, want := range cases {
		got, err := ParseFieldType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "list[int", "in-t", "list[]"} {
		_, err := ParseFieldType(bad)
		assert.Error(t, err, bad)
	}
}

func TestFieldTypeElem(t *testing.T) {
	assert.True(t, ListOf(Int).IsList())
	assert.Equal(t, Int, ListOf(Int).Elem())
	assert.False(t, Int.IsList())
	assert.Equal(t, FieldType(""), Int.Elem())
}

func TestCompatible(t *testing.T) {
	cases := []struct {
		from, to FieldType
		want     bool
	}{
		{Int, Int, true},
		{Int, Any, true},
		{Any, String, true},
		{Int, String, false},
		{ListOf(Int), ListOf(Int), true},
		{ListOf(Any), ListOf(Int), true},
		{ListOf(Int), ListOf(String), false},
		{Int, ListOf(Int), false},
		{ListOf(Int), Int, false},
		{typeDerived, typeBase, true},
		{typeBase, typeDerived, false},
		{ListOf(typeDerived), ListOf(typeBase), true},
		{"", Int, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Compatible(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestFieldTypeEncoding(t *testing.T) {
	var fields Fields
	require.NoError(t, json.Unmarshal([]byte(`{"a":"list[ int ]"}`), &fields))
	assert.Equal(t, ListOf(Int), fields["a"])

	b, err := json.Marshal(Fields{"b": ListOf(String)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":"list[string]"}`, string(b))

	var y struct {
		T FieldType `yaml:"t"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("t: list[float]\n"), &y))
	assert.Equal(t, ListOf(Float), y.T)

	assert.Error(t, json.Unmarshal([]byte(`{"a":"list[int"}`), &fields))
}

func TestRegistry(t *testing.T) {
	def, ok := Lookup(TypeIterate)
	require.True(t, ok)
	assert.Equal(t, ListOf(Any), def.Inputs["collection"])

	_, ok = Lookup("nope")
	assert.False(t, ok)

	defs := Definitions()
	for i := 1; i < len(defs); i++ {
		assert.Less(t, defs[i-1].Type, defs[i].Type)
	}

	assert.Panics(t, func() { Register(Definition{Type: TypeCollect}) })
	assert.Panics(t, func() { Register(Definition{}) })
}
