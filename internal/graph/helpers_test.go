package graph

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	typeBase    FieldType = "test_base"
	typeDerived FieldType = "test_derived"
)

func init() {
	RegisterType(typeDerived, typeBase)

	Register(Definition{Type: "t_int", Inputs: Fields{"value": Int}, Outputs: Fields{"value": Int}})
	Register(Definition{Type: "t_str", Inputs: Fields{"value": String}, Outputs: Fields{"value": String}})
	Register(Definition{Type: "t_add", Inputs: Fields{"a": Int, "b": Int}, Outputs: Fields{"value": Int}})
	Register(Definition{Type: "t_ints", Inputs: Fields{"collection": ListOf(Int)}, Outputs: Fields{"collection": ListOf(Int)}})
	Register(Definition{Type: "t_sum", Inputs: Fields{"values": ListOf(Int)}, Outputs: Fields{"value": Int}})
	Register(Definition{Type: "t_base", Outputs: Fields{"value": typeBase}})
	Register(Definition{Type: "t_derived", Outputs: Fields{"value": typeDerived}})
	Register(Definition{Type: "t_base_list", Inputs: Fields{"values": ListOf(typeBase)}})
	Register(Definition{Type: "t_derived_list", Inputs: Fields{"values": ListOf(typeDerived)}})
}

func node(id, typ string, inputs map[string]any) *Node {
	return &Node{ID: id, Type: typ, Inputs: inputs}
}

func edge(from, fromField, to, toField string) Edge {
	return Edge{
		Source:      EdgeConnection{NodeID: from, Field: fromField},
		Destination: EdgeConnection{NodeID: to, Field: toField},
	}
}

func toInt(t *testing.T, v any) int {
	t.Helper()
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		require.NoError(t, err)
		return int(i)
	default:
		t.Fatalf("not a number: %T %v", v, v)
		return 0
	}
}

// execute is a tiny invocation runtime for the test node types.
func execute(t *testing.T, n *Node) Output {
	t.Helper()
	in := func(k string) any { v, _ := n.Input(k); return v }

	switch n.Type {
	case "t_int", "t_str":
		return Output{Type: n.Type, Values: map[string]any{"value": in("value")}}
	case "t_add":
		return Output{Type: n.Type, Values: map[string]any{"value": toInt(t, in("a")) + toInt(t, in("b"))}}
	case "t_ints", TypeCollect:
		return Output{Type: n.Type, Values: map[string]any{"collection": in("collection")}}
	case "t_sum":
		l, ok := AsList(in("values"))
		require.True(t, ok, "values is %T", in("values"))
		sum := 0
		for _, v := range l {
			sum += toInt(t, v)
		}
		return Output{Type: n.Type, Values: map[string]any{"value": sum}}
	case TypeIterate:
		l, ok := AsList(in("collection"))
		require.True(t, ok)
		return Output{Type: n.Type, Values: map[string]any{"item": l[toInt(t, in("index"))]}}
	default:
		panic(fmt.Sprintf("no test runtime for %q", n.Type))
	}
}

// runAll drives a session to completion and returns the number of
// invocations run.
func runAll(t *testing.T, s *ExecutionState) int {
	t.Helper()
	count := 0
	for {
		n, err := s.Next()
		require.NoError(t, err)
		if n == nil {
			return count
		}
		s.Complete(n.ID, execute(t, n))
		count++
		require.Less(t, count, 1000, "runaway session")
	}
}

// outputs returns the results of every prepared copy of a source node.
func outputs(s *ExecutionState, source string) []Output {
	var out []Output
	for _, id := range s.SourcePreparedMapping[source] {
		if r, ok := s.Results[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
