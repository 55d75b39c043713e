package graph

import "reflect"

// Node is one invocation in a graph. Nodes of type "graph" carry a nested
// graph whose nodes are addressed as "parent.child".
type Node struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Inputs map[string]any `json:"inputs,omitempty"`
	Graph  *Graph         `json:"graph,omitempty"`
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{ID: n.ID, Type: n.Type}
	if n.Inputs != nil {
		out.Inputs = make(map[string]any, len(n.Inputs))
		for k, v := range n.Inputs {
			out.Inputs[k] = CloneValue(v)
		}
	}
	if n.Graph != nil {
		out.Graph = n.Graph.Clone()
	}
	return out
}

// Input returns the named input value.
func (n *Node) Input(field string) (any, bool) {
	if n == nil || n.Inputs == nil {
		return nil, false
	}
	v, ok := n.Inputs[field]
	return v, ok
}

func (n *Node) setInput(field string, v any) {
	if n.Inputs == nil {
		n.Inputs = map[string]any{}
	}
	n.Inputs[field] = v
}

// Output is the result of running one invocation.
type Output struct {
	Type   string         `json:"type"`
	Values map[string]any `json:"values"`
}

// Value returns the named output field.
func (o Output) Value(field string) (any, bool) {
	v, ok := o.Values[field]
	return v, ok
}

// CloneValue deep-copies maps and slices produced by JSON or YAML decoding.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = CloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = CloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// AsList converts any slice or array value to []any.
func AsList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
