package yamlgraph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
)

// mapper turns a yamlGraph into a graph.Graph, resolving placeholders in
// string inputs on the way.
type mapper struct {
	path string
	rt   *domain.RuntimeResolver
}

func (m mapper) mapGraph(prefix string, nodes []yamlNode, edges []yamlEdge) (*graph.Graph, error) {
	g := graph.New()

	for i, yn := range nodes {
		field := fmt.Sprintf("%snodes[%d]", prefix, i)
		if strings.TrimSpace(yn.ID) == "" {
			return nil, m.invalidField(field+".id", "node id is required")
		}
		if strings.TrimSpace(yn.Type) == "" {
			return nil, m.invalidField(field+".type", "node type is required")
		}
		def, ok := graph.Lookup(yn.Type)
		if !ok {
			return nil, m.invalidField(field+".type", fmt.Sprintf("unknown node type %q", yn.Type))
		}

		inputs, err := m.mapInputs(field, def, yn.Inputs)
		if err != nil {
			return nil, err
		}

		n := &graph.Node{ID: yn.ID, Type: yn.Type, Inputs: inputs}
		if yn.Graph != nil {
			if yn.Type != graph.TypeGraph {
				return nil, m.invalidField(field+".graph", "only nodes of type graph may have a graph")
			}
			sub, err := m.mapGraph(field+".graph.", yn.Graph.Nodes, yn.Graph.Edges)
			if err != nil {
				return nil, err
			}
			n.Graph = sub
		}

		if err := g.AddNode(n); err != nil {
			return nil, m.wrap(field, err)
		}
	}

	for i, ye := range edges {
		field := fmt.Sprintf("%sedges[%d]", prefix, i)
		e := graph.Edge{
			Source:      graph.EdgeConnection{NodeID: ye.Source.NodeID, Field: ye.Source.Field},
			Destination: graph.EdgeConnection{NodeID: ye.Destination.NodeID, Field: ye.Destination.Field},
		}
		switch {
		case e.Source.NodeID == "" || e.Source.Field == "":
			return nil, m.invalidField(field+".source", "node_id and field are required")
		case e.Destination.NodeID == "" || e.Destination.Field == "":
			return nil, m.invalidField(field+".destination", "node_id and field are required")
		}
		if err := g.AddEdge(e); err != nil {
			return nil, m.wrap(field, err)
		}
	}

	return g, nil
}

func (m mapper) mapInputs(field string, def graph.Definition, in map[string]any) (map[string]any, error) {
	if len(in) == 0 {
		return map[string]any{}, nil
	}

	out := make(map[string]any, len(in))
	for k, v := range in {
		typ, ok := def.Inputs[k]
		if !ok {
			return nil, m.invalidField(field+".inputs."+k, fmt.Sprintf("%s has no input %q", def.Type, k))
		}
		if def.IsVerbatim(k) {
			out[k] = v
			continue
		}
		rv, err := m.rt.ResolveValue(v)
		if err != nil {
			return nil, &domain.OpError{
				Op:   "yamlgraph.resolve",
				Kind: domain.KindOf(err),
				Path: m.path,
				Err:  fmt.Errorf("field %s.inputs.%s: %w", field, k, err),
			}
		}
		cv, err := coerce(typ, rv)
		if err != nil {
			return nil, m.invalidField(field+".inputs."+k, err.Error())
		}
		out[k] = cv
	}
	return out, nil
}

// coerce converts a resolved placeholder string to the scalar type the
// input declares. Other values pass through unchanged.
func coerce(typ graph.FieldType, v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	switch typ {
	case graph.Int:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("expected int, got %q", s)
		}
		return n, nil
	case graph.Float:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("expected float, got %q", s)
		}
		return f, nil
	case graph.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("expected bool, got %q", s)
		}
		return b, nil
	}
	return s, nil
}

func (m mapper) invalidField(field, msg string) error {
	return &domain.OpError{
		Op:   "yamlgraph.map",
		Kind: domain.KindInvalidConfig,
		Path: m.path,
		Err:  fmt.Errorf("field %s: %s: %w", field, msg, domain.ErrInvalidConfig),
	}
}

// wrap keeps the kind of a graph error and adds the file and field.
func (m mapper) wrap(field string, err error) error {
	var oe *domain.OpError
	kind := domain.KindInvalidGraph
	if errors.As(err, &oe) {
		kind = oe.Kind
	}
	return &domain.OpError{
		Op:   "yamlgraph.map",
		Kind: kind,
		Path: m.path,
		Err:  fmt.Errorf("field %s: %w", field, err),
	}
}
