package graph

import "fmt"

// EdgeConnection addresses one field of a node. NodeID may be a dotted path
// into nested graphs.
type EdgeConnection struct {
	NodeID string `json:"node_id"`
	Field  string `json:"field"`
}

func (c EdgeConnection) String() string {
	return c.NodeID + "." + c.Field
}

// Edge connects an output field to an input field.
type Edge struct {
	Source      EdgeConnection `json:"source"`
	Destination EdgeConnection `json:"destination"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%s -> %s", e.Source, e.Destination)
}

// scopedEdge is an edge found in a (possibly nested) graph together with the
// path prefix of that graph.
type scopedEdge struct {
	graph  *Graph
	prefix string
	edge   Edge
}

// absolute returns the edge with both endpoints expressed from the root.
func (s scopedEdge) absolute() Edge {
	return Edge{
		Source:      EdgeConnection{NodeID: nodePath(s.prefix, s.edge.Source.NodeID), Field: s.edge.Source.Field},
		Destination: EdgeConnection{NodeID: nodePath(s.prefix, s.edge.Destination.NodeID), Field: s.edge.Destination.Field},
	}
}
