package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Graph is a set of invocation nodes connected by typed edges.
type Graph struct {
	ID    string           `json:"id"`
	Nodes map[string]*Node `json:"nodes"`
	Edges []Edge           `json:"edges"`
}

// New returns an empty graph with a fresh id.
func New() *Graph {
	return &Graph{ID: uuid.NewString(), Nodes: map[string]*Node{}, Edges: []Edge{}}
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	if g == nil {
		return nil
	}
	out := &Graph{ID: g.ID, Nodes: make(map[string]*Node, len(g.Nodes)), Edges: make([]Edge, len(g.Edges))}
	for id, n := range g.Nodes {
		out.Nodes[id] = n.Clone()
	}
	copy(out.Edges, g.Edges)
	return out
}

func nodePath(prefix, id string) string {
	if prefix == "" {
		return id
	}
	return prefix + "." + id
}

// splitPath returns the parent prefix and last segment of a node path.
func splitPath(path string) (string, string) {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func (g *Graph) nodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddNode adds a node to the graph.
func (g *Graph) AddNode(n *Node) error {
	const op = "graph.add_node"
	if n == nil || n.ID == "" {
		return invalid(op, "", fmt.Errorf("%w: empty id", ErrInvalidNode))
	}
	if strings.Contains(n.ID, ".") {
		return invalid(op, n.ID, fmt.Errorf("%w: id must not contain '.'", ErrInvalidNode))
	}
	if _, ok := Lookup(n.Type); !ok {
		return invalid(op, n.ID, fmt.Errorf("%w: unknown type %q", ErrInvalidNode, n.Type))
	}
	if _, ok := g.Nodes[n.ID]; ok {
		return invalid(op, n.ID, ErrNodeAlreadyInGraph)
	}
	if n.Type == TypeGraph && n.Graph == nil {
		n.Graph = New()
	}
	if g.Nodes == nil {
		g.Nodes = map[string]*Node{}
	}
	g.Nodes[n.ID] = n
	return nil
}

// GetNode returns the node at a dotted path.
func (g *Graph) GetNode(path string) (*Node, error) {
	owner, id, err := g.owner(path)
	if err != nil {
		return nil, err
	}
	return owner.Nodes[id], nil
}

// HasNode reports whether a node exists at path.
func (g *Graph) HasNode(path string) bool {
	_, err := g.GetNode(path)
	return err == nil
}

// owner returns the graph directly containing the node at path and the
// node's id within it.
func (g *Graph) owner(path string) (*Graph, string, error) {
	cur := g
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		n, ok := cur.Nodes[seg]
		if !ok || seg == "" {
			return nil, "", notFound("graph.get_node", path)
		}
		if i == len(segs)-1 {
			return cur, seg, nil
		}
		if n.Type != TypeGraph || n.Graph == nil {
			return nil, "", notFound("graph.get_node", path)
		}
		cur = n.Graph
	}
	return nil, "", notFound("graph.get_node", path)
}

// DeleteNode removes a node and every edge touching it. A missing node is
// not an error.
func (g *Graph) DeleteNode(path string) error {
	owner, id, err := g.owner(path)
	if err != nil {
		return nil
	}
	for _, se := range g.inputEdgesScoped(path, "") {
		se.graph.removeEdge(se.edge)
	}
	for _, se := range g.outputEdgesScoped(path, "") {
		se.graph.removeEdge(se.edge)
	}
	delete(owner.Nodes, id)
	return nil
}

// UpdateNode replaces the node at path. The type must not change; a new id
// must not collide, and edges follow a renamed node.
func (g *Graph) UpdateNode(path string, n *Node) error {
	const op = "graph.update_node"
	owner, id, err := g.owner(path)
	if err != nil {
		return err
	}
	if n == nil || n.ID == "" || strings.Contains(n.ID, ".") {
		return invalid(op, path, fmt.Errorf("%w: bad id", ErrInvalidNode))
	}
	old := owner.Nodes[id]
	if old.Type != n.Type {
		return invalid(op, path, fmt.Errorf("%w: type %q cannot change to %q", ErrInvalidNode, old.Type, n.Type))
	}
	if n.Type == TypeGraph && n.Graph == nil {
		n.Graph = New()
	}
	if n.ID == id {
		owner.Nodes[id] = n
		return nil
	}

	prefix, _ := splitPath(path)
	if g.HasNode(nodePath(prefix, n.ID)) {
		return invalid(op, nodePath(prefix, n.ID), ErrNodeAlreadyInGraph)
	}

	// Edges are re-pointed on a copy so a rejected edge leaves g untouched.
	c := g.Clone()
	if err := c.rename(path, n); err != nil {
		return err
	}
	*g = *c
	return nil
}

func (g *Graph) rename(path string, n *Node) error {
	owner, _, err := g.owner(path)
	if err != nil {
		return err
	}
	in := g.inputEdgesScoped(path, "")
	out := g.outputEdgesScoped(path, "")
	owner.Nodes[n.ID] = n
	if err := g.DeleteNode(path); err != nil {
		return err
	}

	for _, se := range in {
		e := se.edge
		e.Destination.NodeID = renameLast(e.Destination.NodeID, n.ID)
		if err := se.graph.AddEdge(e); err != nil {
			return err
		}
	}
	for _, se := range out {
		e := se.edge
		e.Source.NodeID = renameLast(e.Source.NodeID, n.ID)
		if err := se.graph.AddEdge(e); err != nil {
			return err
		}
	}
	return nil
}

func renameLast(path, id string) string {
	prefix, _ := splitPath(path)
	return nodePath(prefix, id)
}

// AddEdge validates and appends an edge.
func (g *Graph) AddEdge(e Edge) error {
	if g.containsEdge(e) {
		return invalid("graph.add_edge", e.String(), fmt.Errorf("%w: duplicate edge", ErrInvalidEdge))
	}
	if err := g.validateEdge(e); err != nil {
		return invalid("graph.add_edge", e.String(), fmt.Errorf("%w: %v", ErrInvalidEdge, err))
	}
	g.Edges = append(g.Edges, e)
	return nil
}

// DeleteEdge removes an edge if present.
func (g *Graph) DeleteEdge(e Edge) error {
	g.removeEdge(e)
	return nil
}

func (g *Graph) containsEdge(e Edge) bool {
	for _, x := range g.Edges {
		if x == e {
			return true
		}
	}
	return false
}

func (g *Graph) removeEdge(e Edge) {
	for i, x := range g.Edges {
		if x == e {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return
		}
	}
}

// inputEdgesScoped finds edges ending at path in g and every nested graph
// on the way down. Each result keeps the graph that holds it.
func (g *Graph) inputEdgesScoped(path, prefix string) []scopedEdge {
	var out []scopedEdge
	for _, e := range g.Edges {
		if e.Destination.NodeID == path {
			out = append(out, scopedEdge{graph: g, prefix: prefix, edge: e})
		}
	}
	head, rest, nested := strings.Cut(path, ".")
	if n, ok := g.Nodes[head]; nested && ok && n.Type == TypeGraph && n.Graph != nil {
		out = append(out, n.Graph.inputEdgesScoped(rest, nodePath(prefix, head))...)
	}
	return out
}

func (g *Graph) outputEdgesScoped(path, prefix string) []scopedEdge {
	var out []scopedEdge
	for _, e := range g.Edges {
		if e.Source.NodeID == path {
			out = append(out, scopedEdge{graph: g, prefix: prefix, edge: e})
		}
	}
	head, rest, nested := strings.Cut(path, ".")
	if n, ok := g.Nodes[head]; nested && ok && n.Type == TypeGraph && n.Graph != nil {
		out = append(out, n.Graph.outputEdgesScoped(rest, nodePath(prefix, head))...)
	}
	return out
}

// InputEdges returns the edges into path, optionally filtered by field, with
// endpoints expressed as absolute paths.
func (g *Graph) InputEdges(path, field string) []Edge {
	var out []Edge
	for _, se := range g.inputEdgesScoped(path, "") {
		if field == "" || se.edge.Destination.Field == field {
			out = append(out, se.absolute())
		}
	}
	return out
}

// OutputEdges returns the edges leaving path, optionally filtered by field.
func (g *Graph) OutputEdges(path, field string) []Edge {
	var out []Edge
	for _, se := range g.outputEdgesScoped(path, "") {
		if field == "" || se.edge.Source.Field == field {
			out = append(out, se.absolute())
		}
	}
	return out
}

// flat builds the flattened dependency graph: nested graph nodes are
// replaced by their children.
func (g *Graph) flat() *dag {
	d := newDAG()
	g.flatten(d, "")
	return d
}

func (g *Graph) flatten(d *dag, prefix string) {
	for _, id := range g.nodeIDs() {
		n := g.Nodes[id]
		if n.Type == TypeGraph && n.Graph != nil {
			n.Graph.flatten(d, nodePath(prefix, id))
			continue
		}
		d.addNode(nodePath(prefix, id))
	}
	for _, e := range g.Edges {
		d.addEdge(nodePath(prefix, e.Source.NodeID), nodePath(prefix, e.Destination.NodeID))
	}
}

// FlatNodes returns every non-graph node path in topological order.
func (g *Graph) FlatNodes() ([]string, error) {
	return g.flat().sorted()
}
