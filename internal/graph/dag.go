package graph

import (
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// dag is a directed graph over string node names. Names get int64 ids in
// insertion order; that order breaks ties in topological sorting.
type dag struct {
	g        *simple.DirectedGraph
	ids      map[string]int64
	names    []string
	selfLoop bool
}

func newDAG() *dag {
	return &dag{g: simple.NewDirectedGraph(), ids: map[string]int64{}}
}

func (d *dag) addNode(name string) int64 {
	if id, ok := d.ids[name]; ok {
		return id
	}
	id := int64(len(d.names))
	d.ids[name] = id
	d.names = append(d.names, name)
	d.g.AddNode(simple.Node(id))
	return id
}

func (d *dag) has(name string) bool {
	_, ok := d.ids[name]
	return ok
}

func (d *dag) addEdge(from, to string) {
	f, t := d.addNode(from), d.addNode(to)
	if f == t {
		// simple.DirectedGraph rejects self edges; remember it as a cycle.
		d.selfLoop = true
		return
	}
	if d.g.HasEdgeFromTo(f, t) {
		return
	}
	d.g.SetEdge(d.g.NewEdge(simple.Node(f), simple.Node(t)))
}

func (d *dag) removeInEdges(name string) {
	id, ok := d.ids[name]
	if !ok {
		return
	}
	for _, p := range gonum.NodesOf(d.g.To(id)) {
		d.g.RemoveEdge(p.ID(), id)
	}
}

// sorted returns the nodes in topological order, ties broken by insertion.
func (d *dag) sorted() ([]string, error) {
	if d.selfLoop {
		return nil, ErrCycle
	}
	nodes, err := topo.SortStabilized(d.g, byID)
	if err != nil {
		return nil, ErrCycle
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = d.names[n.ID()]
	}
	return out, nil
}

func (d *dag) acyclic() bool {
	_, err := d.sorted()
	return err == nil
}

func (d *dag) parents(name string) []string {
	id, ok := d.ids[name]
	if !ok {
		return nil
	}
	return d.namesOf(gonum.NodesOf(d.g.To(id)))
}

// ancestors returns every node with a path to name, in insertion order.
func (d *dag) ancestors(name string) []string {
	id, ok := d.ids[name]
	if !ok {
		return nil
	}
	seen := map[int64]bool{}
	stack := []int64{id}
	var found []gonum.Node
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range gonum.NodesOf(d.g.To(cur)) {
			if seen[p.ID()] {
				continue
			}
			seen[p.ID()] = true
			found = append(found, p)
			stack = append(stack, p.ID())
		}
	}
	return d.namesOf(found)
}

func (d *dag) hasPath(from, to string) bool {
	f, ok := d.ids[from]
	if !ok {
		return false
	}
	t, ok := d.ids[to]
	if !ok {
		return false
	}
	if f == t {
		return true
	}
	return topo.PathExistsIn(d.g, simple.Node(f), simple.Node(t))
}

func (d *dag) namesOf(nodes []gonum.Node) []string {
	byID(nodes)
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = d.names[n.ID()]
	}
	return out
}

func byID(nodes []gonum.Node) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
}
