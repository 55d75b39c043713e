package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ExecutionState tracks one run of a graph. The source graph is expanded
// lazily into an execution graph of prepared nodes: iterators fan out one
// copy per item and collectors gather every copy back into one.
type ExecutionState struct {
	ID             string `json:"id"`
	Graph          *Graph `json:"graph"`
	ExecutionGraph *Graph `json:"execution_graph"`

	// Executed holds both prepared node ids and source node paths.
	Executed        Set               `json:"executed"`
	ExecutedHistory []string          `json:"executed_history"`
	Results         map[string]Output `json:"results"`
	Errors          map[string]string `json:"errors"`

	PreparedSourceMapping map[string]string   `json:"prepared_source_mapping"`
	SourcePreparedMapping map[string][]string `json:"source_prepared_mapping"`
	// PreparedOrder lists prepared node ids in creation order.
	PreparedOrder []string `json:"prepared_order"`
	// InFlight holds prepared node ids handed out by Next and not yet
	// completed or failed.
	InFlight Set `json:"in_flight"`
}

// NewExecutionState starts a session over g. A nil graph starts empty.
func NewExecutionState(g *Graph) *ExecutionState {
	if g == nil {
		g = New()
	}
	return &ExecutionState{
		ID:                    uuid.NewString(),
		Graph:                 g,
		ExecutionGraph:        New(),
		Executed:              Set{},
		ExecutedHistory:       []string{},
		Results:               map[string]Output{},
		Errors:                map[string]string{},
		PreparedSourceMapping: map[string]string{},
		SourcePreparedMapping: map[string][]string{},
		PreparedOrder:         []string{},
		InFlight:              Set{},
	}
}

// UnmarshalJSON fills in collections missing from older or hand-written
// documents.
func (s *ExecutionState) UnmarshalJSON(b []byte) error {
	type plain ExecutionState
	var p plain
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*s = ExecutionState(p)
	if s.Graph == nil {
		s.Graph = New()
	}
	if s.ExecutionGraph == nil {
		s.ExecutionGraph = New()
	}
	if s.ExecutionGraph.Nodes == nil {
		s.ExecutionGraph.Nodes = map[string]*Node{}
	}
	if s.Executed == nil {
		s.Executed = Set{}
	}
	if s.ExecutedHistory == nil {
		s.ExecutedHistory = []string{}
	}
	if s.Results == nil {
		s.Results = map[string]Output{}
	}
	if s.Errors == nil {
		s.Errors = map[string]string{}
	}
	if s.PreparedSourceMapping == nil {
		s.PreparedSourceMapping = map[string]string{}
	}
	if s.SourcePreparedMapping == nil {
		s.SourcePreparedMapping = map[string][]string{}
	}
	if s.PreparedOrder == nil {
		s.PreparedOrder = []string{}
	}
	if s.InFlight == nil {
		s.InFlight = Set{}
	}
	return nil
}

// Next returns the next prepared node ready to run with its inputs filled
// in, or nil when nothing is ready. The node stays in flight until it is
// completed, failed or released, and Next does not return it again.
func (s *ExecutionState) Next() (*Node, error) {
	for {
		if n := s.nextPrepared(); n != nil {
			if err := s.prepareInputs(n); err != nil {
				return nil, err
			}
			s.InFlight.Add(n.ID)
			return n, nil
		}
		progressed, err := s.prepare()
		if err != nil {
			return nil, err
		}
		if !progressed {
			return nil, nil
		}
	}
}

// PreparedNode returns a node of the execution graph.
func (s *ExecutionState) PreparedNode(id string) (*Node, bool) {
	n, ok := s.ExecutionGraph.Nodes[id]
	return n, ok
}

// SourceNodeID returns the source path a prepared node was created from.
func (s *ExecutionState) SourceNodeID(preparedID string) string {
	return s.PreparedSourceMapping[preparedID]
}

// Complete records the output of a prepared node. Once every copy of its
// source node is complete the source node counts as executed.
func (s *ExecutionState) Complete(id string, out Output) {
	if _, ok := s.ExecutionGraph.Nodes[id]; !ok {
		return
	}
	delete(s.InFlight, id)
	s.Executed.Add(id)
	s.Results[id] = out

	source := s.PreparedSourceMapping[id]
	for _, p := range s.SourcePreparedMapping[source] {
		if !s.Executed.Has(p) {
			return
		}
	}
	s.markExecuted(source)
}

// SetNodeError records an error for a prepared node.
func (s *ExecutionState) SetNodeError(id, msg string) {
	delete(s.InFlight, id)
	s.Errors[id] = msg
}

// Release returns an in-flight node to the ready pool, for a node that was
// handed out but never ran.
func (s *ExecutionState) Release(id string) {
	delete(s.InFlight, id)
}

func (s *ExecutionState) HasError() bool {
	return len(s.Errors) > 0
}

// IsComplete reports whether the session errored or every source node ran.
func (s *ExecutionState) IsComplete() bool {
	if s.HasError() {
		return true
	}
	nodes, err := s.Graph.FlatNodes()
	if err != nil {
		return false
	}
	for _, n := range nodes {
		if !s.Executed.Has(n) {
			return false
		}
	}
	return true
}

func (s *ExecutionState) markExecuted(source string) {
	if s.Executed.Has(source) {
		return
	}
	s.Executed.Add(source)
	s.ExecutedHistory = append(s.ExecutedHistory, source)
}

func (s *ExecutionState) executionDAG() *dag {
	d := newDAG()
	for _, id := range s.PreparedOrder {
		d.addNode(id)
	}
	for _, e := range s.ExecutionGraph.Edges {
		d.addEdge(e.Source.NodeID, e.Destination.NodeID)
	}
	return d
}

func (s *ExecutionState) nextPrepared() *Node {
	order, err := s.executionDAG().sorted()
	if err != nil {
		return nil
	}
	for _, id := range order {
		if s.Executed.Has(id) {
			continue
		}
		if _, failed := s.Errors[id]; failed {
			continue
		}
		if s.InFlight.Has(id) {
			continue
		}
		return s.ExecutionGraph.Nodes[id]
	}
	return nil
}

func (s *ExecutionState) prepareInputs(n *Node) error {
	var collection []any
	for _, e := range s.ExecutionGraph.Edges {
		if e.Destination.NodeID != n.ID {
			continue
		}
		out, ok := s.Results[e.Source.NodeID]
		if !ok {
			return fmt.Errorf("prepare inputs for %s: no result for %s", n.ID, e.Source.NodeID)
		}
		v := CloneValue(out.Values[e.Source.Field])
		if n.Type == TypeCollect {
			if e.Destination.Field == "item" {
				collection = append(collection, v)
			}
			continue
		}
		n.setInput(e.Destination.Field, v)
	}
	if n.Type == TypeCollect {
		if collection == nil {
			collection = []any{}
		}
		n.setInput("collection", collection)
	}
	return nil
}

// prepare expands the first unprepared source node whose parents have all
// executed. It reports whether any node was prepared.
func (s *ExecutionState) prepare() (bool, error) {
	g := s.Graph.flat()
	order, err := g.sorted()
	if err != nil {
		return false, invalid("graph.prepare", "", err)
	}

	next := ""
	for _, n := range order {
		if _, done := s.SourcePreparedMapping[n]; done {
			continue
		}
		ready := true
		for _, p := range g.parents(n) {
			if !s.Executed.Has(p) {
				ready = false
				break
			}
		}
		if ready {
			next = n
			break
		}
	}
	if next == "" {
		return false, nil
	}

	node, err := s.Graph.GetNode(next)
	if err != nil {
		return false, err
	}
	parents := g.parents(next)

	var created []string
	if node.Type == TypeCollect {
		var mappings []iterationMapping
		for _, p := range parents {
			for _, prepared := range s.SourcePreparedMapping[p] {
				mappings = append(mappings, iterationMapping{source: p, prepared: prepared})
			}
		}
		created, err = s.createExecutionNode(next, mappings)
		if err != nil {
			return false, err
		}
	} else {
		eg := s.executionDAG()
		for _, combo := range s.iteratorCombinations(next) {
			var mappings []iterationMapping
			for _, p := range parents {
				if prepared := s.iterationNode(p, g, eg, combo); prepared != "" {
					mappings = append(mappings, iterationMapping{source: p, prepared: prepared})
				}
			}
			ids, err := s.createExecutionNode(next, mappings)
			if err != nil {
				return false, err
			}
			created = append(created, ids...)
		}
	}

	if len(created) == 0 {
		// Empty expansion: nothing to run, downstream sees it as done.
		s.SourcePreparedMapping[next] = []string{}
		s.markExecuted(next)
	}
	return true, nil
}

type iterationMapping struct {
	source   string
	prepared string
}

// iteratorCombinations returns the cartesian product of the prepared copies
// of every iterator upstream of path. Edges into collectors end iteration.
func (s *ExecutionState) iteratorCombinations(path string) [][]string {
	ig := s.Graph.flat()
	for _, name := range ig.names {
		if n, err := s.Graph.GetNode(name); err == nil && n.Type == TypeCollect {
			ig.removeInEdges(name)
		}
	}

	combos := [][]string{{}}
	for _, a := range ig.ancestors(path) {
		n, err := s.Graph.GetNode(a)
		if err != nil || n.Type != TypeIterate {
			continue
		}
		var next [][]string
		for _, c := range combos {
			for _, p := range s.SourcePreparedMapping[a] {
				combo := append(append([]string(nil), c...), p)
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}

// iterationNode picks the prepared copy of source that belongs to the
// iteration described by combo: the copy reachable from every prepared
// iterator in combo that is upstream of source.
func (s *ExecutionState) iterationNode(source string, g, eg *dag, combo []string) string {
	prepared := s.SourcePreparedMapping[source]
	if len(prepared) == 1 {
		return prepared[0]
	}
	for _, p := range prepared {
		for _, it := range combo {
			if p == it {
				return p
			}
		}
	}

	var upstream []string
	for _, it := range combo {
		if g.hasPath(s.PreparedSourceMapping[it], source) {
			upstream = append(upstream, it)
		}
	}
	for _, p := range prepared {
		match := true
		for _, it := range upstream {
			if !eg.hasPath(it, p) {
				match = false
				break
			}
		}
		if match {
			return p
		}
	}
	return ""
}

func (s *ExecutionState) createExecutionNode(path string, mappings []iterationMapping) ([]string, error) {
	node, err := s.Graph.GetNode(path)
	if err != nil {
		return nil, err
	}

	count := -1
	if node.Type == TypeIterate {
		var coll any
		if edges := s.Graph.InputEdges(path, "collection"); len(edges) > 0 {
			e := edges[0]
			prepared := ""
			for _, m := range mappings {
				if m.source == e.Source.NodeID {
					prepared = m.prepared
					break
				}
			}
			out, ok := s.Results[prepared]
			if !ok {
				return nil, fmt.Errorf("prepare %s: no result for collection source %s", path, e.Source.NodeID)
			}
			coll = out.Values[e.Source.Field]
		} else {
			coll, _ = node.Input("collection")
		}
		items, ok := AsList(coll)
		if coll != nil && !ok {
			return nil, fmt.Errorf("prepare %s: collection is %T, not a list", path, coll)
		}
		count = len(items)
	}
	if count == 0 {
		return nil, nil
	}

	type pending struct {
		source EdgeConnection
		field  string
	}
	var edges []pending
	for _, e := range s.Graph.InputEdges(path, "") {
		for _, m := range mappings {
			if m.source == e.Source.NodeID {
				edges = append(edges, pending{
					source: EdgeConnection{NodeID: m.prepared, Field: e.Source.Field},
					field:  e.Destination.Field,
				})
			}
		}
	}

	iterations := []int{-1}
	if count > 0 {
		iterations = make([]int, count)
		for i := range iterations {
			iterations[i] = i
		}
	}

	var ids []string
	for _, i := range iterations {
		n := node.Clone()
		n.ID = uuid.NewString()
		if n.Type == TypeIterate {
			n.setInput("index", i)
		}
		s.ExecutionGraph.Nodes[n.ID] = n
		s.PreparedSourceMapping[n.ID] = path
		s.SourcePreparedMapping[path] = append(s.SourcePreparedMapping[path], n.ID)
		s.PreparedOrder = append(s.PreparedOrder, n.ID)
		for _, pe := range edges {
			s.ExecutionGraph.Edges = append(s.ExecutionGraph.Edges, Edge{
				Source:      pe.source,
				Destination: EdgeConnection{NodeID: n.ID, Field: pe.field},
			})
		}
		ids = append(ids, n.ID)
	}
	return ids, nil
}

func (s *ExecutionState) preparedGuard(op, path string) error {
	if _, ok := s.SourcePreparedMapping[path]; ok {
		return executed(op, path)
	}
	return nil
}

// AddNode adds a node to the source graph.
func (s *ExecutionState) AddNode(n *Node) error {
	if n != nil {
		if err := s.preparedGuard("session.add_node", n.ID); err != nil {
			return err
		}
	}
	return s.Graph.AddNode(n)
}

// UpdateNode replaces a node that has not been prepared yet.
func (s *ExecutionState) UpdateNode(path string, n *Node) error {
	if err := s.preparedGuard("session.update_node", path); err != nil {
		return err
	}
	return s.Graph.UpdateNode(path, n)
}

// DeleteNode removes a node that has not been prepared yet.
func (s *ExecutionState) DeleteNode(path string) error {
	if err := s.preparedGuard("session.delete_node", path); err != nil {
		return err
	}
	return s.Graph.DeleteNode(path)
}

// AddEdge adds an edge whose destination has not been prepared yet.
func (s *ExecutionState) AddEdge(e Edge) error {
	if err := s.preparedGuard("session.add_edge", e.Destination.NodeID); err != nil {
		return err
	}
	return s.Graph.AddEdge(e)
}

// DeleteEdge removes an edge whose destination has not been prepared yet.
func (s *ExecutionState) DeleteEdge(e Edge) error {
	if err := s.preparedGuard("session.delete_edge", e.Destination.NodeID); err != nil {
		return err
	}
	return s.Graph.DeleteEdge(e)
}
