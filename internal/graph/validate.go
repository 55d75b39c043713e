package graph

import (
	"errors"
	"fmt"
)

// IsValid reports whether Validate succeeds.
func (g *Graph) IsValid() bool {
	return g.Validate() == nil
}

// Validate checks nested graphs, edge endpoints, acyclicity, field
// compatibility and the iterator and collector rules.
func (g *Graph) Validate() error {
	const op = "graph.validate"
	for _, id := range g.nodeIDs() {
		n := g.Nodes[id]
		if _, ok := Lookup(n.Type); !ok {
			return invalid(op, id, fmt.Errorf("%w: unknown type %q", ErrInvalidNode, n.Type))
		}
		if n.Type == TypeGraph && n.Graph != nil {
			if err := n.Graph.Validate(); err != nil {
				return invalid(op, id, err)
			}
		}
	}

	for _, e := range g.Edges {
		if !g.HasNode(e.Source.NodeID) || !g.HasNode(e.Destination.NodeID) {
			return invalid(op, e.String(), fmt.Errorf("%w: endpoint does not exist", ErrInvalidEdge))
		}
	}

	if !g.flat().acyclic() {
		return invalid(op, "", ErrCycle)
	}

	for _, e := range g.Edges {
		from, _ := g.GetNode(e.Source.NodeID)
		to, _ := g.GetNode(e.Destination.NodeID)
		if !connectionsCompatible(from, e.Source.Field, to, e.Destination.Field) {
			return invalid(op, e.String(), fmt.Errorf("%w: incompatible field types %s -> %s",
				ErrInvalidEdge, outputField(from, e.Source.Field), inputField(to, e.Destination.Field)))
		}
	}

	for _, id := range g.nodeIDs() {
		var err error
		switch g.Nodes[id].Type {
		case TypeIterate:
			err = g.iteratorValid(id, nil, nil)
		case TypeCollect:
			err = g.collectorValid(id, nil, nil)
		}
		if err != nil {
			return invalid(op, id, err)
		}
	}
	return nil
}

func (g *Graph) validateEdge(e Edge) error {
	from, err := g.GetNode(e.Source.NodeID)
	if err != nil {
		return fmt.Errorf("source %s does not exist", e.Source.NodeID)
	}
	to, err := g.GetNode(e.Destination.NodeID)
	if err != nil {
		return fmt.Errorf("destination %s does not exist", e.Destination.NodeID)
	}

	if to.Type != TypeCollect && len(g.InputEdges(e.Destination.NodeID, e.Destination.Field)) > 0 {
		return fmt.Errorf("destination field %s already has an input", e.Destination)
	}

	d := g.flat()
	d.addEdge(e.Source.NodeID, e.Destination.NodeID)
	if !d.acyclic() {
		return errors.New("edge creates a cycle")
	}

	if !connectionsCompatible(from, e.Source.Field, to, e.Destination.Field) {
		return fmt.Errorf("incompatible field types %s -> %s",
			outputField(from, e.Source.Field), inputField(to, e.Destination.Field))
	}

	if to.Type == TypeIterate {
		if err := g.iteratorValid(e.Destination.NodeID, &e.Source, nil); err != nil {
			return err
		}
	}
	if from.Type == TypeIterate {
		if err := g.iteratorValid(e.Source.NodeID, nil, &e.Destination); err != nil {
			return err
		}
	}
	if to.Type == TypeCollect {
		if err := g.collectorValid(e.Destination.NodeID, &e.Source, nil); err != nil {
			return err
		}
	}
	if from.Type == TypeCollect {
		if err := g.collectorValid(e.Source.NodeID, nil, &e.Destination); err != nil {
			return err
		}
	}
	return nil
}

// iteratorValid checks an iterator's connections, optionally including a
// proposed new input source or output destination.
func (g *Graph) iteratorValid(path string, newInput, newOutput *EdgeConnection) error {
	var inputs []EdgeConnection
	for _, e := range g.InputEdges(path, "collection") {
		inputs = append(inputs, e.Source)
	}
	var outputs []EdgeConnection
	for _, e := range g.OutputEdges(path, "item") {
		outputs = append(outputs, e.Destination)
	}
	if newInput != nil {
		inputs = append(inputs, *newInput)
	}
	if newOutput != nil {
		outputs = append(outputs, *newOutput)
	}

	if len(inputs) > 1 {
		return errors.New("iterator has more than one collection input")
	}

	var elem FieldType
	if len(inputs) == 1 {
		src, err := g.GetNode(inputs[0].NodeID)
		if err != nil {
			return err
		}
		t := outputField(src, inputs[0].Field)
		if !t.IsList() {
			return fmt.Errorf("iterator input type %s is not a list", t)
		}
		elem = t.Elem()
	} else {
		elem = Any
	}

	for _, o := range outputs {
		dst, err := g.GetNode(o.NodeID)
		if err != nil {
			return err
		}
		if t := inputField(dst, o.Field); !Compatible(elem, t) {
			return fmt.Errorf("iterator item type %s is not compatible with %s (%s)", elem, o, t)
		}
	}
	return nil
}

// collectorValid checks a collector's connections, optionally including a
// proposed new input source or output destination.
func (g *Graph) collectorValid(path string, newInput, newOutput *EdgeConnection) error {
	var inputs []EdgeConnection
	for _, e := range g.InputEdges(path, "item") {
		inputs = append(inputs, e.Source)
	}
	var outputs []EdgeConnection
	for _, e := range g.OutputEdges(path, "collection") {
		outputs = append(outputs, e.Destination)
	}
	if newInput != nil {
		inputs = append(inputs, *newInput)
	}
	if newOutput != nil {
		outputs = append(outputs, *newOutput)
	}

	var types []FieldType
	seen := map[FieldType]bool{}
	for _, in := range inputs {
		src, err := g.GetNode(in.NodeID)
		if err != nil {
			return err
		}
		t := outputField(src, in.Field)
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}

	outTypes := make([]FieldType, 0, len(outputs))
	for _, o := range outputs {
		dst, err := g.GetNode(o.NodeID)
		if err != nil {
			return err
		}
		t := inputField(dst, o.Field)
		if !t.IsList() && t != Any {
			return fmt.Errorf("collector output %s is not a list (%s)", o, t)
		}
		outTypes = append(outTypes, t)
	}

	if len(types) == 0 {
		return nil
	}

	var roots []FieldType
	for _, t := range types {
		root := true
		for _, u := range types {
			if u != t && IsSubtype(t, u) {
				root = false
				break
			}
		}
		if root {
			roots = append(roots, t)
		}
	}
	if len(roots) != 1 {
		return fmt.Errorf("collector inputs %v do not share a single root type", types)
	}

	for _, t := range outTypes {
		elem := Any
		if t.IsList() {
			elem = t.Elem()
		}
		if !Compatible(roots[0], elem) {
			return fmt.Errorf("collector item type %s is not compatible with output %s", roots[0], t)
		}
	}
	return nil
}
