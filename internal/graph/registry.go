package graph

import (
	"fmt"
	"sort"
	"sync"
)

// Node types with engine-level semantics.
const (
	TypeGraph   = "graph"
	TypeIterate = "iterate"
	TypeCollect = "collect"
)

// Fields maps a field name to its type.
type Fields map[string]FieldType

// Definition describes the typed fields of one invocation type.
type Definition struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Inputs      Fields `json:"inputs"`
	Outputs     Fields `json:"outputs"`

	// Verbatim inputs keep their {{placeholders}} when a graph file is
	// loaded; the invocation renders them itself.
	Verbatim []string `json:"verbatim,omitempty"`
}

// IsVerbatim reports whether loaders must leave field unresolved.
func (d Definition) IsVerbatim(field string) bool {
	for _, f := range d.Verbatim {
		if f == field {
			return true
		}
	}
	return false
}

var (
	defsMu sync.RWMutex
	defs   = map[string]Definition{}
)

// Register adds an invocation definition. It panics on an empty or
// duplicate type, as registration happens from init functions.
func Register(def Definition) {
	if def.Type == "" {
		panic("graph: Register with empty type")
	}
	defsMu.Lock()
	defer defsMu.Unlock()
	if _, dup := defs[def.Type]; dup {
		panic(fmt.Sprintf("graph: Register called twice for type %q", def.Type))
	}
	if def.Inputs == nil {
		def.Inputs = Fields{}
	}
	if def.Outputs == nil {
		def.Outputs = Fields{}
	}
	defs[def.Type] = def
}

// Lookup returns the definition for an invocation type.
func Lookup(typ string) (Definition, bool) {
	defsMu.RLock()
	defer defsMu.RUnlock()
	d, ok := defs[typ]
	return d, ok
}

// Definitions returns every registered definition sorted by type.
func Definitions() []Definition {
	defsMu.RLock()
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, d)
	}
	defsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func init() {
	Register(Definition{
		Type:        TypeGraph,
		Description: "Runs a nested graph",
	})
	Register(Definition{
		Type:        TypeIterate,
		Description: "Expands downstream nodes once per collection item",
		Inputs: Fields{
			"collection": ListOf(Any),
			"index":      Int,
		},
		Outputs: Fields{"item": Any},
	})
	Register(Definition{
		Type:        TypeCollect,
		Description: "Collects values from every iteration into a list",
		Inputs: Fields{
			"item":       Any,
			"collection": ListOf(Any),
		},
		Outputs: Fields{"collection": ListOf(Any)},
	})
}

func outputField(n *Node, field string) FieldType {
	d, ok := Lookup(n.Type)
	if !ok {
		return ""
	}
	return d.Outputs[field]
}

func inputField(n *Node, field string) FieldType {
	d, ok := Lookup(n.Type)
	if !ok {
		return ""
	}
	return d.Inputs[field]
}

func connectionsCompatible(from *Node, fromField string, to *Node, toField string) bool {
	return Compatible(outputField(from, fromField), inputField(to, toField))
}
