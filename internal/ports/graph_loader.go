package ports

import (
	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
)

// LoadedGraph is a graph file mapped into the engine model.
type LoadedGraph struct {
	Name  string
	Path  string
	Vars  domain.Vars
	Graph *graph.Graph
}

// GraphLoader loads graph definitions from a source (e.g., filesystem).
// vars are layered over the file's own vars before placeholders resolve.
type GraphLoader interface {
	LoadGraph(path string, vars domain.Vars) (*LoadedGraph, error)
	ListGraphs(root string) ([]domain.GraphRef, error)
}
