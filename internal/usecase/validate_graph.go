package usecase

import (
	"context"
	"fmt"

	"github.com/waffletower/InvokeAI/internal/graph"
	"github.com/waffletower/InvokeAI/internal/invocations"
	"github.com/waffletower/InvokeAI/internal/ports"
)

type ValidateGraph struct {
	graphs ports.GraphLoader
	envs   ports.EnvironmentLoader
}

func NewValidateGraph(gl ports.GraphLoader, el ports.EnvironmentLoader) *ValidateGraph {
	return &ValidateGraph{graphs: gl, envs: el}
}

// Execute loads and validates a graph without running it. It also checks
// that every node type has an implementation.
func (uc *ValidateGraph) Execute(ctx context.Context, in RunInput) (*ports.LoadedGraph, error) {
	loaded, _, err := loadGraph(uc.graphs, uc.envs, in)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := loaded.Graph.Validate(); err != nil {
		return nil, err
	}

	paths, err := loaded.Graph.FlatNodes()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		n, err := loaded.Graph.GetNode(p)
		if err != nil {
			return nil, err
		}
		if n.Type == graph.TypeGraph {
			continue
		}
		if _, ok := invocations.Lookup(n.Type); !ok {
			return nil, fmt.Errorf("node %q: type %q has no implementation", p, n.Type)
		}
	}
	return loaded, nil
}
