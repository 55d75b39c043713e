package invocations

import (
	"context"
	"fmt"

	"github.com/waffletower/InvokeAI/internal/graph"
)

func init() {
	registerFunc(graph.TypeGraph, invokeGraph)
	registerFunc(graph.TypeIterate, invokeIterate)
	registerFunc(graph.TypeCollect, invokeCollect)
}

// Graph nodes are flattened before execution; running one is a no-op.
func invokeGraph(_ context.Context, _ *InvocationContext, _ *graph.Node) (graph.Output, error) {
	return output(graph.TypeGraph), nil
}

func invokeIterate(_ context.Context, _ *InvocationContext, n *graph.Node) (graph.Output, error) {
	coll, err := in(n).List("collection")
	if err != nil {
		return graph.Output{}, err
	}
	idx, err := in(n).Int("index", 0)
	if err != nil {
		return graph.Output{}, err
	}
	if idx < 0 || idx >= len(coll) {
		return graph.Output{}, fmt.Errorf("iterate: index %d out of range [0,%d)", idx, len(coll))
	}
	return output(graph.TypeIterate, "item", coll[idx]), nil
}

func invokeCollect(_ context.Context, _ *InvocationContext, n *graph.Node) (graph.Output, error) {
	coll, err := in(n).List("collection")
	if err != nil {
		return graph.Output{}, err
	}
	return output(graph.TypeCollect, "collection", append([]any{}, coll...)), nil
}
