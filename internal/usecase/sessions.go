package usecase

import (
	"context"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
)

// Sessions edits and runs stored execution states. Every call holds the
// session lock shared with the processor.
type Sessions struct {
	inv *Invoker
}

func NewSessions(inv *Invoker) *Sessions {
	return &Sessions{inv: inv}
}

func (uc *Sessions) Create(ctx context.Context, g *graph.Graph) (*graph.ExecutionState, error) {
	if g != nil {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}
	return uc.inv.CreateExecutionState(ctx, g)
}

func (uc *Sessions) Get(ctx context.Context, id string) (*graph.ExecutionState, error) {
	return uc.inv.services.Sessions.Get(ctx, id)
}

// List pages through sessions; a non-empty query searches them instead.
func (uc *Sessions) List(ctx context.Context, query string, page, perPage int) (domain.PaginatedResults[*graph.ExecutionState], error) {
	if query != "" {
		return uc.inv.services.Sessions.Search(ctx, query, page, perPage)
	}
	return uc.inv.services.Sessions.List(ctx, page, perPage)
}

func (uc *Sessions) AddNode(ctx context.Context, id string, n *graph.Node) (*graph.ExecutionState, error) {
	return uc.mutate(ctx, id, func(s *graph.ExecutionState) error { return s.AddNode(n) })
}

func (uc *Sessions) UpdateNode(ctx context.Context, id, path string, n *graph.Node) (*graph.ExecutionState, error) {
	return uc.mutate(ctx, id, func(s *graph.ExecutionState) error { return s.UpdateNode(path, n) })
}

func (uc *Sessions) DeleteNode(ctx context.Context, id, path string) (*graph.ExecutionState, error) {
	return uc.mutate(ctx, id, func(s *graph.ExecutionState) error { return s.DeleteNode(path) })
}

func (uc *Sessions) AddEdge(ctx context.Context, id string, e graph.Edge) (*graph.ExecutionState, error) {
	return uc.mutate(ctx, id, func(s *graph.ExecutionState) error { return s.AddEdge(e) })
}

func (uc *Sessions) DeleteEdge(ctx context.Context, id string, e graph.Edge) (*graph.ExecutionState, error) {
	return uc.mutate(ctx, id, func(s *graph.ExecutionState) error { return s.DeleteEdge(e) })
}

// Invoke queues the next ready node of a session. It returns "" when
// nothing is ready.
func (uc *Sessions) Invoke(ctx context.Context, id string, all bool) (string, error) {
	unlock := uc.inv.locks.lock(id)
	state, err := uc.inv.services.Sessions.Get(ctx, id)
	if err != nil {
		unlock()
		return "", err
	}
	item, ok, err := uc.inv.next(ctx, state, all)
	unlock()
	if err != nil || !ok {
		return "", err
	}
	if err := uc.inv.enqueue(ctx, item); err != nil {
		uc.inv.release(context.WithoutCancel(ctx), item)
		return "", err
	}
	return item.InvocationID, nil
}

func (uc *Sessions) mutate(ctx context.Context, id string, fn func(*graph.ExecutionState) error) (*graph.ExecutionState, error) {
	unlock := uc.inv.locks.lock(id)
	defer unlock()

	state, err := uc.inv.services.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(state); err != nil {
		return nil, err
	}
	if err := uc.inv.services.Sessions.Set(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}
