package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
)

func TestSessions_EditThenRun(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	uc := NewSessions(h.inv)

	s, err := uc.Create(ctx, nil)
	require.NoError(t, err)

	_, err = uc.AddNode(ctx, s.ID, node("a", "integer", map[string]any{"value": 4}))
	require.NoError(t, err)
	_, err = uc.AddNode(ctx, s.ID, node("b", "multiply", map[string]any{"b": 2}))
	require.NoError(t, err)
	_, err = uc.AddEdge(ctx, s.ID, edge("a", "value", "b", "a"))
	require.NoError(t, err)

	updated, err := uc.UpdateNode(ctx, s.ID, "a", node("a", "integer", map[string]any{"value": 5}))
	require.NoError(t, err)
	assert.EqualValues(t, 5, updated.Graph.Nodes["a"].Inputs["value"])

	ch, cancel := h.bus.Subscribe(64)
	defer cancel()
	id, err := uc.Invoke(ctx, s.ID, true)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	collect(t, ch, s.ID)

	final, err := uc.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, json.Number("10"), resultOf(t, final, "b", "value"))

	// Prepared nodes can no longer change.
	_, err = uc.DeleteNode(ctx, s.ID, "a")
	assert.True(t, domain.IsKind(err, domain.KindNodeExecuted), "got %v", err)
	_, err = uc.DeleteEdge(ctx, s.ID, edge("a", "value", "b", "a"))
	assert.ErrorIs(t, err, graph.ErrNodeAlreadyExecuted)
}

func TestSessions_DeleteNodeAndEdgeBeforeRun(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	uc := NewSessions(h.inv)

	s, err := uc.Create(ctx, addGraph(t))
	require.NoError(t, err)

	s, err = uc.DeleteEdge(ctx, s.ID, edge("b", "value", "c", "b"))
	require.NoError(t, err)
	assert.Len(t, s.Graph.Edges, 1)

	s, err = uc.DeleteNode(ctx, s.ID, "b")
	require.NoError(t, err)
	assert.False(t, s.Graph.HasNode("b"))
}

func TestSessions_Errors(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	uc := NewSessions(h.inv)

	_, err := uc.Get(ctx, "nope")
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	_, err = uc.AddNode(ctx, "nope", node("a", "integer", nil))
	assert.True(t, domain.IsKind(err, domain.KindNotFound))

	s, err := uc.Create(ctx, nil)
	require.NoError(t, err)
	_, err = uc.AddNode(ctx, s.ID, node("a", "no_such_type", nil))
	assert.True(t, domain.IsKind(err, domain.KindInvalidGraph))

	_, err = uc.AddNode(ctx, s.ID, node("a", "integer", nil))
	require.NoError(t, err)
	_, err = uc.AddNode(ctx, s.ID, node("a", "integer", nil))
	assert.ErrorIs(t, err, graph.ErrNodeAlreadyInGraph)

	_, err = uc.AddEdge(ctx, s.ID, edge("a", "value", "missing", "a"))
	assert.Error(t, err)

	bad := addGraph(t)
	bad.Edges = append(bad.Edges, edge("c", "value", "nowhere", "a"))
	_, err = uc.Create(ctx, bad)
	assert.True(t, domain.IsKind(err, domain.KindInvalidGraph))
}

func TestSessions_ListAndSearch(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	uc := NewSessions(h.inv)

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := uc.Create(ctx, nil)
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	page, err := uc.List(ctx, "", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[0], page.Items[0].ID)

	found, err := uc.List(ctx, ids[2], 0, 10)
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, ids[2], found.Items[0].ID)
}
