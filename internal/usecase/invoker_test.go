package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
	"github.com/waffletower/InvokeAI/internal/infra/events"
	"github.com/waffletower/InvokeAI/internal/infra/itemstore"
	"github.com/waffletower/InvokeAI/internal/infra/metrics"
	"github.com/waffletower/InvokeAI/internal/infra/queue"
	"github.com/waffletower/InvokeAI/internal/invocations"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func init() {
	invocations.Register(graph.Definition{
		Type:    "t_panic",
		Inputs:  graph.Fields{"a": graph.Int},
		Outputs: graph.Fields{"value": graph.Int},
	}, func(context.Context, *invocations.InvocationContext, *graph.Node) (graph.Output, error) {
		panic("boom")
	})
	invocations.Register(graph.Definition{
		Type:    "t_gate",
		Inputs:  graph.Fields{"gate": graph.String},
		Outputs: graph.Fields{"value": graph.Int},
	}, func(ctx context.Context, _ *invocations.InvocationContext, n *graph.Node) (graph.Output, error) {
		name, _ := n.Input("gate")
		g := gateFor(fmt.Sprint(name))
		g.enter.Do(func() { close(g.entered) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return graph.Output{}, ctx.Err()
		}
		return graph.Output{Type: "t_gate", Values: map[string]any{"value": 1}}, nil
	})
}

// gate blocks t_gate invocations until released.
type gate struct {
	enter   sync.Once
	entered chan struct{}
	release chan struct{}
}

var gates sync.Map

func gateFor(name string) *gate {
	g, _ := gates.LoadOrStore(name, &gate{entered: make(chan struct{}), release: make(chan struct{})})
	return g.(*gate)
}

type harness struct {
	inv     *Invoker
	bus     *events.Bus
	store   *itemstore.MemStore[*graph.ExecutionState]
	metrics *metrics.Metrics
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()
	return newHarnessWithQueue(t, workers, 16)
}

func newHarnessWithQueue(t *testing.T, workers, queueSize int) *harness {
	t.Helper()
	store, err := itemstore.NewMemStore("sessions", func(s *graph.ExecutionState) string { return s.ID })
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	bus := events.NewBus(log)
	inv, err := NewInvoker(Services{
		Sessions:  store,
		Queue:     queue.NewMemory(queueSize, m.QueueDepth),
		Events:    bus,
		Processor: NewProcessor(workers, WithLogger(log), WithMetrics(m)),
		Log:       log,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inv.Stop() })
	return &harness{inv: inv, bus: bus, store: store, metrics: m}
}

func node(id, typ string, inputs map[string]any) *graph.Node {
	return &graph.Node{ID: id, Type: typ, Inputs: inputs}
}

func edge(from, fromField, to, toField string) graph.Edge {
	return graph.Edge{
		Source:      graph.EdgeConnection{NodeID: from, Field: fromField},
		Destination: graph.EdgeConnection{NodeID: to, Field: toField},
	}
}

func buildGraph(t *testing.T, nodes []*graph.Node, edges ...graph.Edge) *graph.Graph {
	t.Helper()
	g := graph.New()
	for _, n := range nodes {
		require.NoError(t, g.AddNode(n))
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e))
	}
	return g
}

func addGraph(t *testing.T) *graph.Graph {
	return buildGraph(t,
		[]*graph.Node{
			node("a", "integer", map[string]any{"value": 2}),
			node("b", "integer", map[string]any{"value": 3}),
			node("c", "add", nil),
		},
		edge("a", "value", "c", "a"),
		edge("b", "value", "c", "b"),
	)
}

// collect reads events for one session until it completes.
func collect(t *testing.T, ch <-chan domain.Event, sessionID string) []domain.Event {
	t.Helper()
	var out []domain.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.GraphExecutionStateID != sessionID {
				continue
			}
			out = append(out, ev)
			if ev.Type == domain.EventSessionComplete {
				return out
			}
		case <-timeout:
			t.Fatalf("session %s did not complete; got %d events", sessionID, len(out))
			return nil
		}
	}
}

func resultOf(t *testing.T, s *graph.ExecutionState, source, field string) any {
	t.Helper()
	prepared := s.SourcePreparedMapping[source]
	require.Len(t, prepared, 1, "prepared copies of %s", source)
	out, ok := s.Results[prepared[0]]
	require.True(t, ok, "no result for %s", source)
	return out.Values[field]
}

func TestInvoker_InvokeAllRunsGraph(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	ch, cancel := h.bus.Subscribe(64)
	defer cancel()

	state, err := h.inv.CreateExecutionState(ctx, addGraph(t))
	require.NoError(t, err)

	id, err := h.inv.Invoke(ctx, state, true)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	evs := collect(t, ch, state.ID)
	assert.Len(t, evs, 7, "three started, three complete, one session complete")

	final, err := h.store.Get(ctx, state.ID)
	require.NoError(t, err)
	assert.True(t, final.IsComplete())
	assert.False(t, final.HasError())
	assert.Equal(t, json.Number("5"), resultOf(t, final, "c", "value"))
	assert.Equal(t, []string{"a", "b", "c"}, final.ExecutedHistory)
}

func TestInvoker_InvokeSingleStep(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	ch, cancel := h.bus.Subscribe(64)
	defer cancel()

	state, err := h.inv.CreateExecutionState(ctx, addGraph(t))
	require.NoError(t, err)
	first, err := h.inv.Invoke(ctx, state, false)
	require.NoError(t, err)

	waitFor(t, ch, domain.EventInvocationComplete, first)

	s, err := h.store.Get(ctx, state.ID)
	require.NoError(t, err)
	assert.False(t, s.IsComplete())
	assert.Len(t, s.Results, 1)

	second, err := NewSessions(h.inv).Invoke(ctx, state.ID, false)
	require.NoError(t, err)
	require.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
	waitFor(t, ch, domain.EventInvocationComplete, second)
}

func TestProcessor_KeepsLargeIntegersAcrossNodes(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	ch, cancel := h.bus.Subscribe(64)
	defer cancel()

	g := buildGraph(t,
		[]*graph.Node{
			node("a", "integer", map[string]any{"value": int64(1)<<53 + 1}),
			node("b", "add", map[string]any{"b": 0}),
		},
		edge("a", "value", "b", "a"),
	)
	state, err := h.inv.CreateExecutionState(ctx, g)
	require.NoError(t, err)
	_, err = h.inv.Invoke(ctx, state, true)
	require.NoError(t, err)
	collect(t, ch, state.ID)

	final, err := h.store.Get(ctx, state.ID)
	require.NoError(t, err)
	require.False(t, final.HasError(), "errors: %v", final.Errors)
	assert.Equal(t, json.Number("9007199254740993"), resultOf(t, final, "b", "value"))
}

func TestProcessor_FullQueueDoesNotStallInvokeAll(t *testing.T) {
	h := newHarnessWithQueue(t, 1, 1)
	ctx := context.Background()
	g := gateFor(t.Name())

	gated := buildGraph(t,
		[]*graph.Node{
			node("wait", "t_gate", map[string]any{"gate": t.Name()}),
			node("show", "show", nil),
		},
		edge("wait", "value", "show", "value"),
	)
	a, err := h.inv.CreateExecutionState(ctx, gated)
	require.NoError(t, err)
	_, err = h.inv.Invoke(ctx, a, true)
	require.NoError(t, err)

	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("gate was never reached")
	}

	// The only worker is busy; this fills the queue.
	b, err := h.inv.CreateExecutionState(ctx, addGraph(t))
	require.NoError(t, err)
	_, err = h.inv.Invoke(ctx, b, true)
	require.NoError(t, err)

	close(g.release)

	for _, id := range []string{a.ID, b.ID} {
		require.Eventually(t, func() bool {
			s, err := h.store.Get(ctx, id)
			return err == nil && s.IsComplete()
		}, 5*time.Second, 10*time.Millisecond, "session %s did not complete", id)
	}
	final, err := h.store.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, final.HasError())
	assert.Equal(t, []string{"wait", "show"}, final.ExecutedHistory)
}

func TestSessions_InvokeSkipsQueuedNodes(t *testing.T) {
	store, err := itemstore.NewMemStore("sessions", func(s *graph.ExecutionState) string { return s.ID })
	require.NoError(t, err)
	// No processor: queued nodes stay in flight.
	inv, err := NewInvoker(Services{
		Sessions: store,
		Queue:    queue.NewMemory(2, nil),
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inv.Stop() })

	ctx := context.Background()
	state, err := inv.CreateExecutionState(ctx, addGraph(t))
	require.NoError(t, err)
	uc := NewSessions(inv)

	first, err := uc.Invoke(ctx, state.ID, true)
	require.NoError(t, err)
	second, err := uc.Invoke(ctx, state.ID, true)
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)

	// c waits on a and b, which are both queued.
	third, err := uc.Invoke(ctx, state.ID, true)
	require.NoError(t, err)
	assert.Empty(t, third)

	stored, err := store.Get(ctx, state.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first, second}, stored.InFlight.Sorted())
}

func TestSessions_FailedEnqueueReleasesNode(t *testing.T) {
	store, err := itemstore.NewMemStore("sessions", func(s *graph.ExecutionState) string { return s.ID })
	require.NoError(t, err)
	inv, err := NewInvoker(Services{
		Sessions: store,
		Queue:    queue.NewMemory(1, nil),
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inv.Stop() })

	ctx := context.Background()
	state, err := inv.CreateExecutionState(ctx, addGraph(t))
	require.NoError(t, err)
	uc := NewSessions(inv)

	first, err := uc.Invoke(ctx, state.ID, false)
	require.NoError(t, err)

	// The queue is full; the put gives up when ctx expires.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = uc.Invoke(short, state.ID, false)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	stored, err := store.Get(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first}, stored.InFlight.Sorted())
}

func waitFor(t *testing.T, ch <-chan domain.Event, typ domain.EventType, nodeID string) domain.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ && ev.NodeID == nodeID {
				return ev
			}
		case <-timeout:
			t.Fatalf("no %s event for %s", typ, nodeID)
			return domain.Event{}
		}
	}
}

func TestInvoker_NothingToRun(t *testing.T) {
	h := newHarness(t, 1)
	state, err := h.inv.CreateExecutionState(context.Background(), nil)
	require.NoError(t, err)

	id, err := h.inv.Invoke(context.Background(), state, true)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.True(t, state.IsComplete())
}

func TestInvoker_RejectsInvalidGraph(t *testing.T) {
	h := newHarness(t, 1)
	g := addGraph(t)
	g.Edges = append(g.Edges, edge("a", "value", "missing", "a"))

	state, err := h.inv.CreateExecutionState(context.Background(), g)
	require.NoError(t, err)

	_, err = h.inv.Invoke(context.Background(), state, true)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidGraph))
	assert.ErrorIs(t, err, graph.ErrInvalidEdge)
}

func TestProcessor_IterateCollect(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	ch, cancel := h.bus.Subscribe(256)
	defer cancel()

	g := buildGraph(t,
		[]*graph.Node{
			node("range", "range", map[string]any{"stop": 3}),
			node("iter", graph.TypeIterate, nil),
			node("ten", "integer", map[string]any{"value": 10}),
			node("add", "add", nil),
			node("gather", graph.TypeCollect, nil),
		},
		edge("range", "collection", "iter", "collection"),
		edge("iter", "item", "add", "a"),
		edge("ten", "value", "add", "b"),
		edge("add", "value", "gather", "item"),
	)
	state, err := h.inv.CreateExecutionState(ctx, g)
	require.NoError(t, err)
	_, err = h.inv.Invoke(ctx, state, true)
	require.NoError(t, err)
	collect(t, ch, state.ID)

	final, err := h.store.Get(ctx, state.ID)
	require.NoError(t, err)
	require.False(t, final.HasError(), "errors: %v", final.Errors)
	assert.Len(t, final.SourcePreparedMapping["add"], 3)

	got := resultOf(t, final, "gather", "collection")
	assert.ElementsMatch(t, []any{json.Number("10"), json.Number("11"), json.Number("12")}, got)
}

func TestProcessor_RecordsInvocationError(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	ch, cancel := h.bus.Subscribe(64)
	defer cancel()

	g := buildGraph(t,
		[]*graph.Node{
			node("one", "integer", map[string]any{"value": 1}),
			node("div", "divide", map[string]any{"b": 0}),
			node("after", "add", nil),
		},
		edge("one", "value", "div", "a"),
		edge("div", "value", "after", "a"),
	)
	state, err := h.inv.CreateExecutionState(ctx, g)
	require.NoError(t, err)
	_, err = h.inv.Invoke(ctx, state, true)
	require.NoError(t, err)

	evs := collect(t, ch, state.ID)
	var failed *domain.Event
	for i := range evs {
		if evs[i].Type == domain.EventInvocationError {
			failed = &evs[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "div", failed.SourceNodeID)
	assert.Contains(t, failed.Error, "divide by zero")

	final, err := h.store.Get(ctx, state.ID)
	require.NoError(t, err)
	assert.True(t, final.HasError())
	assert.True(t, final.IsComplete())
	assert.NotContains(t, final.ExecutedHistory, "after")
}

func TestProcessor_RecoversFromPanic(t *testing.T) {
	h := newHarness(t, 1)
	ctx := context.Background()
	ch, cancel := h.bus.Subscribe(64)
	defer cancel()

	state, err := h.inv.CreateExecutionState(ctx, buildGraph(t, []*graph.Node{node("p", "t_panic", nil)}))
	require.NoError(t, err)
	_, err = h.inv.Invoke(ctx, state, true)
	require.NoError(t, err)
	collect(t, ch, state.ID)

	final, err := h.store.Get(ctx, state.ID)
	require.NoError(t, err)
	require.Len(t, final.Errors, 1)
	for _, msg := range final.Errors {
		assert.Contains(t, msg, "panic in t_panic: boom")
	}
}

func TestInvoker_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, 2)
	require.NoError(t, h.inv.Stop())
	require.NoError(t, h.inv.Stop())

	state := graph.NewExecutionState(addGraph(t))
	require.NoError(t, h.store.Set(context.Background(), state))
	_, err := h.inv.Invoke(context.Background(), state, true)
	assert.True(t, errors.Is(err, queue.ErrQueueClosed))
}

func TestProcessor_StartTwiceFails(t *testing.T) {
	h := newHarness(t, 1)
	assert.Error(t, h.inv.Services().Processor.Start(h.inv))
}

func TestNewInvoker_StopsStartedServicesOnFailure(t *testing.T) {
	store, err := itemstore.NewMemStore("sessions", func(s *graph.ExecutionState) string { return s.ID })
	require.NoError(t, err)

	// Events start before the processor, so no worker is left running.
	_, err = NewInvoker(Services{
		Sessions:  store,
		Queue:     queue.NewMemory(1, nil),
		Events:    failingEvents{},
		Processor: NewProcessor(1),
	})
	assert.EqualError(t, err, "nope")
}

type failingEvents struct{}

func (failingEvents) Emit(domain.Event)    {}
func (failingEvents) Start(*Invoker) error { return errors.New("nope") }
