package usecase

import (
	"context"
	"time"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
	"github.com/waffletower/InvokeAI/internal/ports"
)

// RunInput selects a graph file, an optional environment and --set
// overrides.
type RunInput struct {
	GraphPath string
	Env       string
	Overrides domain.Vars
}

type RunGraph struct {
	graphs  ports.GraphLoader
	envs    ports.EnvironmentLoader
	invoker *Invoker
	events  ports.EventSource
	onEvent func(domain.Event)
	now     func() time.Time
	poll    time.Duration
}

type RunOption func(*RunGraph)

// WithEventHandler is called for every event of the run, in order.
func WithEventHandler(fn func(domain.Event)) RunOption {
	return func(uc *RunGraph) { uc.onEvent = fn }
}

func NewRunGraph(gl ports.GraphLoader, el ports.EnvironmentLoader, inv *Invoker, events ports.EventSource, opts ...RunOption) *RunGraph {
	uc := &RunGraph{
		graphs:  gl,
		envs:    el,
		invoker: inv,
		events:  events,
		now:     time.Now,
		poll:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Execute loads the graph, invokes every node and waits for the session
// to complete. On cancellation the partial report is returned with the
// context error.
func (uc *RunGraph) Execute(ctx context.Context, in RunInput) (domain.RunReport, error) {
	report := domain.RunReport{StartedAt: uc.now()}

	loaded, envName, err := loadGraph(uc.graphs, uc.envs, in)
	if err != nil {
		return report, err
	}
	report.GraphName = loaded.Name
	report.GraphPath = loaded.Path
	report.EnvironmentName = envName

	if err := ctx.Err(); err != nil {
		report.EndedAt = uc.now()
		return report, err
	}

	// Subscribe before the first node is queued so no event is missed.
	ch, cancel := uc.events.Subscribe(1024)
	defer cancel()

	state, err := uc.invoker.CreateExecutionState(ctx, loaded.Graph)
	if err != nil {
		return report, err
	}
	report.SessionID = state.ID

	id, err := uc.invoker.Invoke(ctx, state, true)
	if err != nil {
		report.EndedAt = uc.now()
		return report, err
	}

	waitErr := error(nil)
	if id != "" {
		waitErr = uc.wait(ctx, ch, state.ID)
	}

	// The state saved by the processor is the source of truth.
	final, err := uc.invoker.services.Sessions.Get(context.WithoutCancel(ctx), state.ID)
	if err != nil {
		final = state
	}
	fillReport(&report, final)
	report.EndedAt = uc.now()
	return report, waitErr
}

// wait returns once the session completes. The bus drops events for slow
// subscribers, so the stored state is also polled.
func (uc *RunGraph) wait(ctx context.Context, ch <-chan domain.Event, sessionID string) error {
	tick := time.NewTicker(uc.poll)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			s, err := uc.invoker.services.Sessions.Get(ctx, sessionID)
			if err == nil && s.IsComplete() {
				return nil
			}
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if ev.GraphExecutionStateID != sessionID {
				continue
			}
			if uc.onEvent != nil {
				uc.onEvent(ev)
			}
			if ev.Type == domain.EventSessionComplete {
				return nil
			}
		}
	}
}

func fillReport(r *domain.RunReport, s *graph.ExecutionState) {
	r.Complete = s.IsComplete()
	r.History = append([]string{}, s.ExecutedHistory...)
	r.Nodes = make([]domain.NodeReport, 0, len(s.PreparedOrder))
	for _, id := range s.PreparedOrder {
		n, ok := s.PreparedNode(id)
		if !ok {
			continue
		}
		out, done := s.Results[id]
		msg, failed := s.Errors[id]
		if !done && !failed {
			continue
		}
		r.Nodes = append(r.Nodes, domain.NodeReport{
			SourceNodeID: s.SourceNodeID(id),
			PreparedID:   id,
			Type:         n.Type,
			Values:       out.Values,
			Error:        msg,
		})
	}
}

// loadGraph layers env vars and overrides over the graph's own vars:
// graph < env < overrides.
func loadGraph(gl ports.GraphLoader, el ports.EnvironmentLoader, in RunInput) (*ports.LoadedGraph, string, error) {
	vars := domain.Vars{}
	envName := ""
	if in.Env != "" {
		env, err := el.LoadEnvironment(in.Env)
		if err != nil {
			return nil, "", err
		}
		envName = env.Name
		vars = domain.Merge(env.Vars)
	}
	vars = domain.Merge(vars, in.Overrides)

	loaded, err := gl.LoadGraph(in.GraphPath, vars)
	if err != nil {
		return nil, envName, err
	}
	return loaded, envName, nil
}
