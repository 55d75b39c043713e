package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
	"github.com/waffletower/InvokeAI/internal/infra/httpclient"
	"github.com/waffletower/InvokeAI/internal/infra/metrics"
	"github.com/waffletower/InvokeAI/internal/invocations"
	"github.com/waffletower/InvokeAI/internal/ports"
)

// Processor runs queued invocations on a fixed pool of workers.
type Processor struct {
	workers int
	log     *slog.Logger
	http    *httpclient.Executor
	metrics *metrics.Metrics
	now     func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

type ProcessorOption func(*Processor)

func WithLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

func WithHTTPExecutor(e *httpclient.Executor) ProcessorOption {
	return func(p *Processor) { p.http = e }
}

func WithMetrics(m *metrics.Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(workers int, opts ...ProcessorOption) *Processor {
	if workers <= 0 {
		workers = 1
	}
	p := &Processor{workers: workers, log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	if p.http == nil {
		p.http = httpclient.NewExecutor()
	}
	p.log = p.log.With("component", "processor")
	return p
}

// Start launches the workers. It fails if they are already running.
func (p *Processor) Start(inv *Invoker) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errors.New("processor: already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		worker := i
		g.Go(func() error { return p.work(ctx, inv, worker) })
	}
	p.cancel = cancel
	p.group = g
	p.log.Info("processor.started", "workers", p.workers)
	return nil
}

// Stop cancels the workers and waits for the running invocations to end.
func (p *Processor) Stop(_ *Invoker) error {
	p.mu.Lock()
	cancel, g := p.cancel, p.group
	p.cancel, p.group = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	err := g.Wait()
	p.log.Info("processor.stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Processor) work(ctx context.Context, inv *Invoker, worker int) error {
	log := p.log.With("worker", worker)
	for {
		item, err := inv.services.Queue.Get(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Debug("processor.queue.closed", "error", err)
			}
			return nil
		}

		// Follow-up nodes of an invoke-all session run on this worker. A
		// worker never puts into the queue it drains, so a full queue
		// cannot stall the pool.
		next, ok := p.process(ctx, inv, item)
		for ok {
			if ctx.Err() != nil {
				inv.release(context.WithoutCancel(ctx), next)
				break
			}
			log.Debug("processor.follow_up", "session", next.GraphExecutionStateID, "node", next.InvocationID)
			next, ok = p.process(ctx, inv, next)
		}
	}
}

// process runs one queue item. In invoke-all mode it prepares the next
// node and returns it for the caller to run.
func (p *Processor) process(ctx context.Context, inv *Invoker, item domain.QueueItem) (domain.QueueItem, bool) {
	unlock := inv.locks.lock(item.GraphExecutionStateID)
	defer unlock()

	sessions := inv.services.Sessions
	events := inv.services.Events
	log := p.log.With("session", item.GraphExecutionStateID, "node", item.InvocationID)

	state, err := sessions.Get(ctx, item.GraphExecutionStateID)
	if err != nil {
		log.Error("processor.session.load_failed", "error", err)
		return domain.QueueItem{}, false
	}
	node, ok := state.PreparedNode(item.InvocationID)
	if !ok {
		log.Error("processor.node.missing")
		return domain.QueueItem{}, false
	}
	source := state.SourceNodeID(node.ID)

	events.Emit(domain.Event{
		Type:                  domain.EventInvocationStarted,
		GraphExecutionStateID: state.ID,
		NodeID:                node.ID,
		SourceNodeID:          source,
	})

	start := p.now()
	ic := invocations.NewContext(state.ID, log, p.http)
	out, runErr := p.invoke(ctx, ic, node)
	p.observe(node.Type, runErr, p.now().Sub(start))

	if runErr != nil {
		log.Warn("processor.node.failed", "type", node.Type, "source", source, "error", runErr)
		state.SetNodeError(node.ID, runErr.Error())
		p.save(ctx, inv, state)
		events.Emit(domain.Event{
			Type:                  domain.EventInvocationError,
			GraphExecutionStateID: state.ID,
			NodeID:                node.ID,
			SourceNodeID:          source,
			Error:                 runErr.Error(),
		})
		p.finish(events, state)
		return domain.QueueItem{}, false
	}

	state.Complete(node.ID, out)
	log.Debug("processor.node.complete", "type", node.Type, "source", source)

	var next domain.QueueItem
	queued := false
	if item.InvokeAll && !state.IsComplete() {
		// next saves the state when it prepares a node.
		next, queued, err = inv.next(ctx, state, true)
		if err != nil {
			log.Warn("processor.prepare.failed", "error", err)
			state.SetNodeError(node.ID, fmt.Sprintf("prepare next: %v", err))
		}
	}
	if !queued {
		p.save(ctx, inv, state)
	}

	events.Emit(domain.Event{
		Type:                  domain.EventInvocationComplete,
		GraphExecutionStateID: state.ID,
		NodeID:                node.ID,
		SourceNodeID:          source,
		Result:                out.Values,
	})
	if state.IsComplete() {
		p.finish(events, state)
	}
	return next, queued
}

func (p *Processor) invoke(ctx context.Context, ic *invocations.InvocationContext, n *graph.Node) (out graph.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.OpError{
				Op:   "processor.invoke",
				Kind: domain.KindExecution,
				Path: n.ID,
				Err:  fmt.Errorf("%w: panic in %s: %v", domain.ErrExecution, n.Type, r),
			}
		}
	}()
	return invocations.Invoke(ctx, ic, n)
}

func (p *Processor) save(ctx context.Context, inv *Invoker, state *graph.ExecutionState) {
	if err := inv.services.Sessions.Set(ctx, state); err != nil {
		p.log.Error("processor.session.save_failed", "session", state.ID, "error", err)
	}
}

func (p *Processor) finish(events ports.EventSink, state *graph.ExecutionState) {
	outcome := "success"
	if state.HasError() {
		outcome = "error"
	}
	if p.metrics != nil {
		p.metrics.SessionsCompleted.WithLabelValues(outcome).Inc()
	}
	p.log.Info("processor.session.complete", "session", state.ID, "outcome", outcome)
	events.Emit(domain.Event{
		Type:                  domain.EventSessionComplete,
		GraphExecutionStateID: state.ID,
	})
}

func (p *Processor) observe(typ string, err error, d time.Duration) {
	if p.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.Invocations.WithLabelValues(typ, status).Inc()
	p.metrics.InvocationDuration.WithLabelValues(typ).Observe(d.Seconds())
}
