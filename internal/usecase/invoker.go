package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
	"github.com/waffletower/InvokeAI/internal/ports"
)

// Services are the collaborators an Invoker drives. Any of them may
// implement Start(*Invoker) error and Stop(*Invoker) error.
type Services struct {
	Sessions  ports.ItemStorage[*graph.ExecutionState]
	Queue     ports.InvocationQueue
	Events    ports.EventSink
	Processor *Processor
	Log       *slog.Logger
}

func (s Services) all() []any {
	out := []any{s.Sessions, s.Queue, s.Events}
	if s.Processor != nil {
		out = append(out, s.Processor)
	}
	return out
}

type discardEvents struct{}

func (discardEvents) Emit(domain.Event) {}

type starter interface {
	Start(inv *Invoker) error
}

type stopper interface {
	Stop(inv *Invoker) error
}

// Invoker prepares nodes of a session and queues them for the processor.
type Invoker struct {
	services Services
	log      *slog.Logger
	locks    sessionLocks

	stopOnce sync.Once
	stopErr  error
}

// NewInvoker starts every service. On failure the services already
// started are stopped again.
func NewInvoker(services Services) (*Invoker, error) {
	log := services.Log
	if log == nil {
		log = slog.Default()
	}
	if services.Events == nil {
		services.Events = discardEvents{}
	}
	inv := &Invoker{services: services, log: log.With("component", "invoker")}

	var started []any
	for _, svc := range services.all() {
		s, ok := svc.(starter)
		if !ok {
			continue
		}
		if err := s.Start(inv); err != nil {
			for _, prev := range started {
				if st, ok := prev.(stopper); ok {
					_ = st.Stop(inv)
				}
			}
			return nil, err
		}
		started = append(started, svc)
	}
	return inv, nil
}

func (inv *Invoker) Services() Services { return inv.services }

// Invoke prepares the next node of state, saves the state and queues the
// node. It returns the queued node id, or "" when nothing is ready.
func (inv *Invoker) Invoke(ctx context.Context, state *graph.ExecutionState, invokeAll bool) (string, error) {
	item, ok, err := inv.next(ctx, state, invokeAll)
	if err != nil || !ok {
		return "", err
	}
	if err := inv.enqueue(ctx, item); err != nil {
		state.Release(item.InvocationID)
		inv.save(context.WithoutCancel(ctx), state)
		return "", err
	}
	return item.InvocationID, nil
}

// next advances state and persists it without touching the queue.
func (inv *Invoker) next(ctx context.Context, state *graph.ExecutionState, invokeAll bool) (domain.QueueItem, bool, error) {
	if err := state.Graph.Validate(); err != nil {
		return domain.QueueItem{}, false, err
	}
	n, err := state.Next()
	if err != nil {
		return domain.QueueItem{}, false, err
	}
	if n == nil {
		return domain.QueueItem{}, false, nil
	}
	if err := inv.services.Sessions.Set(ctx, state); err != nil {
		return domain.QueueItem{}, false, err
	}
	return domain.QueueItem{
		GraphExecutionStateID: state.ID,
		InvocationID:          n.ID,
		InvokeAll:             invokeAll,
	}, true, nil
}

func (inv *Invoker) enqueue(ctx context.Context, item domain.QueueItem) error {
	if err := inv.services.Queue.Put(ctx, item); err != nil {
		return err
	}
	inv.log.Debug("invoker.enqueue",
		"session", item.GraphExecutionStateID,
		"node", item.InvocationID,
		"invoke_all", item.InvokeAll,
	)
	return nil
}

// release hands a node that was prepared but never ran back to its session.
func (inv *Invoker) release(ctx context.Context, item domain.QueueItem) {
	unlock := inv.locks.lock(item.GraphExecutionStateID)
	defer unlock()

	state, err := inv.services.Sessions.Get(ctx, item.GraphExecutionStateID)
	if err != nil {
		inv.log.Error("invoker.release.load_failed", "session", item.GraphExecutionStateID, "error", err)
		return
	}
	state.Release(item.InvocationID)
	inv.save(ctx, state)
}

func (inv *Invoker) save(ctx context.Context, state *graph.ExecutionState) {
	if err := inv.services.Sessions.Set(ctx, state); err != nil {
		inv.log.Error("invoker.session.save_failed", "session", state.ID, "error", err)
	}
}

// CreateExecutionState saves a new session over g. A nil g starts empty.
func (inv *Invoker) CreateExecutionState(ctx context.Context, g *graph.Graph) (*graph.ExecutionState, error) {
	state := graph.NewExecutionState(g)
	if err := inv.services.Sessions.Set(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Stop stops every service, then closes the queue. Further calls return
// the first result.
func (inv *Invoker) Stop() error {
	inv.stopOnce.Do(func() {
		var errs []error
		svcs := inv.services.all()
		for i := len(svcs) - 1; i >= 0; i-- {
			if s, ok := svcs[i].(stopper); ok {
				errs = append(errs, s.Stop(inv))
			}
		}
		errs = append(errs, inv.services.Queue.Close())
		inv.stopErr = errors.Join(errs...)
	})
	return inv.stopErr
}

// sessionLocks serialises work on one session.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*sessionLock{}
	}
	sl, ok := l.locks[id]
	if !ok {
		sl = &sessionLock{}
		l.locks[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
