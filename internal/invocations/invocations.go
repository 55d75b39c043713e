// Package invocations holds the built-in invocation implementations and
// the registry mapping node types to them.
package invocations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
	"github.com/waffletower/InvokeAI/internal/infra/httpclient"
)

// InvocationContext carries what an invocation may use besides its inputs.
type InvocationContext struct {
	SessionID string
	Log       *slog.Logger
	HTTP      *httpclient.Executor
	Now       func() time.Time
}

// NewContext returns a context with defaults filled in.
func NewContext(sessionID string, log *slog.Logger, http *httpclient.Executor) *InvocationContext {
	if log == nil {
		log = slog.Default()
	}
	if http == nil {
		http = httpclient.NewExecutor()
	}
	return &InvocationContext{SessionID: sessionID, Log: log, HTTP: http, Now: time.Now}
}

// Func runs one prepared node.
type Func func(ctx context.Context, ic *InvocationContext, n *graph.Node) (graph.Output, error)

var (
	mu    sync.RWMutex
	funcs = map[string]Func{}
)

// Register declares a node type and its implementation.
func Register(def graph.Definition, fn Func) {
	graph.Register(def)
	registerFunc(def.Type, fn)
}

// registerFunc binds an implementation to a type the graph package defines.
func registerFunc(typ string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := funcs[typ]; dup {
		panic(fmt.Sprintf("invocations: duplicate implementation for %q", typ))
	}
	funcs[typ] = fn
}

// Lookup returns the implementation for a node type.
func Lookup(typ string) (Func, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := funcs[typ]
	return fn, ok
}

// Types returns every node type with an implementation.
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(funcs))
	for t := range funcs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Invoke runs n with the implementation registered for its type.
func Invoke(ctx context.Context, ic *InvocationContext, n *graph.Node) (graph.Output, error) {
	fn, ok := Lookup(n.Type)
	if !ok {
		return graph.Output{}, &domain.OpError{
			Op:   "invoke",
			Kind: domain.KindExecution,
			Path: n.ID,
			Err:  fmt.Errorf("%w: no implementation for type %q", domain.ErrExecution, n.Type),
		}
	}
	if err := ctx.Err(); err != nil {
		return graph.Output{}, err
	}

	out, err := fn(ctx, ic, n)
	if err != nil {
		return graph.Output{}, err
	}
	if out.Type == "" {
		out.Type = n.Type
	}
	if out.Values == nil {
		out.Values = map[string]any{}
	}
	return out, nil
}

func output(typ string, kv ...any) graph.Output {
	values := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		values[kv[i].(string)] = kv[i+1]
	}
	return graph.Output{Type: typ, Values: values}
}
