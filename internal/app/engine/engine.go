// Package engine wires a workspace's loaders, session storage, queue,
// event bus and worker pool into one running invoker.
package engine

import (
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
	"github.com/waffletower/InvokeAI/internal/infra/events"
	"github.com/waffletower/InvokeAI/internal/infra/httpclient"
	"github.com/waffletower/InvokeAI/internal/infra/itemstore"
	"github.com/waffletower/InvokeAI/internal/infra/metrics"
	"github.com/waffletower/InvokeAI/internal/infra/queue"
	"github.com/waffletower/InvokeAI/internal/infra/yamlenv"
	"github.com/waffletower/InvokeAI/internal/infra/yamlgraph"
	"github.com/waffletower/InvokeAI/internal/usecase"
)

// Options override parts of the workspace config for one process.
type Options struct {
	// Backend replaces cfg.Storage.Backend when set.
	Backend domain.StorageBackend
	Workers int
	Log     *slog.Logger
	Metrics *metrics.Metrics
	HTTP    *httpclient.Executor
}

type Engine struct {
	Root   string
	Config domain.Config

	Graphs *yamlgraph.Loader
	Envs   *yamlenv.Loader

	Metrics  *metrics.Metrics
	Bus      *events.Bus
	Store    itemstore.Store[*graph.ExecutionState]
	Invoker  *usecase.Invoker
	Sessions *usecase.Sessions
}

// Loaders builds the graph and environment loaders for a workspace
// without starting anything.
func Loaders(root string, cfg domain.Config) (*yamlgraph.Loader, *yamlenv.Loader) {
	graphsDir := cfg.Paths.GraphsDir
	if !filepath.IsAbs(graphsDir) {
		graphsDir = filepath.Join(root, graphsDir)
	}
	gl := yamlgraph.NewLoader(yamlgraph.WithGraphsDir(graphsDir))
	el := yamlenv.NewLoader(root, yamlenv.WithEnvDir(cfg.Paths.EnvironmentsDir))
	return gl, el
}

func sessionID(s *graph.ExecutionState) string { return s.ID }

// OpenStore opens the session store selected by cfg.Storage on its own,
// for readers that do not run graphs.
func OpenStore(root string, cfg domain.Config) (itemstore.Store[*graph.ExecutionState], error) {
	return itemstore.New(root, cfg, "sessions", sessionID)
}

// Open starts an invoker for the workspace at root. Close must be called
// to stop the workers and release the store.
func Open(root string, cfg domain.Config, opts Options) (*Engine, error) {
	if opts.Backend != "" {
		cfg.Storage.Backend = opts.Backend
	}
	if opts.Workers > 0 {
		cfg.Queue.Workers = opts.Workers
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	exec := opts.HTTP
	if exec == nil {
		exec = httpclient.NewExecutor()
	}

	store, err := OpenStore(root, cfg)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(log)
	inv, err := usecase.NewInvoker(usecase.Services{
		Sessions: store,
		Queue:    queue.NewMemory(cfg.Queue.Size, m.QueueDepth),
		Events:   bus,
		Processor: usecase.NewProcessor(cfg.Queue.Workers,
			usecase.WithLogger(log),
			usecase.WithHTTPExecutor(exec),
			usecase.WithMetrics(m),
		),
		Log: log,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	gl, el := Loaders(root, cfg)
	log.Debug("engine.open", "root", root, "backend", string(cfg.Storage.Backend), "workers", cfg.Queue.Workers)

	return &Engine{
		Root:     root,
		Config:   cfg,
		Graphs:   gl,
		Envs:     el,
		Metrics:  m,
		Bus:      bus,
		Store:    store,
		Invoker:  inv,
		Sessions: usecase.NewSessions(inv),
	}, nil
}

// RunGraph returns a run use case bound to this engine.
func (e *Engine) RunGraph(opts ...usecase.RunOption) *usecase.RunGraph {
	return usecase.NewRunGraph(e.Graphs, e.Envs, e.Invoker, e.Bus, opts...)
}

func (e *Engine) ValidateGraph() *usecase.ValidateGraph {
	return usecase.NewValidateGraph(e.Graphs, e.Envs)
}

// Close stops the invoker before closing the store it writes to.
func (e *Engine) Close() error {
	return errors.Join(e.Invoker.Stop(), e.Store.Close())
}
