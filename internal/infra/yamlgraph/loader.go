// Package yamlgraph loads graph definitions from YAML files.
package yamlgraph

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/ports"
)

type Loader struct {
	graphsDir string
	resolver  *domain.VarResolver
}

type Option func(*Loader)

func WithGraphsDir(dir string) Option {
	return func(l *Loader) { l.graphsDir = dir }
}

func WithVarResolver(vr *domain.VarResolver) Option {
	return func(l *Loader) {
		if vr != nil {
			l.resolver = vr
		}
	}
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{graphsDir: "graphs", resolver: domain.NewVarResolver()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ ports.GraphLoader = (*Loader)(nil)

// LoadGraph reads, maps and validates a graph file. vars are layered over
// the file's own vars before placeholders are resolved.
func (l *Loader) LoadGraph(path string, vars domain.Vars) (*ports.LoadedGraph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.OpError{
			Op:   "yamlgraph.load",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var yg yamlGraph
	if err := yaml.Unmarshal(b, &yg); err != nil {
		return nil, &domain.OpError{
			Op:   "yamlgraph.load",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	name := strings.TrimSpace(yg.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	merged := domain.Merge(domain.Vars(yg.Vars), vars)
	rt, err := l.resolver.NewRuntime(merged)
	if err != nil {
		return nil, err
	}

	m := mapper{path: path, rt: rt}
	g, err := m.mapGraph("", yg.Nodes, yg.Edges)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, m.wrap("graph", err)
	}

	return &ports.LoadedGraph{Name: name, Path: path, Vars: merged, Graph: g}, nil
}

func (l *Loader) ListGraphs(root string) ([]domain.GraphRef, error) {
	dir := l.graphsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.OpError{
			Op:   "yamlgraph.list",
			Kind: domain.KindNotFound,
			Path: dir,
			Err:  err,
		}
	}

	var refs []domain.GraphRef
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		p := filepath.Join(dir, name)
		n, _ := readGraphName(p)
		if strings.TrimSpace(n) == "" {
			n = strings.TrimSuffix(name, filepath.Ext(name))
		}
		refs = append(refs, domain.GraphRef{Name: n, Path: p})
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func readGraphName(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var v struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(b, &v); err != nil {
		return "", err
	}
	return v.Name, nil
}
