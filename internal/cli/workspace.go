package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/waffletower/InvokeAI/internal/app/engine"
	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/infra/logger"
	"github.com/waffletower/InvokeAI/internal/infra/workspacefinder"
	"github.com/waffletower/InvokeAI/internal/infra/yamlenv"
	"github.com/waffletower/InvokeAI/internal/infra/yamlgraph"
)

type workspaceCtx struct {
	root string
	cfg  domain.Config

	graphs *yamlgraph.Loader
	envs   *yamlenv.Loader
}

func loadWorkspace(workspaceFlag string) (*workspaceCtx, error) {
	root, err := resolveWorkspaceRoot(workspaceFlag)
	if err != nil {
		return nil, err
	}

	cfg, err := workspacefinder.LoadConfig(root)
	if err != nil {
		return nil, err
	}

	gl, el := engine.Loaders(root, cfg)
	return &workspaceCtx{
		root:   root,
		cfg:    cfg,
		graphs: gl,
		envs:   el,
	}, nil
}

// open starts the engine for commands that execute graphs or touch
// stored sessions.
func (ws *workspaceCtx) open(opts engine.Options) (*engine.Engine, error) {
	if opts.Log == nil {
		opts.Log = logger.Component("engine")
	}
	return engine.Open(ws.root, ws.cfg, opts)
}

func resolveWorkspaceRoot(workspaceFlag string) (string, error) {
	w := strings.TrimSpace(workspaceFlag)
	if w != "" {
		abs, err := filepath.Abs(w)
		if err != nil {
			return "", fmt.Errorf("invalid workspace path: %w", err)
		}
		return abs, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}

	locator := workspacefinder.NewFinder()
	root, err := locator.FindRoot(wd)
	if err != nil {
		return "", fmt.Errorf("workspace not found from %q (tip: run `invoke init`): %w", wd, err)
	}
	return root, nil
}

func resolveGraphPath(ws *workspaceCtx, arg string) (string, error) {
	in := strings.TrimSpace(arg)
	if in == "" {
		return "", fmt.Errorf("graph is required (use --graph or -g)")
	}

	if looksLikePath(in) {
		p := in
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws.root, p)
		}
		return filepath.Clean(p), nil
	}

	graphsDir := ws.cfg.Paths.GraphsDir
	if !filepath.IsAbs(graphsDir) {
		graphsDir = filepath.Join(ws.root, graphsDir)
	}

	if hasYAMLExt(in) {
		p := filepath.Join(graphsDir, in)
		if fileExists(p) {
			return p, nil
		}
	}

	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(graphsDir, in+ext)
		if fileExists(p) {
			return p, nil
		}
	}

	// Last resort: match the graph's name field.
	refs, err := ws.graphs.ListGraphs(ws.root)
	if err == nil {
		for _, r := range refs {
			if strings.EqualFold(r.Name, in) {
				return r.Path, nil
			}
		}
	}

	return "", &domain.OpError{
		Op:   "cli.resolve_graph",
		Kind: domain.KindNotFound,
		Path: graphsDir,
		Err:  fmt.Errorf("%w: graph %q", domain.ErrNotFound, in),
	}
}

// resolveEnvironmentArg returns "" when no environment should be loaded.
// The configured default is only used when its file exists; an explicit
// argument is passed on and fails in the loader if missing.
func resolveEnvironmentArg(ws *workspaceCtx, arg string) string {
	in := strings.TrimSpace(arg)
	if in == "" {
		def := ws.cfg.Defaults.Environment
		if def == "" || !ws.hasEnvironment(def) {
			return ""
		}
		return def
	}

	if looksLikePath(in) {
		p := in
		if !filepath.IsAbs(p) {
			p = filepath.Join(ws.root, p)
		}
		return filepath.Clean(p)
	}

	if hasYAMLExt(in) {
		envDir := ws.cfg.Paths.EnvironmentsDir
		if !filepath.IsAbs(envDir) {
			envDir = filepath.Join(ws.root, envDir)
		}
		return filepath.Join(envDir, in)
	}

	return in
}

func (ws *workspaceCtx) hasEnvironment(name string) bool {
	refs, err := ws.envs.ListEnvironments(ws.root)
	if err != nil {
		return false
	}
	for _, r := range refs {
		if r.Name == name {
			return true
		}
	}
	return false
}

// parseSet turns repeated --set k=v flags into vars. Later flags win.
func parseSet(pairs []string) (domain.Vars, error) {
	out := domain.Vars{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, &domain.OpError{
				Op:   "cli.set",
				Kind: domain.KindInvalidConfig,
				Err:  fmt.Errorf("%w: --set expects key=value, got %q", domain.ErrInvalidConfig, p),
			}
		}
		out[k] = v
	}
	return out, nil
}

func looksLikePath(s string) bool {
	return strings.Contains(s, "/") || strings.Contains(s, string(filepath.Separator))
}

func hasYAMLExt(s string) bool {
	ext := strings.ToLower(filepath.Ext(s))
	return ext == ".yaml" || ext == ".yml"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
