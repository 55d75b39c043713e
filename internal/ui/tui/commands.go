package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waffletower/InvokeAI/internal/app/engine"
	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/infra/workspacefinder"
	"github.com/waffletower/InvokeAI/internal/usecase"
)

func cmdRefreshWorkspace(deps Deps) tea.Cmd {
	return func() tea.Msg {
		wd, err := os.Getwd()
		if err != nil {
			return workspaceRefreshedMsg{cwd: "", found: false, err: fmt.Errorf("getwd: %w", err)}
		}
		if deps.WorkspaceLocator == nil {
			return workspaceRefreshedMsg{cwd: wd, found: false, err: errors.New("WorkspaceLocator is nil")}
		}

		root, findErr := deps.WorkspaceLocator.FindRoot(wd)
		if findErr != nil {
			return workspaceRefreshedMsg{cwd: wd, found: false, err: findErr}
		}

		return workspaceRefreshedMsg{cwd: wd, found: true, root: root, err: nil}
	}
}

func cmdInitWorkspaceHere(deps Deps, root string) tea.Cmd {
	return func() tea.Msg {
		if deps.WorkspaceInitializer == nil {
			return initWorkspaceDoneMsg{root: root, err: errors.New("WorkspaceInitializer is nil")}
		}

		err := deps.WorkspaceInitializer.Init(domain.WorkspaceSpec{Root: root}, false)
		return initWorkspaceDoneMsg{root: root, err: err}
	}
}

func cmdLoadGraphs(root string) tea.Cmd {
	return func() tea.Msg {
		cfg, err := workspacefinder.LoadConfig(root)
		if err != nil {
			return graphsLoadedMsg{root: root, err: err}
		}

		gl, _ := engine.Loaders(root, cfg)
		refs, err := gl.ListGraphs(root)
		return graphsLoadedMsg{root: root, refs: refs, err: err}
	}
}

func cmdLoadEnvironments(root string) tea.Cmd {
	return func() tea.Msg {
		cfg, err := workspacefinder.LoadConfig(root)
		if err != nil {
			return envsLoadedMsg{root: root, err: err}
		}

		_, el := engine.Loaders(root, cfg)
		refs, err := el.ListEnvironments(root)
		return envsLoadedMsg{root: root, refs: refs, err: err}
	}
}

func cmdPreviewGraph(root, path string) tea.Cmd {
	return func() tea.Msg {
		p := filepath.Clean(path)

		cfg, err := workspacefinder.LoadConfig(root)
		if err != nil {
			return graphPreviewMsg{path: p, err: err}
		}
		gl, _ := engine.Loaders(root, cfg)
		loaded, err := gl.LoadGraph(p, nil)
		if err != nil {
			return graphPreviewMsg{path: p, err: err}
		}

		var b strings.Builder
		b.WriteString("Graph: ")
		b.WriteString(loaded.Name)
		b.WriteString("\n\n")

		if len(loaded.Vars) > 0 {
			b.WriteString("Vars:\n")
			keys := make([]string, 0, len(loaded.Vars))
			for k := range loaded.Vars {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "  - %s = %s\n", k, loaded.Vars[k])
			}
			b.WriteString("\n")
		}

		nodes, err := loaded.Graph.FlatNodes()
		if err != nil {
			return graphPreviewMsg{path: p, err: err}
		}
		b.WriteString("Nodes:\n")
		for _, id := range nodes {
			n, err := loaded.Graph.GetNode(id)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "  - %s  (%s)\n", id, n.Type)
		}
		fmt.Fprintf(&b, "\nEdges: %d\n", len(loaded.Graph.Edges))

		return graphPreviewMsg{path: p, preview: b.String()}
	}
}

// listenRun waits for the next message of a run. A closed channel yields
// no message: the run was abandoned.
func listenRun(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

// startRunAsync runs a graph on a private engine and streams its events.
// Cancelling ctx abandons the run.
func startRunAsync(
	ctx context.Context,
	run int,
	workspaceRoot, graphPath, envName string,
	log *slog.Logger,
) (<-chan tea.Msg, tea.Cmd) {
	ch := make(chan tea.Msg, 64)

	if log == nil {
		log = slog.Default()
	}

	send := func(msg tea.Msg) {
		select {
		case ch <- msg:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(ch)

		log.Info("tui.run.start",
			"workspace", workspaceRoot,
			"graph_path", graphPath,
			"env", envName,
		)

		cfg, err := workspacefinder.LoadConfig(workspaceRoot)
		if err != nil {
			log.Error("tui.run.load_config.failed", "err", err)
			send(runDoneMsg{run: run, err: err})
			return
		}

		eng, err := engine.Open(workspaceRoot, cfg, engine.Options{Log: log})
		if err != nil {
			log.Error("tui.run.engine.failed", "err", err)
			send(runDoneMsg{run: run, err: err})
			return
		}
		defer func() { _ = eng.Close() }()

		if envName == "" {
			envName = defaultEnvironment(eng, cfg)
		}

		uc := eng.RunGraph(usecase.WithEventHandler(func(ev domain.Event) {
			send(runEventMsg{run: run, ev: ev})
		}))
		report, execErr := uc.Execute(ctx, usecase.RunInput{GraphPath: graphPath, Env: envName})

		if execErr != nil {
			log.Error("tui.run.failed", "err", execErr, "session_id", report.SessionID)
		} else {
			log.Info("tui.run.ok", "session_id", report.SessionID, "failures", report.Failures())
		}

		send(runDoneMsg{run: run, report: report, err: execErr})
	}()

	return ch, listenRun(ch)
}

// defaultEnvironment returns the configured default environment when its
// file exists.
func defaultEnvironment(eng *engine.Engine, cfg domain.Config) string {
	def := cfg.Defaults.Environment
	if def == "" {
		return ""
	}
	refs, err := eng.Envs.ListEnvironments(eng.Root)
	if err != nil {
		return ""
	}
	for _, r := range refs {
		if r.Name == def {
			return def
		}
	}
	return ""
}
