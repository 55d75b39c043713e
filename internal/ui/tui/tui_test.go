package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/graph"
	"github.com/waffletower/InvokeAI/internal/infra/fsworkspace"
)

type fakeLocator struct {
	root string
	err  error
}

func (f fakeLocator) FindRoot(string) (string, error) { return f.root, f.err }

func testModel(t *testing.T) model {
	t.Helper()
	m := newModel(Deps{WorkspaceLocator: fakeLocator{root: "/ws"}})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(model)
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(model)
	if !ok {
		t.Fatalf("expected model, got %T", next)
	}
	return mm, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&domain.OpError{Op: "yamlgraph.load", Kind: domain.KindNotFound}, "Graph not found"},
		{&domain.OpError{Op: "yamlenv.load", Kind: domain.KindNotFound}, "Environment not found"},
		{&domain.OpError{Op: "memstore.get", Kind: domain.KindNotFound}, "Session not found"},
		{&domain.OpError{Op: "workspacefinder.findroot", Kind: domain.KindNotFound}, "Workspace not found"},
		{&domain.OpError{Op: "graph.add_edge", Kind: domain.KindInvalidGraph, Path: "a.value -> b.x"}, "Invalid graph at a.value -> b.x"},
		{&domain.OpError{Op: "session.delete_node", Kind: domain.KindNodeExecuted}, "Node already executed"},
		{&domain.OpError{Op: "vars.resolve", Kind: domain.KindMissingVar, Err: errors.New("missing variable: token")}, "Missing variable token"},
		{&domain.OpError{Op: "yamlgraph.load", Kind: domain.KindInvalidConfig, Path: "/ws/graphs/x.yaml", Err: errors.New("yaml: line 3: did not find expected key")}, "Invalid YAML at x.yaml line 3"},
		{&domain.OpError{Op: "graph.validate", Kind: domain.KindInvalidGraph, Err: graph.ErrCycle}, "Graph contains a cycle"},
		{fmt.Errorf("run: %w", context.Canceled), "Run cancelled"},
		{context.DeadlineExceeded, "Run timed out"},
		{errors.New("yaml: line 7: mapping values are not allowed"), "Invalid YAML line 7"},
		{errors.New("boom"), "Unexpected error (see logs)"},
	}
	for _, c := range cases {
		if got := userMessage(c.err); got != c.want {
			t.Errorf("userMessage(%v) = %q, want %q", c.err, got, c.want)
		}
	}
	if userMessage(nil) != "" {
		t.Error("expected empty message for nil error")
	}
}

func TestClampString(t *testing.T) {
	if got := clampString("héllo", 3); got != "hél…" {
		t.Errorf("unexpected clamp %q", got)
	}
	if got := clampString("hi", 3); got != "hi" {
		t.Errorf("unexpected clamp %q", got)
	}
	if got := clampString("hi", 0); got != "" {
		t.Errorf("unexpected clamp %q", got)
	}
}

func TestRenderEvent(t *testing.T) {
	got := renderEvent(domain.Event{Type: domain.EventInvocationError, SourceNodeID: "div", Error: "division by zero"})
	if !strings.Contains(got, "div: division by zero") {
		t.Errorf("unexpected line %q", got)
	}
	got = renderEvent(domain.Event{Type: domain.EventInvocationStarted, NodeID: "prepared-1"})
	if !strings.Contains(got, "prepared-1") {
		t.Errorf("expected node id fallback, got %q", got)
	}
}

func TestRenderReport(t *testing.T) {
	out := renderReport(DefaultTheme(), domain.RunReport{
		SessionID: "s1",
		Nodes: []domain.NodeReport{
			{SourceNodeID: "a", Type: "integer", Values: map[string]any{"value": 2.0}},
			{SourceNodeID: "div", Type: "divide", Error: "division by zero"},
		},
	})
	for _, want := range []string{"s1", "a", "value = 2", "div", "division by zero", "did not complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in report:\n%s", want, out)
		}
	}
}

func TestModel_WorkspaceDetection(t *testing.T) {
	m := newModel(Deps{WorkspaceLocator: fakeLocator{err: errors.New("nope")}})
	if m.workspaceFound {
		t.Fatal("expected no workspace")
	}
	if !strings.Contains(m.View(), "No workspace found") {
		t.Errorf("expected banner in view")
	}

	m, _ = update(t, m, workspaceRefreshedMsg{found: true, root: "/ws"})
	if !m.workspaceFound || m.workspaceRoot != "/ws" {
		t.Fatalf("expected workspace after refresh, got %+v", m.workspaceRoot)
	}
}

func TestModel_GraphPickerAndBack(t *testing.T) {
	m := testModel(t)

	m, cmd := update(t, m, graphsLoadedMsg{root: "/ws", refs: []domain.GraphRef{
		{Name: "example", Path: "/ws/graphs/example.yaml"},
		{Name: "fanout", Path: "/ws/graphs/fanout.yaml"},
	}})
	if m.scr != screenGraphs {
		t.Fatalf("expected graphs screen, got %v", m.scr)
	}
	if cmd == nil {
		t.Fatal("expected a preview command for the first graph")
	}
	if len(m.picker.Items()) != 2 {
		t.Fatalf("expected 2 items, got %d", len(m.picker.Items()))
	}

	m, _ = update(t, m, graphPreviewMsg{path: "/ws/graphs/example.yaml", preview: "Graph: example"})
	if !strings.Contains(m.View(), "Graph: example") {
		t.Errorf("expected preview in view")
	}

	m, _ = update(t, m, key("esc"))
	if m.scr != screenHome {
		t.Fatalf("expected home after esc, got %v", m.scr)
	}
}

func TestModel_NoGraphs(t *testing.T) {
	m := testModel(t)
	m, cmd := update(t, m, graphsLoadedMsg{root: "/ws"})
	if cmd != nil {
		t.Error("expected no preview command")
	}
	if m.toast != "No graphs found" {
		t.Errorf("unexpected toast %q", m.toast)
	}
}

func TestModel_SelectEnvironment(t *testing.T) {
	m := testModel(t)
	m, _ = update(t, m, envsLoadedMsg{root: "/ws", refs: []domain.EnvironmentRef{{Name: "dev", Path: "/ws/env/dev.yaml"}}})
	if m.scr != screenEnvs {
		t.Fatalf("expected envs screen, got %v", m.scr)
	}

	m.picker.Select(1)
	m, _ = update(t, m, key("enter"))
	if m.scr != screenHome || m.env != "dev" {
		t.Fatalf("expected dev selected on home, got scr=%v env=%q", m.scr, m.env)
	}
	if !strings.Contains(m.View(), "Env: dev") {
		t.Errorf("expected env in banner")
	}
}

func TestModel_IgnoresStaleRunMessages(t *testing.T) {
	m := testModel(t)
	m.scr = screenRun
	m.runID = 2
	m.running = true

	m, cmd := update(t, m, runEventMsg{run: 1, ev: domain.Event{Type: domain.EventInvocationStarted, SourceNodeID: "a"}})
	if cmd != nil || len(m.events) != 0 {
		t.Fatalf("expected stale event to be dropped")
	}
	m, _ = update(t, m, runDoneMsg{run: 1})
	if !m.running {
		t.Fatal("expected stale done to be dropped")
	}

	m, _ = update(t, m, runDoneMsg{run: 2, report: domain.RunReport{
		Complete: true,
		Nodes:    []domain.NodeReport{{SourceNodeID: "div", Error: "boom"}},
	}})
	if m.running || m.report == nil {
		t.Fatalf("expected finished run with report")
	}
	if m.toast != "1 node(s) failed" {
		t.Errorf("unexpected toast %q", m.toast)
	}
}

func TestModel_QuitFromHome(t *testing.T) {
	m := testModel(t)
	_, cmd := update(t, m, key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}
}

func TestModel_RunNeedsWorkspace(t *testing.T) {
	m := newModel(Deps{WorkspaceLocator: fakeLocator{err: errors.New("nope")}})
	m, cmd := update(t, m, key("enter"))
	if cmd != nil {
		t.Fatal("expected no command without a workspace")
	}
	if !strings.Contains(m.toast, "No workspace") {
		t.Errorf("unexpected toast %q", m.toast)
	}
}

func TestSafeModel_Delegates(t *testing.T) {
	s := wrapSafe(testModel(t), nil)
	next, _ := s.Update(workspaceRefreshedMsg{found: true, root: "/other"})
	sm, ok := next.(safeModel)
	if !ok {
		t.Fatalf("expected safeModel, got %T", next)
	}
	if sm.m.workspaceRoot != "/other" {
		t.Errorf("expected update to reach the inner model")
	}
	if sm.View() == "" {
		t.Error("expected a view")
	}
}

func TestStartRunAsync_StreamsEventsAndReport(t *testing.T) {
	root := t.TempDir()
	if err := fsworkspace.NewInitializer().Init(domain.WorkspaceSpec{Root: root}, false); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ch, _ := startRunAsync(ctx, 7, root, filepath.Join(root, "graphs", "example.yaml"), "", log)

	var events int
	var done *runDoneMsg
	for msg := range ch {
		switch msg := msg.(type) {
		case runEventMsg:
			if msg.run != 7 {
				t.Fatalf("unexpected run id %d", msg.run)
			}
			events++
		case runDoneMsg:
			done = &msg
		default:
			t.Fatalf("unexpected message %T", msg)
		}
	}

	if done == nil {
		t.Fatal("expected a done message")
	}
	if done.err != nil {
		t.Fatalf("unexpected error: %v", done.err)
	}
	if !done.report.Complete || done.report.EnvironmentName != "dev" {
		t.Fatalf("unexpected report: %+v", done.report)
	}
	if events == 0 {
		t.Error("expected streamed events")
	}
	for _, n := range done.report.Nodes {
		if n.SourceNodeID == "show" && fmt.Sprint(n.Values["value"]) != "23" {
			t.Errorf("expected 23 from the dev environment, got %v", n.Values["value"])
		}
	}
}
