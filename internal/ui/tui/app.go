package tui

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/waffletower/InvokeAI/internal/domain"
)

type screen int

const (
	screenHome screen = iota
	screenGraphs
	screenEnvs
	screenRun
)

const maxEventLines = 200

type menuItem struct {
	title string
	desc  string
}

func (m menuItem) Title() string       { return m.title }
func (m menuItem) Description() string { return m.desc }
func (m menuItem) FilterValue() string { return m.title }

type refItem struct {
	name string
	path string
}

func (r refItem) Title() string       { return r.name }
func (r refItem) Description() string { return r.path }
func (r refItem) FilterValue() string { return r.name }

const (
	menuRun   = "Run graph"
	menuEnvs  = "Environments"
	menuInit  = "Init workspace"
	menuQuit  = "Quit"
	noEnvName = "(workspace default)"
)

type model struct {
	theme Theme
	deps  Deps

	scr    screen
	menu   list.Model
	picker list.Model
	width  int
	height int

	workspaceFound bool
	workspaceRoot  string

	env     string
	preview string

	runID     int
	running   bool
	runGraph  string
	runCh     <-chan tea.Msg
	cancelRun context.CancelFunc
	events    []string
	report    *domain.RunReport

	toast string
}

func Run(deps Deps) error {
	m := newModel(deps)
	p := tea.NewProgram(wrapSafe(m, deps.Logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func newModel(deps Deps) model {
	t := DefaultTheme()

	items := []list.Item{
		menuItem{menuRun, "Pick a graph and run every node"},
		menuItem{menuEnvs, "Choose the environment used for runs"},
		menuItem{menuInit, "Create a workspace in the current directory"},
		menuItem{menuQuit, "Exit invoke"},
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "invoke"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.SetShowHelp(false)

	p := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	p.SetShowStatusBar(false)
	p.SetFilteringEnabled(true)
	p.SetShowHelp(false)

	m := model{
		theme:  t,
		deps:   deps,
		scr:    screenHome,
		menu:   l,
		picker: p,
	}

	wd, err := os.Getwd()
	if err == nil && deps.WorkspaceLocator != nil {
		root, findErr := deps.WorkspaceLocator.FindRoot(wd)
		if findErr == nil {
			m.workspaceFound = true
			m.workspaceRoot = root
		}
	}

	return m
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.menu.SetSize(msg.Width-4, msg.Height-10)
		m.picker.SetSize(msg.Width/2-4, msg.Height-10)
		return m, nil

	case workspaceRefreshedMsg:
		m.workspaceFound = msg.found
		m.workspaceRoot = msg.root
		return m, nil

	case initWorkspaceDoneMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		m.toast = "Workspace ready: " + msg.root
		return m, cmdRefreshWorkspace(m.deps)

	case graphsLoadedMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		items := make([]list.Item, 0, len(msg.refs))
		for _, r := range msg.refs {
			items = append(items, refItem{name: r.Name, path: r.Path})
		}
		m.picker.Title = "Graphs"
		m.picker.SetItems(items)
		m.picker.ResetSelected()
		m.preview = ""
		m.scr = screenGraphs
		if len(items) == 0 {
			m.toast = "No graphs found"
			return m, nil
		}
		return m, cmdPreviewGraph(m.workspaceRoot, msg.refs[0].Path)

	case envsLoadedMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		items := []list.Item{refItem{name: noEnvName}}
		for _, r := range msg.refs {
			items = append(items, refItem{name: r.Name, path: r.Path})
		}
		m.picker.Title = "Environments"
		m.picker.SetItems(items)
		m.picker.ResetSelected()
		m.scr = screenEnvs
		return m, nil

	case graphPreviewMsg:
		if msg.err != nil {
			m.preview = userMessage(msg.err)
			return m, nil
		}
		m.preview = msg.preview
		return m, nil

	case runEventMsg:
		if msg.run != m.runID {
			return m, nil
		}
		m.events = append(m.events, renderEvent(msg.ev))
		if len(m.events) > maxEventLines {
			m.events = m.events[len(m.events)-maxEventLines:]
		}
		return m, listenRun(m.runCh)

	case runDoneMsg:
		if msg.run != m.runID {
			return m, nil
		}
		m.running = false
		report := msg.report
		m.report = &report
		if msg.err != nil {
			m.toast = userMessage(msg.err)
		} else if report.Failures() > 0 {
			m.toast = fmt.Sprintf("%d node(s) failed", report.Failures())
		}
		m.stopRun()
		return m, nil

	case tea.KeyMsg:
		if m.filtering() {
			break
		}
		switch msg.String() {
		case "ctrl+c":
			m.stopRun()
			return m, tea.Quit

		case "q":
			if m.scr == screenHome {
				return m, tea.Quit
			}
			return m.home(), nil

		case "esc", "b":
			if m.scr != screenHome {
				return m.home(), nil
			}

		case "enter":
			return m.enter()

		case "r":
			if m.scr == screenRun && !m.running && m.runGraph != "" {
				return m.startRun(m.runGraph)
			}
		}
	}

	var cmd tea.Cmd
	switch m.scr {
	case screenHome:
		m.menu, cmd = m.menu.Update(msg)
	case screenGraphs:
		before := m.picker.Index()
		m.picker, cmd = m.picker.Update(msg)
		if it, ok := m.picker.SelectedItem().(refItem); ok && m.picker.Index() != before {
			cmd = tea.Batch(cmd, cmdPreviewGraph(m.workspaceRoot, it.path))
		}
	case screenEnvs:
		m.picker, cmd = m.picker.Update(msg)
	}
	return m, cmd
}

func (m model) filtering() bool {
	switch m.scr {
	case screenHome:
		return m.menu.FilterState() == list.Filtering
	case screenGraphs, screenEnvs:
		return m.picker.FilterState() == list.Filtering
	}
	return false
}

func (m model) enter() (tea.Model, tea.Cmd) {
	switch m.scr {
	case screenHome:
		it, ok := m.menu.SelectedItem().(menuItem)
		if !ok {
			return m, nil
		}
		m.toast = ""
		switch it.title {
		case menuQuit:
			return m, tea.Quit
		case menuInit:
			wd, err := os.Getwd()
			if err != nil {
				m.toast = userMessage(err)
				return m, nil
			}
			return m, cmdInitWorkspaceHere(m.deps, wd)
		}
		if !m.workspaceFound {
			m.toast = "No workspace found. Use Init workspace first."
			return m, nil
		}
		if it.title == menuEnvs {
			return m, cmdLoadEnvironments(m.workspaceRoot)
		}
		return m, cmdLoadGraphs(m.workspaceRoot)

	case screenGraphs:
		it, ok := m.picker.SelectedItem().(refItem)
		if !ok {
			return m, nil
		}
		return m.startRun(it.path)

	case screenEnvs:
		it, ok := m.picker.SelectedItem().(refItem)
		if !ok {
			return m, nil
		}
		m.env = ""
		if it.name != noEnvName {
			m.env = it.name
		}
		m.toast = "Environment: " + m.envLabel()
		return m.home(), nil
	}
	return m, nil
}

func (m model) startRun(graphPath string) (tea.Model, tea.Cmd) {
	m.stopRun()

	ctx, cancel := context.WithCancel(context.Background())
	m.runID++
	m.running = true
	m.runGraph = graphPath
	m.cancelRun = cancel
	m.events = nil
	m.report = nil
	m.toast = ""
	m.scr = screenRun

	ch, cmd := startRunAsync(ctx, m.runID, m.workspaceRoot, graphPath, m.env, m.deps.Logger)
	m.runCh = ch
	return m, cmd
}

// stopRun abandons the current run, if any.
func (m *model) stopRun() {
	if m.cancelRun != nil {
		m.cancelRun()
		m.cancelRun = nil
	}
	m.running = false
}

// home returns to the menu. A run in progress is abandoned.
func (m model) home() model {
	if m.running {
		m.stopRun()
		m.toast = "Run cancelled"
	}
	m.scr = screenHome
	return m
}

func (m model) envLabel() string {
	if m.env == "" {
		return noEnvName
	}
	return m.env
}

func (m model) View() string {
	wrap := lipgloss.NewStyle().Padding(1, 2)
	header := m.theme.Title.Render("invoke") + "\n" +
		m.theme.Subtitle.Render("node-graph invocation engine") + "\n"

	var workspaceBanner string
	if m.workspaceFound {
		workspaceBanner = m.theme.Help.Render(fmt.Sprintf("Workspace: %s  •  Env: %s", m.workspaceRoot, m.envLabel()))
	} else {
		workspaceBanner = m.theme.Card.Render(
			"No workspace found.\n\nCreate one with Init workspace.",
		)
	}

	toast := ""
	if m.toast != "" {
		toast = "\n" + m.theme.Toast.Render(m.toast)
	}

	switch m.scr {
	case screenHome:
		help := m.theme.Help.Render("↑/↓ navigate • enter open • / search • q quit")
		return wrap.Render(header + "\n" + workspaceBanner + "\n\n" + m.theme.Card.Render(m.menu.View()) + toast + "\n" + help)

	case screenGraphs:
		preview := m.preview
		if preview == "" {
			preview = "(select a graph)"
		}
		body := lipgloss.JoinHorizontal(lipgloss.Top,
			m.theme.Card.Render(m.picker.View()),
			m.theme.Card.Render(preview),
		)
		help := m.theme.Help.Render("↑/↓ select • enter run • / search • esc back")
		return wrap.Render(header + "\n" + workspaceBanner + "\n\n" + body + toast + "\n" + help)

	case screenEnvs:
		help := m.theme.Help.Render("↑/↓ select • enter choose • esc back")
		return wrap.Render(header + "\n" + workspaceBanner + "\n\n" + m.theme.Card.Render(m.picker.View()) + toast + "\n" + help)

	case screenRun:
		return wrap.Render(header + "\n" + workspaceBanner + "\n\n" + m.runView() + toast)

	default:
		return wrap.Render(header + "\n" + "unknown state")
	}
}

func (m model) runView() string {
	title := "Running " + clampString(m.runGraph, 60)
	if !m.running {
		title = "Run finished: " + clampString(m.runGraph, 60)
	}

	events := m.events
	if limit := m.height - 16; limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	var b strings.Builder
	b.WriteString(m.theme.Title.Render(title))
	b.WriteString("\n\n")
	if len(events) == 0 {
		b.WriteString(m.theme.Help.Render("waiting for events..."))
		b.WriteString("\n")
	}
	for _, line := range events {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.report != nil {
		b.WriteString("\n")
		b.WriteString(renderReport(m.theme, *m.report))
	}

	help := "esc back • ctrl+c quit"
	if !m.running {
		help = "r rerun • " + help
	}
	return m.theme.Card.Render(b.String()) + "\n" + m.theme.Help.Render(help)
}
