package tui

import "github.com/waffletower/InvokeAI/internal/domain"

type workspaceRefreshedMsg struct {
	cwd   string
	found bool
	root  string
	err   error
}

type initWorkspaceDoneMsg struct {
	root string
	err  error
}

type graphsLoadedMsg struct {
	root string
	refs []domain.GraphRef
	err  error
}

type envsLoadedMsg struct {
	root string
	refs []domain.EnvironmentRef
	err  error
}

type graphPreviewMsg struct {
	path    string
	preview string
	err     error
}

// Run messages carry the id of the run that produced them so a stale
// listener from an abandoned run is ignored.
type runEventMsg struct {
	run int
	ev  domain.Event
}

type runDoneMsg struct {
	run    int
	report domain.RunReport
	err    error
}
