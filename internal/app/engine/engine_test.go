package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/infra/fsworkspace"
	"github.com/waffletower/InvokeAI/internal/infra/workspacefinder"
	"github.com/waffletower/InvokeAI/internal/usecase"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newWorkspace(t *testing.T) (string, domain.Config) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, fsworkspace.NewInitializer().Init(domain.WorkspaceSpec{Root: root}, false))
	cfg, err := workspacefinder.LoadConfig(root)
	require.NoError(t, err)
	return root, cfg
}

func open(t *testing.T, backend domain.StorageBackend) *Engine {
	t.Helper()
	root, cfg := newWorkspace(t)
	e, err := Open(root, cfg, Options{
		Backend: backend,
		Workers: 2,
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpen_RunsExampleWithEnvironment(t *testing.T) {
	e := open(t, domain.StorageMemory)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := e.RunGraph().Execute(ctx, usecase.RunInput{
		GraphPath: filepath.Join(e.Root, "graphs", "example.yaml"),
		Env:       "dev",
	})
	require.NoError(t, err)
	require.True(t, report.Complete)
	assert.Equal(t, "example", report.GraphName)
	assert.Equal(t, "dev", report.EnvironmentName)
	assert.Zero(t, report.Failures())

	var shown any
	for _, n := range report.Nodes {
		if n.SourceNodeID == "show" {
			shown = n.Values["value"]
		}
	}
	assert.Equal(t, json.Number("23"), shown)
}

func TestOpen_JSONBackendPersistsSessions(t *testing.T) {
	e := open(t, domain.StorageJSON)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report, err := e.RunGraph().Execute(ctx, usecase.RunInput{
		GraphPath: filepath.Join(e.Root, "graphs", "fanout.yaml"),
	})
	require.NoError(t, err)
	require.True(t, report.Complete)

	state, err := e.Sessions.Get(ctx, report.SessionID)
	require.NoError(t, err)
	assert.True(t, state.IsComplete())
	assert.FileExists(t, filepath.Join(e.Root, "sessions", report.SessionID+".json"))
}

func TestOpen_UnknownBackend(t *testing.T) {
	root, cfg := newWorkspace(t)
	_, err := Open(root, cfg, Options{Backend: "redis"})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidConfig))
}

func TestValidateGraph_Templates(t *testing.T) {
	e := open(t, domain.StorageMemory)
	refs, err := e.Graphs.ListGraphs(e.Root)
	require.NoError(t, err)
	require.Len(t, refs, 2)

	for _, r := range refs {
		loaded, err := e.ValidateGraph().Execute(context.Background(), usecase.RunInput{GraphPath: r.Path})
		require.NoError(t, err, r.Name)
		assert.Equal(t, r.Name, loaded.Name)
	}
}
