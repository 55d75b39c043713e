package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposed(t *testing.T) {
	m := New()
	m.QueueDepth.Set(3)
	m.Invocations.WithLabelValues("add", "ok").Inc()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Invocations.WithLabelValues("add", "ok")))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "invoke_queue_depth 3")
	assert.Contains(t, string(body), `invoke_invocations_total{status="ok",type="add"} 1`)
}

func TestNewRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.QueueDepth.Set(1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.QueueDepth))
}
