package queue

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/waffletower/InvokeAI/internal/domain"
)

func TestMemory_FIFO(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "depth"})
	q := NewMemory(4, gauge)
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, domain.QueueItem{InvocationID: "a"}))
	require.NoError(t, q.Put(ctx, domain.QueueItem{InvocationID: "b", InvokeAll: true}))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

	first, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.InvocationID)

	second, err := q.Get(ctx)
	require.NoError(t, err)
	assert.True(t, second.InvokeAll)
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))
}

func TestMemory_PutBlocksWhenFull(t *testing.T) {
	q := NewMemory(1, nil)
	require.NoError(t, q.Put(context.Background(), domain.QueueItem{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Put(ctx, domain.QueueItem{}), context.DeadlineExceeded)
}

func TestMemory_CloseUnblocksGet(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := NewMemory(1, nil)
	errc := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background())
		errc <- err
	}()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, <-errc, ErrQueueClosed)
	assert.ErrorIs(t, q.Put(context.Background(), domain.QueueItem{}), ErrQueueClosed)
}

func TestMemory_GetHonoursContext(t *testing.T) {
	q := NewMemory(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
