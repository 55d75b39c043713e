// Package queue provides the in-process invocation queue.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/ports"
)

// ErrQueueClosed is returned by Put and Get once the queue is closed.
var ErrQueueClosed = errors.New("queue closed")

// Memory is a bounded FIFO backed by a channel.
type Memory struct {
	items chan domain.QueueItem
	done  chan struct{}
	once  sync.Once
	depth prometheus.Gauge
}

var _ ports.InvocationQueue = (*Memory)(nil)

// NewMemory returns a queue holding up to size items. depth may be nil.
func NewMemory(size int, depth prometheus.Gauge) *Memory {
	if size <= 0 {
		size = 1
	}
	return &Memory{
		items: make(chan domain.QueueItem, size),
		done:  make(chan struct{}),
		depth: depth,
	}
}

// Put blocks while the queue is full.
func (q *Memory) Put(ctx context.Context, item domain.QueueItem) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.items <- item:
		q.observe()
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get blocks until an item is available, ctx is done or the queue closes.
func (q *Memory) Get(ctx context.Context) (domain.QueueItem, error) {
	select {
	case item := <-q.items:
		q.observe()
		return item, nil
	case <-q.done:
		return domain.QueueItem{}, ErrQueueClosed
	case <-ctx.Done():
		return domain.QueueItem{}, ctx.Err()
	}
}

// Len returns the number of waiting items.
func (q *Memory) Len() int { return len(q.items) }

func (q *Memory) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}

func (q *Memory) observe() {
	if q.depth != nil {
		q.depth.Set(float64(len(q.items)))
	}
}
