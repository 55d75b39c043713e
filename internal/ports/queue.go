package ports

import (
	"context"

	"github.com/waffletower/InvokeAI/internal/domain"
)

// InvocationQueue hands prepared invocations to workers.
type InvocationQueue interface {
	Put(ctx context.Context, item domain.QueueItem) error
	Get(ctx context.Context) (domain.QueueItem, error)
	Close() error
}
