package ports

import (
	"context"

	"github.com/waffletower/InvokeAI/internal/domain"
)

// ItemStorage persists items of one kind keyed by id.
type ItemStorage[T any] interface {
	Get(ctx context.Context, id string) (T, error)
	Set(ctx context.Context, item T) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, page, perPage int) (domain.PaginatedResults[T], error)
	Search(ctx context.Context, query string, page, perPage int) (domain.PaginatedResults[T], error)

	// OnChanged and OnDeleted register callbacks run after a successful
	// Set or Delete.
	OnChanged(fn func(T))
	OnDeleted(fn func(id string))
}
