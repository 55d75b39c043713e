package ports

import "github.com/waffletower/InvokeAI/internal/domain"

type WorkspaceInitializer interface {
	Init(spec domain.WorkspaceSpec, force bool) error
}
