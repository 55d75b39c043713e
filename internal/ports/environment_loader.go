package ports

import "github.com/waffletower/InvokeAI/internal/domain"

// EnvironmentLoader loads environment variables from a source (e.g., filesystem).
type EnvironmentLoader interface {
	LoadEnvironment(path string) (domain.Environment, error)
}
