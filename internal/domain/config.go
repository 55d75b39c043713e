package domain

// StorageBackend selects the item storage implementation for sessions.
type StorageBackend string

const (
	StorageJSON   StorageBackend = "json"
	StorageSQLite StorageBackend = "sqlite"
	StorageMemory StorageBackend = "memory"
)

// Config represents the workspace configuration loaded from invoke.yaml.
type Config struct {
	Defaults DefaultsConfig
	Paths    PathsConfig
	Storage  StorageConfig
	Queue    QueueConfig
	Server   ServerConfig
}

type DefaultsConfig struct {
	Environment string
}

type PathsConfig struct {
	GraphsDir       string
	EnvironmentsDir string
	SessionsDir     string
}

type StorageConfig struct {
	Backend    StorageBackend
	SQLitePath string
}

// QueueConfig sizes the invocation queue and its worker pool.
type QueueConfig struct {
	Workers int
	Size    int
}

// ServerConfig configures the HTTP API. Rate is requests per second per
// client; Burst is the bucket size.
type ServerConfig struct {
	Addr  string
	Rate  float64
	Burst int
}

// DefaultConfig provides sane defaults if invoke.yaml is partially missing.
func DefaultConfig() Config {
	return Config{
		Defaults: DefaultsConfig{
			Environment: "dev",
		},
		Paths: PathsConfig{
			GraphsDir:       "graphs",
			EnvironmentsDir: "env",
			SessionsDir:     "sessions",
		},
		Storage: StorageConfig{
			Backend:    StorageJSON,
			SQLitePath: ".invoke/invoke.db",
		},
		Queue: QueueConfig{
			Workers: 1,
			Size:    64,
		},
		Server: ServerConfig{
			Addr:  "127.0.0.1:9090",
			Rate:  20,
			Burst: 40,
		},
	}
}
