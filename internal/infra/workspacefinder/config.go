package workspacefinder

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/waffletower/InvokeAI/internal/domain"
)

// ConfigFile marks a workspace root.
const ConfigFile = "invoke.yaml"

// LoadConfig loads invoke.yaml from the workspace root and applies it over
// the defaults.
func LoadConfig(root string) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	path := filepath.Join(root, ConfigFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindNotFound,
			Path: path,
			Err:  err,
		}
	}

	var y yamlConfig
	if err := yaml.Unmarshal(b, &y); err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}

	in := y.Invoke
	if in.Defaults.Env != "" {
		cfg.Defaults.Environment = in.Defaults.Env
	}
	if in.Paths.GraphsDir != "" {
		cfg.Paths.GraphsDir = in.Paths.GraphsDir
	}
	if in.Paths.EnvironmentsDir != "" {
		cfg.Paths.EnvironmentsDir = in.Paths.EnvironmentsDir
	}
	if in.Paths.SessionsDir != "" {
		cfg.Paths.SessionsDir = in.Paths.SessionsDir
	}
	if in.Storage.Backend != "" {
		cfg.Storage.Backend = domain.StorageBackend(in.Storage.Backend)
	}
	if in.Storage.SQLitePath != "" {
		cfg.Storage.SQLitePath = in.Storage.SQLitePath
	}
	if in.Queue.Workers != nil {
		cfg.Queue.Workers = *in.Queue.Workers
	}
	if in.Queue.Size != nil {
		cfg.Queue.Size = *in.Queue.Size
	}
	if in.Server.Addr != "" {
		cfg.Server.Addr = in.Server.Addr
	}
	if in.Server.Rate != nil {
		cfg.Server.Rate = *in.Server.Rate
	}
	if in.Server.Burst != nil {
		cfg.Server.Burst = *in.Server.Burst
	}

	if err := validate(cfg); err != nil {
		return cfg, &domain.OpError{
			Op:   "workspacefinder.loadconfig",
			Kind: domain.KindInvalidConfig,
			Path: path,
			Err:  err,
		}
	}
	return cfg, nil
}

func validate(cfg domain.Config) error {
	switch cfg.Storage.Backend {
	case domain.StorageJSON, domain.StorageSQLite, domain.StorageMemory:
	default:
		return fmt.Errorf("%w: storage.backend must be json, sqlite or memory, got %q", domain.ErrInvalidConfig, cfg.Storage.Backend)
	}
	if cfg.Queue.Workers < 1 {
		return fmt.Errorf("%w: queue.workers must be at least 1", domain.ErrInvalidConfig)
	}
	if cfg.Queue.Size < 1 {
		return fmt.Errorf("%w: queue.size must be at least 1", domain.ErrInvalidConfig)
	}
	if cfg.Server.Rate <= 0 || cfg.Server.Burst < 1 {
		return fmt.Errorf("%w: server.rate and server.burst must be positive", domain.ErrInvalidConfig)
	}
	return nil
}

type yamlConfig struct {
	Invoke struct {
		Defaults struct {
			Env string `yaml:"env"`
		} `yaml:"defaults"`

		Paths struct {
			GraphsDir       string `yaml:"graphs_dir"`
			EnvironmentsDir string `yaml:"environments_dir"`
			SessionsDir     string `yaml:"sessions_dir"`
		} `yaml:"paths"`

		Storage struct {
			Backend    string `yaml:"backend"`
			SQLitePath string `yaml:"sqlite_path"`
		} `yaml:"storage"`

		Queue struct {
			Workers *int `yaml:"workers"`
			Size    *int `yaml:"size"`
		} `yaml:"queue"`

		Server struct {
			Addr  string   `yaml:"addr"`
			Rate  *float64 `yaml:"rate"`
			Burst *int     `yaml:"burst"`
		} `yaml:"server"`
	} `yaml:"invoke"`
}
