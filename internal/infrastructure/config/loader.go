package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/filesystem"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// EnvConfigPath overrides the config file location.
const EnvConfigPath = "XC_MCP_CONFIG"

// FileLoader loads YAML configuration from ~/.xc-mcp/config.yaml (overridable via XC_MCP_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider. A missing file is created with defaults.
func (l *FileLoader) Load(context.Context) (domain.Config, error) {
	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := writeConfig(path, cfg); err != nil {
				return domain.Config{}, err
			}
			return cfg, nil
		}
		return domain.Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg domain.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Config{}, fmt.Errorf("failed to parse %s: %v: %w", path, err, domain.ErrInvalid)
	}

	cfg = hydrateDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return domain.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg back to the config file.
func (l *FileLoader) Save(cfg domain.Config) error {
	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return writeConfig(path, cfg)
}

// Backup copies the current config file to a timestamped backup.
func (l *FileLoader) Backup() (string, error) {
	path := l.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	backup := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102T150405"))
	if err := os.WriteFile(backup, data, domain.SecureFilePermissions); err != nil {
		return "", err
	}
	return backup, nil
}

// Path returns the config file the loader reads.
func (l *FileLoader) Path() string {
	if l.overridePath != "" {
		return filesystem.ExpandPath(l.overridePath)
	}
	if custom := os.Getenv(EnvConfigPath); custom != "" {
		return filesystem.ExpandPath(custom)
	}
	return filepath.Join(filesystem.UserHomeDir(), ".xc-mcp", "config.yaml")
}

func ensureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions)
}

func writeConfig(path string, cfg domain.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, domain.SecureFilePermissions)
}

// DefaultConfig is the configuration written on first run.
func DefaultConfig() domain.Config {
	return domain.Config{
		ConfigFormatVersion: "1",
		Cache: domain.CacheSettings{
			DeviceMaxAge:  domain.DefaultDeviceMaxAge.String(),
			ProjectMaxAge: domain.DefaultProjectMaxAge.String(),
			DependencyTTL: domain.DefaultDependencyTTL.String(),
		},
		Persistence: domain.PersistenceSettings{
			Enabled: false,
		},
		Execution: domain.ExecutionSettings{
			TimeoutSeconds: int(domain.DefaultCommandTimeout.Seconds()),
			MaxBufferBytes: domain.DefaultMaxBufferBytes,
		},
		History: domain.HistorySettings{
			Backend:       domain.HistoryBackendSQLite,
			RetentionDays: domain.DefaultHistoryRetainDays,
		},
		Logging: domain.LoggingSettings{
			Level: "error",
		},
	}
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	defaults := DefaultConfig()
	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = defaults.ConfigFormatVersion
	}
	if strings.TrimSpace(cfg.Cache.DeviceMaxAge) == "" {
		cfg.Cache.DeviceMaxAge = defaults.Cache.DeviceMaxAge
	}
	if strings.TrimSpace(cfg.Cache.ProjectMaxAge) == "" {
		cfg.Cache.ProjectMaxAge = defaults.Cache.ProjectMaxAge
	}
	if strings.TrimSpace(cfg.Cache.DependencyTTL) == "" {
		cfg.Cache.DependencyTTL = defaults.Cache.DependencyTTL
	}
	if cfg.Execution.TimeoutSeconds == 0 {
		cfg.Execution.TimeoutSeconds = defaults.Execution.TimeoutSeconds
	}
	if cfg.Execution.MaxBufferBytes == 0 {
		cfg.Execution.MaxBufferBytes = defaults.Execution.MaxBufferBytes
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = defaults.History.Backend
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	return cfg
}

var _ ports.ConfigProvider = (*FileLoader)(nil)
