package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
)

func TestLoadWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	loader := NewFileLoader(path)

	cfg, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.History.Backend != domain.HistoryBackendSQLite {
		t.Fatalf("default backend = %q", cfg.History.Backend)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != domain.SecureFilePermissions {
		t.Fatalf("config perms = %v", info.Mode().Perm())
	}

	again, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	maxAge, err := again.DeviceMaxAge()
	if err != nil || maxAge != domain.DefaultDeviceMaxAge {
		t.Fatalf("DeviceMaxAge() = %v, %v", maxAge, err)
	}
}

func TestLoadHydratesPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "cache:\n  device_max_age: 15m\npersistence:\n  enabled: true\n  dir: /tmp/xc\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewFileLoader(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if d, _ := cfg.DeviceMaxAge(); d != 15*time.Minute {
		t.Fatalf("DeviceMaxAge() = %v", d)
	}
	if d, _ := cfg.DependencyTTL(); d != domain.DefaultDependencyTTL {
		t.Fatalf("DependencyTTL() = %v", d)
	}
	if !cfg.Persistence.Enabled || cfg.Persistence.Dir != "/tmp/xc" {
		t.Fatalf("persistence = %+v", cfg.Persistence)
	}
	if cfg.Execution.TimeoutSeconds != 30 {
		t.Fatalf("timeout = %d", cfg.Execution.TimeoutSeconds)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "bad duration", raw: "cache:\n  device_max_age: soon\n"},
		{name: "negative duration", raw: "cache:\n  dependency_ttl: -5m\n"},
		{name: "unknown backend", raw: "history:\n  backend: redis\n"},
		{name: "malformed yaml", raw: "cache: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.raw), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := NewFileLoader(path).Load(context.Background())
			if !errors.Is(err, domain.ErrInvalid) {
				t.Fatalf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestPathResolution(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/xc-mcp.yaml")
	if got := NewFileLoader("").Path(); got != "/etc/xc-mcp.yaml" {
		t.Fatalf("env Path() = %q", got)
	}
	if got := NewFileLoader("/explicit.yaml").Path(); got != "/explicit.yaml" {
		t.Fatalf("explicit Path() = %q", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	loader := NewFileLoader(path)
	cfg := DefaultConfig()
	cfg.Persistence.Enabled = true
	cfg.Logging.Level = "debug"

	if err := loader.Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded.Persistence.Enabled || loaded.Logging.Level != "debug" {
		t.Fatalf("round trip lost values: %+v", loaded)
	}
}

func TestBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	loader := NewFileLoader(path)

	if _, err := loader.Backup(); err == nil {
		t.Fatal("Backup() of a missing file should fail")
	}

	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	if err := loader.Save(cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	backup, err := loader.Backup()
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	original, _ := os.ReadFile(path)
	copied, _ := os.ReadFile(backup)
	if string(original) != string(copied) {
		t.Fatal("backup content differs from config")
	}
}
