package helpers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ericvoltolin/xc-mcp/internal/app"
	"github.com/ericvoltolin/xc-mcp/internal/domain"
	configinfra "github.com/ericvoltolin/xc-mcp/internal/infrastructure/config"
)

// GetConfigLoader returns the container's file loader.
func GetConfigLoader(container *app.Container) (*configinfra.FileLoader, error) {
	if container.ConfigLoader == nil {
		return nil, fmt.Errorf("config loader unavailable")
	}
	return container.ConfigLoader, nil
}

// SaveConfig validates cfg, backs up the existing file and writes cfg in its
// place. It returns the backup path, empty when there was no file to keep.
func SaveConfig(container *app.Container, cfg domain.Config) (string, error) {
	loader, err := GetConfigLoader(container)
	if err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("configuration validation failed: %w", err)
	}

	var backup string
	if _, err := os.Stat(loader.Path()); err == nil {
		if backup, err = loader.Backup(); err != nil {
			return "", fmt.Errorf("failed to create configuration backup: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to stat configuration: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return "", fmt.Errorf("failed to save configuration: %w", err)
	}
	container.Config = cfg
	return backup, nil
}
