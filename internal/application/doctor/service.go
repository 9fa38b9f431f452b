package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// NativeTools are the commands the device and project caches shell out to.
var NativeTools = []string{"xcrun", "xcodebuild"}

// PersistenceState is the slice of the persistence manager the checks read.
type PersistenceState interface {
	IsEnabled() bool
	Dir() string
}

// ArchiveLocator reports where the build archive lives.
type ArchiveLocator interface {
	Path() string
}

// Service checks that the caches can refresh and keep state between runs.
type Service struct {
	ConfigProvider ports.ConfigProvider
	Persistence    PersistenceState
	Archive        ArchiveLocator
	// Candidates lists the directories persistence would try for dir,
	// an empty dir meaning the default search order.
	Candidates func(dir string) []string
	// LookPath resolves native tools; nil uses exec.LookPath.
	LookPath func(string) (string, error)
}

// Run executes the checks in order. A config that does not load stops the
// run and is returned as the error.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err), "xcmcp config edit"))
		return domain.HealthReport{Checks: checks}, err
	}
	checks = append(checks, ok("Config file", fmt.Sprintf("loaded format %s", cfg.ConfigFormatVersion)))
	checks = append(checks, lifetimesCheck(cfg))

	lookPath := s.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, tool := range NativeTools {
		if path, err := lookPath(tool); err == nil {
			checks = append(checks, ok(tool, path))
		} else {
			checks = append(checks, warn(tool, "not found on PATH, caches cannot refresh", "xcode-select --install"))
		}
	}

	if s.Persistence != nil {
		checks = append(checks, s.persistenceCheck(cfg))
	}
	if s.Archive != nil {
		checks = append(checks, archiveCheck(s.Archive.Path(), cfg))
	}

	return domain.HealthReport{Checks: checks}, nil
}

func lifetimesCheck(cfg domain.Config) domain.HealthCheck {
	devices, _ := cfg.DeviceMaxAge()
	deps, _ := cfg.DependencyTTL()
	opts := cfg.ExecOptions()
	return ok("Cache lifetimes", fmt.Sprintf("devices %s, dependencies %s, command timeout %s", devices, deps, opts.Timeout))
}

func (s *Service) persistenceCheck(cfg domain.Config) domain.HealthCheck {
	if s.Persistence.IsEnabled() {
		return ok("Persistence", "enabled at "+s.Persistence.Dir())
	}
	details := "disabled, state is lost when the process exits"
	if cfg.Persistence.Enabled {
		details = "configured but no candidate directory was writable"
	}
	if s.Candidates != nil {
		if dirs := s.Candidates(cfg.Persistence.Dir); len(dirs) > 0 {
			details += "; candidates: " + strings.Join(dirs, ", ")
		}
	}
	return warn("Persistence", details, "xcmcp persistence enable [dir]")
}

func archiveCheck(path string, cfg domain.Config) domain.HealthCheck {
	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		return warn("Build archive", fmt.Sprintf("directory for %s is missing", path), "")
	}
	retention := "kept forever"
	if cfg.History.RetentionDays > 0 {
		retention = fmt.Sprintf("kept %d days", cfg.History.RetentionDays)
	}
	return ok("Build archive", fmt.Sprintf("%s (%s, %s)", path, cfg.HistoryBackend(), retention))
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details, hint string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details, Hint: hint}
}

func fail(name, details, hint string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details, Hint: hint}
}
