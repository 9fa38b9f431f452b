// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// The caches in the infrastructure layer depend only on these interfaces, so
// the native command runner, the persistence layer, the build archive and the
// metrics backend can be swapped for stubs in tests.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., CommandExecutor, StatePersister)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: caches depend on abstractions, not implementations
package ports

import (
	"context"
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.xc-mcp/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// CommandExecutor runs a native tool (xcrun, xcodebuild) without a shell.
// A non-zero exit or timeout is reported in the result, not as an error;
// the error is reserved for failures to start the process at all.
type CommandExecutor interface {
	Execute(ctx context.Context, name string, args []string, opts domain.ExecOptions) (domain.ExecResult, error)
}

// StatePersister is the slice of the persistence manager the state caches use.
// SaveState is fire-and-forget; LoadState reports false for anything unusable.
type StatePersister interface {
	IsEnabled() bool
	SaveState(cacheType string, payload interface{})
	LoadState(cacheType string, into interface{}) bool
}

// BuildArchive keeps every recorded build beyond the in-memory ring.
type BuildArchive interface {
	Save(record domain.ArchivedBuild) error
	Records(projectPath string, limit int) ([]domain.ArchivedBuild, error)
}

// MetricsRecorder receives cache observability events.
type MetricsRecorder interface {
	IncCacheLookup(cache string, hit bool)
	IncRefresh(cache string, success bool)
	ObserveRefreshDuration(cache string, d time.Duration)
	IncPersistence(op string, success bool)
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}
