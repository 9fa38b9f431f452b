// Package projectcache caches xcodebuild project descriptors, remembers build
// outcomes per project and snapshots dependency lock files.
package projectcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/metrics"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/logger"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// Cache is the project state cache.
type Cache struct {
	mu      sync.RWMutex
	records map[string]domain.ProjectRecord
	// fetched marks records whose descriptor came from xcodebuild rather
	// than from a build recorded before the project was ever listed.
	fetched map[string]bool
	builds  map[string][]domain.BuildMetrics
	deps    map[string]domain.DependencySnapshot

	maxAge time.Duration
	depTTL time.Duration

	group     singleflight.Group
	executor  ports.CommandExecutor
	execOpts  domain.ExecOptions
	persister ports.StatePersister
	archive   ports.BuildArchive
	logger    ports.Logger
	metrics   ports.MetricsRecorder
	now       func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithPersister enables saving and loading of records and build history.
func WithPersister(p ports.StatePersister) Option {
	return func(c *Cache) { c.persister = p }
}

// WithArchive appends every recorded build to a durable archive.
func WithArchive(a ports.BuildArchive) Option {
	return func(c *Cache) { c.archive = a }
}

// WithExecOptions sets the timeout and buffer cap for xcodebuild.
func WithExecOptions(opts domain.ExecOptions) Option {
	return func(c *Cache) { c.execOpts = opts }
}

// WithMaxAge sets the reported max age.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

// WithDependencyTTL sets how long a dependency snapshot is trusted.
func WithDependencyTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.depTTL = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l ports.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r ports.MetricsRecorder) Option {
	return func(c *Cache) { c.metrics = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns an empty cache that lists projects through executor.
func New(executor ports.CommandExecutor, opts ...Option) *Cache {
	c := &Cache{
		records:  make(map[string]domain.ProjectRecord),
		fetched:  make(map[string]bool),
		builds:   make(map[string][]domain.BuildMetrics),
		deps:     make(map[string]domain.DependencySnapshot),
		maxAge:   domain.DefaultProjectMaxAge,
		depTTL:   domain.DefaultDependencyTTL,
		executor: executor,
		execOpts: domain.ExecOptions{Timeout: domain.DefaultCommandTimeout, MaxBufferBytes: domain.DefaultMaxBufferBytes},
		logger:   logger.NewNop(),
		metrics:  metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProjectInfo returns the cached record for path, listing the project again
// when forced or when the project file changed since the last listing.
func (c *Cache) ProjectInfo(ctx context.Context, path string, force bool) (domain.ProjectRecord, error) {
	abs, kind, err := normalizePath(path)
	if err != nil {
		return domain.ProjectRecord{}, err
	}
	mtime, err := modTime(abs, kind)
	if err != nil {
		return domain.ProjectRecord{}, err
	}

	if !force {
		c.mu.RLock()
		record, ok := c.records[abs]
		valid := ok && c.fetched[abs] && record.LastModified.Equal(mtime)
		c.mu.RUnlock()
		if valid {
			c.metrics.IncCacheLookup(metrics.CacheProjects, true)
			return cloneRecord(record), nil
		}
	}
	c.metrics.IncCacheLookup(metrics.CacheProjects, false)

	v, err, _ := c.group.Do(abs, func() (interface{}, error) {
		return c.refresh(ctx, abs, kind, mtime)
	})
	if err != nil {
		return domain.ProjectRecord{}, err
	}
	return cloneRecord(v.(domain.ProjectRecord)), nil
}

func (c *Cache) refresh(ctx context.Context, path string, kind domain.ProjectKind, mtime time.Time) (domain.ProjectRecord, error) {
	start := c.now()
	descriptor, err := c.listProject(ctx, path, kind)
	c.metrics.ObserveRefreshDuration(metrics.CacheProjects, c.now().Sub(start))
	if err != nil {
		c.metrics.IncRefresh(metrics.CacheProjects, false)
		c.logger.Warn("project listing failed", map[string]interface{}{"path": path, "reason": err.Error()})
		return domain.ProjectRecord{}, err
	}
	c.metrics.IncRefresh(metrics.CacheProjects, true)

	c.mu.Lock()
	defer c.mu.Unlock()
	record := domain.ProjectRecord{Path: path, LastModified: mtime, Descriptor: descriptor}
	if prev, ok := c.records[path]; ok {
		record.PreferredScheme = prev.PreferredScheme
		record.LastSuccessfulConfig = prev.LastSuccessfulConfig
	}
	c.records[path] = record
	c.fetched[path] = true
	c.persistLocked()

	c.logger.Debug("project listed", map[string]interface{}{"path": path, "schemes": len(descriptor.Schemes)})
	return record, nil
}

// PreferredBuildConfig returns the last successful build config for path.
// Without one it derives a default from the project's schemes: the scheme
// named after the project, else the first scheme. ok is false when the
// project declares no schemes.
func (c *Cache) PreferredBuildConfig(ctx context.Context, path string) (domain.BuildConfig, bool, error) {
	abs, _, err := normalizePath(path)
	if err != nil {
		return domain.BuildConfig{}, false, err
	}
	c.mu.RLock()
	record, ok := c.records[abs]
	c.mu.RUnlock()
	if ok && record.LastSuccessfulConfig != nil {
		return *record.LastSuccessfulConfig, true, nil
	}

	record, err = c.ProjectInfo(ctx, abs, false)
	if err != nil {
		return domain.BuildConfig{}, false, err
	}
	if record.LastSuccessfulConfig != nil {
		return *record.LastSuccessfulConfig, true, nil
	}
	scheme, ok := defaultScheme(record.Descriptor)
	if !ok {
		return domain.BuildConfig{}, false, nil
	}
	return domain.BuildConfig{Scheme: scheme, Configuration: domain.DefaultBuildConfiguration}, true, nil
}

func defaultScheme(d domain.ProjectDescriptor) (string, bool) {
	if d.Name != "" && d.HasScheme(d.Name) {
		return d.Name, true
	}
	if len(d.Schemes) > 0 {
		return d.Schemes[0], true
	}
	return "", false
}

// RecordBuildResult appends a build outcome to the project's history ring.
// A successful build becomes the preferred config.
func (c *Cache) RecordBuildResult(path string, config domain.BuildConfig, result domain.BuildMetrics) error {
	abs, _, err := normalizePath(path)
	if err != nil {
		return err
	}
	if config.Scheme == "" {
		return domain.Invalidf("build config needs a scheme")
	}
	if result.Duration != nil && *result.Duration < 0 {
		return domain.Invalidf("build duration must not be negative")
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = c.now()
	}
	result.Config = config

	c.mu.Lock()
	history := append(c.builds[abs], result)
	if len(history) > domain.BuildHistoryLimit {
		history = append([]domain.BuildMetrics(nil), history[len(history)-domain.BuildHistoryLimit:]...)
	}
	c.builds[abs] = history

	record, ok := c.records[abs]
	if !ok {
		record = domain.ProjectRecord{Path: abs}
	}
	if result.Success {
		cfg := config
		record.LastSuccessfulConfig = &cfg
		record.PreferredScheme = config.Scheme
	}
	c.records[abs] = record
	c.persistLocked()
	c.mu.Unlock()

	if c.archive != nil {
		if err := c.archive.Save(domain.ArchivedBuild{ProjectPath: abs, BuildMetrics: result}); err != nil {
			c.logger.Warn("failed to archive build", map[string]interface{}{"path": abs, "reason": err.Error()})
		}
	}
	return nil
}

// BuildHistory returns up to limit recorded builds for path, most recent
// first. A limit of zero or less returns all of them.
func (c *Cache) BuildHistory(path string, limit int) ([]domain.BuildMetrics, error) {
	abs, _, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	history := c.builds[abs]
	out := make([]domain.BuildMetrics, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
	}
	c.mu.RUnlock()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ArchivedHistory reads builds for path from the durable archive, most
// recent first.
func (c *Cache) ArchivedHistory(path string, limit int) ([]domain.ArchivedBuild, error) {
	abs, _, err := normalizePath(path)
	if err != nil {
		return nil, err
	}
	if c.archive == nil {
		return nil, domain.Invalidf("build archive is not configured")
	}
	return c.archive.Records(abs, limit)
}

// ScanBuildOutput counts error and warning markers in a build log.
func ScanBuildOutput(output string) domain.BuildOutputSummary {
	return domain.ScanOutput(output)
}

// Stats reports the cache state.
func (c *Cache) Stats() domain.ProjectCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := domain.ProjectCacheStats{
		ProjectCount:    len(c.records),
		DependencyCount: len(c.deps),
		MaxAge:          c.maxAge,
		DependencyTTL:   c.depTTL,
	}
	for _, history := range c.builds {
		stats.BuildHistoryCount += len(history)
	}
	return stats
}

// Clear drops every record, build history and dependency snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.records = make(map[string]domain.ProjectRecord)
	c.fetched = make(map[string]bool)
	c.builds = make(map[string][]domain.BuildMetrics)
	c.deps = make(map[string]domain.DependencySnapshot)
	c.persistLocked()
	c.mu.Unlock()
}

func cloneRecord(r domain.ProjectRecord) domain.ProjectRecord {
	r.Descriptor.Schemes = append([]string(nil), r.Descriptor.Schemes...)
	r.Descriptor.Targets = append([]string(nil), r.Descriptor.Targets...)
	r.Descriptor.Configurations = append([]string(nil), r.Descriptor.Configurations...)
	if r.LastSuccessfulConfig != nil {
		cfg := *r.LastSuccessfulConfig
		r.LastSuccessfulConfig = &cfg
	}
	return r
}
