package app

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/application/doctor"
	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/config"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/devicecache"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/executor"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/history"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/metrics"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/persistence"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/projectcache"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/responsecache"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/logger"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// Options tunes BuildContainer.
type Options struct {
	Verbose    bool
	ConfigPath string
	// HistoryDir overrides the build archive location; empty uses ~/.xc-mcp/history.
	HistoryDir string
}

// Container wires the caches with their infrastructure adapters.
type Container struct {
	Config         domain.Config
	ConfigProvider ports.ConfigProvider
	ConfigLoader   *config.FileLoader
	Logger         ports.Logger
	Metrics        *metrics.PrometheusRecorder
	Persistence    *persistence.Manager
	Executor       ports.CommandExecutor
	Archive        history.Archive
	Responses      *responsecache.Cache
	Devices        *devicecache.Cache
	Projects       *projectcache.Cache
	DoctorService  *doctor.Service
}

// BuildContainer constructs the dependency graph. When persistence is enabled
// in the configuration every cache is rehydrated before returning.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Logging.Level, opts.Verbose)
	recorder := metrics.NewPrometheusRecorder(nil)

	deviceMaxAge, err := cfg.DeviceMaxAge()
	if err != nil {
		return nil, err
	}
	projectMaxAge, err := cfg.ProjectMaxAge()
	if err != nil {
		return nil, err
	}
	dependencyTTL, err := cfg.DependencyTTL()
	if err != nil {
		return nil, err
	}

	archive, err := history.Open(cfg.HistoryBackend(), opts.HistoryDir)
	if err != nil {
		return nil, err
	}
	if pruned, err := history.ApplyRetention(archive, cfg.History.RetentionDays, time.Now()); err != nil {
		log.Warn("build archive retention failed", map[string]interface{}{"reason": err.Error()})
	} else if pruned > 0 {
		log.Debug("pruned archived builds", map[string]interface{}{"count": pruned})
	}

	manager := persistence.NewManager(
		persistence.WithLogger(log),
		persistence.WithMetrics(recorder),
	)
	execOpts := cfg.ExecOptions()
	exec := executor.NewLocalExecutor(execOpts)

	container := &Container{
		Config:         cfg,
		ConfigProvider: cfgLoader,
		ConfigLoader:   cfgLoader,
		Logger:         log,
		Metrics:        recorder,
		Persistence:    manager,
		Executor:       exec,
		Archive:        archive,
		Responses: responsecache.New(
			responsecache.WithPersister(manager),
			responsecache.WithLogger(log),
			responsecache.WithMetrics(recorder),
		),
		Devices: devicecache.New(exec,
			devicecache.WithPersister(manager),
			devicecache.WithExecOptions(execOpts),
			devicecache.WithMaxAge(deviceMaxAge),
			devicecache.WithLogger(log),
			devicecache.WithMetrics(recorder),
		),
		Projects: projectcache.New(exec,
			projectcache.WithPersister(manager),
			projectcache.WithArchive(archive),
			projectcache.WithExecOptions(execOpts),
			projectcache.WithMaxAge(projectMaxAge),
			projectcache.WithDependencyTTL(dependencyTTL),
			projectcache.WithLogger(log),
			projectcache.WithMetrics(recorder),
		),
	}
	container.DoctorService = &doctor.Service{
		ConfigProvider: cfgLoader,
		Persistence:    manager,
		Archive:        archive,
		Candidates:     persistence.DefaultCandidates,
	}

	if cfg.Persistence.Enabled {
		result := manager.Enable(cfg.Persistence.Dir)
		if !result.Success {
			log.Warn("persistence unavailable, continuing in memory", map[string]interface{}{"reason": result.Message})
		} else {
			container.Restore()
		}
	}
	return container, nil
}

// Restore rehydrates every cache from disk. Missing or invalid state leaves a cache empty.
func (c *Container) Restore() {
	restored := c.Responses.Load()
	devices := c.Devices.Load()
	projects := c.Projects.Load()
	c.Logger.Debug("state restored", map[string]interface{}{
		"responses": restored,
		"devices":   devices,
		"projects":  projects,
	})
}

// Shutdown flushes pending state saves and releases the build archive.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	if err := c.Persistence.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if closer, ok := c.Archive.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
