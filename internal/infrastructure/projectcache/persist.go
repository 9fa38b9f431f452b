package projectcache

import (
	"sort"
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/persistence"
)

// persistedState is the projects.json payload.
type persistedState struct {
	Projects     *persistence.OrderedMap[persistedProject] `json:"projects"`
	BuildHistory *persistence.OrderedMap[[]persistedBuild] `json:"buildHistory"`
	Dependencies *persistence.OrderedMap[persistedDeps]    `json:"dependencies,omitempty"`
}

type persistedDeps struct {
	LastChecked      persistence.Timestamp `json:"lastChecked"`
	PackageResolved  *string               `json:"packageResolved,omitempty"`
	PodfileLock      *string               `json:"podfileLock,omitempty"`
	CartfileResolved *string               `json:"cartfileResolved,omitempty"`
}

type persistedProject struct {
	LastModified         *persistence.Timestamp   `json:"lastModified,omitempty"`
	Descriptor           domain.ProjectDescriptor `json:"descriptor"`
	PreferredScheme      string                   `json:"preferredScheme,omitempty"`
	LastSuccessfulConfig *domain.BuildConfig      `json:"lastSuccessfulConfig,omitempty"`
}

type persistedBuild struct {
	Timestamp       persistence.Timestamp `json:"timestamp"`
	Config          domain.BuildConfig    `json:"config"`
	Success         bool                  `json:"success"`
	DurationMs      *int64                `json:"durationMs,omitempty"`
	ErrorCount      int                   `json:"errorCount"`
	WarningCount    int                   `json:"warningCount"`
	OutputSizeBytes int                   `json:"outputSizeBytes"`
}

// Load restores project records, build history and dependency snapshots
// saved by a previous process. It reports whether anything was restored.
func (c *Cache) Load() bool {
	if c.persister == nil || !c.persister.IsEnabled() {
		return false
	}
	var state persistedState
	if !c.persister.LoadState(persistence.CacheProjects, &state) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if state.Projects != nil {
		state.Projects.Range(func(path string, p persistedProject) bool {
			record := domain.ProjectRecord{
				Path:                 path,
				Descriptor:           p.Descriptor,
				PreferredScheme:      p.PreferredScheme,
				LastSuccessfulConfig: p.LastSuccessfulConfig,
			}
			if p.LastModified != nil {
				record.LastModified = p.LastModified.Time
				c.fetched[path] = true
			}
			c.records[path] = record
			return true
		})
	}
	if state.BuildHistory != nil {
		state.BuildHistory.Range(func(path string, builds []persistedBuild) bool {
			history := make([]domain.BuildMetrics, 0, len(builds))
			for _, b := range builds {
				m := domain.BuildMetrics{
					Timestamp:       b.Timestamp.Time,
					Config:          b.Config,
					Success:         b.Success,
					ErrorCount:      b.ErrorCount,
					WarningCount:    b.WarningCount,
					OutputSizeBytes: b.OutputSizeBytes,
				}
				if b.DurationMs != nil {
					d := time.Duration(*b.DurationMs) * time.Millisecond
					m.Duration = &d
				}
				history = append(history, m)
			}
			if len(history) > domain.BuildHistoryLimit {
				history = history[len(history)-domain.BuildHistoryLimit:]
			}
			c.builds[path] = history
			return true
		})
	}
	if state.Dependencies != nil {
		state.Dependencies.Range(func(path string, d persistedDeps) bool {
			c.deps[path] = domain.DependencySnapshot{
				LastChecked:      d.LastChecked.Time,
				PackageResolved:  d.PackageResolved,
				PodfileLock:      d.PodfileLock,
				CartfileResolved: d.CartfileResolved,
			}
			return true
		})
	}
	c.logger.Debug("project state restored", map[string]interface{}{"projects": len(c.records), "dependencies": len(c.deps)})
	return true
}

// persistLocked schedules a save of records and build history keyed by path.
func (c *Cache) persistLocked() {
	if c.persister == nil || !c.persister.IsEnabled() {
		return
	}
	state := persistedState{
		Projects:     persistence.NewOrderedMap[persistedProject](),
		BuildHistory: persistence.NewOrderedMap[[]persistedBuild](),
		Dependencies: persistence.NewOrderedMap[persistedDeps](),
	}
	for _, path := range sortedKeys(c.records) {
		r := c.records[path]
		p := persistedProject{
			Descriptor:           r.Descriptor,
			PreferredScheme:      r.PreferredScheme,
			LastSuccessfulConfig: r.LastSuccessfulConfig,
		}
		if c.fetched[path] {
			p.LastModified = persistence.TimestampPtr(&r.LastModified)
		}
		state.Projects.Set(path, p)
	}
	for _, path := range sortedKeys(c.builds) {
		history := c.builds[path]
		builds := make([]persistedBuild, 0, len(history))
		for _, m := range history {
			b := persistedBuild{
				Timestamp:       persistence.NewTimestamp(m.Timestamp),
				Config:          m.Config,
				Success:         m.Success,
				ErrorCount:      m.ErrorCount,
				WarningCount:    m.WarningCount,
				OutputSizeBytes: m.OutputSizeBytes,
			}
			if m.Duration != nil {
				ms := m.Duration.Milliseconds()
				b.DurationMs = &ms
			}
			builds = append(builds, b)
		}
		state.BuildHistory.Set(path, builds)
	}
	for _, path := range sortedKeys(c.deps) {
		d := c.deps[path]
		state.Dependencies.Set(path, persistedDeps{
			LastChecked:      persistence.NewTimestamp(d.LastChecked),
			PackageResolved:  d.PackageResolved,
			PodfileLock:      d.PodfileLock,
			CartfileResolved: d.CartfileResolved,
		})
	}
	c.persister.SaveState(persistence.CacheProjects, state)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
