// Package devicecache caches simulator enumeration and remembers per-device
// usage and boot history across refreshes.
package devicecache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/metrics"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/logger"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

const refreshKey = "devices"

// history is what survives re-enumeration for one device.
type history struct {
	lastUsed    *time.Time
	bootHistory []time.Time
	metrics     *domain.DeviceMetrics
}

// snapshot is one enumeration without history attached.
type snapshot struct {
	devices     map[string][]domain.Device
	runtimes    []domain.Runtime
	lastUpdated time.Time
}

// Cache is the device state cache.
type Cache struct {
	mu        sync.RWMutex
	current   *snapshot
	histories map[string]*history
	pins      map[string]string
	states    map[string]domain.BootState
	maxAge    time.Duration

	group     singleflight.Group
	executor  ports.CommandExecutor
	execOpts  domain.ExecOptions
	persister ports.StatePersister
	logger    ports.Logger
	metrics   ports.MetricsRecorder
	now       func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithPersister enables saving and loading of device history.
func WithPersister(p ports.StatePersister) Option {
	return func(c *Cache) { c.persister = p }
}

// WithExecOptions sets the timeout and buffer cap for simctl.
func WithExecOptions(opts domain.ExecOptions) Option {
	return func(c *Cache) { c.execOpts = opts }
}

// WithMaxAge sets how long an enumeration is trusted.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.maxAge = d
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

// New returns an empty cache that enumerates through executor.
func New(executor ports.CommandExecutor, opts ...Option) *Cache {
	c := &Cache{
		histories: make(map[string]*history),
		pins:      make(map[string]string),
		states:    make(map[string]domain.BootState),
		maxAge:    domain.DefaultDeviceMaxAge,
		executor:  executor,
		execOpts:  domain.ExecOptions{Timeout: domain.DefaultCommandTimeout, MaxBufferBytes: domain.DefaultMaxBufferBytes},
		logger:    logger.NewNop(),
		metrics:   metrics.NoopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeviceList returns the cached snapshot, enumerating when forced, never
// fetched or older than the max age. Concurrent refreshes share one run.
func (c *Cache) DeviceList(ctx context.Context, force bool) (domain.DeviceList, error) {
	if !force {
		c.mu.RLock()
		if c.freshLocked() {
			list := c.viewLocked()
			c.mu.RUnlock()
			c.metrics.IncCacheLookup(metrics.CacheDevices, true)
			return list, nil
		}
		c.mu.RUnlock()
	}
	c.metrics.IncCacheLookup(metrics.CacheDevices, false)

	_, err, _ := c.group.Do(refreshKey, func() (interface{}, error) {
		return nil, c.refresh(ctx)
	})
	if err != nil {
		return domain.DeviceList{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewLocked(), nil
}

func (c *Cache) refresh(ctx context.Context) error {
	start := c.now()
	devices, runtimes, err := c.enumerate(ctx)
	c.metrics.ObserveRefreshDuration(metrics.CacheDevices, c.now().Sub(start))
	if err != nil {
		c.metrics.IncRefresh(metrics.CacheDevices, false)
		c.logger.Warn("device enumeration failed", map[string]interface{}{"reason": err.Error()})
		return err
	}
	c.metrics.IncRefresh(metrics.CacheDevices, true)

	next := &snapshot{devices: devices, runtimes: runtimes, lastUpdated: c.now()}
	c.mu.Lock()
	c.current = next
	// A fresh enumeration supersedes recorded transitions.
	for _, list := range devices {
		for _, d := range list {
			delete(c.states, d.UDID)
		}
	}
	c.persistLocked()
	c.mu.Unlock()

	c.logger.Debug("devices enumerated", map[string]interface{}{"runtimes": len(devices), "devices": countDevices(devices)})
	return nil
}

// AvailableDevices filters available devices by device type and runtime and
// orders them most recently used first, then by name.
func (c *Cache) AvailableDevices(ctx context.Context, deviceType, runtime string) ([]domain.Device, error) {
	list, err := c.DeviceList(ctx, false)
	if err != nil {
		return nil, err
	}
	return filterAvailable(list, deviceType, runtime), nil
}

// PreferredDevice returns the device pinned to projectKey when it is still
// available and matches deviceType, else the first available device. ok is
// false when nothing matches.
func (c *Cache) PreferredDevice(ctx context.Context, projectKey, deviceType string) (domain.Device, bool, error) {
	list, err := c.DeviceList(ctx, false)
	if err != nil {
		return domain.Device{}, false, err
	}
	candidates := filterAvailable(list, deviceType, "")

	if projectKey != "" {
		c.mu.RLock()
		pinned := c.pins[projectKey]
		c.mu.RUnlock()
		for _, d := range candidates {
			if d.UDID == pinned {
				return d, true, nil
			}
		}
	}
	if len(candidates) == 0 {
		return domain.Device{}, false, nil
	}
	return candidates[0], true, nil
}

// RecordUsage marks udid as used now and pins it to projectKey when given.
func (c *Cache) RecordUsage(udid, projectKey string) error {
	if udid == "" {
		return domain.Invalidf("device udid is required")
	}
	c.mu.Lock()
	now := c.now()
	c.historyLocked(udid).lastUsed = &now
	if projectKey != "" {
		c.pins[projectKey] = udid
	}
	c.persistLocked()
	c.mu.Unlock()
	return nil
}

// MarkBooting records that a boot command for udid is in flight.
func (c *Cache) MarkBooting(udid string) error {
	if udid == "" {
		return domain.Invalidf("device udid is required")
	}
	c.mu.Lock()
	c.states[udid] = domain.BootStateBooting
	c.persistLocked()
	c.mu.Unlock()
	return nil
}

// RecordBootEvent records a boot outcome. Successful boots extend the boot
// history and update the average boot time and reliability.
func (c *Cache) RecordBootEvent(udid string, success bool, duration *time.Duration) error {
	if udid == "" {
		return domain.Invalidf("device udid is required")
	}
	if duration != nil && *duration < 0 {
		return domain.Invalidf("boot duration must not be negative")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !success {
		c.states[udid] = domain.BootStateShutdown
		c.persistLocked()
		return nil
	}
	c.states[udid] = domain.BootStateBooted

	h := c.historyLocked(udid)
	h.bootHistory = append(h.bootHistory, c.now())
	if len(h.bootHistory) > domain.BootHistoryLimit {
		h.bootHistory = h.bootHistory[len(h.bootHistory)-domain.BootHistoryLimit:]
	}
	m := domain.DeviceMetrics{}
	if h.metrics != nil {
		m = *h.metrics
	}
	if duration != nil {
		if h.metrics == nil || m.AvgBootTime == 0 {
			m.AvgBootTime = *duration
		} else {
			m.AvgBootTime = (m.AvgBootTime + *duration) / 2
		}
	}
	m.Reliability = reliability(len(h.bootHistory))
	h.metrics = &m
	c.persistLocked()
	return nil
}

// BootState reports the last recorded transition for udid, falling back to
// the enumerated state.
func (c *Cache) BootState(udid string) domain.BootState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if state, ok := c.states[udid]; ok {
		return state
	}
	if c.current != nil {
		for _, list := range c.current.devices {
			for _, d := range list {
				if d.UDID == udid {
					return bootStateFromSimctl(d.State)
				}
			}
		}
	}
	return domain.BootStateUnknown
}

// Stats reports the cache state.
func (c *Cache) Stats() domain.DeviceCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	stats := domain.DeviceCacheStats{MaxAge: c.maxAge}
	for _, h := range c.histories {
		if h.lastUsed != nil && now.Sub(*h.lastUsed) <= domain.RecentUsageWindow {
			stats.RecentlyUsedCount++
		}
	}
	if c.current == nil {
		return stats
	}
	updated := c.current.lastUpdated
	stats.IsCached = true
	stats.LastUpdated = &updated
	stats.DeviceCount = countDevices(c.current.devices)
	age := now.Sub(updated)
	stats.IsExpired = age > c.maxAge
	if !stats.IsExpired {
		remaining := c.maxAge - age
		stats.TimeUntilExpiry = &remaining
	}
	return stats
}

// SetMaxAge changes how long an enumeration is trusted.
func (c *Cache) SetMaxAge(d time.Duration) error {
	if d <= 0 {
		return domain.Invalidf("max age must be positive, got %s", d)
	}
	c.mu.Lock()
	c.maxAge = d
	c.mu.Unlock()
	return nil
}

// Clear drops the enumeration snapshot and recorded boot states. Usage and
// boot history are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.current = nil
	c.states = make(map[string]domain.BootState)
	c.persistLocked()
	c.mu.Unlock()
}

func (c *Cache) freshLocked() bool {
	return c.current != nil && c.now().Sub(c.current.lastUpdated) <= c.maxAge
}

func (c *Cache) historyLocked(udid string) *history {
	h, ok := c.histories[udid]
	if !ok {
		h = &history{}
		c.histories[udid] = h
	}
	return h
}

// viewLocked merges histories into a copy of the current snapshot.
func (c *Cache) viewLocked() domain.DeviceList {
	if c.current == nil {
		return domain.DeviceList{Devices: map[string][]domain.Device{}}
	}
	list := domain.DeviceList{
		Devices:     make(map[string][]domain.Device, len(c.current.devices)),
		Runtimes:    append([]domain.Runtime(nil), c.current.runtimes...),
		LastUpdated: c.current.lastUpdated,
	}
	for runtime, devices := range c.current.devices {
		merged := make([]domain.Device, len(devices))
		for i, d := range devices {
			if h, ok := c.histories[d.UDID]; ok {
				if h.lastUsed != nil {
					t := *h.lastUsed
					d.LastUsed = &t
				}
				d.BootHistory = append([]time.Time(nil), h.bootHistory...)
				if h.metrics != nil {
					m := *h.metrics
					d.PerformanceMetrics = &m
				}
			}
			merged[i] = d
		}
		list.Devices[runtime] = merged
	}
	return list
}

func filterAvailable(list domain.DeviceList, deviceType, runtime string) []domain.Device {
	runtimeNames := make(map[string]string, len(list.Runtimes))
	for _, r := range list.Runtimes {
		runtimeNames[r.Identifier] = r.Name
	}
	var out []domain.Device
	for key, devices := range list.Devices {
		if !matchesRuntime(key, runtimeNames[key], runtime) {
			continue
		}
		for _, d := range devices {
			if d.IsAvailable && matchesType(d, deviceType) {
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastUsed != nil && b.LastUsed == nil:
			return true
		case a.LastUsed == nil && b.LastUsed != nil:
			return false
		case a.LastUsed != nil && !a.LastUsed.Equal(*b.LastUsed):
			return a.LastUsed.After(*b.LastUsed)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.UDID < b.UDID
	})
	return out
}

// matchesType accepts a case-insensitive substring of the device name or
// device type identifier.
func matchesType(d domain.Device, filter string) bool {
	if filter == "" {
		return true
	}
	f := strings.ToLower(filter)
	return strings.Contains(strings.ToLower(d.Name), f) ||
		strings.Contains(strings.ToLower(d.DeviceTypeIdentifier), f)
}

// matchesRuntime accepts "iOS 17.2", "17.2" or "iOS-17-2" style filters
// against the runtime identifier and display name.
func matchesRuntime(key, name, filter string) bool {
	if filter == "" {
		return true
	}
	f := strings.ToLower(filter)
	if name != "" && strings.Contains(strings.ToLower(name), f) {
		return true
	}
	normalized := strings.NewReplacer(".", "-", " ", "-").Replace(f)
	return strings.Contains(strings.ToLower(key), normalized)
}

func reliability(samples int) float64 {
	r := float64(samples) / float64(domain.BootHistoryLimit)
	if r > 1 {
		return 1
	}
	return r
}

func countDevices(devices map[string][]domain.Device) int {
	n := 0
	for _, list := range devices {
		n += len(list)
	}
	return n
}
