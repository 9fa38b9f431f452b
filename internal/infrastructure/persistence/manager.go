// Package persistence stores cache state on disk so it survives restarts.
//
// Persistence is opt-in and strictly best-effort: saves are debounced and
// written by a single background writer, loads report "absent" for anything
// missing, unreadable, written by another schema version or structurally
// invalid. Callers never see persistence errors.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/metrics"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/filesystem"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/logger"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// SchemaVersion tags every envelope; anything else is discarded on load.
const SchemaVersion = "1.0.0"

// Cache types with a fixed on-disk location.
const (
	CacheDevices   = "devices"
	CacheProjects  = "projects"
	CacheResponses = "responses"
)

// DefaultDebounce is how long a cache type must be quiet before it is written.
const DefaultDebounce = time.Second

var cacheTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// requiredKeys is the structural validation applied on load per cache type.
var requiredKeys = map[string][]string{
	CacheDevices:   {"history", "lastUsed"},
	CacheProjects:  {"projects", "buildHistory"},
	CacheResponses: {"entries"},
}

// Envelope is the versioned wrapper written for each cache type.
type Envelope struct {
	Version   string      `json:"version"`
	Timestamp Timestamp   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type rawEnvelope struct {
	Version string          `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// EnableResult reports the outcome of Enable.
type EnableResult struct {
	Success bool   `json:"success"`
	Dir     string `json:"dir,omitempty"`
	Message string `json:"message,omitempty"`
}

// DisableResult reports the outcome of Disable.
type DisableResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// StorageInfo describes what persistence currently occupies on disk.
type StorageInfo struct {
	TotalBytes   int64      `json:"total_bytes"`
	FileCount    int        `json:"file_count"`
	LastSaved    *time.Time `json:"last_saved,omitempty"`
	Writable     bool       `json:"writable"`
	PendingSaves int        `json:"pending_saves"`
}

// Status reports whether persistence is active and where.
type Status struct {
	Enabled       bool         `json:"enabled"`
	Dir           string       `json:"dir,omitempty"`
	SchemaVersion string       `json:"schema_version"`
	Storage       *StorageInfo `json:"storage,omitempty"`
}

// Manager owns the on-disk cache directory.
type Manager struct {
	mu      sync.RWMutex
	enabled bool
	dir     string

	logger     ports.Logger
	metrics    ports.MetricsRecorder
	lockPolicy LockPolicy
	candidates func(custom string) []string
	now        func() time.Time
	debounce   time.Duration
	queue      *writeQueue
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l ports.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r ports.MetricsRecorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithDebounce overrides the per-cache-type quiet period.
func WithDebounce(d time.Duration) Option {
	return func(m *Manager) { m.debounce = d }
}

// WithLockPolicy overrides lock acquisition retries.
func WithLockPolicy(p LockPolicy) Option {
	return func(m *Manager) { m.lockPolicy = p }
}

// WithCandidates overrides directory auto-selection.
func WithCandidates(fn func(custom string) []string) Option {
	return func(m *Manager) { m.candidates = fn }
}

// NewManager returns a disabled Manager with its writer running.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger:     logger.NewNop(),
		metrics:    metrics.NoopRecorder{},
		lockPolicy: DefaultLockPolicy(),
		candidates: DefaultCandidates,
		now:        time.Now,
		debounce:   DefaultDebounce,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.queue = newWriteQueue(m.debounce, m.writeJob)
	return m
}

// Enable adopts the first writable candidate directory and creates the layout.
func (m *Manager) Enable(customDir string) EnableResult {
	var tried []string
	for _, dir := range m.candidates(customDir) {
		if err := checkWritable(dir); err != nil {
			m.logger.Debug("persistence candidate not writable", map[string]interface{}{"dir": dir, "reason": err.Error()})
			tried = append(tried, dir)
			continue
		}
		if err := ensureLayout(dir, m.now()); err != nil {
			m.logger.Warn("persistence layout failed", map[string]interface{}{"dir": dir, "reason": err.Error()})
			tried = append(tried, dir)
			continue
		}
		m.mu.Lock()
		m.enabled = true
		m.dir = dir
		m.mu.Unlock()
		m.logger.Info("persistence enabled", map[string]interface{}{"dir": dir})
		return EnableResult{Success: true, Dir: dir, Message: "persistence enabled at " + dir}
	}
	msg := "no writable directory found"
	if len(tried) > 0 {
		msg = fmt.Sprintf("no writable directory found (tried %v)", tried)
	}
	return EnableResult{Success: false, Message: msg}
}

// Disable stops accepting saves, drops pending writes and optionally deletes the cache tree.
func (m *Manager) Disable(clearData bool) DisableResult {
	m.mu.Lock()
	wasEnabled := m.enabled
	dir := m.dir
	m.enabled = false
	m.dir = ""
	m.mu.Unlock()

	m.queue.cancel()

	if !wasEnabled {
		return DisableResult{Success: true, Message: "persistence already disabled"}
	}
	if clearData {
		if err := os.RemoveAll(filepath.Join(dir, cacheSubdir)); err != nil {
			return DisableResult{Success: false, Message: fmt.Sprintf("persistence disabled but clearing %s failed: %v", dir, err)}
		}
		return DisableResult{Success: true, Message: "persistence disabled and cached data removed"}
	}
	return DisableResult{Success: true, Message: "persistence disabled"}
}

// IsEnabled reports whether saves and loads are active.
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Dir returns the active directory, empty when disabled.
func (m *Manager) Dir() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dir
}

// Status reports the persistence state, optionally walking the cache tree.
func (m *Manager) Status(includeStorage bool) Status {
	m.mu.RLock()
	enabled, dir := m.enabled, m.dir
	m.mu.RUnlock()

	status := Status{Enabled: enabled, Dir: dir, SchemaVersion: SchemaVersion}
	if !enabled || !includeStorage {
		return status
	}
	info := &StorageInfo{PendingSaves: m.queue.pendingCount()}
	if usage, err := filesystem.WalkUsage(filepath.Join(dir, cacheSubdir)); err == nil {
		info.TotalBytes = usage.TotalBytes
		info.FileCount = usage.FileCount
		if !usage.LastModified.IsZero() {
			last := usage.LastModified
			info.LastSaved = &last
		}
	}
	info.Writable = checkWritable(dir) == nil
	status.Storage = info
	return status
}

// SaveState schedules a debounced write of payload. It is a no-op when disabled.
// The payload is serialised immediately, so callers may keep mutating their state.
func (m *Manager) SaveState(cacheType string, payload interface{}) {
	if !m.IsEnabled() {
		return
	}
	if !cacheTypePattern.MatchString(cacheType) {
		m.logger.Warn("ignoring save for invalid cache type", map[string]interface{}{"cache": cacheType})
		return
	}
	data, err := json.MarshalIndent(Envelope{
		Version:   SchemaVersion,
		Timestamp: NewTimestamp(m.now()),
		Data:      tag(payload),
	}, "", "  ")
	if err != nil {
		m.logger.Error("failed to serialise state", err, map[string]interface{}{"cache": cacheType})
		m.metrics.IncPersistence("save", false)
		return
	}
	m.queue.schedule(cacheType, data)
}

// Flush writes every pending save now and waits for it to land.
func (m *Manager) Flush(ctx context.Context) error {
	return m.queue.flush(ctx)
}

// Close flushes pending saves and stops the writer.
func (m *Manager) Close(ctx context.Context) error {
	return m.queue.close(ctx)
}

func (m *Manager) writeJob(job writeJob) {
	m.mu.RLock()
	enabled, dir := m.enabled, m.dir
	m.mu.RUnlock()
	if !enabled {
		return
	}
	path := pathFor(dir, job.cacheType)
	if err := writeAtomic(context.Background(), path, job.data, m.lockPolicy); err != nil {
		m.logger.Warn("dropping state save", map[string]interface{}{"cache": job.cacheType, "reason": err.Error()})
		m.metrics.IncPersistence("save", false)
		return
	}
	m.logger.Debug("state saved", map[string]interface{}{"cache": job.cacheType, "bytes": len(job.data)})
	m.metrics.IncPersistence("save", true)
}

// LoadState decodes the persisted payload for cacheType into into and reports
// whether it did. into may be a typed pointer or *interface{}, in which case
// ordered maps and timestamps are revived from their markers.
func (m *Manager) LoadState(cacheType string, into interface{}) bool {
	m.mu.RLock()
	enabled, dir := m.enabled, m.dir
	m.mu.RUnlock()
	if !enabled || !cacheTypePattern.MatchString(cacheType) {
		return false
	}
	if err := m.load(pathFor(dir, cacheType), cacheType, into); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("discarding persisted state", map[string]interface{}{"cache": cacheType, "reason": err.Error()})
		}
		m.metrics.IncPersistence("load", false)
		return false
	}
	m.metrics.IncPersistence("load", true)
	return true
}

func (m *Manager) load(path, cacheType string, into interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOFailure, err)
	}
	if env.Version != SchemaVersion {
		return fmt.Errorf("%w: found %q, want %q", domain.ErrSchemaMismatch, env.Version, SchemaVersion)
	}
	if err := validatePayload(cacheType, env.Data); err != nil {
		return err
	}
	if err := decodeValue(env.Data, into); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	return nil
}

// validatePayload checks the payload is an object carrying the keys its cache type needs.
func validatePayload(cacheType string, data json.RawMessage) error {
	if !gjson.ValidBytes(data) {
		return domain.Invalidf("payload is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return domain.Invalidf("payload is not an object")
	}
	for _, key := range requiredKeys[cacheType] {
		if !root.Get(key).Exists() {
			return domain.Invalidf("payload missing %q", key)
		}
	}
	return nil
}

func pathFor(dir, cacheType string) string {
	if cacheType == CacheResponses {
		return filepath.Join(dir, cacheSubdir, responsesSubdir, "index.json")
	}
	return filepath.Join(dir, cacheSubdir, cacheType+".json")
}

var _ ports.StatePersister = (*Manager)(nil)
