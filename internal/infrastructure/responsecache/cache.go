// Package responsecache keeps large tool outputs in memory behind short ids
// so callers can hand back a summary first and the full payload on demand.
package responsecache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/metrics"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/logger"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// DefaultSummaryLines is how many head/tail lines Summarize keeps.
const DefaultSummaryLines = 20

// Cache is an in-memory store with a fixed TTL and capacity.
type Cache struct {
	mu      sync.Mutex
	entries map[string]stored
	seq     uint64

	ttl       time.Duration
	capacity  int
	now       func() time.Time
	newID     func() string
	persister ports.StatePersister
	logger    ports.Logger
	metrics   ports.MetricsRecorder
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithPersister saves live entries whenever the cache changes.
func WithPersister(p ports.StatePersister) Option {
	return func(c *Cache) { c.persister = p }
}

// WithLogger sets the logger.
func WithLogger(l ports.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r ports.MetricsRecorder) Option {
	return func(c *Cache) { c.metrics = r }
}

// New returns an empty cache with the standard 30 minute TTL and 100 entry cap.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]stored),
		ttl:      domain.ResponseTTL,
		capacity: domain.ResponseCapacity,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   logger.NewNop(),
		metrics:  metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store assigns a fresh id and timestamp to entry, inserts it and sweeps.
func (c *Cache) Store(entry domain.CachedResponse) string {
	c.mu.Lock()
	entry.ID = c.newID()
	entry.Timestamp = c.now()
	entry.Metadata = copyMetadata(entry.Metadata)
	c.insertLocked(entry)
	c.sweepLocked()
	c.persistLocked()
	c.mu.Unlock()

	c.logger.Debug("response stored", map[string]interface{}{"id": entry.ID, "tool": entry.Tool, "bytes": len(entry.FullOutput)})
	return entry.ID
}

// Get returns the entry for id. Expired entries are removed and reported missing.
func (c *Cache) Get(id string) (domain.CachedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[id]
	if ok && c.expired(s.CachedResponse) {
		delete(c.entries, id)
		c.persistLocked()
		ok = false
	}
	c.metrics.IncCacheLookup(metrics.CacheResponses, ok)
	if !ok {
		return domain.CachedResponse{}, false
	}
	return detach(s.CachedResponse), true
}

// Lookup is Get with a NotFound error for unknown or expired ids.
func (c *Cache) Lookup(id string) (domain.CachedResponse, error) {
	entry, ok := c.Get(id)
	if !ok {
		return domain.CachedResponse{}, domain.NotFoundf("response %q is unknown or expired", id)
	}
	return entry, nil
}

// RecentByTool returns up to limit live entries for tool, newest first.
// A limit of zero or less returns all of them.
func (c *Cache) RecentByTool(tool string, limit int) []domain.CachedResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []stored
	for _, s := range c.entries {
		if s.Tool == tool && !c.expired(s.CachedResponse) {
			matched = append(matched, s)
		}
	}
	sortNewestFirst(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]domain.CachedResponse, len(matched))
	for i, s := range matched {
		out[i] = detach(s.CachedResponse)
	}
	return out
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]stored)
	c.persistLocked()
}

// Stats counts entries in total and per tool.
func (c *Cache) Stats() domain.ResponseCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := domain.ResponseCacheStats{TotalEntries: len(c.entries), ByTool: make(map[string]int)}
	for _, s := range c.entries {
		stats.ByTool[s.Tool]++
	}
	return stats
}

// Summarize returns the compact view of entry: byte size, marker counts and
// the first and last maxLines lines of its output.
func Summarize(entry domain.CachedResponse, maxLines int) domain.ResponseSummary {
	if maxLines <= 0 {
		maxLines = DefaultSummaryLines
	}
	scan := domain.ScanOutput(entry.FullOutput)
	summary := domain.ResponseSummary{
		ID:           entry.ID,
		Tool:         entry.Tool,
		ExitCode:     entry.ExitCode,
		SizeBytes:    scan.SizeBytes,
		ErrorCount:   scan.ErrorCount,
		WarningCount: scan.WarningCount,
	}
	output := strings.TrimRight(entry.FullOutput, "\n")
	if output == "" {
		return summary
	}
	lines := strings.Split(output, "\n")
	summary.TotalLines = len(lines)
	if len(lines) <= 2*maxLines {
		summary.Head = lines
		return summary
	}
	summary.Head = lines[:maxLines]
	summary.Tail = lines[len(lines)-maxLines:]
	return summary
}

// stored pairs an entry with its insertion sequence so entries sharing a
// timestamp still evict in insertion order.
type stored struct {
	domain.CachedResponse
	seq uint64
}

// detach returns entry with its own metadata map so callers cannot reach the stored one.
func detach(entry domain.CachedResponse) domain.CachedResponse {
	entry.Metadata = copyMetadata(entry.Metadata)
	return entry
}

func copyMetadata(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

func (c *Cache) insertLocked(entry domain.CachedResponse) {
	c.seq++
	c.entries[entry.ID] = stored{CachedResponse: entry, seq: c.seq}
}

func (c *Cache) expired(entry domain.CachedResponse) bool {
	return c.now().Sub(entry.Timestamp) > c.ttl
}

// sweepLocked drops expired entries, then the oldest until within capacity.
func (c *Cache) sweepLocked() {
	for id, s := range c.entries {
		if c.expired(s.CachedResponse) {
			delete(c.entries, id)
		}
	}
	if len(c.entries) <= c.capacity {
		return
	}
	all := make([]stored, 0, len(c.entries))
	for _, s := range c.entries {
		all = append(all, s)
	}
	sortNewestFirst(all)
	for _, s := range all[c.capacity:] {
		delete(c.entries, s.ID)
	}
}

func sortNewestFirst(entries []stored) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].seq > entries[j].seq
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
