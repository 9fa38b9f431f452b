// Package metrics records cache observability events.
package metrics

import (
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// Cache labels used by the state caches.
const (
	CacheDevices   = "devices"
	CacheProjects  = "projects"
	CacheDeps      = "dependencies"
	CacheResponses = "responses"
)

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCacheLookup(string, bool)                  {}
func (NoopRecorder) IncRefresh(string, bool)                      {}
func (NoopRecorder) ObserveRefreshDuration(string, time.Duration) {}
func (NoopRecorder) IncPersistence(string, bool)                  {}

var _ ports.MetricsRecorder = NoopRecorder{}
