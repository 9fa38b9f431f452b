package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	pr := NewPrometheusRecorder(nil)

	pr.IncCacheLookup(CacheDevices, true)
	pr.IncCacheLookup(CacheDevices, true)
	pr.IncCacheLookup(CacheDevices, false)
	pr.IncRefresh(CacheProjects, false)
	pr.ObserveRefreshDuration(CacheProjects, 150*time.Millisecond)
	pr.IncPersistence("save", true)

	var buf bytes.Buffer
	require.NoError(t, pr.WriteText(&buf))
	out := buf.String()

	assert.Contains(t, out, `xcmcp_cache_lookups_total{cache="devices",result="hit"} 2`)
	assert.Contains(t, out, `xcmcp_cache_lookups_total{cache="devices",result="miss"} 1`)
	assert.Contains(t, out, `xcmcp_cache_refreshes_total{cache="projects",outcome="failure"} 1`)
	assert.Contains(t, out, `xcmcp_cache_refresh_duration_seconds{cache="projects"} 1`)
	assert.Contains(t, out, `xcmcp_persistence_operations_total{op="save",outcome="success"} 1`)
}

func TestPrometheusRecorderEmptyRegistry(t *testing.T) {
	pr := NewPrometheusRecorder(nil)

	var buf bytes.Buffer
	require.NoError(t, pr.WriteText(&buf))
	assert.Empty(t, buf.String())
}

func TestNoopRecorderDoesNothing(t *testing.T) {
	var r NoopRecorder
	r.IncCacheLookup(CacheResponses, true)
	r.IncRefresh(CacheDevices, false)
	r.ObserveRefreshDuration(CacheDevices, time.Second)
	r.IncPersistence("load", false)
}
