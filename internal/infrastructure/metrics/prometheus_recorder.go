package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// PrometheusRecorder implements ports.MetricsRecorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry        *prom.Registry
	lookups         *prom.CounterVec
	refreshes       *prom.CounterVec
	refreshDuration *prom.HistogramVec
	persistence     *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the cache metrics.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		lookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "xcmcp",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result",
		}, []string{"cache", "result"}),
		refreshes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "xcmcp",
			Name:      "cache_refreshes_total",
			Help:      "Upstream refreshes by cache and outcome",
		}, []string{"cache", "outcome"}),
		refreshDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "xcmcp",
			Name:      "cache_refresh_duration_seconds",
			Help:      "Duration of upstream refreshes",
			Buckets:   prom.DefBuckets,
		}, []string{"cache"}),
		persistence: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "xcmcp",
			Name:      "persistence_operations_total",
			Help:      "Persistence loads and saves by outcome",
		}, []string{"op", "outcome"}),
	}
	reg.MustRegister(pr.lookups, pr.refreshes, pr.refreshDuration, pr.persistence)
	return pr
}

// Registry exposes the underlying registry.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.registry
}

func (p *PrometheusRecorder) IncCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.lookups.WithLabelValues(cache, result).Inc()
}

func (p *PrometheusRecorder) IncRefresh(cache string, success bool) {
	p.refreshes.WithLabelValues(cache, outcome(success)).Inc()
}

func (p *PrometheusRecorder) ObserveRefreshDuration(cache string, d time.Duration) {
	p.refreshDuration.WithLabelValues(cache).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPersistence(op string, success bool) {
	p.persistence.WithLabelValues(op, outcome(success)).Inc()
}

// WriteText dumps counters and histogram counts as "name{labels} value" lines.
func (p *PrometheusRecorder) WriteText(w io.Writer) error {
	families, err := p.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			sort.Strings(labels)
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			}
			if _, err := fmt.Fprintf(w, "%s{%s} %g\n", mf.GetName(), strings.Join(labels, ","), value); err != nil {
				return err
			}
		}
	}
	return nil
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

var _ ports.MetricsRecorder = (*PrometheusRecorder)(nil)
