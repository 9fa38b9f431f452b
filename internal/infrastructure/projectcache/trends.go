package projectcache

import (
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
)

const (
	recentErrorWindow = 5
	improvementWindow = 3
)

// PerformanceTrends summarises the retained build history of path.
// BuildTimeImprovement compares the mean of the three most recent successful
// durations with the three before them and is nil with fewer than six.
func (c *Cache) PerformanceTrends(path string) (domain.PerformanceTrends, error) {
	abs, _, err := normalizePath(path)
	if err != nil {
		return domain.PerformanceTrends{}, err
	}
	c.mu.RLock()
	history := append([]domain.BuildMetrics(nil), c.builds[abs]...)
	c.mu.RUnlock()
	return computeTrends(history), nil
}

// computeTrends expects history oldest first.
func computeTrends(history []domain.BuildMetrics) domain.PerformanceTrends {
	trends := domain.PerformanceTrends{TotalBuilds: len(history)}
	if len(history) == 0 {
		return trends
	}

	successes := 0
	var durations []time.Duration
	for _, b := range history {
		if !b.Success {
			continue
		}
		successes++
		if b.Duration != nil {
			durations = append(durations, *b.Duration)
		}
	}
	trends.SuccessRate = float64(successes) / float64(len(history))

	if len(durations) > 0 {
		avg := mean(durations)
		trends.AvgBuildTime = &avg
	}

	for i := len(history) - 1; i >= 0 && i >= len(history)-recentErrorWindow; i-- {
		trends.RecentErrorCount += history[i].ErrorCount
	}

	if len(durations) >= 2*improvementWindow {
		n := len(durations)
		recent := mean(durations[n-improvementWindow:])
		prior := mean(durations[n-2*improvementWindow : n-improvementWindow])
		if prior > 0 {
			improvement := float64(prior-recent) / float64(prior) * 100
			trends.BuildTimeImprovement = &improvement
		}
	}
	return trends
}

func mean(ds []time.Duration) time.Duration {
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}
