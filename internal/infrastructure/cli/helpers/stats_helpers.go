package helpers

import (
	"sort"
)

// ToolStatistic is the number of cached responses produced by one tool.
type ToolStatistic struct {
	Tool  string
	Count int
}

// CalculateTopTools returns the top N tools by entry count.
// If limit is 0 or negative, returns all tools
func CalculateTopTools(toolFrequency map[string]int, limit int) []ToolStatistic {
	stats := convertFrequencyMapToStatistics(toolFrequency)
	sortStatisticsByFrequency(stats)

	if shouldLimitResults(limit, len(stats)) {
		return stats[:limit]
	}
	return stats
}

func convertFrequencyMapToStatistics(frequency map[string]int) []ToolStatistic {
	stats := make([]ToolStatistic, 0, len(frequency))
	for tool, count := range frequency {
		stats = append(stats, ToolStatistic{
			Tool:  tool,
			Count: count,
		})
	}
	return stats
}

// sortStatisticsByFrequency sorts statistics by count (descending) then by tool name (ascending)
func sortStatisticsByFrequency(stats []ToolStatistic) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count == stats[j].Count {
			return stats[i].Tool < stats[j].Tool
		}
		return stats[i].Count > stats[j].Count
	})
}

func shouldLimitResults(limit int, actualLength int) bool {
	return limit > 0 && actualLength > limit
}
