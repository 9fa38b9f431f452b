package domain

import "strings"

const (
	errorMarker   = "error:"
	warningMarker = "warning:"
)

// ScanOutput counts error and warning marker lines in tool output.
// A line is counted once, errors taking precedence over warnings.
func ScanOutput(output string) BuildOutputSummary {
	summary := BuildOutputSummary{SizeBytes: len(output)}
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, errorMarker):
			summary.ErrorCount++
		case strings.Contains(lower, warningMarker):
			summary.WarningCount++
		}
	}
	return summary
}
