package domain

import "time"

// CachedResponse is a large tool output stashed for progressive retrieval.
// It is immutable once stored.
type CachedResponse struct {
	ID         string                 `json:"id"`
	Tool       string                 `json:"tool"`
	Timestamp  time.Time              `json:"timestamp"`
	FullOutput string                 `json:"full_output"`
	Stderr     string                 `json:"stderr,omitempty"`
	ExitCode   int                    `json:"exit_code"`
	Command    string                 `json:"command,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ResponseCacheStats reports the response cache state.
type ResponseCacheStats struct {
	TotalEntries int            `json:"total_entries"`
	ByTool       map[string]int `json:"by_tool"`
}

// ResponseSummary is the compact view handed back instead of a full payload.
type ResponseSummary struct {
	ID           string   `json:"id"`
	Tool         string   `json:"tool"`
	ExitCode     int      `json:"exit_code"`
	SizeBytes    int      `json:"size_bytes"`
	TotalLines   int      `json:"total_lines"`
	ErrorCount   int      `json:"error_count"`
	WarningCount int      `json:"warning_count"`
	Head         []string `json:"head"`
	Tail         []string `json:"tail,omitempty"`
}
