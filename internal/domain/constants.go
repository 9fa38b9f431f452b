package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// FilePermissions is the default permission for cache files (rw-r--r--)
	FilePermissions = 0o644
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
)

// Response cache constants
const (
	// ResponseTTL is how long a stored response stays retrievable
	ResponseTTL = 30 * time.Minute
	// ResponseCapacity is the maximum number of stored responses
	ResponseCapacity = 100
)

// State cache constants
const (
	// DefaultDeviceMaxAge is how long a device enumeration is trusted
	DefaultDeviceMaxAge = time.Hour
	// DefaultProjectMaxAge is kept for stats; descriptors are invalidated by mtime
	DefaultProjectMaxAge = time.Hour
	// DefaultDependencyTTL is how long a dependency snapshot is trusted
	DefaultDependencyTTL = 5 * time.Minute
	// BuildHistoryLimit is the per-project ring size
	BuildHistoryLimit = 20
	// BootHistoryLimit bounds boot timestamps kept per device
	BootHistoryLimit = 10
	// RecentUsageWindow is the window for "recently used" device counts
	RecentUsageWindow = 24 * time.Hour
)

// Execution constants
const (
	// DefaultCommandTimeout is the default timeout for native commands
	DefaultCommandTimeout = 30 * time.Second
	// DefaultMaxBufferBytes caps captured stdout/stderr per command
	DefaultMaxBufferBytes = 10 * 1024 * 1024
)

// History constants
const (
	// HistoryBackendSQLite stores archived builds in SQLite
	HistoryBackendSQLite = "sqlite"
	// HistoryBackendJSONL stores archived builds as JSON lines
	HistoryBackendJSONL = "jsonl"
	// DefaultHistoryRetainDays is the default number of days to retain archived builds
	DefaultHistoryRetainDays = 30
)

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
)
