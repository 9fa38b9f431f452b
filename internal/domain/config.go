package domain

// Config mirrors ~/.xc-mcp/config.yaml.
type Config struct {
	ConfigFormatVersion string              `yaml:"config_format_version"`
	Cache               CacheSettings       `yaml:"cache"`
	Persistence         PersistenceSettings `yaml:"persistence"`
	Execution           ExecutionSettings   `yaml:"execution"`
	History             HistorySettings     `yaml:"history"`
	Logging             LoggingSettings     `yaml:"logging"`
}

// CacheSettings controls the state cache lifetimes. Durations use time.ParseDuration syntax.
type CacheSettings struct {
	DeviceMaxAge  string `yaml:"device_max_age"`
	ProjectMaxAge string `yaml:"project_max_age"`
	DependencyTTL string `yaml:"dependency_ttl"`
}

// PersistenceSettings controls the opt-in on-disk state.
type PersistenceSettings struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir,omitempty"`
}

// ExecutionSettings bounds native command invocations.
type ExecutionSettings struct {
	TimeoutSeconds int `yaml:"timeout"`
	MaxBufferBytes int `yaml:"max_buffer_bytes"`
}

// HistorySettings configures the durable build archive.
type HistorySettings struct {
	Backend       string `yaml:"backend"`
	RetentionDays int    `yaml:"retention_days"`
}

// LoggingSettings configures the logger level.
type LoggingSettings struct {
	Level string `yaml:"level"`
}
