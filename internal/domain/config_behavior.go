package domain

import (
	"strings"
	"time"
)

// DeviceMaxAge returns the parsed device cache max age, falling back to the default when unset.
func (c *Config) DeviceMaxAge() (time.Duration, error) {
	return parsePositiveDuration("cache.device_max_age", c.Cache.DeviceMaxAge, DefaultDeviceMaxAge)
}

// ProjectMaxAge returns the parsed project cache max age, falling back to the default when unset.
func (c *Config) ProjectMaxAge() (time.Duration, error) {
	return parsePositiveDuration("cache.project_max_age", c.Cache.ProjectMaxAge, DefaultProjectMaxAge)
}

// DependencyTTL returns the parsed dependency snapshot TTL, falling back to the default when unset.
func (c *Config) DependencyTTL() (time.Duration, error) {
	return parsePositiveDuration("cache.dependency_ttl", c.Cache.DependencyTTL, DefaultDependencyTTL)
}

// ExecOptions converts the execution settings into per-command options.
func (c *Config) ExecOptions() ExecOptions {
	opts := ExecOptions{
		Timeout:        DefaultCommandTimeout,
		MaxBufferBytes: DefaultMaxBufferBytes,
	}
	if c.Execution.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(c.Execution.TimeoutSeconds) * time.Second
	}
	if c.Execution.MaxBufferBytes > 0 {
		opts.MaxBufferBytes = c.Execution.MaxBufferBytes
	}
	return opts
}

// HistoryBackend returns the normalised archive backend name.
func (c *Config) HistoryBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.History.Backend))
	if backend == "" {
		return HistoryBackendSQLite
	}
	return backend
}

// Validate checks every configurable value and returns the first ErrInvalid found.
func (c *Config) Validate() error {
	if _, err := c.DeviceMaxAge(); err != nil {
		return err
	}
	if _, err := c.ProjectMaxAge(); err != nil {
		return err
	}
	if _, err := c.DependencyTTL(); err != nil {
		return err
	}
	if c.Execution.TimeoutSeconds < 0 {
		return Invalidf("execution.timeout must be >= 0, got %d", c.Execution.TimeoutSeconds)
	}
	if c.Execution.MaxBufferBytes < 0 {
		return Invalidf("execution.max_buffer_bytes must be >= 0, got %d", c.Execution.MaxBufferBytes)
	}
	switch c.HistoryBackend() {
	case HistoryBackendSQLite, HistoryBackendJSONL:
	default:
		return Invalidf("history.backend must be %q or %q, got %q", HistoryBackendSQLite, HistoryBackendJSONL, c.History.Backend)
	}
	if c.History.RetentionDays < 0 {
		return Invalidf("history.retention_days must be >= 0, got %d", c.History.RetentionDays)
	}
	return nil
}

func parsePositiveDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, Invalidf("%s: %v", field, err)
	}
	if d <= 0 {
		return 0, Invalidf("%s must be positive, got %s", field, raw)
	}
	return d, nil
}
