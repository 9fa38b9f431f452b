package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by the caches and the persistence layer.
var (
	// ErrNotFound marks an unknown or expired cache key.
	ErrNotFound = errors.New("not found")
	// ErrInvalid marks a bad filter, path or configuration value.
	ErrInvalid = errors.New("invalid argument")
	// ErrIOFailure marks a persistence read/write/lock failure.
	ErrIOFailure = errors.New("io failure")
	// ErrUpstreamFailure marks a failed or timed out native command.
	ErrUpstreamFailure = errors.New("upstream command failed")
	// ErrSchemaMismatch marks persisted data written with another schema version.
	ErrSchemaMismatch = errors.New("schema version mismatch")
)

// maxStderrLines bounds how much of a failing command's stderr is kept.
const maxStderrLines = 8

// UpstreamError describes a native command that exited non-zero or timed out.
type UpstreamError struct {
	Command  string
	ExitCode int
	TimedOut bool
	Stderr   string
}

func (e *UpstreamError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: timed out", e.Command)
	}
	if e.Stderr == "" {
		return fmt.Sprintf("%s: exit code %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit code %d: %s", e.Command, e.ExitCode, e.Stderr)
}

// Unwrap lets errors.Is match ErrUpstreamFailure.
func (e *UpstreamError) Unwrap() error {
	return ErrUpstreamFailure
}

// NewUpstreamError builds an UpstreamError with condensed stderr.
func NewUpstreamError(command string, result ExecResult) *UpstreamError {
	return &UpstreamError{
		Command:  command,
		ExitCode: result.ExitCode,
		TimedOut: result.TimedOut,
		Stderr:   CondenseStderr(result.Stderr),
	}
}

// CondenseStderr keeps the non-empty tail of stderr on a single line.
func CondenseStderr(stderr string) string {
	var lines []string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > maxStderrLines {
		lines = lines[len(lines)-maxStderrLines:]
	}
	return strings.Join(lines, " | ")
}

// Invalidf returns an ErrInvalid wrapped with a formatted message.
func Invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalid)
}

// NotFoundf returns an ErrNotFound wrapped with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
