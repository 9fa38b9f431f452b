package domain

import "time"

// ExecOptions bounds a single native command invocation.
type ExecOptions struct {
	Timeout        time.Duration
	MaxBufferBytes int
}

// ExecResult captures the outcome of a native command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Succeeded reports whether the command exited cleanly.
func (r ExecResult) Succeeded() bool {
	return !r.TimedOut && r.ExitCode == 0
}
