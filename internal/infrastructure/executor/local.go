package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// LocalExecutor runs native tools directly on the host, without a shell.
type LocalExecutor struct {
	defaults domain.ExecOptions
}

// NewLocalExecutor builds a new executor; zero option fields fall back to the package defaults.
func NewLocalExecutor(defaults domain.ExecOptions) *LocalExecutor {
	if defaults.Timeout <= 0 {
		defaults.Timeout = domain.DefaultCommandTimeout
	}
	if defaults.MaxBufferBytes <= 0 {
		defaults.MaxBufferBytes = domain.DefaultMaxBufferBytes
	}
	return &LocalExecutor{defaults: defaults}
}

// Execute implements ports.CommandExecutor.
func (e *LocalExecutor) Execute(ctx context.Context, name string, args []string, opts domain.ExecOptions) (domain.ExecResult, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = e.defaults.Timeout
	}
	if opts.MaxBufferBytes <= 0 {
		opts.MaxBufferBytes = e.defaults.MaxBufferBytes
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c := exec.CommandContext(ctx, name, args...)
	stdout := &cappedBuffer{limit: opts.MaxBufferBytes}
	stderr := &cappedBuffer{limit: opts.MaxBufferBytes}
	c.Stdout = stdout
	c.Stderr = stderr

	start := time.Now()
	err := c.Run()

	result := domain.ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("failed to run %s: %w", name, err)
	}
	return result, nil
}

// cappedBuffer keeps at most limit bytes and silently drops the rest so a
// chatty tool cannot exhaust memory.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}

var _ ports.CommandExecutor = (*LocalExecutor)(nil)
