package executor

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestLocalExecutorCapturesOutput(t *testing.T) {
	skipOnWindows(t)
	e := NewLocalExecutor(domain.ExecOptions{})

	result, err := e.Execute(context.Background(), "sh", []string{"-c", "echo out; echo err 1>&2; exit 3"}, domain.ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, "out\n", result.Stdout)
	assert.Equal(t, "err\n", result.Stderr)
	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.TimedOut)
	assert.False(t, result.Succeeded())
}

func TestLocalExecutorReportsTimeout(t *testing.T) {
	skipOnWindows(t)
	e := NewLocalExecutor(domain.ExecOptions{})

	result, err := e.Execute(context.Background(), "sleep", []string{"5"}, domain.ExecOptions{Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
	assert.False(t, result.Succeeded())
}

func TestLocalExecutorCapsBuffer(t *testing.T) {
	skipOnWindows(t)
	e := NewLocalExecutor(domain.ExecOptions{})

	result, err := e.Execute(context.Background(), "sh", []string{"-c", "printf 0123456789"}, domain.ExecOptions{MaxBufferBytes: 4})
	require.NoError(t, err)
	assert.Equal(t, "0123", result.Stdout)
	assert.True(t, result.Succeeded())
}

func TestLocalExecutorMissingBinary(t *testing.T) {
	e := NewLocalExecutor(domain.ExecOptions{})
	_, err := e.Execute(context.Background(), "definitely-not-a-real-binary-xc", nil, domain.ExecOptions{})
	assert.Error(t, err)
}
