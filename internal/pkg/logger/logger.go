package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

// LevelEnv selects the log level when no explicit level is configured.
const LevelEnv = "XC_MCP_LOG"

// ApexLogger implements ports.Logger on top of apex/log.
type ApexLogger struct {
	logger *log.Logger
}

// New creates an ApexLogger writing to stderr. An empty level falls back to
// $XC_MCP_LOG and then to "error"; verbose forces debug.
func New(level string, verbose bool) *ApexLogger {
	return NewWithWriter(os.Stderr, level, verbose)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string, verbose bool) *ApexLogger {
	if level == "" {
		level = os.Getenv(LevelEnv)
	}
	if level == "" {
		level = "error"
	}
	if verbose {
		level = "debug"
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.ErrorLevel
	}
	return &ApexLogger{
		logger: &log.Logger{
			Handler: &TextHandler{Writer: w},
			Level:   lvl,
		},
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *ApexLogger {
	return &ApexLogger{
		logger: &log.Logger{
			Handler: &TextHandler{Writer: io.Discard},
			Level:   log.FatalLevel,
		},
	}
}

func (l *ApexLogger) Debug(msg string, fields map[string]interface{}) {
	l.logger.WithFields(log.Fields(fields)).Debug(msg)
}

func (l *ApexLogger) Info(msg string, fields map[string]interface{}) {
	l.logger.WithFields(log.Fields(fields)).Info(msg)
}

func (l *ApexLogger) Warn(msg string, fields map[string]interface{}) {
	l.logger.WithFields(log.Fields(fields)).Warn(msg)
}

func (l *ApexLogger) Error(msg string, err error, fields map[string]interface{}) {
	entry := l.logger.WithFields(log.Fields(fields))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

// TextHandler formats entries as "timestamp L message key=value ...".
type TextHandler struct {
	mu     sync.Mutex
	Writer io.Writer
}

// HandleLog implements the log.Handler interface
func (h *TextHandler) HandleLog(e *log.Entry) error {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1s %s", e.Timestamp.Format(time.DateTime), strings.ToUpper(e.Level.String()), e.Message)
	for _, name := range names {
		fmt.Fprintf(&b, " %s=%v", name, e.Fields.Get(name))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.Writer, b.String())
	return err
}
