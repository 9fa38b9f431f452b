// Package history keeps every recorded build in a durable archive so build
// results outlive the in-memory per-project ring.
package history

import (
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// Archive is a BuildArchive that can be pruned and cleared.
type Archive interface {
	ports.BuildArchive
	Prune(cutoff time.Time) (int, error)
	Clear() error
	Path() string
}

// Open returns the archive for backend rooted at dir.
func Open(backend, dir string) (Archive, error) {
	switch backend {
	case "", domain.HistoryBackendSQLite:
		return NewSQLiteStore(dir), nil
	case domain.HistoryBackendJSONL:
		return NewFileStore(dir), nil
	default:
		return nil, domain.Invalidf("unknown history backend %q", backend)
	}
}

// ApplyRetention prunes builds older than days. Zero days keeps everything.
func ApplyRetention(a Archive, days int, now time.Time) (int, error) {
	if days <= 0 {
		return 0, nil
	}
	return a.Prune(now.AddDate(0, 0, -days))
}
