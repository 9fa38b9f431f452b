package projectcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/metrics"
)

// DependencyInfo returns the lock file snapshot for the project at path,
// reading the files again once the snapshot is older than the dependency
// TTL. Missing or unreadable lock files leave their field nil.
func (c *Cache) DependencyInfo(ctx context.Context, path string) (domain.DependencySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.DependencySnapshot{}, err
	}
	if strings.TrimSpace(path) == "" {
		return domain.DependencySnapshot{}, domain.Invalidf("project path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.DependencySnapshot{}, domain.Invalidf("cannot resolve %s: %v", path, err)
	}

	c.mu.RLock()
	snap, ok := c.deps[abs]
	c.mu.RUnlock()
	if ok && c.now().Sub(snap.LastChecked) <= c.depTTL {
		c.metrics.IncCacheLookup(metrics.CacheDeps, true)
		return snap, nil
	}
	c.metrics.IncCacheLookup(metrics.CacheDeps, false)

	snap = readLockFiles(abs)
	snap.LastChecked = c.now()

	c.mu.Lock()
	c.deps[abs] = snap
	c.persistLocked()
	c.mu.Unlock()
	return snap, nil
}

func readLockFiles(path string) domain.DependencySnapshot {
	root := path
	var resolved []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xcodeproj":
		root = filepath.Dir(path)
		resolved = append(resolved, filepath.Join(path, "project.xcworkspace", "xcshareddata", "swiftpm", "Package.resolved"))
	case ".xcworkspace":
		root = filepath.Dir(path)
		resolved = append(resolved, filepath.Join(path, "xcshareddata", "swiftpm", "Package.resolved"))
	}
	resolved = append(resolved, filepath.Join(root, "Package.resolved"))

	return domain.DependencySnapshot{
		PackageResolved:  readFirst(resolved...),
		PodfileLock:      readFirst(filepath.Join(root, "Podfile.lock")),
		CartfileResolved: readFirst(filepath.Join(root, "Cartfile.resolved")),
	}
}

func readFirst(paths ...string) *string {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		s := string(data)
		return &s
	}
	return nil
}
