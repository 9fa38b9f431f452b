package filesystem

import (
	"io/fs"
	"path/filepath"
	"time"
)

// DirUsage summarises a directory tree.
type DirUsage struct {
	TotalBytes   int64
	FileCount    int
	LastModified time.Time
}

// WalkUsage totals file sizes under root, counts files and tracks the latest mtime.
// Unreadable entries are skipped.
func WalkUsage(root string) (DirUsage, error) {
	var usage DirUsage
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		usage.TotalBytes += info.Size()
		usage.FileCount++
		if info.ModTime().After(usage.LastModified) {
			usage.LastModified = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return DirUsage{}, err
	}
	return usage, nil
}
