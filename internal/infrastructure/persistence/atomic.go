package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
)

// writeAtomic writes data to a uniquely named temp file next to path and
// renames it into place while holding path's lock file. Readers never observe
// a partially written file.
func writeAtomic(ctx context.Context, path string, data []byte, policy LockPolicy) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return fmt.Errorf("failed to create %s: %w: %v", dir, domain.ErrIOFailure, err)
	}

	tmp := fmt.Sprintf("%s.%d.%s.tmp", path, os.Getpid(), uuid.NewString()[:8])
	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w: %v", domain.ErrIOFailure, err)
	}

	release, err := acquireLock(ctx, path+".lock", policy)
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	defer release()

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename into %s: %w: %v", path, domain.ErrIOFailure, err)
	}
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, domain.FilePermissions)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close() // #nosec G104 -- best-effort cleanup in error path
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close() // #nosec G104 -- best-effort cleanup in error path
		return err
	}
	return f.Close()
}
