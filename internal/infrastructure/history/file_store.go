package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// FileStore appends archived builds to a jsonl file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by dir/builds.jsonl.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStore{path: filepath.Join(dir, "builds.jsonl")}
}

// Save implements ports.BuildArchive.
func (f *FileStore) Save(record domain.ArchivedBuild) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), domain.DirectoryPermissions); err != nil {
		return err
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, domain.FilePermissions)
	if err != nil {
		return err
	}
	defer file.Close()
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = file.Write(append(data, '\n'))
	return err
}

// Records returns archived builds for projectPath, most recent first.
func (f *FileStore) Records(projectPath string, limit int) ([]domain.ArchivedBuild, error) {
	f.mu.Lock()
	all, err := f.readAll()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var records []domain.ArchivedBuild
	for _, rec := range all {
		if rec.ProjectPath == projectPath {
			records = append(records, rec)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Prune rewrites the file without builds recorded before cutoff.
func (f *FileStore) Prune(cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all, err := f.readAll()
	if err != nil || len(all) == 0 {
		return 0, err
	}
	var buf bytes.Buffer
	removed := 0
	for _, rec := range all {
		if rec.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return 0, err
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	if removed == 0 {
		return 0, nil
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), domain.FilePermissions); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	return removed, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Clear removes the archive file.
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// readAll loads every record, skipping malformed lines.
func (f *FileStore) readAll() ([]domain.ArchivedBuild, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var records []domain.ArchivedBuild
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec domain.ArchivedBuild
		if err := json.Unmarshal(line, &rec); err == nil {
			records = append(records, rec)
		}
	}
	return records, nil
}

var _ ports.BuildArchive = (*FileStore)(nil)
