package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/filesystem"
	"github.com/ericvoltolin/xc-mcp/internal/ports"
)

// DefaultDir is where the archive lives unless configured otherwise.
func DefaultDir() string {
	return filepath.Join(filesystem.UserHomeDir(), ".xc-mcp", "history")
}

// SQLiteStore archives build results in a SQLite database.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	fallback *FileStore
	mu       sync.Mutex
}

// NewSQLiteStore creates (or opens) dir/builds.db. When the database cannot be
// opened the store falls back to dir/builds.jsonl.
func NewSQLiteStore(dir string) *SQLiteStore {
	if dir == "" {
		dir = DefaultDir()
	}
	path := filepath.Join(dir, "builds.db")
	fallback := NewFileStore(dir)
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return &SQLiteStore{path: path, fallback: fallback}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return &SQLiteStore{path: path, fallback: fallback}
	}
	store := &SQLiteStore{db: db, path: path}
	if err := store.init(); err != nil {
		_ = db.Close()
		return &SQLiteStore{path: path, fallback: fallback}
	}
	return store
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_path TEXT NOT NULL,
		timestamp_ns INTEGER NOT NULL,
		scheme TEXT,
		configuration TEXT,
		destination TEXT,
		sdk TEXT,
		success INTEGER,
		duration_ms INTEGER,
		error_count INTEGER,
		warning_count INTEGER,
		output_size_bytes INTEGER
	);
	CREATE INDEX IF NOT EXISTS builds_project_time ON builds (project_path, timestamp_ns);`)
	return err
}

// Save inserts a new record.
func (s *SQLiteStore) Save(record domain.ArchivedBuild) error {
	if s.db == nil {
		return s.fallback.Save(record)
	}
	var durationMS sql.NullInt64
	if record.Duration != nil {
		durationMS = sql.NullInt64{Int64: record.Duration.Milliseconds(), Valid: true}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO builds
		(project_path, timestamp_ns, scheme, configuration, destination, sdk, success, duration_ms, error_count, warning_count, output_size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ProjectPath,
		record.Timestamp.UnixNano(),
		record.Config.Scheme,
		record.Config.Configuration,
		record.Config.Destination,
		record.Config.SDK,
		boolToInt(record.Success),
		durationMS,
		record.ErrorCount,
		record.WarningCount,
		record.OutputSizeBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to archive build: %w", err)
	}
	return nil
}

// Records returns archived builds for projectPath, most recent first.
func (s *SQLiteStore) Records(projectPath string, limit int) ([]domain.ArchivedBuild, error) {
	if s.db == nil {
		return s.fallback.Records(projectPath, limit)
	}
	query := `SELECT project_path, timestamp_ns, scheme, configuration, destination, sdk, success, duration_ms, error_count, warning_count, output_size_bytes
		FROM builds WHERE project_path = ? ORDER BY timestamp_ns DESC, id DESC`
	args := []interface{}{projectPath}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query build archive: %w", err)
	}
	defer rows.Close()

	var records []domain.ArchivedBuild
	for rows.Next() {
		var rec domain.ArchivedBuild
		var ts int64
		var success int
		var durationMS sql.NullInt64
		if err := rows.Scan(&rec.ProjectPath, &ts, &rec.Config.Scheme, &rec.Config.Configuration,
			&rec.Config.Destination, &rec.Config.SDK, &success, &durationMS,
			&rec.ErrorCount, &rec.WarningCount, &rec.OutputSizeBytes); err != nil {
			return nil, err
		}
		rec.Timestamp = time.Unix(0, ts)
		rec.Success = success == 1
		if durationMS.Valid {
			d := time.Duration(durationMS.Int64) * time.Millisecond
			rec.Duration = &d
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes builds recorded before cutoff and returns how many went.
func (s *SQLiteStore) Prune(cutoff time.Time) (int, error) {
	if s.db == nil {
		return s.fallback.Prune(cutoff)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec("DELETE FROM builds WHERE timestamp_ns < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune build archive: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Clear deletes all archived builds.
func (s *SQLiteStore) Clear() error {
	if s.db == nil {
		return s.fallback.Clear()
	}
	_, err := s.db.Exec("DELETE FROM builds")
	return err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the sqlite database path, or the fallback file when active.
func (s *SQLiteStore) Path() string {
	if s.db == nil {
		return s.fallback.Path()
	}
	return s.path
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ ports.BuildArchive = (*SQLiteStore)(nil)
