package persistence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/filesystem"
)

const (
	// EnvCacheDir overrides the persistence root.
	EnvCacheDir = "XC_MCP_CACHE_DIR"

	appDirName      = "xc-mcp"
	dotDirName      = ".xc-mcp"
	cacheSubdir     = "cache"
	responsesSubdir = "responses"
	markerFile      = ".persistence-enabled"
	gitignoreFile   = ".gitignore"
	versionFile     = "version"

	gitignoreStart = "# xc-mcp managed start"
	gitignoreEnd   = "# xc-mcp managed end"
)

var gitignoreBody = []string{
	"*.json",
	"*.tmp",
	"*.lock",
	responsesSubdir + "/",
}

// DefaultCandidates lists persistence roots in preference order. An explicit
// directory is the only candidate when given.
func DefaultCandidates(custom string) []string {
	if custom != "" {
		return []string{filesystem.ExpandPath(custom)}
	}
	var dirs []string
	if env := os.Getenv(EnvCacheDir); env != "" {
		dirs = append(dirs, filesystem.ExpandPath(env))
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, appDirName))
	} else {
		dirs = append(dirs, filepath.Join(filesystem.UserHomeDir(), ".cache", appDirName))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, filepath.Join(wd, dotDirName))
	}
	if userCache, err := os.UserCacheDir(); err == nil {
		dirs = append(dirs, filepath.Join(userCache, appDirName))
	}
	dirs = append(dirs,
		filepath.Join(filesystem.UserHomeDir(), dotDirName),
		filepath.Join(os.TempDir(), appDirName),
	)
	return dedupe(dirs)
}

func dedupe(dirs []string) []string {
	seen := make(map[string]struct{}, len(dirs))
	out := dirs[:0]
	for _, d := range dirs {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// checkWritable creates dir, writes a scratch file into it and removes it again.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, domain.DirectoryPermissions); err != nil {
		return err
	}
	scratch := filepath.Join(dir, ".write-check-"+uuid.NewString())
	if err := os.WriteFile(scratch, []byte("ok"), domain.FilePermissions); err != nil {
		return err
	}
	return os.Remove(scratch)
}

// ensureLayout creates the cache tree, marker, managed .gitignore block and version file.
func ensureLayout(dir string, now time.Time) error {
	cacheDir := filepath.Join(dir, cacheSubdir)
	if err := os.MkdirAll(filepath.Join(cacheDir, responsesSubdir), domain.DirectoryPermissions); err != nil {
		return err
	}
	marker := fmt.Sprintf("enabled %s\n", now.Format(domain.TimestampFormat))
	if err := os.WriteFile(filepath.Join(cacheDir, markerFile), []byte(marker), domain.FilePermissions); err != nil {
		return err
	}
	if err := updateGitignore(filepath.Join(cacheDir, gitignoreFile)); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, versionFile), []byte(SchemaVersion+"\n"), domain.FilePermissions)
}

// updateGitignore rewrites the managed block and preserves everything else.
func updateGitignore(path string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	block := strings.Join(append(append([]string{gitignoreStart}, gitignoreBody...), gitignoreEnd), "\n")
	return os.WriteFile(path, []byte(mergeManagedBlock(string(existing), block)), domain.FilePermissions)
}

func mergeManagedBlock(existing, block string) string {
	start := strings.Index(existing, gitignoreStart)
	end := strings.Index(existing, gitignoreEnd)
	if start >= 0 && end > start {
		return existing[:start] + block + existing[end+len(gitignoreEnd):]
	}
	if existing == "" {
		return block + "\n"
	}
	if !strings.HasSuffix(existing, "\n") {
		existing += "\n"
	}
	return existing + "\n" + block + "\n"
}
