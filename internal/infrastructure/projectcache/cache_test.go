package projectcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/persistence"
)

const projectListJSON = `{
  "project": {
    "configurations": ["Debug", "Release"],
    "name": "App",
    "schemes": ["AppTests", "App"],
    "targets": ["App", "AppTests"]
  }
}`

type stubExecutor struct {
	mu     sync.Mutex
	stdout string
	result *domain.ExecResult
	args   []string
	calls  atomic.Int32
}

func (s *stubExecutor) Execute(_ context.Context, name string, args []string, _ domain.ExecOptions) (domain.ExecResult, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "xcodebuild" {
		return domain.ExecResult{}, errors.New("unexpected command " + name)
	}
	s.args = args
	if s.result != nil {
		return *s.result, nil
	}
	return domain.ExecResult{Stdout: s.stdout}, nil
}

type fakeArchive struct {
	mu      sync.Mutex
	records []domain.ArchivedBuild
}

func (a *fakeArchive) Save(r domain.ArchivedBuild) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, r)
	return nil
}

func (a *fakeArchive) Records(path string, limit int) ([]domain.ArchivedBuild, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.ArchivedBuild
	for i := len(a.records) - 1; i >= 0; i-- {
		if a.records[i].ProjectPath == path {
			out = append(out, a.records[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// makeProject creates dir/name.xcodeproj with a project.pbxproj inside.
func makeProject(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+".xcodeproj")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "project.pbxproj"), []byte("// !$*UTF8*$!"), 0o644))
	return path
}

func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

func dur(d time.Duration) *time.Duration { return &d }

func TestProjectInfoInvalidatesOnMtime(t *testing.T) {
	exec := &stubExecutor{stdout: projectListJSON}
	cache := New(exec)
	path := makeProject(t, t.TempDir(), "App")
	ctx := context.Background()

	record, err := cache.ProjectInfo(ctx, path, false)
	require.NoError(t, err)
	assert.Equal(t, "App", record.Descriptor.Name)
	assert.Equal(t, domain.ProjectKindProject, record.Descriptor.Kind)
	assert.Equal(t, []string{"AppTests", "App"}, record.Descriptor.Schemes)
	assert.Equal(t, []string{"-list", "-json", "-project", path}, exec.args)

	_, err = cache.ProjectInfo(ctx, path, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), exec.calls.Load())

	touch(t, filepath.Join(path, "project.pbxproj"), time.Now().Add(time.Hour))
	_, err = cache.ProjectInfo(ctx, path, false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), exec.calls.Load())

	_, err = cache.ProjectInfo(ctx, path, true)
	require.NoError(t, err)
	assert.Equal(t, int32(3), exec.calls.Load())
}

func TestProjectInfoWorkspace(t *testing.T) {
	exec := &stubExecutor{stdout: "2024-01-01 note: noise\n" + `{"workspace": {"name": "Suite", "schemes": ["Suite", "Core"]}}`}
	cache := New(exec)
	path := filepath.Join(t.TempDir(), "Suite.xcworkspace")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "contents.xcworkspacedata"), []byte("<Workspace/>"), 0o644))

	record, err := cache.ProjectInfo(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectKindWorkspace, record.Descriptor.Kind)
	assert.Equal(t, "-workspace", exec.args[2])
}

func TestProjectInfoErrors(t *testing.T) {
	exec := &stubExecutor{stdout: projectListJSON}
	cache := New(exec)
	ctx := context.Background()

	_, err := cache.ProjectInfo(ctx, "", false)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = cache.ProjectInfo(ctx, filepath.Join(t.TempDir(), "Package.swift"), false)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	_, err = cache.ProjectInfo(ctx, filepath.Join(t.TempDir(), "Missing.xcodeproj"), false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	path := makeProject(t, t.TempDir(), "App")
	exec.result = &domain.ExecResult{ExitCode: 66, Stderr: "xcodebuild: error: The project does not exist."}
	_, err = cache.ProjectInfo(ctx, path, false)
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Contains(t, upstream.Stderr, "does not exist")
	assert.Equal(t, 0, cache.Stats().ProjectCount)

	exec.result = &domain.ExecResult{Stdout: `{"workspace": {}}`}
	_, err = cache.ProjectInfo(ctx, path, false)
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
}

func TestPreferredBuildConfigDefaults(t *testing.T) {
	tests := []struct {
		name   string
		list   string
		want   string
		wantOK bool
	}{
		{name: "scheme named after project", list: projectListJSON, want: "App", wantOK: true},
		{name: "first scheme", list: `{"project": {"name": "App", "schemes": ["Core", "UI"]}}`, want: "Core", wantOK: true},
		{name: "no schemes", list: `{"project": {"name": "App", "schemes": []}}`, wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := New(&stubExecutor{stdout: tt.list})
			path := makeProject(t, t.TempDir(), "App")

			cfg, ok, err := cache.PreferredBuildConfig(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, cfg.Scheme)
				assert.Equal(t, domain.DefaultBuildConfiguration, cfg.Configuration)
			}
		})
	}
}

func TestPreferredBuildConfigKeepsLastSuccess(t *testing.T) {
	exec := &stubExecutor{stdout: projectListJSON}
	cache := New(exec)
	path := makeProject(t, t.TempDir(), "App")

	cfgA := domain.BuildConfig{Scheme: "AppTests", Configuration: "Release", Destination: "platform=iOS Simulator,name=iPhone 15"}
	cfgB := domain.BuildConfig{Scheme: "App", Configuration: "Debug"}
	require.NoError(t, cache.RecordBuildResult(path, cfgA, domain.BuildMetrics{Success: true}))
	require.NoError(t, cache.RecordBuildResult(path, cfgB, domain.BuildMetrics{Success: false}))

	cfg, ok, err := cache.PreferredBuildConfig(context.Background(), path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cfgA, cfg)
	assert.Equal(t, int32(0), exec.calls.Load(), "no listing needed when a successful config is known")

	record, err := cache.ProjectInfo(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, "AppTests", record.PreferredScheme, "refresh carries the preferred scheme forward")
	require.NotNil(t, record.LastSuccessfulConfig)
	assert.Equal(t, cfgA, *record.LastSuccessfulConfig)
}

func TestBuildHistoryRing(t *testing.T) {
	archive := &fakeArchive{}
	cache := New(&stubExecutor{stdout: projectListJSON}, WithArchive(archive))
	path := makeProject(t, t.TempDir(), "App")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		require.NoError(t, cache.RecordBuildResult(path, domain.BuildConfig{Scheme: "App"}, domain.BuildMetrics{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			Success:    true,
			ErrorCount: i,
		}))
	}

	history, err := cache.BuildHistory(path, 0)
	require.NoError(t, err)
	require.Len(t, history, domain.BuildHistoryLimit)
	assert.Equal(t, 24, history[0].ErrorCount, "most recent first")
	assert.Equal(t, 5, history[len(history)-1].ErrorCount, "oldest entries dropped")

	limited, err := cache.BuildHistory(path, 3)
	require.NoError(t, err)
	assert.Len(t, limited, 3)

	archived, err := cache.ArchivedHistory(path, 0)
	require.NoError(t, err)
	assert.Len(t, archived, 25, "archive keeps what the ring drops")
	assert.Equal(t, 20, cache.Stats().BuildHistoryCount)

	_, err = New(nil).ArchivedHistory(path, 0)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	assert.ErrorIs(t, cache.RecordBuildResult(path, domain.BuildConfig{}, domain.BuildMetrics{}), domain.ErrInvalid)
	assert.ErrorIs(t, cache.RecordBuildResult(path, domain.BuildConfig{Scheme: "App"}, domain.BuildMetrics{Duration: dur(-time.Second)}), domain.ErrInvalid)
}

func TestPerformanceTrends(t *testing.T) {
	cache := New(nil)
	path := makeProject(t, t.TempDir(), "App")
	cfg := domain.BuildConfig{Scheme: "App"}

	trends, err := cache.PerformanceTrends(path)
	require.NoError(t, err)
	assert.Equal(t, 0, trends.TotalBuilds)
	assert.Nil(t, trends.AvgBuildTime)
	assert.Nil(t, trends.BuildTimeImprovement)

	for _, d := range []time.Duration{100, 100, 100, 80, 80} {
		require.NoError(t, cache.RecordBuildResult(path, cfg, domain.BuildMetrics{Success: true, Duration: dur(d * time.Second)}))
	}
	require.NoError(t, cache.RecordBuildResult(path, cfg, domain.BuildMetrics{Success: false, ErrorCount: 3}))

	trends, err = cache.PerformanceTrends(path)
	require.NoError(t, err)
	assert.Nil(t, trends.BuildTimeImprovement, "five successful durations are not enough")
	assert.Equal(t, 6, trends.TotalBuilds)
	assert.InDelta(t, 5.0/6.0, trends.SuccessRate, 1e-9)
	require.NotNil(t, trends.AvgBuildTime)
	assert.Equal(t, 92*time.Second, *trends.AvgBuildTime)
	assert.Equal(t, 3, trends.RecentErrorCount)

	require.NoError(t, cache.RecordBuildResult(path, cfg, domain.BuildMetrics{Success: true, Duration: dur(80 * time.Second), ErrorCount: 1}))
	trends, err = cache.PerformanceTrends(path)
	require.NoError(t, err)
	require.NotNil(t, trends.BuildTimeImprovement)
	assert.InDelta(t, 20.0, *trends.BuildTimeImprovement, 1e-9)
	assert.Equal(t, 4, trends.RecentErrorCount)
}

func TestComputeTrendsRecentErrorWindow(t *testing.T) {
	var history []domain.BuildMetrics
	for i := 0; i < 8; i++ {
		history = append(history, domain.BuildMetrics{ErrorCount: 1})
	}
	assert.Equal(t, 5, computeTrends(history).RecentErrorCount)
	assert.Equal(t, 0.0, computeTrends(history).SuccessRate)

	slower := []domain.BuildMetrics{}
	for _, d := range []time.Duration{10, 10, 10, 15, 15, 15} {
		slower = append(slower, domain.BuildMetrics{Success: true, Duration: dur(d)})
	}
	improvement := computeTrends(slower).BuildTimeImprovement
	require.NotNil(t, improvement)
	assert.InDelta(t, -50.0, *improvement, 1e-9)
}

func TestDependencyInfo(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cache := New(nil, WithClock(clock), WithDependencyTTL(5*time.Minute))
	dir := t.TempDir()
	path := makeProject(t, dir, "App")
	ctx := context.Background()

	snap, err := cache.DependencyInfo(ctx, path)
	require.NoError(t, err)
	assert.True(t, now.Equal(snap.LastChecked))
	assert.Nil(t, snap.PackageResolved)
	assert.Nil(t, snap.PodfileLock)
	assert.Nil(t, snap.CartfileResolved)

	spm := filepath.Join(path, "project.xcworkspace", "xcshareddata", "swiftpm")
	require.NoError(t, os.MkdirAll(spm, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(spm, "Package.resolved"), []byte(`{"pins":[]}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Podfile.lock"), []byte("PODS:\n"), 0o644))

	snap, err = cache.DependencyInfo(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, snap.PodfileLock, "snapshot is served from cache within the TTL")

	now = now.Add(6 * time.Minute)
	snap, err = cache.DependencyInfo(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, snap.PackageResolved)
	assert.Equal(t, `{"pins":[]}`, *snap.PackageResolved)
	require.NotNil(t, snap.PodfileLock)
	assert.Nil(t, snap.CartfileResolved)
	assert.Equal(t, 1, cache.Stats().DependencyCount)

	_, err = cache.DependencyInfo(ctx, " ")
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestScanBuildOutput(t *testing.T) {
	summary := ScanBuildOutput("a.swift:1:1: error: x\nb.swift:2:2: warning: y\n** BUILD FAILED **\n")
	assert.Equal(t, 1, summary.ErrorCount)
	assert.Equal(t, 1, summary.WarningCount)
	assert.Equal(t, 65, summary.SizeBytes)
}

func TestPersistAndLoad(t *testing.T) {
	manager := persistence.NewManager(persistence.WithDebounce(time.Hour))
	defer manager.Close(context.Background())
	require.True(t, manager.Enable(filepath.Join(t.TempDir(), "state")).Success)

	exec := &stubExecutor{stdout: projectListJSON}
	cache := New(exec, WithPersister(manager))
	path := makeProject(t, t.TempDir(), "App")
	ctx := context.Background()

	_, err := cache.ProjectInfo(ctx, path, false)
	require.NoError(t, err)
	cfg := domain.BuildConfig{Scheme: "App", Configuration: "Release"}
	require.NoError(t, cache.RecordBuildResult(path, cfg, domain.BuildMetrics{Success: true, Duration: dur(42 * time.Second), WarningCount: 2}))
	require.NoError(t, manager.Flush(ctx))

	restoredExec := &stubExecutor{stdout: projectListJSON}
	restored := New(restoredExec, WithPersister(manager))
	require.True(t, restored.Load())

	record, err := restored.ProjectInfo(ctx, path, false)
	require.NoError(t, err)
	assert.Equal(t, int32(0), restoredExec.calls.Load(), "unchanged project is served from restored state")
	assert.Equal(t, "App", record.PreferredScheme)

	history, err := restored.BuildHistory(path, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, cfg, history[0].Config)
	require.NotNil(t, history[0].Duration)
	assert.Equal(t, 42*time.Second, *history[0].Duration)
	assert.Equal(t, 2, history[0].WarningCount)

	restored.Clear()
	assert.Equal(t, domain.ProjectCacheStats{MaxAge: domain.DefaultProjectMaxAge, DependencyTTL: domain.DefaultDependencyTTL}, restored.Stats())
}

func TestDependencySnapshotSurvivesReload(t *testing.T) {
	manager := persistence.NewManager(persistence.WithDebounce(time.Hour))
	defer manager.Close(context.Background())
	require.True(t, manager.Enable(filepath.Join(t.TempDir(), "state")).Success)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	dir := t.TempDir()
	path := makeProject(t, dir, "App")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Podfile.lock"), []byte("PODS:\n"), 0o644))
	ctx := context.Background()

	cache := New(nil, WithPersister(manager), WithClock(clock), WithDependencyTTL(5*time.Minute))
	_, err := cache.DependencyInfo(ctx, path)
	require.NoError(t, err)
	require.NoError(t, manager.Flush(ctx))

	require.NoError(t, os.Remove(filepath.Join(dir, "Podfile.lock")))
	now = now.Add(2 * time.Minute)

	restored := New(nil, WithPersister(manager), WithClock(clock), WithDependencyTTL(5*time.Minute))
	require.True(t, restored.Load())
	assert.Equal(t, 1, restored.Stats().DependencyCount)

	snap, err := restored.DependencyInfo(ctx, path)
	require.NoError(t, err)
	require.NotNil(t, snap.PodfileLock, "restored snapshot is served within the TTL")
	assert.Equal(t, "PODS:\n", *snap.PodfileLock)
	assert.True(t, snap.LastChecked.Equal(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)))

	now = now.Add(4 * time.Minute)
	snap, err = restored.DependencyInfo(ctx, path)
	require.NoError(t, err)
	assert.Nil(t, snap.PodfileLock, "expired snapshot reads the lock files again")
}
