package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericvoltolin/xc-mcp/internal/app"
	"github.com/ericvoltolin/xc-mcp/internal/application/doctor"
	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli/commands"
	configinfra "github.com/ericvoltolin/xc-mcp/internal/infrastructure/config"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/devicecache"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/history"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/metrics"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/persistence"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/projectcache"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/responsecache"
	"github.com/ericvoltolin/xc-mcp/internal/pkg/logger"
)

const devicesJSON = `{
  "devices": {
    "com.apple.CoreSimulator.SimRuntime.iOS-17-2": [
      {"name": "iPhone 15", "udid": "AAA", "state": "Shutdown", "isAvailable": true,
       "deviceTypeIdentifier": "com.apple.CoreSimulator.SimDeviceType.iPhone-15"},
      {"name": "iPhone 8", "udid": "CCC", "state": "Shutdown", "isAvailable": false,
       "deviceTypeIdentifier": "com.apple.CoreSimulator.SimDeviceType.iPhone-8"}
    ],
    "com.apple.CoreSimulator.SimRuntime.iOS-16-4": [
      {"name": "iPhone 14", "udid": "DDD", "state": "Shutdown", "isAvailable": true,
       "deviceTypeIdentifier": "com.apple.CoreSimulator.SimDeviceType.iPhone-14"}
    ]
  }
}`

const runtimesJSON = `{"runtimes": [
  {"identifier": "com.apple.CoreSimulator.SimRuntime.iOS-17-2", "name": "iOS 17.2", "version": "17.2", "isAvailable": true},
  {"identifier": "com.apple.CoreSimulator.SimRuntime.iOS-16-4", "name": "iOS 16.4", "version": "16.4", "isAvailable": true}
]}`

const projectListJSON = `{"project": {"name": "App", "schemes": ["App"], "targets": ["App"], "configurations": ["Debug", "Release"]}}`

type fakeExecutor struct{}

func (fakeExecutor) Execute(_ context.Context, name string, args []string, _ domain.ExecOptions) (domain.ExecResult, error) {
	switch {
	case name == "xcodebuild":
		return domain.ExecResult{Stdout: projectListJSON}, nil
	case strings.Contains(strings.Join(args, " "), "devices"):
		return domain.ExecResult{Stdout: devicesJSON}, nil
	default:
		return domain.ExecResult{Stdout: runtimesJSON}, nil
	}
}

func newTestContainer(t *testing.T) *app.Container {
	t.Helper()
	dir := t.TempDir()
	loader := configinfra.NewFileLoader(filepath.Join(dir, "config.yaml"))
	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)

	recorder := metrics.NewPrometheusRecorder(nil)
	manager := persistence.NewManager(persistence.WithDebounce(time.Hour))
	t.Cleanup(func() { _ = manager.Close(context.Background()) })
	archive := history.NewFileStore(filepath.Join(dir, "history"))
	exec := fakeExecutor{}

	container := &app.Container{
		Config:         cfg,
		ConfigProvider: loader,
		ConfigLoader:   loader,
		Logger:         logger.NewNop(),
		Metrics:        recorder,
		Persistence:    manager,
		Executor:       exec,
		Archive:        archive,
		Responses:      responsecache.New(responsecache.WithPersister(manager), responsecache.WithMetrics(recorder)),
		Devices:        devicecache.New(exec, devicecache.WithPersister(manager), devicecache.WithMetrics(recorder)),
		Projects: projectcache.New(exec,
			projectcache.WithPersister(manager),
			projectcache.WithArchive(archive),
			projectcache.WithMetrics(recorder),
		),
	}
	container.DoctorService = &doctor.Service{
		ConfigProvider: loader,
		Persistence:    manager,
		Archive:        archive,
		Candidates:     func(string) []string { return []string{filepath.Join(dir, "state")} },
		LookPath:       func(name string) (string, error) { return "/usr/bin/" + name, nil },
	}
	return container
}

// execute runs args against a fresh root so flag values never leak between runs.
func execute(t *testing.T, c *app.Container, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(c)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func makeProject(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "App.xcodeproj")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "project.pbxproj"), []byte("// pbx"), 0o644))
	return path
}

func TestDevicesListAndPreferred(t *testing.T) {
	c := newTestContainer(t)

	out, err := execute(t, c, "", "devices", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "== com.apple.CoreSimulator.SimRuntime.iOS-16-4 ==")
	assert.Contains(t, out, "3 devices")

	out, err = execute(t, c, "", "devices", "list", "--type", "iPhone")
	require.NoError(t, err)
	assert.Contains(t, out, "iPhone 15")
	assert.Contains(t, out, "iPhone 14")
	assert.NotContains(t, out, "iPhone 8")

	out, err = execute(t, c, "", "devices", "list", "--runtime", "iOS 16.4")
	require.NoError(t, err)
	assert.Contains(t, out, "DDD")
	assert.NotContains(t, out, "AAA")

	out, err = execute(t, c, "", "devices", "list", "--type", "Watch")
	require.NoError(t, err)
	assert.Contains(t, out, "No available devices match.")

	_, err = execute(t, c, "", "devices", "use", "DDD", "--project", "/tmp/App.xcodeproj")
	require.NoError(t, err)

	out, err = execute(t, c, "", "devices", "preferred", "--project", "/tmp/App.xcodeproj")
	require.NoError(t, err)
	assert.Contains(t, out, "DDD")

	out, err = execute(t, c, "", "devices", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Cached: true")
	assert.Contains(t, out, "Recently used: 1")
}

func TestDevicesBootLifecycle(t *testing.T) {
	c := newTestContainer(t)

	out, err := execute(t, c, "", "devices", "state", "AAA")
	require.NoError(t, err)
	assert.Equal(t, "unknown\n", out)

	out, err = execute(t, c, "", "devices", "boot", "AAA")
	require.NoError(t, err)
	assert.Equal(t, "AAA: booting\n", out)

	out, err = execute(t, c, "", "devices", "boot-event", "AAA", "--success", "--duration", "2s")
	require.NoError(t, err)
	assert.Equal(t, "AAA: booted\n", out)

	out, err = execute(t, c, "", "devices", "boot-event", "AAA", "--success=false")
	require.NoError(t, err)
	assert.Equal(t, "AAA: shutdown\n", out)

	_, err = execute(t, c, "", "devices", "boot-event", "AAA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "success")

	_, err = execute(t, c, "", "devices", "boot", "AAA")
	require.NoError(t, err)
	out, err = execute(t, c, "", "devices", "clear")
	require.NoError(t, err)
	assert.Equal(t, commands.MsgDevicesCleared+"\n", out)
	assert.False(t, c.Devices.Stats().IsCached)

	out, err = execute(t, c, "", "devices", "state", "AAA")
	require.NoError(t, err)
	assert.Equal(t, "unknown\n", out)
}

func TestProjectRecordHistoryAndTrends(t *testing.T) {
	c := newTestContainer(t)
	path := makeProject(t)

	out, err := execute(t, c, "", "project", "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "App (project)")
	assert.Contains(t, out, "Configurations: Debug, Release")

	out, err = execute(t, c, "", "project", "config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "scheme: App")
	assert.Contains(t, out, "configuration: Debug")

	_, err = execute(t, c, "", "project", "record", path, "--success")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--scheme is required")

	logFile := filepath.Join(t.TempDir(), "build.log")
	require.NoError(t, os.WriteFile(logFile, []byte("note\nerror: missing symbol\nwarning: deprecated\n"), 0o644))

	out, err = execute(t, c, "", "project", "record", path,
		"--scheme", "App", "--configuration", "Release", "--success", "--duration", "30s", "--output-file", logFile)
	require.NoError(t, err)
	assert.Equal(t, "Recorded succeeded build of App (1 errors, 1 warnings)\n", out)

	out, err = execute(t, c, "", "project", "history", path)
	require.NoError(t, err)
	assert.Contains(t, out, "OK   App/Release 30s errors=1 warnings=1")

	out, err = execute(t, c, "", "project", "history", path, "--archived")
	require.NoError(t, err)
	assert.Contains(t, out, "App/Release")

	_, err = execute(t, c, "", "project", "history", path, "--limit", "0")
	require.Error(t, err)

	out, err = execute(t, c, "", "project", "config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration: Release")

	out, err = execute(t, c, "", "project", "trends", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Builds: 1")
	assert.Contains(t, out, "Success rate: 100.0%")
	assert.Contains(t, out, "Average build time: 30s")
	assert.Contains(t, out, "Build time improvement: -")

	out, err = execute(t, c, "", "project", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Projects: 1")
	assert.Contains(t, out, "Builds retained: 1")

	out, err = execute(t, c, "", "project", "clear")
	require.NoError(t, err)
	assert.Equal(t, commands.MsgProjectsCleared+"\n", out)

	out, err = execute(t, c, "", "project", "history", path, "--archived")
	require.NoError(t, err)
	assert.Contains(t, out, "App/Release")

	out, err = execute(t, c, "", "project", "clear", "--archive")
	require.NoError(t, err)
	assert.Contains(t, out, "Build archive cleared")

	out, err = execute(t, c, "", "project", "history", path, "--archived")
	require.NoError(t, err)
	assert.NotContains(t, out, "App/Release")
}

func TestProjectDeps(t *testing.T) {
	c := newTestContainer(t)
	path := makeProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "Podfile.lock"), []byte("PODS:\n"), 0o644))

	out, err := execute(t, c, "", "project", "deps", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Podfile.lock       6 B")
	assert.Contains(t, out, "Cartfile.resolved  absent")
}

func TestResponsesStoreGetAndClear(t *testing.T) {
	c := newTestContainer(t)

	_, err := execute(t, c, "build log", "responses", "store")
	require.Error(t, err)

	out, err := execute(t, c, "line one\nerror: boom\n", "responses", "store", "--tool", "xcodebuild", "--exit-code", "65")
	require.NoError(t, err)
	firstLine := strings.SplitN(out, "\n", 2)[0]
	require.True(t, strings.HasPrefix(firstLine, "ID: "), out)
	id := strings.TrimPrefix(firstLine, "ID: ")
	assert.Contains(t, out, "Tool: xcodebuild (exit 65)")
	assert.Contains(t, out, "2 lines, 1 errors, 0 warnings")

	out, err = execute(t, c, "", "responses", "get", id)
	require.NoError(t, err)
	assert.Equal(t, "line one\nerror: boom\n", out)

	out, err = execute(t, c, "", "responses", "recent", "xcodebuild")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "exit=65")

	out, err = execute(t, c, "", "responses", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries: 1")
	assert.Contains(t, out, "xcodebuild")

	out, err = execute(t, c, "", "responses", "clear")
	require.NoError(t, err)
	assert.Equal(t, "Response cache cleared.\n", out)

	_, err = execute(t, c, "", "responses", "get", id)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	out, err = execute(t, c, "", "responses", "recent", "xcodebuild")
	require.NoError(t, err)
	assert.Equal(t, "No cached responses.\n", out)
}

// buildProcess wires a container the way the binary does, sharing the config
// file and archive under dir between successive builds.
func buildProcess(t *testing.T, dir string) *app.Container {
	t.Helper()
	c, err := app.BuildContainer(context.Background(), app.Options{
		ConfigPath: filepath.Join(dir, "config.yaml"),
		HistoryDir: filepath.Join(dir, "history"),
	})
	require.NoError(t, err)
	return c
}

func TestResponsesAcrossProcesses(t *testing.T) {
	ctx := context.Background()

	t.Run("persistence disabled", func(t *testing.T) {
		dir := t.TempDir()
		first := buildProcess(t, dir)
		out, err := execute(t, first, "full log\n", "responses", "store", "--tool", "xcodebuild")
		require.NoError(t, err)
		assert.Contains(t, out, "Persistence is disabled, so this id expires with this process.")
		id := strings.TrimPrefix(strings.SplitN(out, "\n", 2)[0], "ID: ")
		require.NoError(t, first.Shutdown(ctx))

		second := buildProcess(t, dir)
		defer second.Shutdown(ctx)
		_, err = execute(t, second, "", "responses", "get", id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("persistence enabled", func(t *testing.T) {
		dir := t.TempDir()
		first := buildProcess(t, dir)
		_, err := execute(t, first, "", "persistence", "enable", filepath.Join(dir, "state"))
		require.NoError(t, err)
		out, err := execute(t, first, "full log\n", "responses", "store", "--tool", "xcodebuild")
		require.NoError(t, err)
		assert.NotContains(t, out, "expires with this process")
		id := strings.TrimPrefix(strings.SplitN(out, "\n", 2)[0], "ID: ")
		require.NoError(t, first.Shutdown(ctx))

		second := buildProcess(t, dir)
		defer second.Shutdown(ctx)
		require.True(t, second.Persistence.IsEnabled())
		out, err = execute(t, second, "", "responses", "get", id)
		require.NoError(t, err)
		assert.Equal(t, "full log\n", out)
	})
}

func TestPersistenceCommands(t *testing.T) {
	c := newTestContainer(t)
	dir := t.TempDir()

	out, err := execute(t, c, "", "persistence", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Persistence: disabled")

	out, err = execute(t, c, "", "persistence", "enable", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "persistence enabled at "+dir)

	cfg, err := c.ConfigProvider.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, cfg.Persistence.Enabled)
	assert.Equal(t, dir, cfg.Persistence.Dir)

	out, err = execute(t, c, "", "persistence", "status", "--storage")
	require.NoError(t, err)
	assert.Contains(t, out, "Directory: "+dir)
	assert.Contains(t, out, "Writable: true")

	out, err = execute(t, c, "", "persistence", "disable", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "persistence disabled and cached data removed")

	cfg, err = c.ConfigProvider.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, cfg.Persistence.Enabled)
}

func TestConfigSetGetAndDiff(t *testing.T) {
	c := newTestContainer(t)

	out, err := execute(t, c, "", "config", "diff")
	require.NoError(t, err)
	assert.Equal(t, "No differences from default configuration.\n", out)

	out, err = execute(t, c, "", "config", "set", "cache.device_max_age", "10m")
	require.NoError(t, err)
	assert.Equal(t, "cache.device_max_age = 10m0s\n", out)
	assert.Equal(t, 10*time.Minute, c.Devices.Stats().MaxAge, "device max age applies to the running cache")

	out, err = execute(t, c, "", "config", "get", "cache.device_max_age")
	require.NoError(t, err)
	assert.Equal(t, "10m0s\n", out)

	_, err = execute(t, c, "", "config", "set", "cache.device_max_age", "soon")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalid)
	assert.Contains(t, err.Error(), "cache.device_max_age")

	_, err = execute(t, c, "", "config", "get", "cache.nope")
	assert.ErrorIs(t, err, domain.ErrInvalid)

	out, err = execute(t, c, "", "config", "set", "execution.max_buffer_bytes", "16MiB")
	require.NoError(t, err)
	assert.Equal(t, "execution.max_buffer_bytes = 16 MiB\nTakes effect on the next run.\n", out)

	out, err = execute(t, c, "", "config", "diff")
	require.NoError(t, err)
	assert.Contains(t, out, "1h0m0s -> 10m0s")
	assert.Contains(t, out, "10 MiB -> 16 MiB")

	_, err = execute(t, c, "", "config", "unset", "cache.device_max_age")
	require.NoError(t, err)
	out, err = execute(t, c, "", "config", "diff")
	require.NoError(t, err)
	assert.NotContains(t, out, "cache.device_max_age")

	out, err = execute(t, c, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "persistence.dir")
	assert.Contains(t, out, "(default)")

	out, err = execute(t, c, "", "config", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "Previous configuration saved to ")
	out, err = execute(t, c, "", "config", "diff")
	require.NoError(t, err)
	assert.Equal(t, "No differences from default configuration.\n", out)

	out, err = execute(t, c, "", "config", "validate")
	require.NoError(t, err)
	assert.Equal(t, "Configuration valid\n", out)
}

func TestMetricsCommandReportsLookups(t *testing.T) {
	c := newTestContainer(t)

	_, err := execute(t, c, "", "devices", "list")
	require.NoError(t, err)
	_, err = execute(t, c, "", "devices", "list")
	require.NoError(t, err)

	out, err := execute(t, c, "", "metrics")
	require.NoError(t, err)
	assert.Contains(t, out, `xcmcp_cache_lookups_total{cache="devices",result="hit"} 1`)
	assert.Contains(t, out, `xcmcp_cache_lookups_total{cache="devices",result="miss"} 1`)
}

func TestMetricsFlagPrintsCountersAfterCommand(t *testing.T) {
	c := newTestContainer(t)

	out, err := execute(t, c, "", "devices", "list", "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "== com.apple.CoreSimulator.SimRuntime.iOS-16-4 ==")
	assert.Contains(t, out, `xcmcp_cache_lookups_total{cache="devices",result="miss"} 1`)

	out, err = execute(t, c, "", "devices", "stats")
	require.NoError(t, err)
	assert.NotContains(t, out, "xcmcp_cache_lookups_total")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, newTestContainer(t), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "xcmcp version")
	assert.Contains(t, out, "State schema: "+persistence.SchemaVersion)
}

func TestDoctorCommand(t *testing.T) {
	out, err := execute(t, newTestContainer(t), "", "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "[OK] Config file")
	assert.Contains(t, out, "[OK] xcodebuild - /usr/bin/xcodebuild")
	assert.Contains(t, out, "[WARN] Persistence - disabled")
	assert.Contains(t, out, "candidates: ")
	assert.Contains(t, out, "fix: xcmcp persistence enable [dir]")
	assert.Contains(t, out, "4 ok, 2 warnings, 0 errors")
}
