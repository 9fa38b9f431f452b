package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ericvoltolin/xc-mcp/internal/app"
	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/cli/helpers"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/projectcache"
)

// NewProjectCommand creates the project command with all subcommands
func NewProjectCommand(container *app.Container) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Inspect cached project state and build history",
	}

	projectCmd.AddCommand(
		newProjectInfoCommand(container),
		newProjectConfigCommand(container),
		newProjectRecordCommand(container),
		newProjectHistoryCommand(container),
		newProjectTrendsCommand(container),
		newProjectDepsCommand(container),
		newProjectStatsCommand(container),
		newProjectClearCommand(container),
	)

	return projectCmd
}

func newProjectInfoCommand(container *app.Container) *cobra.Command {
	var force, asJSON bool

	cmd := &cobra.Command{
		Use:   "info <path>",
		Short: "Show schemes, targets and configurations of a project or workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := container.Projects.ProjectInfo(cmd.Context(), args[0], force)
			if err != nil {
				return fmt.Errorf("failed to read project: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return helpers.PrintJSON(out, record)
			}
			displayProjectRecord(out, record)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "List the project again even if unchanged")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newProjectConfigCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "config <path>",
		Short: "Show the build configuration to use next",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ok, err := container.Projects.PreferredBuildConfig(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to resolve build config: %w", err)
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "Project declares no schemes.")
				return nil
			}
			displayBuildConfig(out, cfg)
			return nil
		},
	}
}

func newProjectRecordCommand(container *app.Container) *cobra.Command {
	var (
		cfg        domain.BuildConfig
		success    bool
		duration   time.Duration
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "record <path>",
		Short: "Record the outcome of a build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(cfg.Scheme) == "" {
				return fmt.Errorf(ErrSchemeRequired)
			}
			if cfg.Configuration == "" {
				cfg.Configuration = domain.DefaultBuildConfiguration
			}
			result := domain.BuildMetrics{Success: success}
			if cmd.Flags().Changed("duration") {
				took := duration
				result.Duration = &took
			}
			if outputFile != "" {
				data, err := os.ReadFile(outputFile)
				if err != nil {
					return fmt.Errorf("failed to read build output: %w", err)
				}
				summary := projectcache.ScanBuildOutput(string(data))
				result.ErrorCount = summary.ErrorCount
				result.WarningCount = summary.WarningCount
				result.OutputSizeBytes = summary.SizeBytes
			}
			if err := container.Projects.RecordBuildResult(args[0], cfg, result); err != nil {
				return fmt.Errorf("failed to record build: %w", err)
			}
			outcome := "failed"
			if success {
				outcome = "succeeded"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s build of %s (%d errors, %d warnings)\n",
				outcome, cfg.Scheme, result.ErrorCount, result.WarningCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Scheme, "scheme", "", "Scheme that was built")
	cmd.Flags().StringVar(&cfg.Configuration, "configuration", domain.DefaultBuildConfiguration, "Build configuration")
	cmd.Flags().StringVar(&cfg.Destination, "destination", "", "xcodebuild -destination value")
	cmd.Flags().StringVar(&cfg.SDK, "sdk", "", "xcodebuild -sdk value")
	cmd.Flags().BoolVar(&success, "success", false, "Whether the build succeeded")
	cmd.Flags().DurationVar(&duration, "duration", 0, "How long the build took")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "Build log to scan for errors and warnings")
	_ = cmd.MarkFlagRequired("success")
	return cmd
}

func newProjectHistoryCommand(container *app.Container) *cobra.Command {
	var (
		limit    int
		archived bool
	)

	cmd := &cobra.Command{
		Use:   "history <path>",
		Short: "Show recent builds, most recent first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf(ErrInvalidLimit)
			}
			out := cmd.OutOrStdout()
			if archived {
				records, err := container.Projects.ArchivedHistory(args[0], limit)
				if err != nil {
					return fmt.Errorf("failed to read build archive: %w", err)
				}
				builds := make([]domain.BuildMetrics, 0, len(records))
				for _, r := range records {
					builds = append(builds, r.BuildMetrics)
				}
				displayBuildHistory(out, builds)
				return nil
			}
			builds, err := container.Projects.BuildHistory(args[0], limit)
			if err != nil {
				return fmt.Errorf("failed to read build history: %w", err)
			}
			displayBuildHistory(out, builds)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", DefaultHistoryLimit, "Number of builds to show")
	cmd.Flags().BoolVar(&archived, "archived", false, "Read from the durable archive instead of the in-memory ring")
	return cmd
}

func newProjectTrendsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "trends <path>",
		Short: "Summarise build performance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trends, err := container.Projects.PerformanceTrends(args[0])
			if err != nil {
				return fmt.Errorf("failed to compute trends: %w", err)
			}
			displayTrends(cmd.OutOrStdout(), trends)
			return nil
		},
	}
}

func newProjectDepsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <path>",
		Short: "Show which dependency lock files are present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := container.Projects.DependencyInfo(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to read dependencies: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked: %s\n", helpers.FormatAge(&snap.LastChecked))
			displayLockFile(out, "Package.resolved", snap.PackageResolved)
			displayLockFile(out, "Podfile.lock", snap.PodfileLock)
			displayLockFile(out, "Cartfile.resolved", snap.CartfileResolved)
			return nil
		},
	}
}

func newProjectStatsCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show project cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := container.Projects.Stats()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Projects: %d\n", stats.ProjectCount)
			fmt.Fprintf(out, "Builds retained: %d\n", stats.BuildHistoryCount)
			fmt.Fprintf(out, "Dependency snapshots: %d\n", stats.DependencyCount)
			fmt.Fprintf(out, "Max age: %s\n", stats.MaxAge)
			fmt.Fprintf(out, "Dependency TTL: %s\n", stats.DependencyTTL)
			return nil
		},
	}
}

func newProjectClearCommand(container *app.Container) *cobra.Command {
	var archive bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop cached project records, build history and dependency snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			container.Projects.Clear()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, MsgProjectsCleared)
			if !archive {
				return nil
			}
			if container.Archive == nil {
				return fmt.Errorf("build archive unavailable")
			}
			if err := container.Archive.Clear(); err != nil {
				return fmt.Errorf("failed to clear build archive: %w", err)
			}
			fmt.Fprintf(out, "Build archive cleared (%s).\n", container.Archive.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&archive, "archive", false, "Also delete every archived build")
	return cmd
}

func displayProjectRecord(out io.Writer, record domain.ProjectRecord) {
	d := record.Descriptor
	fmt.Fprintf(out, "%s (%s)\n", d.Name, d.Kind)
	fmt.Fprintf(out, "Path: %s\n", record.Path)
	fmt.Fprintf(out, "Schemes: %s\n", joinOrPlaceholder(d.Schemes))
	if d.Kind == domain.ProjectKindProject {
		fmt.Fprintf(out, "Targets: %s\n", joinOrPlaceholder(d.Targets))
		fmt.Fprintf(out, "Configurations: %s\n", joinOrPlaceholder(d.Configurations))
	}
	if record.LastSuccessfulConfig != nil {
		fmt.Fprintln(out, "Last successful build:")
		displayBuildConfig(out, *record.LastSuccessfulConfig)
	}
}

func displayBuildConfig(out io.Writer, cfg domain.BuildConfig) {
	fmt.Fprintf(out, "  scheme: %s\n", cfg.Scheme)
	fmt.Fprintf(out, "  configuration: %s\n", cfg.Configuration)
	if cfg.Destination != "" {
		fmt.Fprintf(out, "  destination: %s\n", cfg.Destination)
	}
	if cfg.SDK != "" {
		fmt.Fprintf(out, "  sdk: %s\n", cfg.SDK)
	}
}

func displayBuildHistory(out io.Writer, builds []domain.BuildMetrics) {
	if len(builds) == 0 {
		fmt.Fprintln(out, MsgNoBuildsRecorded)
		return
	}
	for _, b := range builds {
		status := "OK  "
		if !b.Success {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%s %s %s/%s %s errors=%d warnings=%d\n",
			b.Timestamp.Format(time.DateTime), status, b.Config.Scheme, b.Config.Configuration,
			helpers.FormatDuration(b.Duration), b.ErrorCount, b.WarningCount)
	}
}

func displayTrends(out io.Writer, t domain.PerformanceTrends) {
	fmt.Fprintf(out, "Builds: %d\n", t.TotalBuilds)
	fmt.Fprintf(out, "Success rate: %s\n", helpers.FormatPercent(t.SuccessRate))
	fmt.Fprintf(out, "Average build time: %s\n", helpers.FormatDuration(t.AvgBuildTime))
	fmt.Fprintf(out, "Errors in recent builds: %d\n", t.RecentErrorCount)
	if t.BuildTimeImprovement != nil {
		fmt.Fprintf(out, "Build time improvement: %.1f%%\n", *t.BuildTimeImprovement)
	} else {
		fmt.Fprintln(out, "Build time improvement: -")
	}
}

func displayLockFile(out io.Writer, name string, content *string) {
	if content == nil {
		fmt.Fprintf(out, "%-18s absent\n", name)
		return
	}
	fmt.Fprintf(out, "%-18s %s\n", name, helpers.FormatBytes(int64(len(*content))))
}

func joinOrPlaceholder(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
