package domain

import "time"

// DefaultBuildConfiguration is used when nothing better is known.
const DefaultBuildConfiguration = "Debug"

// ProjectKind distinguishes .xcodeproj from .xcworkspace inputs.
type ProjectKind string

const (
	ProjectKindProject   ProjectKind = "project"
	ProjectKindWorkspace ProjectKind = "workspace"
)

// ProjectDescriptor is what xcodebuild -list reports for a project or workspace.
type ProjectDescriptor struct {
	Name           string      `json:"name"`
	Kind           ProjectKind `json:"kind"`
	Schemes        []string    `json:"schemes"`
	Targets        []string    `json:"targets,omitempty"`
	Configurations []string    `json:"configurations,omitempty"`
}

// HasScheme reports whether name is a declared scheme.
func (d ProjectDescriptor) HasScheme(name string) bool {
	for _, s := range d.Schemes {
		if s == name {
			return true
		}
	}
	return false
}

// BuildConfig is a set of xcodebuild arguments worth remembering.
type BuildConfig struct {
	Scheme        string `json:"scheme"`
	Configuration string `json:"configuration"`
	Destination   string `json:"destination,omitempty"`
	SDK           string `json:"sdk,omitempty"`
}

// ProjectRecord is the cached state for one project path.
type ProjectRecord struct {
	Path                 string            `json:"path"`
	LastModified         time.Time         `json:"last_modified"`
	Descriptor           ProjectDescriptor `json:"descriptor"`
	PreferredScheme      string            `json:"preferred_scheme,omitempty"`
	LastSuccessfulConfig *BuildConfig      `json:"last_successful_config,omitempty"`
}

// BuildMetrics is one recorded build outcome.
type BuildMetrics struct {
	Timestamp       time.Time      `json:"timestamp"`
	Config          BuildConfig    `json:"config"`
	Success         bool           `json:"success"`
	Duration        *time.Duration `json:"duration,omitempty"`
	ErrorCount      int            `json:"error_count"`
	WarningCount    int            `json:"warning_count"`
	OutputSizeBytes int            `json:"output_size_bytes"`
}

// PerformanceTrends summarises a project's retained build history.
type PerformanceTrends struct {
	TotalBuilds          int            `json:"total_builds"`
	SuccessRate          float64        `json:"success_rate"`
	AvgBuildTime         *time.Duration `json:"avg_build_time,omitempty"`
	RecentErrorCount     int            `json:"recent_error_count"`
	BuildTimeImprovement *float64       `json:"build_time_improvement,omitempty"`
}

// DependencySnapshot holds the raw contents of the dependency lock files.
// A nil field means the file was absent or unreadable.
type DependencySnapshot struct {
	LastChecked      time.Time `json:"last_checked"`
	PackageResolved  *string   `json:"package_resolved,omitempty"`
	PodfileLock      *string   `json:"podfile_lock,omitempty"`
	CartfileResolved *string   `json:"cartfile_resolved,omitempty"`
}

// ProjectCacheStats reports the project cache state.
type ProjectCacheStats struct {
	ProjectCount      int           `json:"project_count"`
	BuildHistoryCount int           `json:"build_history_count"`
	DependencyCount   int           `json:"dependency_count"`
	MaxAge            time.Duration `json:"max_age"`
	DependencyTTL     time.Duration `json:"dependency_ttl"`
}

// BuildOutputSummary is the marker scan of a build log.
type BuildOutputSummary struct {
	ErrorCount   int
	WarningCount int
	SizeBytes    int
}
