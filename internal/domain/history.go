package domain

// ArchivedBuild is a build result kept in the durable archive.
type ArchivedBuild struct {
	ProjectPath string `json:"project_path"`
	BuildMetrics
}
