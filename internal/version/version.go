// Package version carries build metadata injected with -ldflags, falling back
// to the VCS stamp the Go toolchain embeds.
package version

import "runtime/debug"

var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

// Info is the resolved build metadata.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
}

// Current returns the ldflags values, filling gaps from the embedded build info.
func Current() Info {
	info := Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	return fillFromBuild(info, build)
}

func fillFromBuild(info Info, build *debug.BuildInfo) Info {
	if info.Version == "dev" && build.Main.Version != "" && build.Main.Version != "(devel)" {
		info.Version = build.Main.Version
	}
	for _, s := range build.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}
