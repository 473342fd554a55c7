// Package version exposes build information stamped in via ldflags.
package version

import "runtime"

var (
	// Version is the semantic version or git describe output.
	Version = "dev"
	// Commit is the git commit hash of the build.
	Commit = "unknown"
	// BuildTime is the RFC3339 build timestamp.
	BuildTime = "unknown"
)

// Info is the version payload served on /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}
