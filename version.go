package request

import (
	"fmt"
	"runtime"
)

var (
	// Version is the library semantic version (injected at build time optionally).
	Version = "v0.3.0"
	// GitCommit is the git SHA (inject via -ldflags at build time).
	GitCommit = "unknown"
	// BuildDate is the build timestamp (inject via -ldflags).
	BuildDate = "unknown"
	// GoVersion records the Go toolchain version used.
	GoVersion = runtime.Version()
)

// BuildInfo describes the running build.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// GetBuildInfo returns the build metadata printed by the CLI.
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
	}
}

// GetVersion returns a human-readable version string.
func GetVersion() string {
	info := GetBuildInfo()
	return fmt.Sprintf("backstage-request %s (commit: %s, built: %s, go: %s)",
		info.Version, info.Commit, info.BuildDate, info.GoVersion)
}
