package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "dev"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

// Short returns only the semantic version string. Builds without ldflags
// fall back to the module version recorded by `go install`.
func Short() string {
	if Version != "dev" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return Version
}

// Full returns a human-readable version string with commit, build time and Go version.
func Full() string {
	return fmt.Sprintf("last-changed %s, commit: %s, built at: %s, %s",
		Short(), Commit, BuildTime, runtime.Version())
}

// Fields returns the build metadata as logger key-value pairs.
func Fields() []any {
	return []any{"version", Short(), "commit", Commit, "build_time", BuildTime}
}
