// Package version holds build metadata injected with -ldflags -X.
package version

// Build metadata. Defaults apply to untagged local builds.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
