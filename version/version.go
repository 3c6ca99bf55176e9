// Package version holds build-time identifiers. Each var is overridden
// by the release build via -ldflags; the zero values below are what a
// `go build` with no flags reports.
package version

import "runtime"

var (
	// GitRelease is the tagged release this binary was built from.
	GitRelease = "dev"
	// GitCommit is the commit hash this binary was built from.
	GitCommit = "unknown"
	// GitCommitDate is the commit's timestamp.
	GitCommitDate = "unknown"
)

// GoInfo reports the Go runtime version used to build this binary.
var GoInfo = runtime.Version()
