// Package version holds build information, set via ldflags at release time.
package version

var (
	// Version is the current tidyarr version.
	Version = "dev"
	// Commit is the git commit the binary was built from.
	Commit = "none"
	// Date is the build date.
	Date = "unknown"
)
