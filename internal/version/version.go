// Package version holds build information stamped in at link time.
package version

// Version is the release tag, set via -ldflags on release builds.
var Version = "dev"

// Commit is the git commit the binary was built from.
var Commit = "unknown"

// String returns the version string shown by --version.
func String() string {
	if Commit == "unknown" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
