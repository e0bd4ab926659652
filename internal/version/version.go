// Package version carries build metadata stamped through -ldflags on the
// variables below. Unstamped binaries report a local dev build.
package version

var (
	// Version is the semantic version, e.g. "1.0.0".
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String renders "version (commit) built time" for startup logs.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
