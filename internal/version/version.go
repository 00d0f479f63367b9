// Package version carries the build identity stamped into the byor and
// byord binaries at release time.
package version

import "fmt"

// Release builds override these via -ldflags "-X"; the defaults identify a
// local development build.
var (
	// Version is the semantic version of the binary.
	Version = "0.1.0"
	// Commit is the git commit hash the binary was built from.
	Commit = "dev"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Full returns the version string shown by `byor version` and
// `byord --version`.
func Full() string {
	return fmt.Sprintf("%s (commit:%s, built:%s)", Version, Commit, BuildDate)
}
