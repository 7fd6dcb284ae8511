// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X ai-labeller/internal/version.Version=...".
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("ai-labeller %s (commit: %s, built: %s, go: %s)",
		Version, GitCommit, BuildTime, runtime.Version())
}
