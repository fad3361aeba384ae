// Package version holds build-time version information shared by the
// flamegen binaries. The variables are injected via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// String returns a multi-line version report for a named binary.
func String(binName string) string {
	return fmt.Sprintf("%s version %s\n  Git Commit: %s\n  Build Time: %s\n  Go Version: %s\n  OS/Arch: %s/%s\n",
		binName, Version, GitCommit, BuildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
