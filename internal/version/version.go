// Package version holds build metadata injected with -ldflags, for example
//
//	go build -buildmode=c-shared -ldflags "-X github.com/MeKo-Tech/spotit/internal/version.Version=1.2.0" ./cmd/libspotit
package version

import (
	"fmt"
	"strings"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version, commit and build date.
func Info() (string, string, string) {
	return Version, GitCommit, BuildDate
}

// Short returns the version with any ':' replaced, so it can lead a
// colon-separated status line without shifting the field count.
func Short() string {
	v := strings.TrimSpace(Version)
	if v == "" {
		return "unknown"
	}
	return strings.ReplaceAll(v, ":", ".")
}

// String returns a human-readable one-liner for CLI output.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}
