package version

import "fmt"

// These variables are set at build time via ldflags.
var (
	Version   = "0.0.0-dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the version with build metadata.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, shortCommit(), BuildTime)
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
