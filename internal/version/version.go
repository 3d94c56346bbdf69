package version

import (
	"runtime"
	"time"
)

// Set with -ldflags "-X github.com/kvsview/kvsview/internal/version.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
	CommitID  = "unknown"
)

// builtAt renders an RFC 3339 BuildTime for humans and passes anything else through.
func builtAt() string {
	t, err := time.Parse(time.RFC3339, BuildTime)
	if err != nil {
		return BuildTime
	}
	return t.Format("Mon Jan 2 15:04:05 2006")
}

// Info is what `kvsview version` prints.
func Info() map[string]string {
	return map[string]string{
		"Version":       Version,
		"GoVersion":     runtime.Version(),
		"GitCommit":     CommitID,
		"BuildTime":     BuildTime,
		"FormattedTime": builtAt(),
		"OS":            runtime.GOOS,
		"Arch":          runtime.GOARCH,
	}
}
