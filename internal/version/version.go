// Package version reports the build identity of the agentdesk binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Overridden at link time, e.g.
//
//	-ldflags "-X github.com/aihub/agentdesk/internal/version.Version=1.0.0
//	  -X github.com/aihub/agentdesk/internal/version.Commit=abc123
//	  -X github.com/aihub/agentdesk/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Get returns the linked values, falling back to the VCS stamp the Go
// toolchain embeds when the commit or date was not set by ldflags.
func Get() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	info, ok := readBuildInfo()
	if !ok {
		return b
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "unknown" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "unknown" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}

// String is the one-line form printed by `agentdesk version`.
func (b Build) String() string {
	commit := short(b.Commit)
	if b.Dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("agentdesk %s (commit %s, built %s, %s, %s)",
		b.Version, commit, b.Date, b.GoVersion, b.Platform)
}

// UserAgent is sent on outbound requests to FastGPT and proxied targets.
func UserAgent() string {
	return "agentdesk/" + Version
}

func short(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
