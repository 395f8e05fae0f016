// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Build identifies one binary's build. The daemon reports its own in
// the "status" socket action.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	Dirty     bool   `json:"dirty,omitempty"`
}

// Current returns the build of the running binary.
func Current() Build {
	return Build{Version: Version, GitCommit: GitCommit, Dirty: GitDirty == "true"}
}

// String formats the build as "0.1.0 (abc1234-dirty)".
func (b Build) String() string {
	dirty := ""
	if b.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s)", b.Version, b.GitCommit, dirty)
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	return fmt.Sprintf("%s, %s", Current(), BuildTime)
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
