// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package version

import "strings"

// Diff describes how the CLI's build differs from the daemon's. The
// socket protocol is versioned with the binaries, so a mismatch can
// surface as unknown actions or missing response fields.
type Diff struct {
	// VersionChanged is true when the semantic versions differ.
	VersionChanged bool

	// CommitChanged is true when both commits are known and differ.
	// Unknown commits (development builds) never count as changed.
	CommitChanged bool
}

// Compare compares the CLI's build against the daemon's.
func Compare(cli, daemon Build) Diff {
	return Diff{
		VersionChanged: cli.Version != daemon.Version,
		CommitChanged: cli.GitCommit != "unknown" && daemon.GitCommit != "unknown" &&
			cli.GitCommit != daemon.GitCommit,
	}
}

// Mismatch reports whether the builds differ in a way worth warning
// about.
func (d Diff) Mismatch() bool {
	return d.VersionChanged || d.CommitChanged
}

// String lists what differs, or "identical".
func (d Diff) String() string {
	var parts []string
	if d.VersionChanged {
		parts = append(parts, "version")
	}
	if d.CommitChanged {
		parts = append(parts, "commit")
	}
	if len(parts) == 0 {
		return "identical"
	}
	return strings.Join(parts, ", ") + " differ"
}
