// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build information for the halyard and
// halyard-daemon binaries.
//
// Version information is injected at build time via -ldflags, for
// example:
//
//	go build -ldflags "-X github.com/halyard-chat/halyard/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// The variables default to "unknown" / "0.1.0-dev" in development
// builds and test runs.
//
// [Current] returns the running binary's [Build]. The daemon serves it
// on its socket so the CLI can [Compare] the two and warn about a stale
// daemon after an upgrade.
package version
