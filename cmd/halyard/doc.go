// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Halyard is the command-line client of halyard-daemon.
//
// Every command is one or a few socket actions against the daemon,
// which holds the Matrix session. Errors keep the daemon's error kind
// and map to distinct exit codes (see lib/cli), so scripts can retry
// a verification step that is waiting for the other device while
// giving up on a failed login.
//
// Secrets never appear on the command line: the password and the
// recovery key are read from the terminal without echo, or from a
// file (or "-" for stdin) named by --password-file and --key-file.
package main
