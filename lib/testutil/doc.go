// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Halyard packages.
//
// [SocketDir] creates a short temporary directory in /tmp for Unix
// domain sockets. Socket paths are limited to 108 bytes (sun_path in
// sockaddr_un) and t.TempDir() paths, which embed the test name, can
// exceed it.
//
// [RequireReceive] and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. Tests
// that exercise polling drive a clock.FakeClock; these helpers are the
// only real wall-clock timeouts in the test suite.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation (transaction IDs, event IDs, flow IDs).
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
