// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the parts of the Matrix client-server API a
// desktop E2EE client needs.
//
// [Client] is unauthenticated: it holds the homeserver URL and HTTP
// transport, probes the server with ServerVersions, and turns a
// password login into a [Session]. A Session carries the access token
// in mmap-backed secret.Buffer memory and covers sync (rooms, to-device
// events, account data, device list changes), room history with
// pagination, message sending, to-device sending, device and
// cross-signing key upload and query, signature upload, account data
// reads, and logout.
//
// All API errors are returned as [*MatrixError] carrying the Matrix
// error code (M_FORBIDDEN, M_UNKNOWN_TOKEN, ...) and the HTTP status.
// [IsMatrixError] tests for a specific code. Request URLs are built by
// string concatenation with url.PathEscape on each dynamic segment.
package messaging
