// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable Matrix identifiers:
// user IDs, room IDs, event IDs and device IDs.
//
// Every constructor validates its input and returns an error for
// malformed identifiers, so code past the parsing boundary never
// handles raw strings. Room IDs arriving from the local socket are
// parsed here; a parse failure is what the session layer reports as an
// invalid room.
//
// All types implement encoding.TextMarshaler and
// encoding.TextUnmarshaler, so they serialize as their canonical string
// in JSON and CBOR and can be used as JSON map keys (the /sync response
// keys its rooms and to-device targets by identifier).
package ref
