// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the local socket protocol between
// halyard-daemon and its clients, plus the scaffolding the daemon
// binary is assembled from.
//
// The protocol is one CBOR request per connection on a Unix socket.
// The request is a CBOR map with an "action" field and action-specific
// fields; the response is a [Response] envelope:
//
//	{ok: true, data: <cbor>}
//	{ok: false, error: "<message>"}
//
// [SocketServer] dispatches requests to registered [ActionFunc]
// handlers. [Client] opens one connection per [Client.Call] and
// returns a [*RemoteError] when the daemon answered ok=false, so
// callers can tell a refused operation from an unreachable daemon.
//
// The socket is created with mode 0600: the daemon holds one user's
// logged-in session and nobody else may drive it.
//
// [Bootstrap] loads configuration, applies command-line overrides and
// builds the logger. [RunLoop] repeats a step (the background sync)
// with exponential backoff on failure until its context ends.
package service
