// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Halyard-daemon owns the single Matrix session of the desktop user
// and serves it to the halyard CLI over a Unix socket.
//
// Startup loads the configuration (--config or HALYARD_CONFIG, then
// built-in defaults), creates the data directories, and listens on
// daemon.socket_path with owner-only permissions. Every session
// operation is one socket action (see lib/schema); failures travel as
// "<Kind>: <message>" so clients can tell a peer that is still
// catching up from a terminal error.
//
// While a session is logged in, a background loop syncs every
// daemon.sync_interval so verification requests and room changes
// arrive without a client asking. The loop idles while logged out.
//
// Room message decryption is not built in: the engine runs with a
// keyless decryptor, so encrypted room events are always reported as
// unable to decrypt and shown with the "[Encrypted]" placeholder.
// Session login, device verification, cross-signing and recovery key
// restore work in full.
//
// SIGINT and SIGTERM stop the listener, wait for in-flight requests,
// and close the engine. The session stays on disk; logging out is an
// explicit action.
package main
