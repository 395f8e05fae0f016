// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens small SQLite databases with a fixed set of
// pragmas and hands out connections from a zombiezen sqlitex pool.
//
// Every connection runs in WAL mode with synchronous=NORMAL and a
// five-second busy timeout. An optional schema script runs on each new
// connection, so it must be idempotent (CREATE ... IF NOT EXISTS).
//
// Connections are not safe for concurrent use: Take one, use it on a
// single goroutine, Put it back. [Pool.Write] wraps that dance in an
// immediate transaction for read-modify-write sequences.
package sqlitepool
