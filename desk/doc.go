// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package desk is the session layer of the Halyard daemon. A [Manager]
// owns the single logged-in homeserver session and everything tied to
// it: the session directory on disk, the per-room pagination cursors,
// and the one interactive verification flow this client tracks.
//
// The Manager reaches the homeserver only through an [engine.Engine]
// built by an injected [engine.Connector], so its tests run against a
// fake engine. Every failure is an [*Error] carrying a [Kind]; callers
// branch on the kind, and [Error.Transient] marks the two conditions
// (waiting for the peer, emoji not derived yet) that are worth polling.
//
// Locking: one RWMutex guards the session slot, the verification flow
// and the cursors. Network calls run on a snapshot of the slot taken
// under the read lock; results are written back only if the slot still
// holds the same session, so a logout racing a fetch never sees its
// state resurrected.
package desk
