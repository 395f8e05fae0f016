// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package sas implements the cryptography of Matrix short
// authentication string verification (m.sas.v1): the ephemeral
// Curve25519 key agreement, the start-event commitment, the SAS bytes
// and the emoji and decimal renderings derived from them, and the
// hkdf-hmac-sha256.v2 MACs exchanged once both users have compared the
// emoji.
//
// The package also defines the to-device event contents of the
// protocol. It holds no flow state; driving the handshake is the
// engine's job.
package sas
