// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package matrixengine implements engine.Engine over the Matrix
// client-server API.
//
// An Engine owns one session directory. Secret material (access token,
// device keys) is sealed there by credstore; sync position, room
// summaries and the device key cache live beside it in the statestore
// database. Login creates a fresh device, uploads its self-signed
// identity keys and seals the result.
//
// Device verification follows the to-device m.key.verification.*
// protocol with the m.sas.v1 method: this device requests, the peer
// readies, either side starts, and the emoji come from the X25519
// shared secret (package sas). Both MACs and both done events are
// required before a flow reports done.
//
// Room events encrypted with Megolm go through a Decryptor. The default
// KeylessDecryptor reports every encrypted event as undecryptable.
package matrixengine
