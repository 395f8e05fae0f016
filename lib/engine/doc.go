// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine defines the contract between the desk session layer
// and the protocol engine that talks to the homeserver.
//
// The desk package only sees these interfaces and value types. The
// production implementation is matrixengine; tests substitute fakes.
// Nothing here performs I/O.
package engine
