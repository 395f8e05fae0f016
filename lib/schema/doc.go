// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema is the contract between halyard-daemon and its
// clients: the socket action names and the request and response
// structures of each action.
//
// Requests carry `cbor` tags; they only ever cross the socket.
// Responses carry `json` tags because the CLI prints them verbatim
// with --json, and lib/codec falls back to `json` tags for CBOR.
//
// Secrets in requests (password, recovery key) are []byte so the
// daemon can zero its copy once it has moved the value into a
// secret.Buffer.
//
// This package depends on no other Halyard packages except lib/version.
package schema
