// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds Halyard's CBOR configuration.
//
// JSON is the format of everything that faces the homeserver (the
// Matrix client-server API, canonical JSON for signatures). CBOR is
// the format of the local socket between halyard-daemon and its
// clients. This package gives both ends one encoder and decoder
// configuration: Core Deterministic Encoding (RFC 8949 §4.2) on the
// way out, string-keyed maps and TextUnmarshaler support on the way
// in, so typed identifiers from lib/ref cross the socket as strings.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct tags
//
// A `cbor` tag marks a type that only ever crosses the socket
// (request envelopes). A `json` tag marks a type that is also printed
// by the CLI's --json output; fxamacker/cbor falls back to `json`
// tags when `cbor` tags are absent, so one tag names the field in
// both formats. Never put both tags on one field.
package codec
