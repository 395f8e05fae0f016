// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds bounded I/O helpers shared by the homeserver
// transport and the local socket.
//
// Response bodies are read through ReadResponse, which caps reads at
// MaxResponseSize so a misbehaving server cannot exhaust memory. Error
// bodies included in diagnostics are shortened by ErrorBody.
package netutil

import (
	"io"
	"unicode/utf8"
)

// MaxResponseSize bounds JSON API response reads. An initial /sync for
// a large account is the biggest legitimate body and stays well below it.
const MaxResponseSize int64 = 64 << 20

// maxErrorBody is the number of bytes of a non-JSON error body kept in
// an error message.
const maxErrorBody = 512

// ReadResponse reads a JSON API response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// ErrorBody renders an unexpected response body for an error message,
// truncated to a readable length on a rune boundary.
func ErrorBody(data []byte) string {
	if len(data) <= maxErrorBody {
		return string(data)
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut]) + "..."
}
