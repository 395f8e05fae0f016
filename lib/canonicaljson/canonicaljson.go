// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package canonicaljson produces the deterministic JSON encoding that
// Matrix signs and hashes: object keys sorted, no insignificant
// whitespace, UTF-8 emitted unescaped. Key uploads, cross-signing
// signature checks, and SAS commitments all go through it.
//
// The encoding is RFC 8785 (JCS), which coincides with Matrix canonical
// JSON for the integer-only payloads Matrix allows.
package canonicaljson

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Marshal encodes v as canonical JSON.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal: %w", err)
	}
	return Transform(raw)
}

// Transform re-encodes an existing JSON document canonically.
func Transform(raw []byte) ([]byte, error) {
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: transform: %w", err)
	}
	return canonical, nil
}

// SigningBytes returns the bytes a Matrix signature covers: the
// canonical encoding of the object v with its top-level "signatures"
// and "unsigned" members removed. v must encode as a JSON object.
func SigningBytes(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicaljson: marshal: %w", err)
	}
	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, fmt.Errorf("canonicaljson: signed value is not a JSON object: %w", err)
	}
	delete(object, "signatures")
	delete(object, "unsigned")
	return Marshal(object)
}
