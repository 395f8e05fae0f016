// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// sigil describes one kind of Matrix identifier.
type sigil struct {
	prefix byte
	name   string

	// scoped identifiers carry ":server" after the local part.
	scoped bool
}

var (
	userSigil  = sigil{prefix: '@', name: "user ID", scoped: true}
	roomSigil  = sigil{prefix: '!', name: "room ID", scoped: true}
	eventSigil = sigil{prefix: '$', name: "event ID"}
)

// parse checks raw against the sigil and returns the local part and
// server (empty for unscoped identifiers).
//
// Event IDs in room version 4 and later are "$" plus an unpadded
// base64 hash and may themselves contain ':' characters, so unscoped
// identifiers are never split.
func (s sigil) parse(raw string) (local, server string, err error) {
	if raw == "" {
		return "", "", fmt.Errorf("empty %s", s.name)
	}
	if raw[0] != s.prefix {
		return "", "", fmt.Errorf("%s must start with %q: %q", s.name, s.prefix, raw)
	}
	body := raw[1:]
	if !s.scoped {
		if body == "" {
			return "", "", fmt.Errorf("%s has nothing after %q", s.name, s.prefix)
		}
		return body, "", nil
	}

	local, server, found := strings.Cut(body, ":")
	switch {
	case !found:
		return "", "", fmt.Errorf("%s missing ':server' suffix: %q", s.name, raw)
	case local == "":
		return "", "", fmt.Errorf("%s has empty local part: %q", s.name, raw)
	case server == "":
		return "", "", fmt.Errorf("%s has empty server name: %q", s.name, raw)
	}
	for i := 0; i < len(server); i++ {
		if c := server[i]; c <= ' ' || c == '@' || c == '#' || c == '!' || c == '$' {
			return "", "", fmt.Errorf("%s %q: invalid server character at position %d", s.name, raw, i)
		}
	}
	return local, server, nil
}

// mustParse panics when raw does not parse. Used by the Must*
// constructors for test fixtures and constants.
func (s sigil) mustParse(raw string) {
	if _, _, err := s.parse(raw); err != nil {
		panic(fmt.Sprintf("ref: %v", err))
	}
}

// unmarshal is the shared UnmarshalText body: empty input is the zero
// value, anything else must parse.
func (s sigil) unmarshal(data []byte, id *string) error {
	if len(data) == 0 {
		*id = ""
		return nil
	}
	raw := string(data)
	if _, _, err := s.parse(raw); err != nil {
		return err
	}
	*id = raw
	return nil
}
