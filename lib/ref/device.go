// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"errors"
	"fmt"
	"strings"
)

// DeviceID is a homeserver-assigned device identifier such as
// "ABCDEFGHIJ". It has no sigil or server part; the type keeps it from
// being mixed up with user IDs and access tokens.
type DeviceID struct {
	id string
}

// ParseDeviceID accepts any non-empty string without whitespace or
// control characters. Device IDs appear as JSON object keys in
// /keys/query and to-device payloads, so whitespace is never valid.
func ParseDeviceID(raw string) (DeviceID, error) {
	if raw == "" {
		return DeviceID{}, errors.New("empty device ID")
	}
	if i := strings.IndexFunc(raw, func(r rune) bool { return r <= ' ' || r == 0x7f }); i >= 0 {
		return DeviceID{}, fmt.Errorf("device ID %q: invalid character at position %d", raw, i)
	}
	return DeviceID{id: raw}, nil
}

func (d DeviceID) String() string { return d.id }

// IsZero reports whether d is unset.
func (d DeviceID) IsZero() bool { return d.id == "" }

// MarshalText refuses the zero value: an empty key in a to-device
// message map would address no device.
func (d DeviceID) MarshalText() ([]byte, error) {
	if d.id == "" {
		return nil, errors.New("cannot marshal zero DeviceID")
	}
	return []byte(d.id), nil
}

// UnmarshalText parses data; empty input yields the zero value.
func (d *DeviceID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*d = DeviceID{}
		return nil
	}
	parsed, err := ParseDeviceID(string(data))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
