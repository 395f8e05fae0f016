// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// RoomID is a Matrix room ID such as "!abc123:example.org". Halyard
// never mints room IDs: they arrive from /sync or from the user and are
// parsed here at the boundary.
type RoomID struct {
	id string
}

// ParseRoomID validates raw as "!opaque:server". The session layer
// reports a failure here as an invalid room.
func ParseRoomID(raw string) (RoomID, error) {
	if _, _, err := roomSigil.parse(raw); err != nil {
		return RoomID{}, err
	}
	return RoomID{id: raw}, nil
}

// MustParseRoomID is ParseRoomID for known-valid input; it panics on
// error.
func MustParseRoomID(raw string) RoomID {
	roomSigil.mustParse(raw)
	return RoomID{id: raw}
}

func (r RoomID) String() string { return r.id }

// IsZero reports whether r is unset.
func (r RoomID) IsZero() bool { return r.id == "" }

// MarshalText encodes r as its string form. /sync keys joined rooms by
// room ID, which this makes decodable straight into map[RoomID].
func (r RoomID) MarshalText() ([]byte, error) { return []byte(r.id), nil }

// UnmarshalText parses data; empty input yields the zero value.
func (r *RoomID) UnmarshalText(data []byte) error { return roomSigil.unmarshal(data, &r.id) }
