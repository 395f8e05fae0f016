// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// UserID is a Matrix user ID such as "@alice:example.org". Only the
// structure is checked; localpart character rules are the
// homeserver's business.
type UserID struct {
	id string
}

// ParseUserID validates raw as "@localpart:server".
func ParseUserID(raw string) (UserID, error) {
	if _, _, err := userSigil.parse(raw); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// MustParseUserID is ParseUserID for known-valid input; it panics on
// error.
func MustParseUserID(raw string) UserID {
	userSigil.mustParse(raw)
	return UserID{id: raw}
}

func (u UserID) String() string { return u.id }

// IsZero reports whether u is unset.
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the part between '@' and the first ':'. Empty for
// the zero value.
func (u UserID) Localpart() string {
	local, _, _ := userSigil.parse(u.id)
	return local
}

// Server returns the homeserver name after the first ':', port
// included. Empty for the zero value.
func (u UserID) Server() string {
	_, server, _ := userSigil.parse(u.id)
	return server
}

// MarshalText encodes u as its string form, so a UserID works as a
// JSON map key (the /keys/query response is keyed by user).
func (u UserID) MarshalText() ([]byte, error) { return []byte(u.id), nil }

// UnmarshalText parses data; empty input yields the zero value.
func (u *UserID) UnmarshalText(data []byte) error { return userSigil.unmarshal(data, &u.id) }
