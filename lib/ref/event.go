// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventID is a Matrix event ID. Modern room versions use "$hash", older
// ones "$opaque:server"; both are treated as opaque after the '$'.
type EventID struct {
	id string
}

// ParseEventID validates raw as '$' followed by at least one character.
func ParseEventID(raw string) (EventID, error) {
	if _, _, err := eventSigil.parse(raw); err != nil {
		return EventID{}, err
	}
	return EventID{id: raw}, nil
}

// MustParseEventID is ParseEventID for known-valid input; it panics on
// error.
func MustParseEventID(raw string) EventID {
	eventSigil.mustParse(raw)
	return EventID{id: raw}
}

func (e EventID) String() string { return e.id }

// IsZero reports whether e is unset.
func (e EventID) IsZero() bool { return e.id == "" }

func (e EventID) MarshalText() ([]byte, error) { return []byte(e.id), nil }

// UnmarshalText parses data; empty input yields the zero value.
func (e *EventID) UnmarshalText(data []byte) error { return eventSigil.unmarshal(data, &e.id) }
