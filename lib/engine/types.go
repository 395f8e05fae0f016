// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/halyard-chat/halyard/lib/ref"
)

// RoomSummary describes one joined room. Name and Topic are empty when
// the room has no such state.
type RoomSummary struct {
	RoomID ref.RoomID
	Name   string
	Topic  string
}

// Device is one device of the logged-in account.
type Device struct {
	DeviceID    ref.DeviceID
	DisplayName string
}

// Emoji is one SAS emoji with its English description.
type Emoji struct {
	Symbol      string
	Description string
}

// CrossSigningStatus is the account's cross-signing state.
type CrossSigningStatus struct {
	HasMaster      bool
	HasSelfSigning bool
	HasUserSigning bool

	// DeviceSigned is true when this device carries a valid signature
	// from the account's self-signing key.
	DeviceSigned bool
}

// IsComplete reports whether all cross-signing keys are published and
// this device is signed by them.
func (s CrossSigningStatus) IsComplete() bool {
	return s.HasMaster && s.HasSelfSigning && s.HasUserSigning && s.DeviceSigned
}

// MessagesOptions select one page of room history. The engine always
// paginates backward (newest first).
type MessagesOptions struct {
	// From is a cursor from a previous page. Empty starts at the most
	// recent event.
	From string

	// Limit is a hint; the server may return more or fewer events.
	Limit int
}

// Page is one page of raw timeline events, newest first, as delivered
// by the homeserver.
type Page struct {
	Events []TimelineEvent

	// End is the cursor for the next older page. Empty at the start of
	// history.
	End string
}

// DecryptionState classifies a timeline event by how its content was
// obtained.
type DecryptionState int

const (
	// PlainText events were never encrypted.
	PlainText DecryptionState = iota

	// Decrypted events were encrypted and the engine holds the keys.
	Decrypted

	// UnableToDecrypt events were encrypted and the keys are missing.
	UnableToDecrypt
)

// String returns the state's name.
func (s DecryptionState) String() string {
	switch s {
	case PlainText:
		return "plaintext"
	case Decrypted:
		return "decrypted"
	case UnableToDecrypt:
		return "unable_to_decrypt"
	default:
		return "unknown"
	}
}

// TimelineEvent is one event of a page. For UnableToDecrypt events only
// EventID, Sender and Timestamp are meaningful.
type TimelineEvent struct {
	EventID ref.EventID
	State   DecryptionState

	// Sender is the authenticated sender for Decrypted events and the
	// event's stated sender otherwise.
	Sender ref.UserID

	// Type is the event type after decryption (m.room.message, ...).
	Type string

	// MsgType and Body are taken from m.room.message content. MsgType
	// is empty for redacted messages.
	MsgType string
	Body    string

	// Timestamp is origin_server_ts in milliseconds, zero when absent.
	Timestamp int64
}
