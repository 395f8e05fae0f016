// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"
	"strings"

	"github.com/halyard-chat/halyard/lib/ref"
)

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string         `json:"type"`
	Identifier               UserIdentifier `json:"identifier"`
	Password                 string         `json:"password"`
	DeviceID                 string         `json:"device_id,omitempty"`
	InitialDeviceDisplayName string         `json:"initial_device_display_name,omitempty"`
}

// UserIdentifier names the account in a login request.
type UserIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID   `json:"user_id"`
	AccessToken string       `json:"access_token"`
	DeviceID    ref.DeviceID `json:"device_id"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}

// MessageContent is the content body of an m.room.message event.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// Message types accepted in a room timeline.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeEmote  = "m.emote"
)

// Event types the transport and engine inspect.
const (
	EventTypeMessage   = "m.room.message"
	EventTypeEncrypted = "m.room.encrypted"
	EventTypeName      = "m.room.name"
	EventTypeTopic     = "m.room.topic"
)

// NewTextMessage creates a plain text message.
func NewTextMessage(body string) MessageContent {
	return MessageContent{
		MsgType: MsgTypeText,
		Body:    body,
	}
}

// Event is a room event as delivered by /sync or /messages. Content is
// kept raw; callers decode it according to Type.
type Event struct {
	EventID        ref.EventID     `json:"event_id"`
	Type           string          `json:"type"`
	Sender         ref.UserID      `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts,omitempty"`
	Content        json.RawMessage `json:"content"`
	StateKey       *string         `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned  `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age             int64           `json:"age,omitempty"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	RedactedBecause json.RawMessage `json:"redacted_because,omitempty"`
}

// ToDeviceEvent is an event sent directly to this device, outside any
// room. Verification messages travel this way.
type ToDeviceEvent struct {
	Type    string          `json:"type"`
	Sender  ref.UserID      `json:"sender"`
	Content json.RawMessage `json:"content"`
}

// AccountDataEvent is one global account data entry from /sync.
type AccountDataEvent struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// RoomMessagesOptions controls pagination for room message fetching.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means "from now"
	Direction string // "b" (backward/older) or "f" (forward/newer)
	Limit     int    // max events to return; 0 uses server default
}

// RoomMessagesResponse is returned by RoomMessages. End is empty when
// there is no more history in the requested direction.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end,omitempty"`
	Chunk []Event `json:"chunk"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
	FullState  bool
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch   string             `json:"next_batch"`
	Rooms       RoomsSection       `json:"rooms"`
	ToDevice    ToDeviceSection    `json:"to_device"`
	AccountData AccountDataSection `json:"account_data"`
	DeviceLists DeviceLists        `json:"device_lists"`
}

// RoomsSection contains per-room sync data grouped by membership state.
// Map keys are room IDs; encoding/json uses ref.RoomID's TextUnmarshaler
// for validation at deserialization.
type RoomsSection struct {
	Join  map[ref.RoomID]JoinedRoom `json:"join,omitempty"`
	Leave map[ref.RoomID]LeftRoom   `json:"leave,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// LeftRoom contains sync data for a room the user has left.
type LeftRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// ToDeviceSection lists the to-device events delivered in one sync.
type ToDeviceSection struct {
	Events []ToDeviceEvent `json:"events"`
}

// AccountDataSection lists global account data changed since the last sync.
type AccountDataSection struct {
	Events []AccountDataEvent `json:"events"`
}

// DeviceLists names users whose device lists changed since the last sync.
type DeviceLists struct {
	Changed []ref.UserID `json:"changed,omitempty"`
	Left    []ref.UserID `json:"left,omitempty"`
}

// SendEventResponse is returned by SendMessage and SendEvent.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// DeviceKeys are the identity keys a device publishes through
// /keys/upload. Keys maps "<algorithm>:<device_id>" to unpadded base64.
type DeviceKeys struct {
	UserID     string                       `json:"user_id"`
	DeviceID   string                       `json:"device_id"`
	Algorithms []string                     `json:"algorithms"`
	Keys       map[string]string            `json:"keys"`
	Signatures map[string]map[string]string `json:"signatures,omitempty"`
	Unsigned   *DeviceKeysUnsigned          `json:"unsigned,omitempty"`

	// Raw is the object as received, set by UnmarshalJSON. Signatures
	// are verified over Raw so fields this client does not model stay
	// covered.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the keys and keeps the raw object.
func (k *DeviceKeys) UnmarshalJSON(data []byte) error {
	type plain DeviceKeys
	if err := json.Unmarshal(data, (*plain)(k)); err != nil {
		return err
	}
	k.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// DeviceKeysUnsigned carries data the server attaches to device keys.
type DeviceKeysUnsigned struct {
	DeviceDisplayName string `json:"device_display_name,omitempty"`
}

// CrossSigningKey is a master, self-signing or user-signing public key.
type CrossSigningKey struct {
	UserID     string                       `json:"user_id"`
	Usage      []string                     `json:"usage"`
	Keys       map[string]string            `json:"keys"`
	Signatures map[string]map[string]string `json:"signatures,omitempty"`

	// Raw is the object as received, set by UnmarshalJSON.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the key and keeps the raw object.
func (k *CrossSigningKey) UnmarshalJSON(data []byte) error {
	type plain CrossSigningKey
	if err := json.Unmarshal(data, (*plain)(k)); err != nil {
		return err
	}
	k.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// PublicKey returns the single ed25519 key of a cross-signing key and
// its key ID ("ed25519:<public key>").
func (k CrossSigningKey) PublicKey() (keyID, publicKey string, ok bool) {
	for id, value := range k.Keys {
		if strings.HasPrefix(id, "ed25519:") {
			return id, value, true
		}
	}
	return "", "", false
}

// Cross-signing key usages.
const (
	UsageMaster      = "master"
	UsageSelfSigning = "self_signing"
	UsageUserSigning = "user_signing"
)

// UploadKeysRequest is the body of /keys/upload. Only device keys are
// uploaded; this client publishes no one-time keys.
type UploadKeysRequest struct {
	DeviceKeys *DeviceKeys `json:"device_keys,omitempty"`
}

// UploadKeysResponse is returned by UploadKeys.
type UploadKeysResponse struct {
	OneTimeKeyCounts map[string]int `json:"one_time_key_counts"`
}

// QueryKeysRequest is the body of /keys/query. An empty device list for
// a user requests all of that user's devices.
type QueryKeysRequest struct {
	DeviceKeys map[string][]string `json:"device_keys"`
	Timeout    int                 `json:"timeout,omitempty"`
}

// QueryKeysResponse is returned by QueryKeys.
type QueryKeysResponse struct {
	DeviceKeys      map[string]map[string]DeviceKeys `json:"device_keys"`
	MasterKeys      map[string]CrossSigningKey       `json:"master_keys,omitempty"`
	SelfSigningKeys map[string]CrossSigningKey       `json:"self_signing_keys,omitempty"`
	UserSigningKeys map[string]CrossSigningKey       `json:"user_signing_keys,omitempty"`
	Failures        map[string]json.RawMessage       `json:"failures,omitempty"`
}

// UploadSignaturesResponse is returned by UploadSignatures. Failures is
// keyed by user ID then key ID.
type UploadSignaturesResponse struct {
	Failures map[string]map[string]MatrixError `json:"failures,omitempty"`
}
