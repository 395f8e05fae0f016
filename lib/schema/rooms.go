// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Room is one joined room. Name falls back to the room ID.
type Room struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
	Topic  string `json:"topic,omitempty"`
}

// RoomList answers ActionListRooms.
type RoomList struct {
	Rooms []Room `json:"rooms"`
}

// FetchMessagesRequest is the body of ActionFetchMessages. From is a
// cursor from an earlier page; empty starts at the newest event.
// Older continues from the cursor the daemon remembers for Room and
// ignores From.
type FetchMessagesRequest struct {
	Room     string `cbor:"room"`
	PageSize int    `cbor:"page_size,omitempty"`
	From     string `cbor:"from,omitempty"`
	Older    bool   `cbor:"older,omitempty"`
}

// Message is one displayable timeline entry. Timestamp is in
// milliseconds since the epoch.
type Message struct {
	EventID   string `json:"event_id"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// MessagePage answers ActionFetchMessages, oldest message first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"has_more"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// SendMessageRequest is the body of ActionSendMessage.
type SendMessageRequest struct {
	Room string `cbor:"room"`
	Body string `cbor:"body"`
}

// SendMessageResponse answers ActionSendMessage.
type SendMessageResponse struct {
	EventID string `json:"event_id"`
}
