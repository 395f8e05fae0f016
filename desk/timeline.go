// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"slices"

	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/messaging"
)

const (
	// DefaultPageSize is the page size used when the caller passes none.
	DefaultPageSize = 20

	// EncryptedSender and EncryptedBody stand in for events whose room
	// key has not arrived yet.
	EncryptedSender = "[Encrypted]"
	EncryptedBody   = "🔒 Waiting for encryption keys..."

	emotePrefix = "* "
)

// Message is one displayable timeline entry. Timestamp is in
// milliseconds since the epoch and zero when the server gave none.
type Message struct {
	EventID   string
	Sender    string
	Body      string
	Timestamp int64
}

// MessagePage is one page of history in chronological order. NextCursor
// continues backward from the oldest message of the page.
type MessagePage struct {
	Messages   []Message
	HasMore    bool
	NextCursor string
}

// FetchMessages returns one backward page of room history starting at
// fromCursor, or at the newest event when fromCursor is empty.
// pageSize is a hint to the server; filtering can return fewer
// messages than events fetched.
func (m *Manager) FetchMessages(ctx context.Context, room string, pageSize int, fromCursor string) (MessagePage, error) {
	session, roomID, err := m.knownRoom(ctx, room)
	if err != nil {
		return MessagePage{}, err
	}
	return m.fetchPage(ctx, session, roomID, pageSize, fromCursor)
}

// FetchOlderMessages continues from the cursor the last fetch of room
// returned. Without a previous fetch it starts at the newest event;
// after the oldest page it returns an empty page.
func (m *Manager) FetchOlderMessages(ctx context.Context, room string, pageSize int) (MessagePage, error) {
	session, roomID, err := m.knownRoom(ctx, room)
	if err != nil {
		return MessagePage{}, err
	}
	m.mu.RLock()
	cursor, fetched := m.cursors[roomID]
	m.mu.RUnlock()
	if fetched && cursor == "" {
		return MessagePage{Messages: []Message{}}, nil
	}
	return m.fetchPage(ctx, session, roomID, pageSize, cursor)
}

func (m *Manager) fetchPage(ctx context.Context, session *activeSession, roomID ref.RoomID, pageSize int, fromCursor string) (MessagePage, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	page, err := session.engine.Messages(ctx, roomID, engine.MessagesOptions{
		From:  fromCursor,
		Limit: pageSize,
	})
	if err != nil {
		return MessagePage{}, engineError(FetchFailed, "Failed to fetch messages", err)
	}

	messages := make([]Message, 0, len(page.Events))
	for _, event := range page.Events {
		if message, ok := toMessage(event); ok {
			messages = append(messages, message)
		}
	}
	// The server delivers newest first.
	slices.Reverse(messages)

	result := MessagePage{
		Messages:   messages,
		HasMore:    page.End != "" && len(page.Events) > 0,
		NextCursor: page.End,
	}

	m.mu.Lock()
	if m.session == session {
		if result.HasMore {
			m.cursors[roomID] = page.End
		} else {
			m.cursors[roomID] = ""
		}
	}
	m.mu.Unlock()

	m.logger.Debug("fetched messages",
		"room_id", roomID,
		"events", len(page.Events),
		"messages", len(messages),
		"has_more", result.HasMore,
	)
	return result, nil
}

// toMessage projects a classified event. Undecryptable events always
// produce a placeholder; other events produce a message only for text,
// notice and emote content.
func toMessage(event engine.TimelineEvent) (Message, bool) {
	message := Message{
		EventID:   event.EventID.String(),
		Sender:    event.Sender.String(),
		Timestamp: event.Timestamp,
	}
	switch event.State {
	case engine.UnableToDecrypt:
		message.Sender = EncryptedSender
		message.Body = EncryptedBody
		return message, true
	case engine.Decrypted, engine.PlainText:
		if event.Type != messaging.EventTypeMessage {
			return Message{}, false
		}
		switch event.MsgType {
		case messaging.MsgTypeText, messaging.MsgTypeNotice:
			message.Body = event.Body
		case messaging.MsgTypeEmote:
			message.Body = emotePrefix + event.Body
		default:
			return Message{}, false
		}
		return message, true
	default:
		return Message{}, false
	}
}
