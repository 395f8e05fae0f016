// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/messaging"
)

// Rooms lists the joined rooms recorded by previous sync passes.
func (e *Engine) Rooms(ctx context.Context) ([]engine.RoomSummary, error) {
	if _, err := e.currentSession(); err != nil {
		return nil, err
	}
	stored, err := e.store.Rooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("matrixengine: %w", err)
	}
	summaries := make([]engine.RoomSummary, 0, len(stored))
	for _, room := range stored {
		roomID, err := ref.ParseRoomID(room.RoomID)
		if err != nil {
			e.logger.Warn("skipping malformed stored room", "room_id", room.RoomID, "error", err)
			continue
		}
		summaries = append(summaries, engine.RoomSummary{
			RoomID: roomID,
			Name:   room.Name,
			Topic:  room.Topic,
		})
	}
	return summaries, nil
}

// HasRoom reports whether roomID is among the stored joined rooms.
func (e *Engine) HasRoom(ctx context.Context, roomID ref.RoomID) (bool, error) {
	rooms, err := e.Rooms(ctx)
	if err != nil {
		return false, err
	}
	for _, room := range rooms {
		if room.RoomID == roomID {
			return true, nil
		}
	}
	return false, nil
}

// Messages fetches one backward page of history and classifies every
// event by decryption state. Events keep the server's order.
func (e *Engine) Messages(ctx context.Context, roomID ref.RoomID, options engine.MessagesOptions) (engine.Page, error) {
	session, err := e.currentSession()
	if err != nil {
		return engine.Page{}, err
	}
	response, err := session.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
		From:      options.From,
		Direction: "b",
		Limit:     options.Limit,
	})
	if err != nil {
		return engine.Page{}, err
	}

	page := engine.Page{
		Events: make([]engine.TimelineEvent, 0, len(response.Chunk)),
		End:    response.End,
	}
	for _, event := range response.Chunk {
		page.Events = append(page.Events, e.classify(ctx, roomID, event))
	}
	return page, nil
}

func (e *Engine) classify(ctx context.Context, roomID ref.RoomID, event messaging.Event) engine.TimelineEvent {
	classified := engine.TimelineEvent{
		EventID:   event.EventID,
		State:     engine.PlainText,
		Sender:    event.Sender,
		Type:      event.Type,
		Timestamp: event.OriginServerTS,
	}
	content := event.Content

	if event.Type == messaging.EventTypeEncrypted {
		decrypted, err := e.decryptor.Decrypt(ctx, roomID, event)
		if err != nil {
			if !errors.Is(err, ErrMissingKeys) {
				e.logger.Debug("event decryption failed",
					"room_id", roomID,
					"event_id", event.EventID,
					"error", err,
				)
			}
			classified.State = engine.UnableToDecrypt
			classified.Type = ""
			return classified
		}
		classified.State = engine.Decrypted
		classified.Type = decrypted.Type
		classified.Sender = decrypted.Sender
		content = decrypted.Content
	}

	if classified.Type == messaging.EventTypeMessage {
		var message messaging.MessageContent
		if json.Unmarshal(content, &message) == nil {
			classified.MsgType = message.MsgType
			classified.Body = message.Body
		}
	}
	return classified
}

// Send posts body as an m.text message.
func (e *Engine) Send(ctx context.Context, roomID ref.RoomID, body string) (ref.EventID, error) {
	session, err := e.currentSession()
	if err != nil {
		return ref.EventID{}, err
	}
	return session.SendMessage(ctx, roomID, messaging.NewTextMessage(body))
}
