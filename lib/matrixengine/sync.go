// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/halyard-chat/halyard/lib/statestore"
	"github.com/halyard-chat/halyard/messaging"
)

// syncFilter keeps sync responses small: the session layer reads room
// history through /messages, so sync only needs state and a short
// timeline tail for name and topic changes.
const syncFilter = `{"room":{"timeline":{"limit":10}},"presence":{"types":[]}}`

// Sync runs one non-waiting /sync pass from the stored token.
func (e *Engine) Sync(ctx context.Context) error {
	session, err := e.currentSession()
	if err != nil {
		return err
	}

	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	since, err := e.store.SyncToken(ctx)
	if err != nil {
		return fmt.Errorf("matrixengine: %w", err)
	}
	response, err := session.Sync(ctx, messaging.SyncOptions{
		Since:      since,
		SetTimeout: true,
		Timeout:    0,
		Filter:     syncFilter,
	})
	if err != nil {
		return err
	}

	if err := e.applyRooms(ctx, response.Rooms); err != nil {
		return err
	}
	e.applyToDevice(ctx, response.ToDevice.Events)
	if slices.Contains(response.DeviceLists.Changed, session.UserID()) {
		if _, err := e.refreshDevices(ctx, session); err != nil {
			e.logger.Warn("refreshing own device list failed", "error", err)
		}
	}

	if err := e.store.SetSyncToken(ctx, response.NextBatch); err != nil {
		return fmt.Errorf("matrixengine: %w", err)
	}
	e.logger.Debug("sync complete",
		"since", since,
		"next_batch", response.NextBatch,
		"joined_rooms", len(response.Rooms.Join),
		"to_device_events", len(response.ToDevice.Events),
	)
	return nil
}

// applyRooms merges name and topic changes into the stored summaries
// and forgets rooms that were left.
func (e *Engine) applyRooms(ctx context.Context, rooms messaging.RoomsSection) error {
	stored, err := e.store.Rooms(ctx)
	if err != nil {
		return fmt.Errorf("matrixengine: %w", err)
	}
	known := make(map[string]statestore.Room, len(stored))
	for _, room := range stored {
		known[room.RoomID] = room
	}

	updates := make([]statestore.Room, 0, len(rooms.Join))
	for roomID, joined := range rooms.Join {
		room, ok := known[roomID.String()]
		if !ok {
			room = statestore.Room{RoomID: roomID.String()}
		}
		// Timeline state events are newer than the state section.
		for _, event := range slices.Concat(joined.State.Events, joined.Timeline.Events) {
			applyRoomState(&room, event)
		}
		updates = append(updates, room)
	}
	if err := e.store.PutRooms(ctx, updates); err != nil {
		return fmt.Errorf("matrixengine: %w", err)
	}

	left := make([]string, 0, len(rooms.Leave))
	for roomID := range rooms.Leave {
		left = append(left, roomID.String())
	}
	if err := e.store.RemoveRooms(ctx, left); err != nil {
		return fmt.Errorf("matrixengine: %w", err)
	}
	return nil
}

func applyRoomState(room *statestore.Room, event messaging.Event) {
	if event.StateKey == nil || *event.StateKey != "" {
		return
	}
	switch event.Type {
	case messaging.EventTypeName:
		var content struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(event.Content, &content) == nil {
			room.Name = content.Name
		}
	case messaging.EventTypeTopic:
		var content struct {
			Topic string `json:"topic"`
		}
		if json.Unmarshal(event.Content, &content) == nil {
			room.Topic = content.Topic
		}
	}
}
