// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package statestore persists the non-secret half of an account's
// engine state in <session dir>/state.db: the sync token, the last
// known name and topic of each joined room, and the device list of
// the account as reported by the key server.
//
// Nothing stored here is confidential. Access tokens and private keys
// live in credstore.
package statestore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/halyard-chat/halyard/lib/sqlitepool"
)

// FileName is the database file inside the session directory.
const FileName = "state.db"

const schema = `
CREATE TABLE IF NOT EXISTS sync_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rooms (
	room_id TEXT PRIMARY KEY,
	name    TEXT NOT NULL DEFAULT '',
	topic   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS devices (
	user_id      TEXT NOT NULL,
	device_id    TEXT NOT NULL,
	ed25519      TEXT NOT NULL,
	curve25519   TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, device_id)
);
`

const syncTokenKey = "next_batch"

// Room is the cached summary of one joined room. Empty strings mean
// the room has no name or topic state.
type Room struct {
	RoomID string
	Name   string
	Topic  string
}

// Device is one device of a user as published through /keys/query.
type Device struct {
	UserID      string
	DeviceID    string
	Ed25519     string
	Curve25519  string
	DisplayName string
}

// Store is an open state database.
type Store struct {
	pool *sqlitepool.Pool
}

// Open opens or creates the state database in dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   filepath.Join(dir, FileName),
		Schema: schema,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("statestore: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

// SyncToken returns the stored next_batch token, or "" before the
// first sync.
func (s *Store) SyncToken(ctx context.Context) (string, error) {
	var token string
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT value FROM sync_state WHERE key = ?", &sqlitex.ExecOptions{
			Args: []any{syncTokenKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				token = stmt.ColumnText(0)
				return nil
			},
		})
	})
	if err != nil {
		return "", fmt.Errorf("statestore: reading sync token: %w", err)
	}
	return token, nil
}

// SetSyncToken records the token to resume the next sync from.
func (s *Store) SetSyncToken(ctx context.Context, token string) error {
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"INSERT INTO sync_state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
			&sqlitex.ExecOptions{Args: []any{syncTokenKey, token}})
	})
	if err != nil {
		return fmt.Errorf("statestore: writing sync token: %w", err)
	}
	return nil
}

// PutRooms inserts or updates room summaries in one transaction.
func (s *Store) PutRooms(ctx context.Context, rooms []Room) error {
	if len(rooms) == 0 {
		return nil
	}
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, room := range rooms {
			err := sqlitex.Execute(conn,
				`INSERT INTO rooms (room_id, name, topic) VALUES (?, ?, ?)
				 ON CONFLICT(room_id) DO UPDATE SET name = excluded.name, topic = excluded.topic`,
				&sqlitex.ExecOptions{Args: []any{room.RoomID, room.Name, room.Topic}})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("statestore: writing rooms: %w", err)
	}
	return nil
}

// RemoveRooms forgets rooms the account has left.
func (s *Store) RemoveRooms(ctx context.Context, roomIDs []string) error {
	if len(roomIDs) == 0 {
		return nil
	}
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, roomID := range roomIDs {
			if err := sqlitex.Execute(conn, "DELETE FROM rooms WHERE room_id = ?", &sqlitex.ExecOptions{Args: []any{roomID}}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("statestore: removing rooms: %w", err)
	}
	return nil
}

// Rooms returns every stored room ordered by room ID.
func (s *Store) Rooms(ctx context.Context) ([]Room, error) {
	var rooms []Room
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT room_id, name, topic FROM rooms ORDER BY room_id", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rooms = append(rooms, Room{
					RoomID: stmt.ColumnText(0),
					Name:   stmt.ColumnText(1),
					Topic:  stmt.ColumnText(2),
				})
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("statestore: reading rooms: %w", err)
	}
	return rooms, nil
}

// ReplaceDevices swaps the stored device list for userID with devices.
func (s *Store) ReplaceDevices(ctx context.Context, userID string, devices []Device) error {
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.Execute(conn, "DELETE FROM devices WHERE user_id = ?", &sqlitex.ExecOptions{Args: []any{userID}}); err != nil {
			return err
		}
		for _, device := range devices {
			err := sqlitex.Execute(conn,
				"INSERT INTO devices (user_id, device_id, ed25519, curve25519, display_name) VALUES (?, ?, ?, ?, ?)",
				&sqlitex.ExecOptions{Args: []any{userID, device.DeviceID, device.Ed25519, device.Curve25519, device.DisplayName}})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("statestore: writing devices for %s: %w", userID, err)
	}
	return nil
}

// Devices returns the stored devices of userID ordered by device ID.
func (s *Store) Devices(ctx context.Context, userID string) ([]Device, error) {
	var devices []Device
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT device_id, ed25519, curve25519, display_name FROM devices WHERE user_id = ? ORDER BY device_id",
			&sqlitex.ExecOptions{
				Args: []any{userID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					devices = append(devices, Device{
						UserID:      userID,
						DeviceID:    stmt.ColumnText(0),
						Ed25519:     stmt.ColumnText(1),
						Curve25519:  stmt.ColumnText(2),
						DisplayName: stmt.ColumnText(3),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("statestore: reading devices for %s: %w", userID, err)
	}
	return devices, nil
}

// Device looks up one stored device. The boolean is false when the
// device is unknown.
func (s *Store) Device(ctx context.Context, userID, deviceID string) (Device, bool, error) {
	var device Device
	found := false
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT ed25519, curve25519, display_name FROM devices WHERE user_id = ? AND device_id = ?",
			&sqlitex.ExecOptions{
				Args: []any{userID, deviceID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					device = Device{
						UserID:      userID,
						DeviceID:    deviceID,
						Ed25519:     stmt.ColumnText(0),
						Curve25519:  stmt.ColumnText(1),
						DisplayName: stmt.ColumnText(2),
					}
					return nil
				},
			})
	})
	if err != nil {
		return Device{}, false, fmt.Errorf("statestore: reading device %s/%s: %w", userID, deviceID, err)
	}
	return device, found, nil
}
