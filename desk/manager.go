// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/halyard-chat/halyard/lib/clock"
	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/poll"
	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/lib/secret"
)

// Default polling policies of the verification flow.
var (
	// DefaultEmojiPolicy gives the engine one second to derive the
	// emoji before GetVerificationEmoji reports EmojiNotReady.
	DefaultEmojiPolicy = poll.Policy{Interval: time.Second, MaxAttempts: 1}

	// DefaultCompletionPolicy waits up to ten seconds for the peer to
	// finish after ConfirmVerification.
	DefaultCompletionPolicy = poll.Policy{Interval: 500 * time.Millisecond, MaxAttempts: 20}
)

// Config configures a Manager.
type Config struct {
	// DataRoot holds one session directory per account. Required.
	DataRoot string

	// Connector builds the protocol engine for each login. Required.
	Connector engine.Connector

	// Clock drives the verification polling. Nil uses the real clock.
	Clock clock.Clock

	// EmojiPolicy and CompletionPolicy override the defaults when
	// MaxAttempts is non-zero.
	EmojiPolicy      poll.Policy
	CompletionPolicy poll.Policy

	Logger *slog.Logger
}

// SessionInfo describes the logged-in session.
type SessionInfo struct {
	UserID        ref.UserID
	DeviceID      ref.DeviceID
	HomeserverURL string
	SessionDir    string
}

// RoomSummary is one joined room. Name falls back to the room ID.
type RoomSummary struct {
	RoomID string
	Name   string
	Topic  string
}

// activeSession is the content of the session slot. It is immutable
// once published; identity comparison tells whether the slot changed.
type activeSession struct {
	engine engine.Engine
	info   SessionInfo
}

// Manager owns the single active session. It is safe for concurrent
// use.
type Manager struct {
	dataRoot         string
	connector        engine.Connector
	clock            clock.Clock
	emojiPolicy      poll.Policy
	completionPolicy poll.Policy
	logger           *slog.Logger

	mu      sync.RWMutex
	session *activeSession
	flow    verificationFlow
	cursors map[ref.RoomID]string
}

// NewManager validates config and returns a logged-out Manager.
func NewManager(config Config) (*Manager, error) {
	if config.DataRoot == "" {
		return nil, errors.New("desk: DataRoot is required")
	}
	if config.Connector == nil {
		return nil, errors.New("desk: Connector is required")
	}
	manager := &Manager{
		dataRoot:         config.DataRoot,
		connector:        config.Connector,
		clock:            config.Clock,
		emojiPolicy:      DefaultEmojiPolicy,
		completionPolicy: DefaultCompletionPolicy,
		logger:           config.Logger,
		cursors:          make(map[ref.RoomID]string),
	}
	if manager.clock == nil {
		manager.clock = clock.Real()
	}
	if manager.logger == nil {
		manager.logger = slog.Default()
	}
	if config.EmojiPolicy.MaxAttempts != 0 {
		manager.emojiPolicy = config.EmojiPolicy
	}
	if config.CompletionPolicy.MaxAttempts != 0 {
		manager.completionPolicy = config.CompletionPolicy
	}
	if err := manager.emojiPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("desk: emoji policy: %w", err)
	}
	if err := manager.completionPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("desk: completion policy: %w", err)
	}
	return manager, nil
}

// Login authenticates username on homeserverURL inside a fresh session
// directory and runs the initial sync. The new session is published
// only after every step succeeded; on failure no session is installed
// and the directory is gone.
func (m *Manager) Login(ctx context.Context, homeserverURL, username string, password *secret.Buffer) (SessionInfo, error) {
	homeserverURL = strings.TrimSpace(homeserverURL)
	username = strings.TrimSpace(username)
	if homeserverURL == "" || username == "" || password == nil || password.Len() == 0 {
		return SessionInfo{}, newError(InvalidInput, "All fields are required")
	}
	if !strings.HasPrefix(homeserverURL, "http://") && !strings.HasPrefix(homeserverURL, "https://") {
		return SessionInfo{}, newError(InvalidInput, "Homeserver URL must start with http:// or https://")
	}
	path, err := sessionDirPath(m.dataRoot, username)
	if err != nil {
		return SessionInfo{}, wrapError(InvalidInput, "Invalid username", err)
	}

	// Logging in again as the same account replaces its directory, so
	// the session living in it cannot survive the attempt.
	m.mu.Lock()
	var displaced *activeSession
	if m.session != nil && m.session.info.SessionDir == path {
		displaced = m.session
		m.clearLocked()
	}
	m.mu.Unlock()
	if displaced != nil {
		m.logger.Info("replacing session of the same account", "user_id", displaced.info.UserID)
		if err := displaced.engine.Close(); err != nil {
			m.logger.Warn("closing replaced session failed", "error", err)
		}
	}

	dir, err := acquireSessionDir(path)
	if err != nil {
		return SessionInfo{}, wrapError(LoginFailed, "Failed to prepare session directory", err)
	}
	fail := func(message string, err error, opened engine.Engine) error {
		var cleanup []error
		if opened != nil {
			cleanup = append(cleanup, opened.Close())
		}
		cleanup = append(cleanup, dir.Release())
		return wrapError(LoginFailed, message, errors.Join(append([]error{err}, cleanup...)...))
	}

	connected, err := m.connector.Connect(ctx, engine.ConnectOptions{
		HomeserverURL: homeserverURL,
		StoreDir:      dir.Path(),
		Logger:        m.logger,
	})
	if err != nil {
		return SessionInfo{}, fail("Failed to connect", err, nil)
	}
	account, err := connected.Login(ctx, username, password)
	if err != nil {
		return SessionInfo{}, fail("Login failed", err, connected)
	}
	if err := connected.Sync(ctx); err != nil {
		return SessionInfo{}, fail("Initial sync failed", err, connected)
	}
	dir.Commit()

	info := SessionInfo{
		UserID:        account.UserID,
		DeviceID:      account.DeviceID,
		HomeserverURL: homeserverURL,
		SessionDir:    dir.Path(),
	}
	m.mu.Lock()
	previous := m.session
	m.clearLocked()
	m.session = &activeSession{engine: connected, info: info}
	m.mu.Unlock()

	if previous != nil {
		m.retire(previous)
	}
	m.logger.Info("logged in",
		"user_id", info.UserID,
		"device_id", info.DeviceID,
		"homeserver", homeserverURL,
	)
	return info, nil
}

// retire releases a session that was replaced by a login to another
// account. Its server-side device stays; only local state goes.
func (m *Manager) retire(previous *activeSession) {
	if err := previous.engine.Close(); err != nil {
		m.logger.Warn("closing previous session failed", "user_id", previous.info.UserID, "error", err)
	}
	if err := os.RemoveAll(previous.info.SessionDir); err != nil {
		m.logger.Error("removing previous session directory failed",
			"path", previous.info.SessionDir,
			"error", err,
		)
	}
}

// CheckSession returns the logged-in account, if any.
func (m *Manager) CheckSession() (ref.UserID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return ref.UserID{}, false
	}
	return m.session.info.UserID, true
}

// Session returns the full description of the logged-in session.
func (m *Manager) Session() (SessionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return SessionInfo{}, false
	}
	return m.session.info, true
}

// Logout invalidates the server-side session and clears all local
// state. Local state is cleared and the session directory removed even
// when the server refuses; that case returns a LogoutIncomplete error
// wrapping the server's answer. Logging out while logged out succeeds.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	current := m.session
	m.mu.RUnlock()

	var serverErr error
	if current != nil {
		serverErr = current.engine.Logout(ctx)
	}

	// A login may have replaced the session while the server call ran.
	// The new session stays, and so does its directory when it reuses
	// the path of the one being logged out.
	m.mu.Lock()
	if m.session == current {
		m.clearLocked()
	}
	removeDir := current != nil && (m.session == nil || m.session.info.SessionDir != current.info.SessionDir)
	m.mu.Unlock()

	if current == nil {
		return nil
	}
	var cleanupErrs []error
	if err := current.engine.Close(); err != nil {
		cleanupErrs = append(cleanupErrs, err)
	}
	if removeDir {
		if err := os.RemoveAll(current.info.SessionDir); err != nil {
			cleanupErrs = append(cleanupErrs, fmt.Errorf("removing session directory: %w", err))
		}
	}

	switch {
	case serverErr != nil:
		m.logger.Warn("server-side logout failed; local session cleared",
			"user_id", current.info.UserID,
			"error", serverErr,
		)
		return wrapError(LogoutIncomplete, "Local session cleared but the server logout failed",
			errors.Join(append([]error{serverErr}, cleanupErrs...)...))
	case len(cleanupErrs) > 0:
		return wrapError(LogoutIncomplete, "Logged out but local session files could not be removed",
			errors.Join(cleanupErrs...))
	}
	m.logger.Info("logged out", "user_id", current.info.UserID)
	return nil
}

// Close releases the active session's engine without contacting the
// server and leaves the Manager logged out. The session directory
// stays; the next login of the same account replaces it.
func (m *Manager) Close() error {
	m.mu.Lock()
	current := m.session
	m.clearLocked()
	m.mu.Unlock()
	if current == nil {
		return nil
	}
	return current.engine.Close()
}

// clearLocked empties the session slot and everything tied to it.
// Callers hold mu for writing.
func (m *Manager) clearLocked() {
	m.session = nil
	m.flow = verificationFlow{}
	m.cursors = make(map[ref.RoomID]string)
}

// current returns the session slot or a NotLoggedIn error.
func (m *Manager) current() (*activeSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, newError(NotLoggedIn, "Not logged in")
	}
	return m.session, nil
}

// Sync runs one blocking sync pass.
func (m *Manager) Sync(ctx context.Context) error {
	session, err := m.current()
	if err != nil {
		return err
	}
	if err := session.engine.Sync(ctx); err != nil {
		return engineError(SyncFailed, "Sync failed", err)
	}
	return nil
}

// ListRooms returns the joined rooms known after the last sync.
func (m *Manager) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	session, err := m.current()
	if err != nil {
		return nil, err
	}
	rooms, err := session.engine.Rooms(ctx)
	if err != nil {
		return nil, engineError(SyncFailed, "Failed to list rooms", err)
	}
	summaries := make([]RoomSummary, len(rooms))
	for i, room := range rooms {
		name := room.Name
		if name == "" {
			name = room.RoomID.String()
		}
		summaries[i] = RoomSummary{RoomID: room.RoomID.String(), Name: name, Topic: room.Topic}
	}
	return summaries, nil
}

// SendMessage posts body as a text message to room.
func (m *Manager) SendMessage(ctx context.Context, room, body string) (ref.EventID, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return ref.EventID{}, newError(InvalidInput, "Message body is required")
	}
	session, roomID, err := m.knownRoom(ctx, room)
	if err != nil {
		return ref.EventID{}, err
	}
	eventID, err := session.engine.Send(ctx, roomID, body)
	if err != nil {
		return ref.EventID{}, engineError(SendFailed, "Failed to send message", err)
	}
	return eventID, nil
}

// knownRoom parses room and checks that the session has joined it.
func (m *Manager) knownRoom(ctx context.Context, room string) (*activeSession, ref.RoomID, error) {
	session, err := m.current()
	if err != nil {
		return nil, ref.RoomID{}, err
	}
	roomID, err := ref.ParseRoomID(strings.TrimSpace(room))
	if err != nil {
		return nil, ref.RoomID{}, wrapError(InvalidRoom, "Invalid room ID", err)
	}
	known, err := session.engine.HasRoom(ctx, roomID)
	if err != nil {
		return nil, ref.RoomID{}, engineError(SyncFailed, "Failed to look up room", err)
	}
	if !known {
		return nil, ref.RoomID{}, newError(RoomNotFound, "Room not found")
	}
	return session, roomID, nil
}

// VerifyWithRecoveryKey cross-signs this device using the account's
// recovery key.
func (m *Manager) VerifyWithRecoveryKey(ctx context.Context, recoveryKey *secret.Buffer) error {
	if recoveryKey == nil || len(bytes.TrimSpace(recoveryKey.Bytes())) == 0 {
		return newError(InvalidInput, "Recovery key is required")
	}
	session, err := m.current()
	if err != nil {
		return err
	}
	if err := session.engine.Recover(ctx, recoveryKey); err != nil {
		return engineError(RecoveryFailed, "Failed to verify with recovery key", err)
	}
	m.logger.Info("device verified with recovery key", "user_id", session.info.UserID)
	return nil
}

// engineError wraps an engine failure. An engine that lost its login
// underneath us reports NotLoggedIn rather than the operation's kind.
func engineError(kind Kind, message string, err error) *Error {
	if errors.Is(err, engine.ErrNotLoggedIn) {
		return wrapError(NotLoggedIn, "Not logged in", err)
	}
	return wrapError(kind, message, err)
}
