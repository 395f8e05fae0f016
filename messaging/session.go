// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/lib/secret"
)

// Session is an authenticated Matrix session for one device.
//
// The access token is stored in a secret.Buffer (mmap-backed, locked
// against swap, excluded from core dumps). The caller must call Close
// when the Session is no longer needed.
type Session struct {
	client      *Client
	accessToken *secret.Buffer
	userID      ref.UserID
	deviceID    ref.DeviceID

	// transactionCounter generates unique transaction IDs for idempotent sends.
	transactionCounter atomic.Int64
}

// UserID returns the fully-qualified Matrix user ID.
func (s *Session) UserID() ref.UserID {
	return s.userID
}

// DeviceID returns the device this session is bound to.
func (s *Session) DeviceID() ref.DeviceID {
	return s.deviceID
}

// HomeserverURL returns the homeserver the session talks to.
func (s *Session) HomeserverURL() string {
	return s.client.HomeserverURL()
}

// AccessToken returns the access token as a heap string. Use only at
// boundaries that need a string, such as sealing the session material.
func (s *Session) AccessToken() string {
	return s.accessToken.String()
}

// Close releases the access token memory. Idempotent.
func (s *Session) Close() error {
	if s.accessToken != nil {
		return s.accessToken.Close()
	}
	return nil
}

// Logout invalidates the access token on the homeserver and deletes
// the device. The local token buffer is not released; call Close.
func (s *Session) Logout(ctx context.Context) error {
	_, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/logout", s.accessToken, map[string]any{})
	if err != nil {
		return fmt.Errorf("messaging: logout failed: %w", err)
	}
	return nil
}

// SendMessage sends an m.room.message to a room. Returns the event ID.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, content MessageContent) (ref.EventID, error) {
	return s.SendEvent(ctx, roomID, EventTypeMessage, content)
}

// SendEvent sends a room event of any type. Returns the event ID.
func (s *Session) SendEvent(ctx context.Context, roomID ref.RoomID, eventType string, content any) (ref.EventID, error) {
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/%s/%s",
		url.PathEscape(roomID.String()),
		url.PathEscape(eventType),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content)
	if err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: send %s to %s failed: %w", eventType, roomID, err)
	}

	var response SendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.EventID{}, fmt.Errorf("messaging: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

// SendToDevice delivers one event type to specific devices. messages
// is keyed by user ID then device ID ("*" addresses every device of
// that user).
func (s *Session) SendToDevice(ctx context.Context, eventType string, messages map[string]map[string]any) error {
	path := fmt.Sprintf("/_matrix/client/v3/sendToDevice/%s/%s",
		url.PathEscape(eventType),
		url.PathEscape(s.nextTransactionID()),
	)
	request := map[string]any{"messages": messages}
	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, request); err != nil {
		return fmt.Errorf("messaging: send to-device %s failed: %w", eventType, err)
	}
	return nil
}

// RoomMessages fetches one page of a room's timeline.
func (s *Session) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/messages", url.PathEscape(roomID.String()))

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	direction := options.Direction
	if direction == "" {
		direction = "b" // backward (newest first) by default
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: room messages for %s failed: %w", roomID, err)
	}

	var response RoomMessagesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse messages response: %w", err)
	}
	return &response, nil
}

// Sync performs one /sync request.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}
	if options.FullState {
		query.Set("full_state", "true")
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// UploadKeys publishes this device's identity keys.
func (s *Session) UploadKeys(ctx context.Context, request UploadKeysRequest) (*UploadKeysResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/keys/upload", s.accessToken, request)
	if err != nil {
		return nil, fmt.Errorf("messaging: upload keys failed: %w", err)
	}

	var response UploadKeysResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse upload keys response: %w", err)
	}
	return &response, nil
}

// QueryKeys fetches device and cross-signing keys for the given users.
func (s *Session) QueryKeys(ctx context.Context, request QueryKeysRequest) (*QueryKeysResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/keys/query", s.accessToken, request)
	if err != nil {
		return nil, fmt.Errorf("messaging: query keys failed: %w", err)
	}

	var response QueryKeysResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse query keys response: %w", err)
	}
	return &response, nil
}

// UploadSignatures publishes signatures over device or cross-signing
// keys. signed is keyed by user ID then by device ID or key ID, each
// value being the signed key object. Per-key failures reported by the
// server are returned as an error.
func (s *Session) UploadSignatures(ctx context.Context, signed map[string]map[string]any) error {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/_matrix/client/v3/keys/signatures/upload", s.accessToken, signed)
	if err != nil {
		return fmt.Errorf("messaging: upload signatures failed: %w", err)
	}

	var response UploadSignaturesResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("messaging: failed to parse upload signatures response: %w", err)
	}
	var failures []error
	for userID, keys := range response.Failures {
		for keyID, failure := range keys {
			failures = append(failures, fmt.Errorf("messaging: signature for %s %s rejected: %w", userID, keyID, &failure))
		}
	}
	return errors.Join(failures...)
}

// GetAccountData fetches one global account data entry of the session's
// user. A missing entry is a *MatrixError with code M_NOT_FOUND.
func (s *Session) GetAccountData(ctx context.Context, eventType string) (json.RawMessage, error) {
	path := fmt.Sprintf("/_matrix/client/v3/user/%s/account_data/%s",
		url.PathEscape(s.userID.String()),
		url.PathEscape(eventType),
	)
	body, err := s.client.doRequest(ctx, http.MethodGet, path, s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: get account data %s failed: %w", eventType, err)
	}
	return json.RawMessage(body), nil
}

// nextTransactionID generates a unique transaction ID for idempotent sends.
// Format: "halyard-<timestamp_ms>-<counter>" to stay unique across restarts.
func (s *Session) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("halyard-%d-%d", time.Now().UnixMilli(), counter)
}
