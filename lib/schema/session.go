// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "github.com/halyard-chat/halyard/lib/version"

// LoginRequest is the body of ActionLogin.
type LoginRequest struct {
	HomeserverURL string `cbor:"homeserver_url"`
	Username      string `cbor:"username"`
	Password      []byte `cbor:"password"`
}

// SessionStatus answers ActionLogin and ActionCheckSession. Only
// LoggedIn is set when no session is active.
type SessionStatus struct {
	LoggedIn      bool   `json:"logged_in"`
	UserID        string `json:"user_id,omitempty"`
	DeviceID      string `json:"device_id,omitempty"`
	HomeserverURL string `json:"homeserver_url,omitempty"`
}

// DaemonStatus answers ActionStatus.
type DaemonStatus struct {
	Build         version.Build `json:"build"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	Session       SessionStatus `json:"session"`

	// LastSync is the time of the last successful background sync in
	// milliseconds since the epoch, zero before the first one.
	LastSync int64 `json:"last_sync,omitempty"`
}
