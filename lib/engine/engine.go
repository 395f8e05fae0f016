// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/lib/secret"
)

var (
	// ErrVerificationNotFound is returned by Engine.VerificationRequest
	// when the engine has no flow with the given id.
	ErrVerificationNotFound = errors.New("engine: verification request not found")

	// ErrSASUnsupported is returned by StartSAS when the peer did not
	// offer the emoji SAS method.
	ErrSASUnsupported = errors.New("engine: peer does not support SAS verification")

	// ErrCrossSigningUnavailable is returned by CrossSigningStatus when
	// the account has no published cross-signing identity.
	ErrCrossSigningUnavailable = errors.New("engine: cross-signing not available")

	// ErrNotLoggedIn is returned by operations that need an
	// authenticated engine.
	ErrNotLoggedIn = errors.New("engine: not logged in")
)

// ConnectOptions configure a new engine connection.
type ConnectOptions struct {
	// HomeserverURL is the base URL of the homeserver.
	HomeserverURL string

	// StoreDir is the session directory the engine owns for its
	// encrypted credentials and state database. It exists and is empty.
	StoreDir string

	Logger *slog.Logger
}

// Connector builds unauthenticated engines.
type Connector interface {
	Connect(ctx context.Context, options ConnectOptions) (Engine, error)
}

// Account identifies the logged-in device.
type Account struct {
	UserID   ref.UserID
	DeviceID ref.DeviceID
}

// Engine is one homeserver connection bound to one session directory.
// Methods other than Login and Close fail with ErrNotLoggedIn before a
// successful Login.
type Engine interface {
	// Login authenticates with a password and creates a new device.
	Login(ctx context.Context, username string, password *secret.Buffer) (Account, error)

	// Sync runs one blocking synchronization pass.
	Sync(ctx context.Context) error

	// Rooms lists the joined rooms known after the last sync.
	Rooms(ctx context.Context) ([]RoomSummary, error)

	// HasRoom reports whether roomID is a joined room known to the engine.
	HasRoom(ctx context.Context, roomID ref.RoomID) (bool, error)

	// Messages fetches one page of room history.
	Messages(ctx context.Context, roomID ref.RoomID, options MessagesOptions) (Page, error)

	// Send posts a plain text message and returns its event ID.
	Send(ctx context.Context, roomID ref.RoomID, body string) (ref.EventID, error)

	// Devices lists every device of the logged-in account, including
	// the current one, in the order the key server reports them.
	Devices(ctx context.Context) ([]Device, error)

	// RequestVerification sends a verification request to one of the
	// account's other devices.
	RequestVerification(ctx context.Context, device Device) (VerificationRequest, error)

	// VerificationRequest returns the tracked flow with the given id
	// after refreshing to-device state, or ErrVerificationNotFound.
	VerificationRequest(ctx context.Context, flowID string) (VerificationRequest, error)

	// CrossSigningStatus reports the account's cross-signing state as
	// seen by the key server.
	CrossSigningStatus(ctx context.Context) (CrossSigningStatus, error)

	// Recover verifies this device with the account's recovery key.
	Recover(ctx context.Context, recoveryKey *secret.Buffer) error

	// Logout invalidates the device's credentials on the homeserver.
	Logout(ctx context.Context) error

	// Close releases in-memory secrets and open files. The engine is
	// unusable afterwards.
	Close() error
}

// VerificationRequest is one device verification flow. The state
// accessors report what the engine knew at the last refresh.
type VerificationRequest interface {
	FlowID() string

	// Refresh pulls pending verification events from the homeserver.
	Refresh(ctx context.Context) error

	// IsReady reports whether the peer accepted the request.
	IsReady() bool

	// IsDone reports whether both sides confirmed and exchanged done.
	IsDone() bool

	// IsCancelled reports whether either side cancelled the flow.
	IsCancelled() bool

	// StartSAS begins the emoji exchange, or returns the exchange
	// already in progress, including one the peer started.
	StartSAS(ctx context.Context) (SAS, error)

	// Cancel aborts the flow and notifies the peer.
	Cancel(ctx context.Context) error
}

// SAS is the short authentication string exchange inside a flow.
type SAS interface {
	// Accept answers a peer-initiated start. It does nothing when this
	// device started the exchange or already accepted.
	Accept(ctx context.Context) error

	// Emoji returns the seven emoji once both sides' keys are known.
	// ok is false while the exchange has not got that far.
	Emoji() (emoji []Emoji, ok bool)

	// Confirm records that the user matched the emoji and sends this
	// device's MAC.
	Confirm(ctx context.Context) error
}
