// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Socket actions served by halyard-daemon.
const (
	// ActionStatus reports daemon liveness, build and session state.
	// It never fails.
	ActionStatus = "status"

	ActionLogin        = "login"
	ActionCheckSession = "check-session"
	ActionLogout       = "logout"
	ActionSync         = "sync"

	ActionListRooms     = "list-rooms"
	ActionFetchMessages = "fetch-messages"
	ActionSendMessage   = "send-message"

	ActionCheckVerificationStatus = "check-verification-status"
	ActionRequestVerification     = "request-verification"
	ActionGetVerificationEmoji    = "get-verification-emoji"
	ActionConfirmVerification     = "confirm-verification"
	ActionCancelVerification      = "cancel-verification"
	ActionVerifyWithRecoveryKey   = "verify-with-recovery-key"
)
