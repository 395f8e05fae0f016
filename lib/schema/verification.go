// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// VerificationStatus answers ActionCheckVerificationStatus. FlowID and
// FlowState describe the flow the daemon tracks, if any.
type VerificationStatus struct {
	NeedsVerification bool   `json:"needs_verification"`
	IsVerified        bool   `json:"is_verified"`
	FlowID            string `json:"flow_id,omitempty"`
	FlowState         string `json:"flow_state"`
}

// VerificationRequested answers ActionRequestVerification with the
// device that accepted the request.
type VerificationRequested struct {
	DeviceID    string `json:"device_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Emoji is one SAS emoji.
type Emoji struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

// EmojiList answers ActionGetVerificationEmoji with the seven emoji
// in display order.
type EmojiList struct {
	Emoji []Emoji `json:"emoji"`
}

// VerificationConfirmed answers ActionConfirmVerification. Verified is
// false when the peer did not finish in time.
type VerificationConfirmed struct {
	Verified bool `json:"verified"`
}

// RecoveryKeyRequest is the body of ActionVerifyWithRecoveryKey.
type RecoveryKeyRequest struct {
	RecoveryKey []byte `cbor:"recovery_key"`
}
