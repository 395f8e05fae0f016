// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/messaging"
)

// ErrMissingKeys is returned by a Decryptor that does not hold the
// room key an event was encrypted with.
var ErrMissingKeys = errors.New("matrixengine: room key not available")

// Decryptor turns m.room.encrypted events into their cleartext.
type Decryptor interface {
	Decrypt(ctx context.Context, roomID ref.RoomID, event messaging.Event) (DecryptedEvent, error)
}

// DecryptedEvent is the cleartext of an encrypted room event.
type DecryptedEvent struct {
	Type    string
	Content json.RawMessage

	// Sender is the user the session key is bound to.
	Sender ref.UserID
}

// KeylessDecryptor holds no room keys, so every encrypted event stays
// undecryptable until a key-holding Decryptor is configured.
type KeylessDecryptor struct{}

// Decrypt always fails with ErrMissingKeys.
func (KeylessDecryptor) Decrypt(context.Context, ref.RoomID, messaging.Event) (DecryptedEvent, error) {
	return DecryptedEvent{}, ErrMissingKeys
}
