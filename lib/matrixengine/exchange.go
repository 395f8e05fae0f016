// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/sas"
	"github.com/halyard-chat/halyard/lib/secret"
)

// exchange is the m.sas.v1 part of a flow. All fields are guarded by
// engine.mu through the owning request.
type exchange struct {
	request *request

	// weStarted is true when this device sent the start event and the
	// peer is the accepting side.
	weStarted      bool
	start          sas.StartContent
	canonicalStart []byte

	keypair    *sas.Keypair
	accepted   bool
	commitment string
	ourKeySent bool
	theirKey   string
	shared     *secret.Buffer
	emoji      []engine.Emoji

	confirmed bool
	peerMAC   *sas.MACContent
	released  bool
}

var _ engine.SAS = (*exchange)(nil)

func newExchange(r *request, weStarted bool) (*exchange, error) {
	keypair, err := sas.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	return &exchange{request: r, weStarted: weStarted, keypair: keypair}, nil
}

// Accept answers the peer's start with our commitment. A no-op when we
// started or have already accepted.
func (x *exchange) Accept(ctx context.Context) error {
	mu := &x.request.engine.mu
	mu.Lock()
	defer mu.Unlock()
	if x.request.cancelled {
		return fmt.Errorf("matrixengine: flow %s was cancelled", x.request.flowID)
	}
	if x.weStarted || x.accepted {
		return nil
	}
	accept, ok := sas.NegotiateAccept(x.start)
	if !ok {
		x.request.abort(ctx, sas.CancelUnknownMethod, "no common SAS parameters")
		return engine.ErrSASUnsupported
	}
	accept.Commitment = sas.Commitment(x.keypair.PublicKey(), x.canonicalStart)
	if err := x.request.send(ctx, sas.EventAccept, accept); err != nil {
		return err
	}
	x.accepted = true
	return nil
}

// Emoji returns the emoji once both public keys are known.
func (x *exchange) Emoji() ([]engine.Emoji, bool) {
	mu := &x.request.engine.mu
	mu.Lock()
	defer mu.Unlock()
	if x.emoji == nil || x.request.cancelled {
		return nil, false
	}
	return append([]engine.Emoji(nil), x.emoji...), true
}

// Confirm sends the MAC of this device's signing key. Done follows once
// the peer's MAC has arrived and verified.
func (x *exchange) Confirm(ctx context.Context) error {
	mu := &x.request.engine.mu
	mu.Lock()
	defer mu.Unlock()
	if x.request.cancelled {
		return fmt.Errorf("matrixengine: flow %s was cancelled", x.request.flowID)
	}
	if x.confirmed {
		return nil
	}
	if x.emoji == nil {
		return errors.New("matrixengine: keys have not been exchanged yet")
	}

	us, them := x.parties()
	identity := x.request.engine.identity
	keyID := "ed25519:" + us.DeviceID
	mac, err := sas.MAC(x.shared, us, them, x.request.flowID, keyID, []byte(identity.Ed25519()))
	if err != nil {
		return err
	}
	keysMAC, err := sas.KeyIDsMAC(x.shared, us, them, x.request.flowID, []string{keyID})
	if err != nil {
		return err
	}
	if err := x.request.send(ctx, sas.EventMAC, sas.MACContent{
		TransactionID: x.request.flowID,
		MAC:           map[string]string{keyID: mac},
		Keys:          keysMAC,
	}); err != nil {
		return err
	}
	x.confirmed = true
	if x.peerMAC != nil {
		x.verifyPeer(ctx)
	}
	return nil
}

func (x *exchange) handle(ctx context.Context, eventType string, raw json.RawMessage) {
	switch eventType {
	case sas.EventAccept:
		var content sas.AcceptContent
		if err := json.Unmarshal(raw, &content); err != nil || !x.weStarted || x.accepted {
			x.request.abort(ctx, sas.CancelUnexpectedMessage, "unexpected accept")
			return
		}
		if !sas.AcceptIsCompatible(content) {
			x.request.abort(ctx, sas.CancelUnknownMethod, "accept chose parameters we did not offer")
			return
		}
		x.accepted = true
		x.commitment = content.Commitment
		x.sendKey(ctx)

	case sas.EventKey:
		var content sas.KeyContent
		if err := json.Unmarshal(raw, &content); err != nil || content.Key == "" || x.theirKey != "" || !x.accepted {
			x.request.abort(ctx, sas.CancelUnexpectedMessage, "unexpected key")
			return
		}
		if x.weStarted {
			if sas.Commitment(content.Key, x.canonicalStart) != x.commitment {
				x.request.abort(ctx, sas.CancelMismatchedCommit, "key does not match the commitment")
				return
			}
		} else if !x.sendKey(ctx) {
			return
		}
		x.theirKey = content.Key
		x.deriveEmoji(ctx)

	case sas.EventMAC:
		var content sas.MACContent
		if err := json.Unmarshal(raw, &content); err != nil || len(content.MAC) == 0 || x.peerMAC != nil {
			x.request.abort(ctx, sas.CancelUnexpectedMessage, "unexpected mac")
			return
		}
		x.peerMAC = &content
		if x.confirmed {
			x.verifyPeer(ctx)
		}
	}
}

// sendKey reveals our public key. Reports whether the send succeeded;
// a failed send cancels the flow.
func (x *exchange) sendKey(ctx context.Context) bool {
	err := x.request.send(ctx, sas.EventKey, sas.KeyContent{
		TransactionID: x.request.flowID,
		Key:           x.keypair.PublicKey(),
	})
	if err != nil {
		x.request.abort(ctx, sas.CancelUnexpectedMessage, "could not send key")
		return false
	}
	x.ourKeySent = true
	return true
}

func (x *exchange) deriveEmoji(ctx context.Context) {
	shared, err := x.keypair.SharedSecret(x.theirKey)
	if err != nil {
		x.request.abort(ctx, sas.CancelKeyMismatch, "invalid public key")
		return
	}
	x.shared = shared

	us, them := x.parties()
	info := sas.Info(them, us, x.request.flowID)
	if x.weStarted {
		info = sas.Info(us, them, x.request.flowID)
	}
	sasBytes, err := sas.Bytes(shared, info)
	if err != nil {
		x.request.abort(ctx, sas.CancelKeyMismatch, "deriving SAS failed")
		return
	}
	emojis := sas.Emojis(sasBytes)
	x.emoji = make([]engine.Emoji, len(emojis))
	for i, emoji := range emojis {
		x.emoji[i] = engine.Emoji{Symbol: emoji.Symbol, Description: emoji.Description}
	}
}

// verifyPeer checks the peer's MAC against the cached key of its device
// and, on success, sends done.
func (x *exchange) verifyPeer(ctx context.Context) {
	r := x.request
	us, them := x.parties()
	mac := x.peerMAC

	keyIDs := make([]string, 0, len(mac.MAC))
	for keyID := range mac.MAC {
		keyIDs = append(keyIDs, keyID)
	}
	ok, err := sas.VerifyKeyIDsMAC(x.shared, them, us, r.flowID, keyIDs, mac.Keys)
	if err != nil || !ok {
		r.abort(ctx, sas.CancelKeyMismatch, "key list MAC does not match")
		return
	}

	deviceKeyID := "ed25519:" + r.peerDevice
	deviceMAC, ok := mac.MAC[deviceKeyID]
	if !ok {
		r.abort(ctx, sas.CancelKeyMismatch, "MAC does not cover the peer device key")
		return
	}
	deviceKey, found, err := r.engine.deviceKey(ctx, r.engine.session, r.peerDevice)
	if err != nil || !found {
		r.engine.logger.Warn("peer device key unavailable", "flow_id", r.flowID, "device_id", r.peerDevice, "error", err)
		r.abort(ctx, sas.CancelKeyMismatch, "peer device key unknown")
		return
	}
	ok, err = sas.VerifyMAC(x.shared, them, us, r.flowID, deviceKeyID, []byte(deviceKey), deviceMAC)
	if err != nil || !ok {
		r.abort(ctx, sas.CancelKeyMismatch, "peer device key MAC does not match")
		return
	}
	// Other listed keys, such as the master key, are bound by the key
	// list MAC; their trust comes from the cross-signing chain.

	if err := r.send(ctx, sas.EventDone, sas.DoneContent{TransactionID: r.flowID}); err != nil {
		r.engine.logger.Warn("sending verification done failed", "flow_id", r.flowID, "error", err)
		return
	}
	r.doneSent = true
	r.engine.logger.Info("peer device verified", "flow_id", r.flowID, "device_id", r.peerDevice)
}

// parties returns this device and the peer as SAS parties.
func (x *exchange) parties() (us, them sas.Party) {
	userID, deviceID := x.request.engine.ownUser()
	us = sas.Party{UserID: userID.String(), DeviceID: deviceID.String(), PublicKey: x.keypair.PublicKey()}
	them = sas.Party{UserID: x.request.peerUser, DeviceID: x.request.peerDevice, PublicKey: x.theirKey}
	return us, them
}

func (x *exchange) release() {
	if x.released {
		return
	}
	x.released = true
	x.keypair.Close()
	if x.shared != nil {
		x.shared.Close()
	}
}
