// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/halyard-chat/halyard/lib/canonicaljson"
	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/sas"
	"github.com/halyard-chat/halyard/lib/secret"
	"github.com/halyard-chat/halyard/lib/ssss"
	"github.com/halyard-chat/halyard/messaging"
)

// selfSigningSecretName is the account data type holding the
// self-signing private key in secret storage.
const selfSigningSecretName = "m.cross_signing.self_signing"

// crossSigningKeys is the account's published cross-signing state.
type crossSigningKeys struct {
	userID      string
	master      messaging.CrossSigningKey
	selfSigning *messaging.CrossSigningKey
	userSigning *messaging.CrossSigningKey
	ownDevice   *messaging.DeviceKeys
}

func (e *Engine) queryCrossSigning(ctx context.Context, session *messaging.Session) (*crossSigningKeys, error) {
	userID := session.UserID().String()
	response, err := session.QueryKeys(ctx, messaging.QueryKeysRequest{
		DeviceKeys: map[string][]string{userID: {session.DeviceID().String()}},
	})
	if err != nil {
		return nil, err
	}
	master, ok := response.MasterKeys[userID]
	if !ok {
		return nil, engine.ErrCrossSigningUnavailable
	}
	keys := &crossSigningKeys{userID: userID, master: master}
	if selfSigning, ok := response.SelfSigningKeys[userID]; ok {
		keys.selfSigning = &selfSigning
	}
	if userSigning, ok := response.UserSigningKeys[userID]; ok {
		keys.userSigning = &userSigning
	}
	if device, ok := response.DeviceKeys[userID][session.DeviceID().String()]; ok {
		keys.ownDevice = &device
	}
	return keys, nil
}

// signedBy reports whether key carries a valid signature from signer.
func (k *crossSigningKeys) signedBy(key *messaging.CrossSigningKey, signer messaging.CrossSigningKey) bool {
	if key == nil {
		return false
	}
	signerID, signerKey, ok := signer.PublicKey()
	if !ok {
		return false
	}
	return verifySignature(signingSource(key.Raw, key), key.Signatures, k.userID, signerID, signerKey) == nil
}

// CrossSigningStatus checks the published cross-signing keys and
// whether this device is signed by the self-signing key. The
// self-signing and user-signing keys only count when the master key
// signed them.
func (e *Engine) CrossSigningStatus(ctx context.Context) (engine.CrossSigningStatus, error) {
	session, err := e.currentSession()
	if err != nil {
		return engine.CrossSigningStatus{}, err
	}
	keys, err := e.queryCrossSigning(ctx, session)
	if err != nil {
		return engine.CrossSigningStatus{}, err
	}

	status := engine.CrossSigningStatus{
		HasMaster:      true,
		HasSelfSigning: keys.signedBy(keys.selfSigning, keys.master),
		HasUserSigning: keys.signedBy(keys.userSigning, keys.master),
	}
	if status.HasSelfSigning && keys.ownDevice != nil {
		signerID, signerKey, _ := keys.selfSigning.PublicKey()
		device := keys.ownDevice
		status.DeviceSigned = verifySignature(signingSource(device.Raw, device), device.Signatures, keys.userID, signerID, signerKey) == nil
	}
	return status, nil
}

// Recover verifies this device with the account recovery key: the key
// unlocks the self-signing private key from secret storage, which then
// signs this device's keys.
func (e *Engine) Recover(ctx context.Context, recoveryKey *secret.Buffer) error {
	session, err := e.currentSession()
	if err != nil {
		return err
	}
	storageKey, err := ssss.DecodeRecoveryKey(recoveryKey.String())
	if err != nil {
		return err
	}
	defer storageKey.Close()

	keyID, err := e.checkStorageKey(ctx, session, storageKey)
	if err != nil {
		return err
	}

	raw, err := session.GetAccountData(ctx, selfSigningSecretName)
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			return errors.New("matrixengine: secret storage holds no self-signing key")
		}
		return err
	}
	var encrypted ssss.EncryptedSecret
	if err := json.Unmarshal(raw, &encrypted); err != nil {
		return fmt.Errorf("matrixengine: parsing %s: %w", selfSigningSecretName, err)
	}
	encodedSeed, err := encrypted.Decrypt(storageKey, keyID, selfSigningSecretName)
	if err != nil {
		return err
	}
	defer encodedSeed.Close()

	seed, err := decodeSeed(encodedSeed)
	if err != nil {
		return err
	}
	defer seed.Close()
	signingKey := ed25519.NewKeyFromSeed(seed.Bytes())
	defer secret.Zero(signingKey)
	publicKey := sas.Encode(signingKey.Public().(ed25519.PublicKey))

	keys, err := e.queryCrossSigning(ctx, session)
	if err != nil {
		return err
	}
	if keys.selfSigning == nil {
		return errors.New("matrixengine: account has no published self-signing key")
	}
	signerID, published, _ := keys.selfSigning.PublicKey()
	if published != publicKey {
		return errors.New("matrixengine: stored self-signing key does not match the published one")
	}

	e.mu.Lock()
	identity := e.identity
	e.mu.Unlock()
	if identity == nil {
		return engine.ErrNotLoggedIn
	}
	deviceKeys, err := identity.deviceKeys(keys.userID, session.DeviceID().String())
	if err != nil {
		return err
	}
	message, err := canonicaljson.SigningBytes(deviceKeys)
	if err != nil {
		return err
	}
	deviceKeys.Signatures = map[string]map[string]string{
		keys.userID: {signerID: sas.Encode(ed25519.Sign(signingKey, message))},
	}
	if err := session.UploadSignatures(ctx, map[string]map[string]any{
		keys.userID: {session.DeviceID().String(): deviceKeys},
	}); err != nil {
		return err
	}

	e.logger.Info("device cross-signed with recovery key",
		"user_id", keys.userID,
		"device_id", session.DeviceID(),
	)
	return nil
}

// checkStorageKey confirms the recovery key is the account's default
// secret storage key and returns that key's ID.
func (e *Engine) checkStorageKey(ctx context.Context, session *messaging.Session, storageKey *secret.Buffer) (string, error) {
	raw, err := session.GetAccountData(ctx, ssss.DefaultKeyEventType)
	if err != nil {
		if messaging.IsMatrixError(err, messaging.ErrCodeNotFound) {
			return "", errors.New("matrixengine: account has no secret storage")
		}
		return "", err
	}
	var defaultKey ssss.DefaultKey
	if err := json.Unmarshal(raw, &defaultKey); err != nil || defaultKey.Key == "" {
		return "", fmt.Errorf("matrixengine: malformed %s", ssss.DefaultKeyEventType)
	}

	raw, err = session.GetAccountData(ctx, ssss.KeyEventTypePrefix+defaultKey.Key)
	if err != nil {
		return "", err
	}
	var description ssss.KeyDescription
	if err := json.Unmarshal(raw, &description); err != nil {
		return "", fmt.Errorf("matrixengine: malformed secret storage key %s: %w", defaultKey.Key, err)
	}
	if err := description.Check(storageKey); err != nil {
		return "", err
	}
	return defaultKey.Key, nil
}

// decodeSeed turns the base64 secret into a 32-byte Ed25519 seed.
func decodeSeed(encoded *secret.Buffer) (*secret.Buffer, error) {
	text := bytes.TrimRight(encoded.Bytes(), "=")
	decoded := make([]byte, base64.RawStdEncoding.DecodedLen(len(text)))
	defer secret.Zero(decoded)
	n, err := base64.RawStdEncoding.Decode(decoded, text)
	if err != nil {
		return nil, fmt.Errorf("matrixengine: decoding self-signing key: %w", err)
	}
	if n != ed25519.SeedSize {
		return nil, fmt.Errorf("matrixengine: self-signing key is %d bytes, want %d", n, ed25519.SeedSize)
	}
	return secret.NewFromBytes(decoded[:n])
}
