// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/halyard-chat/halyard/lib/canonicaljson"
	"github.com/halyard-chat/halyard/lib/sas"
	"github.com/halyard-chat/halyard/lib/secret"
	"github.com/halyard-chat/halyard/messaging"
)

// Algorithms advertised in this device's key upload. The Olm and Megolm
// names are what peers expect to see; this client does not run them.
var deviceAlgorithms = []string{
	"m.olm.v1.curve25519-aes-sha2",
	"m.megolm.v1.aes-sha2",
}

// deviceIdentity is the long-term key material of this device: an
// Ed25519 signing key and a Curve25519 identity key.
type deviceIdentity struct {
	ed25519Seed       *secret.Buffer
	ed25519Public     ed25519.PublicKey
	curve25519Private *secret.Buffer
	curve25519Public  []byte
}

func newDeviceIdentity() (*deviceIdentity, error) {
	seed, err := secret.New(ed25519.SeedSize)
	if err != nil {
		return nil, err
	}
	curvePrivate, err := secret.New(curve25519.ScalarSize)
	if err != nil {
		seed.Close()
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, seed.Bytes()); err != nil {
		seed.Close()
		curvePrivate.Close()
		return nil, fmt.Errorf("generating ed25519 seed: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, curvePrivate.Bytes()); err != nil {
		seed.Close()
		curvePrivate.Close()
		return nil, fmt.Errorf("generating curve25519 key: %w", err)
	}
	return identityFromKeys(seed, curvePrivate)
}

// identityFromKeys takes ownership of both buffers.
func identityFromKeys(seed, curvePrivate *secret.Buffer) (*deviceIdentity, error) {
	if seed.Len() != ed25519.SeedSize || curvePrivate.Len() != curve25519.ScalarSize {
		seed.Close()
		curvePrivate.Close()
		return nil, errors.New("device key material has the wrong size")
	}
	private := ed25519.NewKeyFromSeed(seed.Bytes())
	public := append(ed25519.PublicKey(nil), private.Public().(ed25519.PublicKey)...)
	secret.Zero(private)

	curvePublic, err := curve25519.X25519(curvePrivate.Bytes(), curve25519.Basepoint)
	if err != nil {
		seed.Close()
		curvePrivate.Close()
		return nil, fmt.Errorf("deriving curve25519 public key: %w", err)
	}
	return &deviceIdentity{
		ed25519Seed:       seed,
		ed25519Public:     public,
		curve25519Private: curvePrivate,
		curve25519Public:  curvePublic,
	}, nil
}

// Ed25519 returns the encoded signing public key.
func (d *deviceIdentity) Ed25519() string {
	return sas.Encode(d.ed25519Public)
}

// Curve25519 returns the encoded identity public key.
func (d *deviceIdentity) Curve25519() string {
	return sas.Encode(d.curve25519Public)
}

// sign returns the encoded Ed25519 signature of message.
func (d *deviceIdentity) sign(message []byte) string {
	private := ed25519.NewKeyFromSeed(d.ed25519Seed.Bytes())
	defer secret.Zero(private)
	return sas.Encode(ed25519.Sign(private, message))
}

// deviceKeys builds the self-signed key object uploaded to /keys/upload.
func (d *deviceIdentity) deviceKeys(userID, deviceID string) (messaging.DeviceKeys, error) {
	keys := messaging.DeviceKeys{
		UserID:     userID,
		DeviceID:   deviceID,
		Algorithms: deviceAlgorithms,
		Keys: map[string]string{
			"ed25519:" + deviceID:    d.Ed25519(),
			"curve25519:" + deviceID: d.Curve25519(),
		},
	}
	signingBytes, err := canonicaljson.SigningBytes(keys)
	if err != nil {
		return messaging.DeviceKeys{}, err
	}
	keys.Signatures = map[string]map[string]string{
		userID: {"ed25519:" + deviceID: d.sign(signingBytes)},
	}
	return keys, nil
}

func (d *deviceIdentity) Close() error {
	return errors.Join(d.ed25519Seed.Close(), d.curve25519Private.Close())
}

// verifySignature checks that signed carries a valid signature by
// userID's key keyID, whose encoded public key is publicKey. signed is
// the raw JSON object when available so unmodelled fields stay covered.
func verifySignature(signed any, signatures map[string]map[string]string, userID, keyID, publicKey string) error {
	signature, ok := signatures[userID][keyID]
	if !ok {
		return fmt.Errorf("no signature by %s %s", userID, keyID)
	}
	publicBytes, err := sas.Decode(publicKey)
	if err != nil || len(publicBytes) != ed25519.PublicKeySize {
		return fmt.Errorf("malformed ed25519 key %s", keyID)
	}
	signatureBytes, err := sas.Decode(signature)
	if err != nil {
		return fmt.Errorf("malformed signature by %s: %w", keyID, err)
	}
	message, err := canonicaljson.SigningBytes(signed)
	if err != nil {
		return err
	}
	if !ed25519.Verify(publicBytes, message, signatureBytes) {
		return fmt.Errorf("signature by %s does not verify", keyID)
	}
	return nil
}

// signingSource picks the raw object when the value came off the wire.
func signingSource(raw []byte, fallback any) any {
	if len(raw) > 0 {
		return json.RawMessage(raw)
	}
	return fallback
}
