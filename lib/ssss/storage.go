// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package ssss

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"github.com/halyard-chat/halyard/lib/secret"
)

// Algorithm is the only secret storage algorithm Matrix defines.
const Algorithm = "m.secret_storage.v1.aes-hmac-sha2"

// Account data event types.
const (
	DefaultKeyEventType = "m.secret_storage.default_key"
	KeyEventTypePrefix  = "m.secret_storage.key."
)

// ErrWrongKey means the recovery key does not belong to the key
// description it was checked against.
var ErrWrongKey = errors.New("ssss: recovery key does not match secret storage key")

// DefaultKey is the content of m.secret_storage.default_key.
type DefaultKey struct {
	Key string `json:"key"`
}

// KeyDescription is the content of m.secret_storage.key.<id>.
type KeyDescription struct {
	Name      string `json:"name,omitempty"`
	Algorithm string `json:"algorithm"`
	IV        string `json:"iv"`
	MAC       string `json:"mac"`
}

// EncryptedSecret is the content of an account data event holding a
// secret, keyed by secret storage key ID.
type EncryptedSecret struct {
	Encrypted map[string]AESHMACPayload `json:"encrypted"`
}

// AESHMACPayload is one encryption of a secret under one key.
type AESHMACPayload struct {
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	MAC        string `json:"mac"`
}

// Check confirms key is the secret storage key this description was
// made for. The description stores the encryption of 32 zero bytes
// under the empty secret name.
func (d KeyDescription) Check(key *secret.Buffer) error {
	if d.Algorithm != Algorithm {
		return fmt.Errorf("ssss: unsupported key algorithm %q", d.Algorithm)
	}
	expected, err := encryptWithIV(key, "", make([]byte, 32), d.IV)
	if err != nil {
		return err
	}
	received, err := decodeBase64(d.MAC)
	if err != nil {
		return fmt.Errorf("ssss: decoding key mac: %w", err)
	}
	expectedMAC, err := decodeBase64(expected.MAC)
	if err != nil {
		return err
	}
	if !hmac.Equal(received, expectedMAC) {
		return ErrWrongKey
	}
	return nil
}

// NewKeyDescription builds the description a client publishes when it
// creates a secret storage key.
func NewKeyDescription(key *secret.Buffer) (KeyDescription, error) {
	payload, err := encrypt(key, "", make([]byte, 32))
	if err != nil {
		return KeyDescription{}, err
	}
	return KeyDescription{Algorithm: Algorithm, IV: payload.IV, MAC: payload.MAC}, nil
}

// Decrypt opens the secret stored under keyID. name is the account
// data event type the secret was stored as; it is bound into the key
// derivation, so a secret copied to another name fails to decrypt.
// The plaintext is usually itself base64; the caller decodes it.
func (s EncryptedSecret) Decrypt(key *secret.Buffer, keyID, name string) (*secret.Buffer, error) {
	payload, ok := s.Encrypted[keyID]
	if !ok {
		return nil, fmt.Errorf("ssss: secret %s is not encrypted with key %s", name, keyID)
	}
	aesKey, macKey, err := deriveKeys(key, name)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(aesKey)
	defer secret.Zero(macKey)

	ciphertext, err := decodeBase64(payload.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("ssss: decoding ciphertext of %s: %w", name, err)
	}
	receivedMAC, err := decodeBase64(payload.MAC)
	if err != nil {
		return nil, fmt.Errorf("ssss: decoding mac of %s: %w", name, err)
	}
	mac := hmac.New(sha256.New, macKey)
	mac.Write(ciphertext)
	if !hmac.Equal(mac.Sum(nil), receivedMAC) {
		return nil, fmt.Errorf("ssss: %s: %w", name, ErrWrongKey)
	}

	iv, err := decodeBase64(payload.IV)
	if err != nil {
		return nil, fmt.Errorf("ssss: decoding iv of %s: %w", name, err)
	}
	plaintext, err := ctr(aesKey, iv, ciphertext)
	if err != nil {
		return nil, err
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("ssss: secret %s is empty", name)
	}
	return secret.NewFromBytes(plaintext)
}

// EncryptSecret encrypts plaintext under key for storage as name.
func EncryptSecret(key *secret.Buffer, keyID, name string, plaintext []byte) (EncryptedSecret, error) {
	payload, err := encrypt(key, name, plaintext)
	if err != nil {
		return EncryptedSecret{}, err
	}
	return EncryptedSecret{Encrypted: map[string]AESHMACPayload{keyID: payload}}, nil
}

func encrypt(key *secret.Buffer, name string, plaintext []byte) (AESHMACPayload, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return AESHMACPayload{}, fmt.Errorf("ssss: generating iv: %w", err)
	}
	// Bit 63 clear: the counter half must not wrap.
	iv[8] &= 0x7f
	return encryptWithIV(key, name, plaintext, base64.StdEncoding.EncodeToString(iv))
}

func encryptWithIV(key *secret.Buffer, name string, plaintext []byte, encodedIV string) (AESHMACPayload, error) {
	aesKey, macKey, err := deriveKeys(key, name)
	if err != nil {
		return AESHMACPayload{}, err
	}
	defer secret.Zero(aesKey)
	defer secret.Zero(macKey)

	iv, err := decodeBase64(encodedIV)
	if err != nil {
		return AESHMACPayload{}, fmt.Errorf("ssss: decoding iv: %w", err)
	}
	ciphertext, err := ctr(aesKey, iv, plaintext)
	if err != nil {
		return AESHMACPayload{}, err
	}
	mac := hmac.New(sha256.New, macKey)
	mac.Write(ciphertext)
	return AESHMACPayload{
		IV:         encodedIV,
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		MAC:        base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}, nil
}

// deriveKeys expands the storage key into an AES key and an HMAC key
// bound to the secret name.
func deriveKeys(key *secret.Buffer, name string) (aesKey, macKey []byte, err error) {
	if key.Len() != KeySize {
		return nil, nil, fmt.Errorf("ssss: key is %d bytes, want %d", key.Len(), KeySize)
	}
	material := make([]byte, 64)
	reader := hkdf.New(sha256.New, key.Bytes(), make([]byte, 32), []byte(name))
	if _, err := io.ReadFull(reader, material); err != nil {
		return nil, nil, fmt.Errorf("ssss: hkdf: %w", err)
	}
	return material[:32], material[32:], nil
}

func ctr(aesKey, iv, input []byte) ([]byte, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("ssss: iv is %d bytes, want %d", len(iv), aes.BlockSize)
	}
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("ssss: %w", err)
	}
	output := make([]byte, len(input))
	cipher.NewCTR(block, iv).XORKeyStream(output, input)
	return output, nil
}

// decodeBase64 accepts both padded and unpadded standard base64, since
// clients disagree on which to emit.
func decodeBase64(text string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(text, "="))
}
