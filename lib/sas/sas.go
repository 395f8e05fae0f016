// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package sas

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/halyard-chat/halyard/lib/secret"
)

// Algorithm identifiers this implementation speaks.
const (
	Method               = "m.sas.v1"
	KeyAgreementProtocol = "curve25519-hkdf-sha256"
	HashAlgorithm        = "sha256"
	MACMethod            = "hkdf-hmac-sha256.v2"
	RenderingEmoji       = "emoji"
	RenderingDecimal     = "decimal"
)

const (
	sasInfoPrefix = "MATRIX_KEY_VERIFICATION_SAS|"
	macInfoPrefix = "MATRIX_KEY_VERIFICATION_MAC"
	keyIDsSuffix  = "KEY_IDS"

	// sasByteCount covers both the 42 bits the emoji need and the 39
	// bits the decimals need.
	sasByteCount = 6
)

// Encode is the unpadded standard base64 Matrix uses for keys, MACs and
// commitments.
func Encode(data []byte) string {
	return base64.RawStdEncoding.EncodeToString(data)
}

// Decode reverses Encode.
func Decode(text string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(text)
}

// Party identifies one side of a SAS exchange: a device and the
// ephemeral public key it sent in m.key.verification.key.
type Party struct {
	UserID    string
	DeviceID  string
	PublicKey string
}

// Keypair is an ephemeral Curve25519 key used for a single exchange.
type Keypair struct {
	private *secret.Buffer
	public  [curve25519.PointSize]byte
}

// GenerateKeypair creates a fresh ephemeral keypair.
func GenerateKeypair() (*Keypair, error) {
	private, err := secret.New(curve25519.ScalarSize)
	if err != nil {
		return nil, fmt.Errorf("sas: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, private.Bytes()); err != nil {
		private.Close()
		return nil, fmt.Errorf("sas: generating key: %w", err)
	}
	public, err := curve25519.X25519(private.Bytes(), curve25519.Basepoint)
	if err != nil {
		private.Close()
		return nil, fmt.Errorf("sas: deriving public key: %w", err)
	}
	keypair := &Keypair{private: private}
	copy(keypair.public[:], public)
	return keypair, nil
}

// PublicKey returns the encoded public key as sent on the wire.
func (k *Keypair) PublicKey() string {
	return Encode(k.public[:])
}

// SharedSecret performs the X25519 agreement with the peer's encoded
// public key. The caller owns the returned buffer.
func (k *Keypair) SharedSecret(theirPublicKey string) (*secret.Buffer, error) {
	theirs, err := Decode(theirPublicKey)
	if err != nil {
		return nil, fmt.Errorf("sas: decoding peer key: %w", err)
	}
	if len(theirs) != curve25519.PointSize {
		return nil, fmt.Errorf("sas: peer key is %d bytes, want %d", len(theirs), curve25519.PointSize)
	}
	shared, err := curve25519.X25519(k.private.Bytes(), theirs)
	if err != nil {
		return nil, fmt.Errorf("sas: key agreement: %w", err)
	}
	return secret.NewFromBytes(shared)
}

// Close releases the private key.
func (k *Keypair) Close() error {
	return k.private.Close()
}

// Commitment is the value the accepting device publishes before it
// reveals its key: the hash of its encoded public key followed by the
// canonical JSON of the start event content.
func Commitment(publicKey string, canonicalStart []byte) string {
	hash := sha256.New()
	hash.Write([]byte(publicKey))
	hash.Write(canonicalStart)
	return Encode(hash.Sum(nil))
}

// Info builds the HKDF info string for the SAS bytes. starter is the
// device that sent m.key.verification.start.
func Info(starter, acceptor Party, transactionID string) string {
	return sasInfoPrefix + strings.Join([]string{
		starter.UserID, starter.DeviceID, starter.PublicKey,
		acceptor.UserID, acceptor.DeviceID, acceptor.PublicKey,
		transactionID,
	}, "|")
}

// Bytes derives the SAS bytes both users compare.
func Bytes(sharedSecret *secret.Buffer, info string) ([]byte, error) {
	return derive(sharedSecret.Bytes(), info, sasByteCount)
}

// Decimals renders SAS bytes as three numbers between 1000 and 9191.
func Decimals(sasBytes []byte) [3]int {
	b := sasBytes
	return [3]int{
		(int(b[0])<<5 | int(b[1])>>3) + 1000,
		((int(b[1])&0x7)<<10 | int(b[2])<<2 | int(b[3])>>6) + 1000,
		((int(b[3])&0x3f)<<7 | int(b[4])>>1) + 1000,
	}
}

// EmojiIndices splits the first 42 bits of the SAS bytes into seven
// 6-bit table indices.
func EmojiIndices(sasBytes []byte) [7]int {
	var bits uint64
	for _, b := range sasBytes[:sasByteCount] {
		bits = bits<<8 | uint64(b)
	}
	var indices [7]int
	for position := range indices {
		shift := 48 - 6*(position+1)
		indices[position] = int(bits>>shift) & 0x3f
	}
	return indices
}

// Emojis renders SAS bytes as the seven emoji shown to the user.
func Emojis(sasBytes []byte) []Emoji {
	indices := EmojiIndices(sasBytes)
	emojis := make([]Emoji, len(indices))
	for position, index := range indices {
		emojis[position] = emojiTable[index]
	}
	return emojis
}

// MAC computes the hkdf-hmac-sha256.v2 MAC of input, sent by sender to
// receiver, for the key identified by keyID.
func MAC(sharedSecret *secret.Buffer, sender, receiver Party, transactionID, keyID string, input []byte) (string, error) {
	info := macInfoPrefix + sender.UserID + sender.DeviceID + receiver.UserID + receiver.DeviceID + transactionID + keyID
	key, err := derive(sharedSecret.Bytes(), info, sha256.Size)
	if err != nil {
		return "", err
	}
	defer secret.Zero(key)
	mac := hmac.New(sha256.New, key)
	mac.Write(input)
	return Encode(mac.Sum(nil)), nil
}

// KeyIDsMAC computes the MAC over the sorted, comma-joined key IDs
// listed in the mac event.
func KeyIDsMAC(sharedSecret *secret.Buffer, sender, receiver Party, transactionID string, keyIDs []string) (string, error) {
	sorted := append([]string(nil), keyIDs...)
	sort.Strings(sorted)
	return MAC(sharedSecret, sender, receiver, transactionID, keyIDsSuffix, []byte(strings.Join(sorted, ",")))
}

// VerifyKeyIDsMAC checks the keys field of a received mac event
// against the key IDs it lists.
func VerifyKeyIDsMAC(sharedSecret *secret.Buffer, sender, receiver Party, transactionID string, keyIDs []string, received string) (bool, error) {
	expected, err := KeyIDsMAC(sharedSecret, sender, receiver, transactionID, keyIDs)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(received)), nil
}

// VerifyMAC recomputes a MAC and compares it in constant time.
func VerifyMAC(sharedSecret *secret.Buffer, sender, receiver Party, transactionID, keyID string, input []byte, received string) (bool, error) {
	expected, err := MAC(sharedSecret, sender, receiver, transactionID, keyID, input)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(received)), nil
}

func derive(ikm []byte, info string, length int) ([]byte, error) {
	output := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, []byte(info)), output); err != nil {
		return nil, fmt.Errorf("sas: hkdf: %w", err)
	}
	return output, nil
}
