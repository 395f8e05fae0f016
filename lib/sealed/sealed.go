// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/halyard-chat/halyard/lib/secret"
)

// DefaultWorkFactor is the scrypt work factor (log2 N) used when a
// caller passes zero. It matches the age command-line default.
const DefaultWorkFactor = 18

// maxPlaintextSize caps how much a single Open will decrypt.
const maxPlaintextSize = 1 << 20

// Keypair is an age X25519 keypair. PrivateKey holds the
// AGE-SECRET-KEY-1... encoding and must never be logged or written to
// disk unsealed.
type Keypair struct {
	PrivateKey *secret.Buffer
	PublicKey  string
}

// Close releases the private key.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair creates a fresh X25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("sealed: generating keypair: %w", err)
	}
	privateKey, err := secret.NewFromString(identity.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// KeypairFromPrivateKey rebuilds a Keypair around an existing private
// key. The Keypair takes ownership of privateKey.
func KeypairFromPrivateKey(privateKey *secret.Buffer) (*Keypair, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: invalid private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Seal encrypts plaintext to the age public key recipient.
func Seal(plaintext []byte, recipient string) ([]byte, error) {
	parsed, err := age.ParseX25519Recipient(recipient)
	if err != nil {
		return nil, fmt.Errorf("sealed: parsing recipient %q: %w", recipient, err)
	}
	return encrypt(plaintext, parsed)
}

// Open decrypts ciphertext produced by Seal. privateKey is borrowed.
func Open(ciphertext []byte, privateKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(privateKey.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: invalid private key: %w", err)
	}
	return decrypt(ciphertext, identity)
}

// SealWithPassphrase encrypts plaintext under a passphrase using
// scrypt with the given work factor (DefaultWorkFactor when zero).
func SealWithPassphrase(plaintext []byte, passphrase *secret.Buffer, workFactor int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: scrypt recipient: %w", err)
	}
	if workFactor == 0 {
		workFactor = DefaultWorkFactor
	}
	recipient.SetWorkFactor(workFactor)
	return encrypt(plaintext, recipient)
}

// OpenWithPassphrase decrypts ciphertext produced by SealWithPassphrase.
// A wrong passphrase yields an error wrapping *age.NoIdentityMatchError.
func OpenWithPassphrase(ciphertext []byte, passphrase *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.NewScryptIdentity(passphrase.String())
	if err != nil {
		return nil, fmt.Errorf("sealed: scrypt identity: %w", err)
	}
	return decrypt(ciphertext, identity)
}

func encrypt(plaintext []byte, recipient age.Recipient) ([]byte, error) {
	var output bytes.Buffer
	writer, err := age.Encrypt(&output, recipient)
	if err != nil {
		return nil, fmt.Errorf("sealed: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("sealed: encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("sealed: finalizing: %w", err)
	}
	return output.Bytes(), nil
}

func decrypt(ciphertext []byte, identity age.Identity) (*secret.Buffer, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("sealed: decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(io.LimitReader(reader, maxPlaintextSize+1))
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: reading plaintext: %w", err)
	}
	if len(plaintext) > maxPlaintextSize {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("sealed: plaintext exceeds %d bytes", maxPlaintextSize)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed: plaintext is empty")
	}
	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, err
	}
	return buffer, nil
}
