// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package credstore keeps one account's session material encrypted in
// its session directory.
//
// Two files live side by side:
//
//   - identity.age: an age X25519 private key, sealed with the account
//     password (scrypt).
//   - session.age: the JSON [Material] (access token, device id,
//     device private keys), sealed to that identity's public key.
//
// Saving the session never needs the password again, only the open
// identity. Reopening after a restart needs the password to unlock the
// identity first.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/halyard-chat/halyard/lib/sealed"
	"github.com/halyard-chat/halyard/lib/secret"
)

const (
	identityFile = "identity.age"
	sessionFile  = "session.age"
)

// ErrNoSession is returned by Load when nothing has been saved yet.
var ErrNoSession = errors.New("credstore: no saved session")

// Material is the secret state needed to resume an authenticated
// device without logging in again.
type Material struct {
	HomeserverURL string `json:"homeserver_url"`
	UserID        string `json:"user_id"`
	DeviceID      string `json:"device_id"`
	AccessToken   string `json:"access_token"`

	// Ed25519Seed is the 32-byte seed of the device signing key.
	Ed25519Seed []byte `json:"ed25519_seed"`

	// Curve25519Private is the device's X25519 identity key.
	Curve25519Private []byte `json:"curve25519_private"`
}

// Zero scrubs the key material held in m.
func (m *Material) Zero() {
	secret.Zero(m.Ed25519Seed)
	secret.Zero(m.Curve25519Private)
	m.AccessToken = ""
}

// Options tune store creation.
type Options struct {
	// WorkFactor is the scrypt work factor for sealing the identity.
	// Zero selects sealed.DefaultWorkFactor.
	WorkFactor int
}

// Store is an open credential store bound to one directory.
type Store struct {
	dir     string
	keypair *sealed.Keypair
}

// Create generates a new identity in dir and seals it with password.
// Any existing identity or session in dir is replaced.
func Create(dir string, password *secret.Buffer, options Options) (*Store, error) {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("credstore: %w", err)
	}
	ciphertext, err := sealed.SealWithPassphrase(keypair.PrivateKey.Bytes(), password, options.WorkFactor)
	if err != nil {
		keypair.Close()
		return nil, fmt.Errorf("credstore: sealing identity: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, identityFile), ciphertext); err != nil {
		keypair.Close()
		return nil, err
	}
	if err := os.Remove(filepath.Join(dir, sessionFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		keypair.Close()
		return nil, fmt.Errorf("credstore: removing stale session: %w", err)
	}
	return &Store{dir: dir, keypair: keypair}, nil
}

// Open unlocks the identity in dir with password.
func Open(dir string, password *secret.Buffer) (*Store, error) {
	ciphertext, err := os.ReadFile(filepath.Join(dir, identityFile))
	if err != nil {
		return nil, fmt.Errorf("credstore: reading identity: %w", err)
	}
	privateKey, err := sealed.OpenWithPassphrase(ciphertext, password)
	if err != nil {
		return nil, fmt.Errorf("credstore: unlocking identity: %w", err)
	}
	keypair, err := sealed.KeypairFromPrivateKey(privateKey)
	if err != nil {
		privateKey.Close()
		return nil, fmt.Errorf("credstore: %w", err)
	}
	return &Store{dir: dir, keypair: keypair}, nil
}

// Dir returns the directory the store writes to.
func (s *Store) Dir() string { return s.dir }

// Save seals material and replaces the session file.
func (s *Store) Save(material *Material) error {
	plaintext, err := json.Marshal(material)
	if err != nil {
		return fmt.Errorf("credstore: encoding session: %w", err)
	}
	defer secret.Zero(plaintext)

	ciphertext, err := sealed.Seal(plaintext, s.keypair.PublicKey)
	if err != nil {
		return fmt.Errorf("credstore: sealing session: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.dir, sessionFile), ciphertext)
}

// Load decrypts the saved session. The caller should Zero the result
// once the keys have been moved into secret buffers.
func (s *Store) Load() (*Material, error) {
	ciphertext, err := os.ReadFile(filepath.Join(s.dir, sessionFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("credstore: reading session: %w", err)
	}
	plaintext, err := sealed.Open(ciphertext, s.keypair.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("credstore: opening session: %w", err)
	}
	defer plaintext.Close()

	var material Material
	if err := json.Unmarshal(plaintext.Bytes(), &material); err != nil {
		return nil, fmt.Errorf("credstore: decoding session: %w", err)
	}
	return &material, nil
}

// Close releases the unlocked identity.
func (s *Store) Close() error {
	return s.keypair.Close()
}

// writeFileAtomic writes data to path with mode 0600 via a temporary
// file and rename, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("credstore: creating %s: %w", filepath.Base(temporaryPath), err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("credstore: writing %s: %w", filepath.Base(path), err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("credstore: syncing %s: %w", filepath.Base(path), err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("credstore: closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("credstore: renaming %s into place: %w", filepath.Base(path), err)
	}
	return nil
}
