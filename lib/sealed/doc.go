// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts small blobs of session material with age.
//
// Two kinds of recipient are supported. An X25519 keypair seals the
// per-account session file, and a passphrase (age's scrypt recipient)
// seals that keypair's private half, so a stolen session directory is
// useless without the account password.
//
// Private keys and every decrypted plaintext come back as
// *secret.Buffer values and must be closed by the caller. Ciphertext is
// raw age binary, suitable for writing straight to disk.
package sealed
