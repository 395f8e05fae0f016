// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package ssss reads Matrix secret storage (the
// m.secret_storage.v1.aes-hmac-sha2 algorithm) with a recovery key.
//
// A recovery key is the base58 string users write down when they set
// up secure backup. [DecodeRecoveryKey] turns it into the 32-byte
// secret storage key, [KeyDescription.Check] confirms it is the key the
// account's default key description was created for, and
// [EncryptedSecret.Decrypt] opens a stored secret such as the
// self-signing private key.
package ssss
