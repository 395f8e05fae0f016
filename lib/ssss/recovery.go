// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package ssss

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/mr-tron/base58"

	"github.com/halyard-chat/halyard/lib/secret"
)

// KeySize is the length of a secret storage key.
const KeySize = 32

var recoveryKeyPrefix = [2]byte{0x8b, 0x01}

// ErrBadRecoveryKey is wrapped by every recovery key decoding failure.
var ErrBadRecoveryKey = errors.New("ssss: malformed recovery key")

// DecodeRecoveryKey parses a recovery key as displayed to users
// (base58, usually grouped in blocks of four with spaces). The
// returned buffer holds the 32-byte key and must be closed.
func DecodeRecoveryKey(recoveryKey string) (*secret.Buffer, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, recoveryKey)
	if compact == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadRecoveryKey)
	}

	decoded, err := base58.Decode(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecoveryKey, err)
	}
	defer secret.Zero(decoded)

	if len(decoded) != len(recoveryKeyPrefix)+KeySize+1 {
		return nil, fmt.Errorf("%w: decodes to %d bytes", ErrBadRecoveryKey, len(decoded))
	}
	if decoded[0] != recoveryKeyPrefix[0] || decoded[1] != recoveryKeyPrefix[1] {
		return nil, fmt.Errorf("%w: wrong prefix", ErrBadRecoveryKey)
	}
	var parity byte
	for _, b := range decoded {
		parity ^= b
	}
	if parity != 0 {
		return nil, fmt.Errorf("%w: parity check failed", ErrBadRecoveryKey)
	}

	key := make([]byte, KeySize)
	copy(key, decoded[len(recoveryKeyPrefix):len(recoveryKeyPrefix)+KeySize])
	return secret.NewFromBytes(key)
}

// EncodeRecoveryKey formats key the way clients display it: base58 in
// space-separated groups of four.
func EncodeRecoveryKey(key []byte) (string, error) {
	if len(key) != KeySize {
		return "", fmt.Errorf("ssss: key is %d bytes, want %d", len(key), KeySize)
	}
	raw := make([]byte, 0, len(recoveryKeyPrefix)+KeySize+1)
	raw = append(raw, recoveryKeyPrefix[:]...)
	raw = append(raw, key...)
	var parity byte
	for _, b := range raw {
		parity ^= b
	}
	raw = append(raw, parity)
	defer secret.Zero(raw)

	encoded := base58.Encode(raw)
	var grouped strings.Builder
	for index, digit := range encoded {
		if index > 0 && index%4 == 0 {
			grouped.WriteByte(' ')
		}
		grouped.WriteRune(digit)
	}
	return grouped.String(), nil
}
