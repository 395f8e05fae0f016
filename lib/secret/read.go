// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// maxSecretFileSize bounds how much ReadFromPath will pull into memory.
const maxSecretFileSize = 64 * 1024

// ReadFromPath reads a secret from a file, or from stdin when path is
// "-", and moves it into a Buffer. Only the line terminator is removed:
// passwords may legitimately begin or end with spaces. An empty secret
// is an error.
func ReadFromPath(path string) (*Buffer, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		reader = file
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxSecretFileSize+1))
	if err != nil {
		Zero(data)
		return nil, fmt.Errorf("secret: reading %s: %w", path, err)
	}
	if len(data) > maxSecretFileSize {
		Zero(data)
		return nil, fmt.Errorf("secret: %s exceeds %d bytes", path, maxSecretFileSize)
	}

	line := data
	if index := bytes.IndexByte(line, '\n'); index >= 0 {
		line = line[:index]
	}
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		Zero(data)
		return nil, fmt.Errorf("secret: %s is empty", path)
	}

	buffer, err := NewFromBytes(line)
	Zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
