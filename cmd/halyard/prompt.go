// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/halyard-chat/halyard/lib/cli"
	"github.com/halyard-chat/halyard/lib/secret"
)

// readSecret returns the secret stored at path ("-" for stdin) or, with
// no path, prompts on the terminal without echo.
func readSecret(prompt, path, flagName string) (*secret.Buffer, error) {
	if path != "" {
		buffer, err := secret.ReadFromPath(path)
		if err != nil {
			return nil, cli.Validation("reading --%s: %w", flagName, err)
		}
		return buffer, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, cli.Validation("stdin is not a terminal").
			WithHint(fmt.Sprintf("Pass --%s <file>, or --%s - to read it from stdin.", flagName, flagName))
	}
	fmt.Fprint(stderr, prompt)
	data, err := term.ReadPassword(fd)
	fmt.Fprintln(stderr)
	if err != nil {
		return nil, cli.Internal("reading from terminal: %w", err)
	}
	if len(data) == 0 {
		return nil, cli.Validation("nothing entered")
	}
	return secret.NewFromBytes(data)
}
