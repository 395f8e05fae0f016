// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/halyard-chat/halyard/lib/cli"
)

// Command output. Tests replace these.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root().Execute(ctx, os.Args[1:])
	stop()
	os.Exit(report(err))
}

// report prints err with its hint and returns the exit code.
func report(err error) int {
	code, printError := cli.ExitCode(err)
	if printError {
		fmt.Fprintf(stderr, "error: %v\n", err)
		var toolErr *cli.ToolError
		if errors.As(err, &toolErr) && toolErr.Hint != "" {
			fmt.Fprintf(stderr, "\n%s\n", toolErr.Hint)
		}
	}
	return code
}

func root() *cli.Command {
	return &cli.Command{
		Name:        "halyard",
		Summary:     "Matrix session client",
		Description: "Halyard drives the end-to-end encrypted Matrix session held by halyard-daemon.",
		Stderr:      stderr,
		Subcommands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			syncCommand(),
			roomsCommand(),
			messagesCommand(),
			sendCommand(),
			verifyCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{Description: "Log in and read a room", Command: "halyard login https://matrix.example.org alice && halyard messages '!room:example.org'"},
			{Description: "Verify this device from a phone", Command: "halyard verify request && halyard verify emoji"},
		},
	}
}
