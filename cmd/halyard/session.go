// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/halyard-chat/halyard/lib/cli"
	"github.com/halyard-chat/halyard/lib/schema"
)

type loginParams struct {
	cli.DaemonConnection
	cli.JSONOutput
	PasswordFile string `flag:"password-file" desc:"read the password from this file (\"-\" for stdin)"`
}

func loginCommand() *cli.Command {
	var params loginParams
	return &cli.Command{
		Name:    "login",
		Summary: "Log in to a homeserver",
		Description: "Log in with a password, creating a new device. A previous session of the\n" +
			"same account is replaced; one of another account is retired.",
		Usage: "halyard login <homeserver-url> <username> [flags]",
		Examples: []cli.Example{
			{Command: "halyard login https://matrix.example.org alice"},
			{Description: "Non-interactive", Command: "pass show matrix | halyard login https://matrix.example.org alice --password-file -"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("login", &params) },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return cli.Validation("expected <homeserver-url> <username>, got %d arguments", len(args))
			}
			password, err := readSecret("Password: ", params.PasswordFile, "password-file")
			if err != nil {
				return err
			}
			defer password.Close()

			// A map hands the buffer's bytes to the encoder directly;
			// a struct would be copied through an intermediate CBOR
			// round trip.
			var status schema.SessionStatus
			if err := params.Call(ctx, schema.ActionLogin, map[string]any{
				"homeserver_url": args[0],
				"username":       args[1],
				"password":       password.Bytes(),
			}, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, status); done {
				return err
			}
			fmt.Fprintf(stdout, "Logged in as %s (device %s)\n", status.UserID, status.DeviceID)
			return nil
		},
	}
}

func logoutCommand() *cli.Command {
	var params struct{ cli.DaemonConnection }
	return &cli.Command{
		Name:    "logout",
		Summary: "Log out and delete local session data",
		Description: "Log out on the homeserver and delete the local session. Local data is\n" +
			"deleted even when the homeserver cannot be reached; the error then says so.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("logout", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := params.Call(ctx, schema.ActionLogout, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Logged out.")
			return nil
		},
	}
}

func whoamiCommand() *cli.Command {
	var params struct {
		cli.DaemonConnection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:        "whoami",
		Summary:     "Show the logged-in account",
		Description: "Show the logged-in account. Exits with the unauthenticated code when no\nsession is active.",
		Flags:       func() *pflag.FlagSet { return cli.FlagsFromParams("whoami", &params) },
		Run: func(ctx context.Context, args []string) error {
			var status schema.SessionStatus
			if err := params.Call(ctx, schema.ActionCheckSession, nil, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, status); done {
				return err
			}
			if !status.LoggedIn {
				fmt.Fprintln(stdout, "Not logged in.")
				return &cli.ExitError{Code: cli.CategoryUnauthenticated.ExitCode()}
			}
			fmt.Fprintf(stdout, "%s\n  device:     %s\n  homeserver: %s\n", status.UserID, status.DeviceID, status.HomeserverURL)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	var params struct{ cli.DaemonConnection }
	return &cli.Command{
		Name:    "sync",
		Summary: "Sync with the homeserver now",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("sync", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := params.Call(ctx, schema.ActionSync, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Synced.")
			return nil
		},
	}
}
