// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/halyard-chat/halyard/desk"
	"github.com/halyard-chat/halyard/lib/cli"
	"github.com/halyard-chat/halyard/lib/clock"
	"github.com/halyard-chat/halyard/lib/poll"
	"github.com/halyard-chat/halyard/lib/schema"
)

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:    "verify",
		Summary: "Verify this device",
		Description: "Verify this device against another device of the account by comparing\n" +
			"emoji, or with the account's recovery key.",
		Subcommands: []*cli.Command{
			verifyStatusCommand(),
			verifyRequestCommand(),
			verifyEmojiCommand(),
			verifyConfirmCommand(),
			verifyCancelCommand(),
			verifyRecoveryKeyCommand(),
		},
		Examples: []cli.Example{
			{Description: "Emoji verification", Command: "halyard verify request\nhalyard verify emoji\nhalyard verify confirm"},
			{Command: "halyard verify recovery-key"},
		},
	}
}

func verifyStatusCommand() *cli.Command {
	var params struct {
		cli.DaemonConnection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "status",
		Summary: "Show whether this device is verified",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("status", &params) },
		Run: func(ctx context.Context, args []string) error {
			var status schema.VerificationStatus
			if err := params.Call(ctx, schema.ActionCheckVerificationStatus, nil, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, status); done {
				return err
			}
			if status.IsVerified {
				fmt.Fprintln(stdout, "This device is verified.")
			} else {
				fmt.Fprintln(stdout, "This device needs verification.")
			}
			if status.FlowID != "" {
				fmt.Fprintf(stdout, "Verification %s is %s.\n", status.FlowID, status.FlowState)
			}
			return nil
		},
	}
}

func verifyRequestCommand() *cli.Command {
	var params struct {
		cli.DaemonConnection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "request",
		Summary: "Ask another device of the account to verify this one",
		Description: "Send a verification request to the account's other devices in turn. A\n" +
			"verification already in progress is cancelled first.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("request", &params) },
		Run: func(ctx context.Context, args []string) error {
			var requested schema.VerificationRequested
			if err := params.Call(ctx, schema.ActionRequestVerification, nil, &requested); err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, requested); done {
				return err
			}
			name := requested.DeviceID
			if requested.DisplayName != "" {
				name = fmt.Sprintf("%s (%s)", requested.DisplayName, requested.DeviceID)
			}
			fmt.Fprintf(stdout, "Verification request sent to %s.\n", name)
			fmt.Fprintln(stdout, "Accept it there, then run 'halyard verify emoji'.")
			return nil
		},
	}
}

type emojiParams struct {
	cli.DaemonConnection
	cli.JSONOutput
	Wait     time.Duration `flag:"wait" desc:"how long to wait for the other device" default:"2m"`
	Interval time.Duration `flag:"interval" desc:"pause between attempts" default:"1s"`
}

func verifyEmojiCommand() *cli.Command {
	var params emojiParams
	return &cli.Command{
		Name:    "emoji",
		Summary: "Show the emoji to compare",
		Description: "Show the seven emoji to compare with the other device. Waits while the\n" +
			"other device has not accepted yet or the emoji are still being derived.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("emoji", &params) },
		Run: func(ctx context.Context, args []string) error {
			list, err := waitForEmoji(ctx, &params, clock.Real())
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(stdout, list.Emoji); done {
				return err
			}
			for _, emoji := range list.Emoji {
				fmt.Fprintf(stdout, "  %s  %s\n", emoji.Symbol, emoji.Description)
			}
			fmt.Fprintln(stdout, "\nIf they match the other device, run 'halyard verify confirm'; otherwise 'halyard verify cancel'.")
			return nil
		},
	}
}

// waitForEmoji asks for the emoji until they are available, a
// non-transient error occurs, or params.Wait runs out.
func waitForEmoji(ctx context.Context, params *emojiParams, clk clock.Clock) (schema.EmojiList, error) {
	var list schema.EmojiList
	var lastErr error
	check := func(ctx context.Context) (bool, error) {
		lastErr = params.Call(ctx, schema.ActionGetVerificationEmoji, nil, &list)
		if desk.IsTransient(lastErr) {
			return false, nil
		}
		return lastErr == nil, lastErr
	}

	done, err := check(ctx)
	if done || err != nil {
		return list, err
	}

	interval := max(params.Interval, 10*time.Millisecond)
	attempts := max(int(params.Wait/interval), 1)
	done, err = poll.Until(ctx, clk, poll.Policy{Interval: interval, MaxAttempts: attempts}, check)
	switch {
	case err != nil:
		return list, err
	case !done:
		var toolErr *cli.ToolError
		if errors.As(lastErr, &toolErr) {
			return list, toolErr.WithHint("Accept the request on the other device, then run 'halyard verify emoji' again.")
		}
		return list, lastErr
	}
	return list, nil
}

func verifyConfirmCommand() *cli.Command {
	var params struct {
		cli.DaemonConnection
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "confirm",
		Summary: "Confirm that the emoji match",
		Description: "Confirm the emoji and wait for the other device to finish. Exits with the\n" +
			"transient code when the other device has not finished in time.",
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("confirm", &params) },
		Run: func(ctx context.Context, args []string) error {
			var confirmed schema.VerificationConfirmed
			if err := params.Call(ctx, schema.ActionConfirmVerification, nil, &confirmed); err != nil {
				return err
			}
			done, err := params.EmitJSON(stdout, confirmed)
			if err != nil {
				return err
			}
			switch {
			case done:
			case confirmed.Verified:
				fmt.Fprintln(stdout, "Device verified.")
			default:
				fmt.Fprintln(stdout, "Confirmed, but the other device has not finished yet. Check with 'halyard verify status'.")
			}
			if !confirmed.Verified {
				return &cli.ExitError{Code: cli.CategoryTransient.ExitCode()}
			}
			return nil
		},
	}
}

func verifyCancelCommand() *cli.Command {
	var params struct{ cli.DaemonConnection }
	return &cli.Command{
		Name:    "cancel",
		Summary: "Cancel the verification in progress",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("cancel", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := params.Call(ctx, schema.ActionCancelVerification, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Verification cancelled.")
			return nil
		},
	}
}

func verifyRecoveryKeyCommand() *cli.Command {
	var params struct {
		cli.DaemonConnection
		KeyFile string `flag:"key-file" desc:"read the recovery key from this file (\"-\" for stdin)"`
	}
	return &cli.Command{
		Name:    "recovery-key",
		Summary: "Verify this device with the account's recovery key",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("recovery-key", &params) },
		Run: func(ctx context.Context, args []string) error {
			recoveryKey, err := readSecret("Recovery key: ", params.KeyFile, "key-file")
			if err != nil {
				return err
			}
			defer recoveryKey.Close()

			if err := params.Call(ctx, schema.ActionVerifyWithRecoveryKey, map[string]any{
				"recovery_key": recoveryKey.Bytes(),
			}, nil); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Device verified with the recovery key.")
			return nil
		},
	}
}
