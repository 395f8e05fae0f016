// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/halyard-chat/halyard/lib/cli"
	"github.com/halyard-chat/halyard/lib/schema"
	"github.com/halyard-chat/halyard/lib/version"
)

func versionCommand() *cli.Command {
	var params struct {
		cli.DaemonConnection
		Full bool `flag:"full" desc:"include Go version and platform"`
	}
	return &cli.Command{
		Name:    "version",
		Summary: "Show CLI and daemon versions",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("version", &params) },
		Run: func(ctx context.Context, args []string) error {
			if params.Full {
				fmt.Fprintf(stdout, "halyard %s\n", version.Full())
			} else {
				fmt.Fprintf(stdout, "halyard %s\n", version.Info())
			}

			var status schema.DaemonStatus
			if err := params.Call(ctx, schema.ActionStatus, nil, &status); err != nil {
				fmt.Fprintf(stdout, "halyard-daemon: unreachable (%v)\n", err)
				return nil
			}
			fmt.Fprintf(stdout, "halyard-daemon %s, up %.0fs\n", status.Build, status.UptimeSeconds)
			if diff := version.Compare(version.Current(), status.Build); diff.Mismatch() {
				fmt.Fprintf(stderr, "warning: CLI and daemon builds differ (%s); restart halyard-daemon\n", diff)
			}
			return nil
		},
	}
}
