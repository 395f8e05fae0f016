// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-line framework of the halyard CLI.
//
// The central type is [Command]: a named node with optional
// [Command.Subcommands], a [pflag.FlagSet] factory and a Run function.
// The tree is assembled in cmd/halyard and dispatched with
// [Command.Execute], which parses flags, routes subcommands, prints
// help and suggests the closest name for a mistyped command or flag.
//
// Command parameters are plain structs whose fields carry flag, desc
// and default tags; [FlagsFromParams] binds them. [DaemonConnection]
// is the parameter every command embeds to reach halyard-daemon, and
// it turns the daemon's error strings back into categorized
// [ToolError] values that keep the session-layer error kind.
package cli
