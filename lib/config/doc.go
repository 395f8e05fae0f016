// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for halyard-daemon
// and the halyard CLI.
//
// The daemon loads a single file named either by the HALYARD_CONFIG
// environment variable (via [Load]) or by its --config flag (via
// [LoadFile]). There is no ~/.config discovery and no automatic file
// search. The CLI uses [Resolve], which falls back to [Default] so that
// it can find the daemon socket without a config file.
//
// The configuration file supports environment-specific sections
// (development, production) that override base values when
// [Config].Environment matches. Production defaults to warn-level
// daemon logs.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${HALYARD_ROOT}, and ${VAR:-default} patterns are expanded.
// No other environment variables override config values.
//
// Durations and attempt counts of the verification polling are kept as
// strings in the file and converted to [poll.Policy] values by
// [VerificationConfig.EmojiPolicy] and
// [VerificationConfig.CompletionPolicy].
package config
