// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/halyard-chat/halyard/desk"
	"github.com/halyard-chat/halyard/lib/config"
	"github.com/halyard-chat/halyard/lib/service"
)

// SocketEnvVar overrides the daemon socket path for every command.
const SocketEnvVar = "HALYARD_SOCKET"

// DaemonConnection is the parameter every daemon-backed command embeds.
// The socket comes from --socket, then HALYARD_SOCKET, then the
// configuration file.
type DaemonConnection struct {
	SocketPath string
	ConfigPath string
	Timeout    time.Duration
}

// AddFlags registers --socket, --config and --timeout.
func (d *DaemonConnection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&d.SocketPath, "socket", os.Getenv(SocketEnvVar), "halyard-daemon socket path")
	flagSet.StringVar(&d.ConfigPath, "config", "", "configuration file (default $"+config.EnvVar+")")
	flagSet.DurationVar(&d.Timeout, "timeout", service.DefaultCallTimeout, "how long to wait for the daemon to answer")
}

// Client returns a socket client for the resolved daemon socket.
func (d *DaemonConnection) Client() (*service.Client, error) {
	socketPath := d.SocketPath
	if socketPath == "" {
		cfg, err := config.Resolve(d.ConfigPath)
		if err != nil {
			return nil, Validation("loading configuration: %w", err)
		}
		socketPath = cfg.Daemon.SocketPath
	}
	client := service.NewClient(socketPath)
	client.Timeout = d.Timeout
	return client, nil
}

// Call invokes action on the daemon and classifies failures. Session
// errors come back as a *ToolError wrapping a *desk.Error, so
// desk.IsTransient and desk.IsKind work on the result.
func (d *DaemonConnection) Call(ctx context.Context, action string, fields, result any) error {
	client, err := d.Client()
	if err != nil {
		return err
	}
	return ClassifyCallError(client.SocketPath(), client.Call(ctx, action, fields, result))
}

// ClassifyCallError converts an error from service.Client.Call into a
// *ToolError. Nil stays nil.
func ClassifyCallError(socketPath string, err error) error {
	if err == nil {
		return nil
	}

	var remote *service.RemoteError
	if errors.As(err, &remote) {
		if deskErr, ok := desk.FromWire(remote.Message); ok {
			return &ToolError{Category: categoryForKind(deskErr.Kind), Err: deskErr}
		}
		return Internal("daemon: %s", remote.Message)
	}

	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, syscall.ECONNREFUSED):
		return Transient("halyard-daemon is not running at %s", socketPath).
			WithHint("Start it with 'halyard-daemon' or point --socket at a running daemon.")
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		return Internal("permission denied on %s", socketPath).
			WithHint("The daemon socket is private to the user that started halyard-daemon.")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return Transient("halyard-daemon did not answer in time: %w", err)
	}
	return Internal("%w", err)
}

func categoryForKind(kind desk.Kind) ErrorCategory {
	switch kind {
	case desk.InvalidInput, desk.InvalidRoom:
		return CategoryValidation
	case desk.RoomNotFound, desk.NoOtherDevices, desk.NoActiveVerification, desk.VerificationNotFound:
		return CategoryNotFound
	case desk.NotLoggedIn:
		return CategoryUnauthenticated
	case desk.InvalidTransition, desk.VerificationCancelled, desk.NoDeviceAccepted,
		desk.SasUnavailable, desk.CrossSigningUnavailable:
		return CategoryConflict
	case desk.WaitingForPeer, desk.EmojiNotReady:
		return CategoryTransient
	case desk.LoginFailed, desk.SyncFailed, desk.SendFailed, desk.FetchFailed,
		desk.LogoutIncomplete, desk.RecoveryFailed, desk.VerificationFailed:
		return CategoryUpstream
	}
	return CategoryInternal
}
