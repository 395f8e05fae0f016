// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/halyard-chat/halyard/lib/config"
)

// CommonFlags holds the flag values shared by Halyard binaries. Bind
// them with [RegisterCommonFlags] before parsing.
type CommonFlags struct {
	ConfigPath  string
	SocketPath  string
	LogLevel    string
	ShowVersion bool
}

// RegisterCommonFlags binds [CommonFlags] fields to flagSet.
func RegisterCommonFlags(flagSet *pflag.FlagSet, flags *CommonFlags) {
	flagSet.StringVar(&flags.ConfigPath, "config", "", "path to halyard.yaml (default: $"+config.EnvVar+")")
	flagSet.StringVar(&flags.SocketPath, "socket", "", "daemon socket path (overrides daemon.socket_path)")
	flagSet.StringVar(&flags.LogLevel, "log-level", "", "debug, info, warn or error (overrides daemon.log_level)")
	flagSet.BoolVar(&flags.ShowVersion, "version", false, "print version information and exit")
}

// BootstrapResult is the configuration a binary runs with.
type BootstrapResult struct {
	Config     *config.Config
	Logger     *slog.Logger
	SocketPath string
}

// Bootstrap resolves the configuration named by flags, applies the
// flag overrides, validates it, and creates the data directories and
// the logger. Logs go to stderr as JSON.
func Bootstrap(flags CommonFlags) (*BootstrapResult, error) {
	return bootstrap(flags, os.Stderr)
}

func bootstrap(flags CommonFlags, logOutput io.Writer) (*BootstrapResult, error) {
	cfg, err := config.Resolve(flags.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.SocketPath != "" {
		cfg.Daemon.SocketPath = flags.SocketPath
	}
	if flags.LogLevel != "" {
		cfg.Daemon.LogLevel = flags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(logOutput, cfg.Daemon.LogLevel)
	if err != nil {
		return nil, err
	}
	return &BootstrapResult{
		Config:     cfg,
		Logger:     logger,
		SocketPath: cfg.Daemon.SocketPath,
	}, nil
}

// NewLogger creates the daemon logger: a JSON handler at the named
// level. It also becomes the default slog logger so library code
// falling back to slog.Default shares the handler.
func NewLogger(output io.Writer, level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: slogLevel,
	}))
	slog.SetDefault(logger)
	return logger, nil
}
