// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/halyard-chat/halyard/lib/poll"
)

// EnvVar names the environment variable [Load] reads the config path
// from.
const EnvVar = "HALYARD_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for installed desktops.
	Production Environment = "production"
)

// Config is the master configuration for halyard-daemon and the
// halyard CLI.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Daemon configures the session daemon and its socket.
	Daemon DaemonConfig `yaml:"daemon"`

	// Homeserver configures the protocol engine's connection.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Verification configures the SAS polling budgets.
	Verification VerificationConfig `yaml:"verification"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths        *PathsConfig        `yaml:"paths,omitempty"`
	Daemon       *DaemonConfig       `yaml:"daemon,omitempty"`
	Homeserver   *HomeserverConfig   `yaml:"homeserver,omitempty"`
	Verification *VerificationConfig `yaml:"verification,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Halyard data.
	Root string `yaml:"root"`

	// DataRoot holds one session directory per account. Everything in
	// it is removed at logout.
	// Default: ${HALYARD_ROOT}/sessions
	DataRoot string `yaml:"data_root"`
}

// DaemonConfig configures halyard-daemon.
type DaemonConfig struct {
	// SocketPath is the Unix socket the daemon listens on and the CLI
	// dials.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/halyard/daemon.sock
	SocketPath string `yaml:"socket_path"`

	// LogLevel is one of debug, info, warn, error.
	// Default: info
	LogLevel string `yaml:"log_level"`

	// SyncInterval is the pause between background syncs while a
	// session is logged in. "0s" turns background sync off.
	// Default: 5s
	SyncInterval string `yaml:"sync_interval"`
}

// HomeserverConfig configures homeserver access.
type HomeserverConfig struct {
	// RequestTimeout bounds one homeserver request, long-poll syncs
	// included.
	// Default: 60s
	RequestTimeout string `yaml:"request_timeout"`

	// WorkFactor is the scrypt work factor sealing the session
	// credentials with the login password. Zero uses the age default.
	WorkFactor int `yaml:"work_factor"`
}

// VerificationConfig configures how long verification calls wait on
// the peer device.
type VerificationConfig struct {
	// EmojiInterval and EmojiAttempts bound how long a request for the
	// emoji waits for the peer's key before reporting "not ready".
	// Default: 1s, 1
	EmojiInterval string `yaml:"emoji_interval"`
	EmojiAttempts int    `yaml:"emoji_attempts"`

	// CompletionInterval and CompletionAttempts bound how long a
	// confirmation waits for the peer to finish.
	// Default: 500ms, 20
	CompletionInterval string `yaml:"completion_interval"`
	CompletionAttempts int    `yaml:"completion_attempts"`
}

// Default returns the default configuration, applied before the config
// file is read.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "halyard")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:     defaultRoot,
			DataRoot: "${HALYARD_ROOT}/sessions",
		},
		Daemon: DaemonConfig{
			SocketPath:   "${XDG_RUNTIME_DIR:-/tmp}/halyard/daemon.sock",
			LogLevel:     "info",
			SyncInterval: "5s",
		},
		Homeserver: HomeserverConfig{
			RequestTimeout: "60s",
		},
		Verification: VerificationConfig{
			EmojiInterval:      "1s",
			EmojiAttempts:      1,
			CompletionInterval: "500ms",
			CompletionAttempts: 20,
		},
	}
}

// Load loads configuration from the file named by HALYARD_CONFIG.
// There is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your halyard.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; they are only consulted while
// expanding ${VAR} patterns in path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// Resolve loads path when set, then falls back to HALYARD_CONFIG, then
// to the defaults. It is meant for the CLI, which must work on a
// machine with no config file.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: quieter logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Daemon: &DaemonConfig{LogLevel: "warn"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.DataRoot != "" {
			c.Paths.DataRoot = overrides.Paths.DataRoot
		}
	}

	if overrides.Daemon != nil {
		if overrides.Daemon.SocketPath != "" {
			c.Daemon.SocketPath = overrides.Daemon.SocketPath
		}
		if overrides.Daemon.LogLevel != "" {
			c.Daemon.LogLevel = overrides.Daemon.LogLevel
		}
		if overrides.Daemon.SyncInterval != "" {
			c.Daemon.SyncInterval = overrides.Daemon.SyncInterval
		}
	}

	if overrides.Homeserver != nil {
		if overrides.Homeserver.RequestTimeout != "" {
			c.Homeserver.RequestTimeout = overrides.Homeserver.RequestTimeout
		}
		if overrides.Homeserver.WorkFactor != 0 {
			c.Homeserver.WorkFactor = overrides.Homeserver.WorkFactor
		}
	}

	if overrides.Verification != nil {
		v := overrides.Verification
		if v.EmojiInterval != "" {
			c.Verification.EmojiInterval = v.EmojiInterval
		}
		if v.EmojiAttempts != 0 {
			c.Verification.EmojiAttempts = v.EmojiAttempts
		}
		if v.CompletionInterval != "" {
			c.Verification.CompletionInterval = v.CompletionInterval
		}
		if v.CompletionAttempts != 0 {
			c.Verification.CompletionAttempts = v.CompletionAttempts
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HALYARD_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["HALYARD_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.DataRoot = expandVars(c.Paths.DataRoot, vars)
	c.Daemon.SocketPath = expandVars(c.Daemon.SocketPath, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var logLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	if c.Paths.DataRoot == "" {
		errs = append(errs, fmt.Errorf("paths.data_root is required"))
	}

	if c.Daemon.SocketPath == "" {
		errs = append(errs, fmt.Errorf("daemon.socket_path is required"))
	}
	if !contains(logLevels, c.Daemon.LogLevel) {
		errs = append(errs, fmt.Errorf("daemon.log_level must be one of: %v", logLevels))
	}

	if _, err := c.Daemon.BackgroundSync(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Homeserver.Timeout(); err != nil {
		errs = append(errs, err)
	}
	if c.Homeserver.WorkFactor < 0 || c.Homeserver.WorkFactor > 30 {
		errs = append(errs, fmt.Errorf("homeserver.work_factor must be between 0 and 30"))
	}

	if _, err := c.Verification.EmojiPolicy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Verification.CompletionPolicy(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
// Session data is private to the user.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.DataRoot, filepath.Dir(c.Daemon.SocketPath)} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// BackgroundSync parses SyncInterval. Zero means background sync is
// off.
func (d DaemonConfig) BackgroundSync() (time.Duration, error) {
	interval, err := time.ParseDuration(d.SyncInterval)
	if err != nil {
		return 0, fmt.Errorf("daemon.sync_interval: %w", err)
	}
	if interval < 0 {
		return 0, fmt.Errorf("daemon.sync_interval must not be negative, got %s", d.SyncInterval)
	}
	return interval, nil
}

// Timeout parses RequestTimeout.
func (h HomeserverConfig) Timeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(h.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("homeserver.request_timeout: %w", err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("homeserver.request_timeout must be positive, got %s", h.RequestTimeout)
	}
	return timeout, nil
}

// EmojiPolicy returns the polling policy for emoji retrieval.
func (v VerificationConfig) EmojiPolicy() (poll.Policy, error) {
	return parsePolicy("verification.emoji", v.EmojiInterval, v.EmojiAttempts)
}

// CompletionPolicy returns the polling policy for completion after a
// confirmation.
func (v VerificationConfig) CompletionPolicy() (poll.Policy, error) {
	return parsePolicy("verification.completion", v.CompletionInterval, v.CompletionAttempts)
}

func parsePolicy(field, interval string, attempts int) (poll.Policy, error) {
	duration, err := time.ParseDuration(interval)
	if err != nil {
		return poll.Policy{}, fmt.Errorf("%s_interval: %w", field, err)
	}
	policy := poll.Policy{Interval: duration, MaxAttempts: attempts}
	if err := policy.Validate(); err != nil {
		return poll.Policy{}, fmt.Errorf("%s: %w", field, err)
	}
	return policy, nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
