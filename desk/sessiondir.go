// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sanitizeAccount turns a login name into a single path component:
// "@alice:example.org" becomes "alice_example.org".
func sanitizeAccount(username string) string {
	name := strings.ReplaceAll(username, "@", "")
	return strings.NewReplacer(":", "_", "/", "_", `\`, "_").Replace(name)
}

// sessionDir is a freshly created per-account directory that is removed
// again unless the login that needed it commits.
type sessionDir struct {
	path      string
	committed bool
}

// sessionDirPath returns the per-account directory under dataRoot.
func sessionDirPath(dataRoot, username string) (string, error) {
	name := sanitizeAccount(username)
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("account name %q does not map to a directory", username)
	}
	return filepath.Join(dataRoot, name), nil
}

// acquireSessionDir removes whatever a previous login left at path and
// creates an empty directory in its place.
func acquireSessionDir(path string) (*sessionDir, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("clearing old session %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating session directory %s: %w", path, err)
	}
	return &sessionDir{path: path}, nil
}

// Path returns the directory path.
func (d *sessionDir) Path() string { return d.path }

// Commit keeps the directory past Release.
func (d *sessionDir) Commit() { d.committed = true }

// Release removes the directory unless it was committed.
func (d *sessionDir) Release() error {
	if d.committed {
		return nil
	}
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("removing session directory %s: %w", d.path, err)
	}
	return nil
}
