// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"
)

// ExitError requests a non-zero exit without printing an error line;
// the command has already written its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the requested code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExitCode maps a command's error to a process exit code: 0 for nil,
// the code of an *ExitError, the category code of a *ToolError, and 1
// otherwise. The second result reports whether the error still needs
// printing.
func ExitCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Category.ExitCode(), true
	}
	return 1, true
}
