// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ErrorCategory classifies a command failure so scripts can decide
// between retrying, fixing input and giving up without parsing text.
// Each category has its own exit code.
type ErrorCategory string

const (
	// CategoryValidation: the input was wrong; fix it and retry.
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound: a referenced room, device or flow does not
	// exist.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryUnauthenticated: no session is logged in.
	CategoryUnauthenticated ErrorCategory = "unauthenticated"

	// CategoryConflict: the request does not fit the current state,
	// e.g. confirming a verification that has no emoji yet.
	CategoryConflict ErrorCategory = "conflict"

	// CategoryTransient: try again shortly. Covers a peer that has not
	// answered yet and a daemon that is not reachable.
	CategoryTransient ErrorCategory = "transient"

	// CategoryUpstream: the homeserver refused or failed the request.
	CategoryUpstream ErrorCategory = "upstream"

	// CategoryInternal: anything unexpected.
	CategoryInternal ErrorCategory = "internal"
)

// ExitCode is the process exit status for the category. Transient
// failures use EX_TEMPFAIL from sysexits.h.
func (c ErrorCategory) ExitCode() int {
	switch c {
	case CategoryValidation:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryUnauthenticated:
		return 4
	case CategoryConflict:
		return 5
	case CategoryUpstream:
		return 6
	case CategoryTransient:
		return 75
	default:
		return 1
	}
}

// ToolError is a categorized command error. Hint, when set, is printed
// under the error line.
type ToolError struct {
	Category ErrorCategory
	Err      error
	Hint     string
}

func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// WithHint sets the hint and returns e.
func (e *ToolError) WithHint(hint string) *ToolError {
	e.Hint = hint
	return e
}

// Validation creates a validation error.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}
