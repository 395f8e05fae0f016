// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a Manager failure. The string form travels on the
// daemon socket as the prefix of the error message.
type Kind string

const (
	InvalidInput            Kind = "InvalidInput"
	NotLoggedIn             Kind = "NotLoggedIn"
	InvalidRoom             Kind = "InvalidRoom"
	RoomNotFound            Kind = "RoomNotFound"
	LoginFailed             Kind = "LoginFailed"
	SyncFailed              Kind = "SyncFailed"
	SendFailed              Kind = "SendFailed"
	FetchFailed             Kind = "FetchFailed"
	LogoutIncomplete        Kind = "LogoutIncomplete"
	RecoveryFailed          Kind = "RecoveryFailed"
	NoOtherDevices          Kind = "NoOtherDevices"
	NoDeviceAccepted        Kind = "NoDeviceAccepted"
	NoActiveVerification    Kind = "NoActiveVerification"
	VerificationCancelled   Kind = "VerificationCancelled"
	VerificationNotFound    Kind = "VerificationNotFound"
	VerificationFailed      Kind = "VerificationFailed"
	WaitingForPeer          Kind = "WaitingForPeer"
	EmojiNotReady           Kind = "EmojiNotReady"
	InvalidTransition       Kind = "InvalidTransition"
	SasUnavailable          Kind = "SasUnavailable"
	CrossSigningUnavailable Kind = "CrossSigningUnavailable"
)

// knownKinds lists every Kind so ParseKind can reject unknown prefixes.
var knownKinds = []Kind{
	InvalidInput, NotLoggedIn, InvalidRoom, RoomNotFound, LoginFailed,
	SyncFailed, SendFailed, FetchFailed, LogoutIncomplete, RecoveryFailed,
	NoOtherDevices, NoDeviceAccepted, NoActiveVerification,
	VerificationCancelled, VerificationNotFound, VerificationFailed,
	WaitingForPeer, EmojiNotReady, InvalidTransition, SasUnavailable,
	CrossSigningUnavailable,
}

// ParseKind returns the Kind named by s.
func ParseKind(s string) (Kind, bool) {
	for _, kind := range knownKinds {
		if string(kind) == s {
			return kind, true
		}
	}
	return "", false
}

// Error is the error type of every Manager operation. Message is the
// user-facing text; Err, when set, is the underlying cause.
//
// errors.Is matches two *Error values by Kind alone, so callers can
// test against a bare kind:
//
//	if errors.Is(err, &desk.Error{Kind: desk.WaitingForPeer}) { ... }
//
// or, more conveniently, with [IsKind].
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

// Transient reports whether retrying the same call later can succeed
// without any other action.
func (e *Error) Transient() bool {
	return e.Kind == WaitingForPeer || e.Kind == EmojiNotReady
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var deskErr *Error
	if errors.As(err, &deskErr) {
		return deskErr.Kind
	}
	return ""
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// IsTransient reports whether err is a transient *Error.
func IsTransient(err error) bool {
	var deskErr *Error
	return errors.As(err, &deskErr) && deskErr.Transient()
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WireMessage formats err for the daemon socket as "<Kind>: <text>".
// Errors without a Kind are sent as their plain text.
func WireMessage(err error) string {
	var deskErr *Error
	if !errors.As(err, &deskErr) {
		return err.Error()
	}
	return string(deskErr.Kind) + ": " + err.Error()
}

// FromWire parses a WireMessage back into an *Error whose Message is
// the transmitted text. It reports false when message does not start
// with a known Kind.
func FromWire(message string) (*Error, bool) {
	prefix, text, found := strings.Cut(message, ": ")
	if !found {
		return nil, false
	}
	kind, ok := ParseKind(prefix)
	if !ok {
		return nil, false
	}
	return &Error{Kind: kind, Message: text}, true
}
