// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package room

import (
	"errors"
	"fmt"
)

// Kind classifies a room error. Kinds are stable strings: the service
// daemon sends them to clients as the response code.
type Kind string

const (
	KindPermissionDenied     Kind = "permission_denied"
	KindAlreadyGenerating    Kind = "already_generating"
	KindGenerationTimeout    Kind = "generation_timeout"
	KindToolExecutionTimeout Kind = "tool_execution_timeout"
	KindProviderError        Kind = "provider_error"
	KindConflict             Kind = "conflict"
	KindInvalidArgument      Kind = "invalid_argument"
	KindNotFound             Kind = "not_found"
	KindSessionClosed        Kind = "session_closed"
)

// Error is a classified failure of a room operation. Callers use
// errors.As or [IsKind] to branch on the kind:
//
//	if room.IsKind(err, room.KindAlreadyGenerating) { ... }
type Error struct {
	Kind    Kind
	Room    string
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	text := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Room != "" {
		text = "room " + e.Room + ": " + text
	}
	if e.Err != nil {
		text += ": " + e.Err.Error()
	}
	return text
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode returns the kind as a wire code.
func (e *Error) ErrorCode() string { return string(e.Kind) }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var roomErr *Error
	if errors.As(err, &roomErr) {
		return roomErr.Kind == kind
	}
	return false
}

func newError(kind Kind, roomID, format string, args ...any) *Error {
	return &Error{Kind: kind, Room: roomID, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, roomID string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Room: roomID, Message: fmt.Sprintf(format, args...), Err: err}
}
