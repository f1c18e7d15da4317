// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import "errors"

var (
	// ErrRoomNotFound is returned for operations on a room id the hub
	// does not hold.
	ErrRoomNotFound = errors.New("relay: room not found")

	// ErrRoomClosed is returned by operations on a room that has been
	// deleted.
	ErrRoomClosed = errors.New("relay: room closed")

	// ErrConflict is returned by transaction functions whose
	// precondition no longer holds. Callers re-read and retry.
	ErrConflict = errors.New("relay: compare-and-set conflict")
)
