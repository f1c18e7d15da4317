// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the value types stored in a command room's
// shared document and the shapes of the ephemeral room events broadcast
// alongside it.
//
// Document values:
//
//   - [AIConfig] and [AIConfigPatch] -- the controller-gated AI settings
//   - [Todo] -- one entry of the ordered todo board
//   - [PlayerNote] -- a per-identity scratch note
//   - [Message] -- one append-only conversation entry
//   - [StreamingSlot] -- the single in-flight assistant response
//   - [Intel] -- the latest shared image artifact
//   - [ToolLog] -- the durable outcome of one tool run
//
// [RoomState] is the plain read view of a whole document. [Mode] is the
// closed set of assistant modes; [Mode.Behavior] is the only place that
// maps a mode to divergent behavior.
//
// Room events ([RoomEvent]) are rendering and dispatch hints. Nothing in
// an event is needed to reconstruct document state.
//
// Field names use camelCase JSON tags; lib/codec honors them for CBOR.
//
// This package depends only on lib/identity.
package schema
