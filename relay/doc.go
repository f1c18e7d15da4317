// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay is the in-process room relay: it owns every room's
// authoritative document, commits transactions, tracks presence and
// fans out two kinds of traffic.
//
// The change feed carries every committed [document.Change] and every
// presence update. It is reliable per subscriber up to a bounded buffer;
// a subscriber that falls behind is flagged for resync and must reload
// the room view.
//
// The [Bus] carries ephemeral [schema.RoomEvent] values (AI chunks,
// cancellations, tool requests). It is lossy by design: an event reaches
// only subscriptions open at publish time and is dropped for any
// subscriber whose buffer is full.
//
// [Room.Mutate] is the single write path. The transaction function runs
// under the room lock against the committed document, so a function
// that checks a value and then writes is a compare-and-set.
//
// A [Hub] may persist rooms through a [snapshot.Store]; snapshots are
// flushed periodically by [Hub.Run] and on shutdown.
package relay
