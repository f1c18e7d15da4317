// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package crdt provides the convergent containers that make up a room
// document: a last-writer-wins [Register], a keyed [Map] with per-key
// last-writer-wins and tombstones, and an ordered [List] positioned by
// fractional keys ([Between]) or, for lists that only grow at the tail,
// by counting keys ([After]).
//
// Every write carries a [Stamp]. Containers apply writes by comparing
// stamps, never by arrival order, so any two replicas that have seen the
// same set of writes hold the same value regardless of the order in
// which those writes arrived. Containers are plain values with exported
// fields so a whole document encodes through lib/codec for snapshots and
// replica bootstrap.
//
// Containers are not safe for concurrent use. The owner (a relay room or
// a replica) serializes access.
package crdt
