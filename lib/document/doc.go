// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package document implements a command room's shared document: a fixed
// tree of convergent containers from lib/crdt, the operations that
// mutate it, and transactions that batch operations atomically.
//
// Every mutation is an [Op] stamped with a Lamport stamp. [Document.ApplyAll]
// decodes and validates a whole batch before mutating anything, so a
// batch applies completely or not at all. Ops encode through lib/codec,
// which lets a relay ship them to a [Replica]; replicas converge with
// the relay regardless of delivery order because every container merges
// by stamp.
//
// A [Tx] reads the committed document and buffers writes as ops. The
// relay commits a transaction by applying its ops under the room lock,
// which makes "read, decide, write" inside one transaction the
// compare-and-set primitive the room layer builds on.
package document
