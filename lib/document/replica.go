// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package document

import (
	"fmt"
	"sync"

	"github.com/nexus-goc/commandroom/lib/schema"
)

// Change is one committed transaction as published by a relay room.
// Version increases by one per commit within a room.
type Change struct {
	Version uint64 `json:"version"`
	Actor   string `json:"actor"`
	Ops     []Op   `json:"ops"`
}

// Replica is a read-mostly copy of a room document kept current from a
// change feed. Changes may arrive late, twice or out of order; the
// replica still converges with the relay once it has seen every change.
// Safe for concurrent use.
type Replica struct {
	mu       sync.RWMutex
	document *Document
	version  uint64
}

// NewReplica bootstraps a replica from an encoded document at version.
func NewReplica(encoded []byte, version uint64) (*Replica, error) {
	document, err := Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("document: decoding replica snapshot: %w", err)
	}
	return &Replica{document: document, version: version}, nil
}

// Apply merges a change. Version only tracks the highest change seen;
// it does not gate application.
func (r *Replica) Apply(change Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.document.ApplyAll(change.Ops); err != nil {
		return fmt.Errorf("document: applying change %d: %w", change.Version, err)
	}
	if change.Version > r.version {
		r.version = change.Version
	}
	return nil
}

// Version returns the highest change version applied.
func (r *Replica) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// State returns the replica's current values.
func (r *Replica) State() schema.RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.document.State()
}
