// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

import "sort"

// MapEntry is one key of a [Map]. Removed keys stay as tombstones so a
// stale put cannot resurrect them.
type MapEntry[V any] struct {
	Value   V     `json:"value"`
	Stamp   Stamp `json:"stamp"`
	Removed bool  `json:"removed,omitempty"`
}

// Map is a keyed map with independent last-writer-wins per key. Values
// are replaced whole; two writers never merge fields within one key.
type Map[V any] struct {
	Entries map[string]MapEntry[V] `json:"entries"`
}

// NewMap returns an empty map.
func NewMap[V any]() Map[V] {
	return Map[V]{Entries: make(map[string]MapEntry[V])}
}

// Put writes key. Returns whether the write won.
func (m *Map[V]) Put(key string, value V, stamp Stamp) bool {
	return m.write(key, MapEntry[V]{Value: value, Stamp: stamp})
}

// Remove tombstones key. Removing an absent key records the tombstone
// anyway, so a concurrent older put stays removed.
func (m *Map[V]) Remove(key string, stamp Stamp) bool {
	return m.write(key, MapEntry[V]{Stamp: stamp, Removed: true})
}

func (m *Map[V]) write(key string, entry MapEntry[V]) bool {
	if m.Entries == nil {
		m.Entries = make(map[string]MapEntry[V])
	}
	if existing, ok := m.Entries[key]; ok && !entry.Stamp.After(existing.Stamp) {
		return false
	}
	m.Entries[key] = entry
	return true
}

// Get returns the live value for key.
func (m *Map[V]) Get(key string) (V, bool) {
	entry, ok := m.Entries[key]
	if !ok || entry.Removed {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Keys returns the live keys in sorted order.
func (m *Map[V]) Keys() []string {
	keys := make([]string, 0, len(m.Entries))
	for key, entry := range m.Entries {
		if !entry.Removed {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of live keys.
func (m *Map[V]) Len() int {
	count := 0
	for _, entry := range m.Entries {
		if !entry.Removed {
			count++
		}
	}
	return count
}
