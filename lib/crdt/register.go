// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

// Register holds a single last-writer-wins value. The zero Register holds
// the zero value of T with a zero stamp, so any stamped write replaces it.
type Register[T any] struct {
	Value T     `json:"value"`
	Stamp Stamp `json:"stamp"`
}

// NewRegister returns a register initialized to value with a zero stamp.
// Used for document defaults: the first real write always wins.
func NewRegister[T any](value T) Register[T] {
	return Register[T]{Value: value}
}

// Set applies a write. It reports whether the write won; a write whose
// stamp does not beat the current one is discarded.
func (r *Register[T]) Set(value T, stamp Stamp) bool {
	if !stamp.After(r.Stamp) {
		return false
	}
	r.Value = value
	r.Stamp = stamp
	return true
}

// Get returns the current value.
func (r *Register[T]) Get() T {
	return r.Value
}
