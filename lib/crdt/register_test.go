// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

import "testing"

func TestRegisterLastWriterWins(t *testing.T) {
	writes := []struct {
		value string
		stamp Stamp
	}{
		{"one", Stamp{1, "alice"}},
		{"three-bob", Stamp{3, "bob"}},
		{"three-alice", Stamp{3, "alice"}},
		{"two", Stamp{2, "carol"}},
	}
	// Every permutation of the four writes must land on the same value.
	permutations := [][]int{
		{0, 1, 2, 3}, {3, 2, 1, 0}, {2, 0, 3, 1}, {1, 3, 0, 2}, {2, 3, 1, 0},
	}
	for _, order := range permutations {
		register := NewRegister("default")
		for _, index := range order {
			register.Set(writes[index].value, writes[index].stamp)
		}
		if got := register.Get(); got != "three-bob" {
			t.Errorf("order %v converged to %q, want three-bob", order, got)
		}
	}
}

func TestRegisterDefaultLosesToAnyWrite(t *testing.T) {
	register := NewRegister(42)
	if !register.Set(7, Stamp{1, "a"}) {
		t.Fatal("first stamped write was rejected")
	}
	if register.Set(9, Stamp{1, "a"}) {
		t.Fatal("write with an equal stamp was accepted")
	}
	if register.Get() != 7 {
		t.Fatalf("Get = %d, want 7", register.Get())
	}
}
