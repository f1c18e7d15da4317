// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

import (
	"reflect"
	"testing"
)

type listOp struct {
	kind     string
	id       string
	position string
	value    string
	stamp    Stamp
}

func applyListOp(t *testing.T, list *List[string], op listOp) {
	t.Helper()
	switch op.kind {
	case "insert":
		if err := list.Insert(op.id, op.position, op.value, op.stamp); err != nil {
			t.Fatalf("Insert(%s): %v", op.id, err)
		}
	case "move":
		if err := list.Move(op.id, op.position, op.stamp); err != nil {
			t.Fatalf("Move(%s): %v", op.id, err)
		}
	case "update":
		list.Update(op.id, op.value, op.stamp)
	case "delete":
		list.Delete(op.id)
	}
}

func TestListConvergesUnderPermutedDelivery(t *testing.T) {
	ops := []listOp{
		{kind: "insert", id: "a", position: "V", value: "scout", stamp: Stamp{1, "alice"}},
		{kind: "insert", id: "b", position: "l", value: "build", stamp: Stamp{2, "bob"}},
		{kind: "insert", id: "c", position: "l", value: "gather", stamp: Stamp{2, "alice"}},
		{kind: "move", id: "a", position: "z", stamp: Stamp{3, "bob"}},
		{kind: "update", id: "b", value: "build walls", stamp: Stamp{4, "carol"}},
		{kind: "delete", id: "c"},
		{kind: "insert", id: "d", position: "G", value: "rest", stamp: Stamp{5, "carol"}},
	}
	want := []string{"rest", "build walls", "scout"}

	permutations := [][]int{
		{0, 1, 2, 3, 4, 5, 6},
		{6, 5, 4, 3, 2, 1, 0},
		{3, 4, 5, 0, 6, 2, 1},
		{5, 2, 0, 4, 1, 6, 3},
	}
	for _, order := range permutations {
		list := NewList[string]()
		for _, index := range order {
			applyListOp(t, &list, ops[index])
		}
		if got := list.Values(); !reflect.DeepEqual(got, want) {
			t.Errorf("order %v: Values = %v, want %v", order, got, want)
		}
	}
}

func TestListConcurrentInsertTieBreakByIdentity(t *testing.T) {
	first := NewList[string]()
	second := NewList[string]()

	fromBob := listOp{kind: "insert", id: "x", position: "V", value: "bob", stamp: Stamp{1, "bob"}}
	fromAlice := listOp{kind: "insert", id: "y", position: "V", value: "alice", stamp: Stamp{1, "alice"}}

	applyListOp(t, &first, fromBob)
	applyListOp(t, &first, fromAlice)
	applyListOp(t, &second, fromAlice)
	applyListOp(t, &second, fromBob)

	want := []string{"alice", "bob"}
	if got := first.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("first replica = %v, want %v", got, want)
	}
	if got := second.Values(); !reflect.DeepEqual(got, want) {
		t.Errorf("second replica = %v, want %v", got, want)
	}
}

func TestListDeleteIsIdempotent(t *testing.T) {
	list := NewList[string]()
	if err := list.Insert("a", "V", "one", Stamp{1, "alice"}); err != nil {
		t.Fatal(err)
	}
	if !list.Delete("a") {
		t.Fatal("first delete reported nothing removed")
	}
	if list.Delete("a") {
		t.Fatal("second delete reported a removal")
	}
	if list.Delete("never-existed") {
		t.Fatal("deleting an unknown id reported a removal")
	}
	// A late redelivery of the insert must not resurrect the element.
	if err := list.Insert("a", "V", "one", Stamp{1, "alice"}); err != nil {
		t.Fatal(err)
	}
	if list.Len() != 0 {
		t.Fatalf("Len = %d after delete and redelivered insert, want 0", list.Len())
	}
}

func TestListPositionAt(t *testing.T) {
	list := NewList[string]()
	stamp := uint64(0)
	insertAt := func(index int, id string) {
		t.Helper()
		position, err := list.PositionAt(index, "")
		if err != nil {
			t.Fatalf("PositionAt(%d): %v", index, err)
		}
		stamp++
		if err := list.Insert(id, position, id, Stamp{stamp, "alice"}); err != nil {
			t.Fatal(err)
		}
	}
	insertAt(0, "b")
	insertAt(0, "a")
	insertAt(5, "d")
	insertAt(2, "c")

	if got, want := list.Values(), []string{"a", "b", "c", "d"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Values = %v, want %v", got, want)
	}

	// Move "d" to the front, excluding itself from the computation.
	position, err := list.PositionAt(0, "d")
	if err != nil {
		t.Fatal(err)
	}
	stamp++
	if err := list.Move("d", position, Stamp{stamp, "bob"}); err != nil {
		t.Fatal(err)
	}
	if got, want := list.Values(), []string{"d", "a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("after move Values = %v, want %v", got, want)
	}
}

func TestListPositionAtSkipsTiedPositions(t *testing.T) {
	list := NewList[string]()
	_ = list.Insert("x", "V", "x", Stamp{1, "alice"})
	_ = list.Insert("y", "V", "y", Stamp{1, "bob"})

	position, err := list.PositionAt(1, "")
	if err != nil {
		t.Fatalf("PositionAt between tied elements: %v", err)
	}
	if position <= "V" {
		t.Fatalf("position %q does not sort after the tied pair", position)
	}
}

func TestListAppendKeepsFirstInsert(t *testing.T) {
	list := NewList[string]()
	if changed, err := list.Append("m1", "10", "original", Stamp{1, "alice"}); err != nil || !changed {
		t.Fatalf("Append = %v, %v", changed, err)
	}
	if _, err := list.Append("m2", "11", "second", Stamp{2, "alice"}); err != nil {
		t.Fatal(err)
	}
	if changed, _ := list.Append("m1", "12", "rewritten", Stamp{3, "bob"}); changed {
		t.Error("a later append replaced an appended element")
	}
	if got := list.Values(); !reflect.DeepEqual(got, []string{"original", "second"}) {
		t.Fatalf("values = %v", got)
	}

	// A racing append with a lower stamp wins on every replica.
	if changed, _ := list.Append("m1", "10", "earlier", Stamp{1, "aaron"}); !changed {
		t.Error("lower-stamped append was not kept")
	}
	if value, _ := list.Get("m1"); value != "earlier" {
		t.Errorf("m1 = %q, want %q", value, "earlier")
	}
}
