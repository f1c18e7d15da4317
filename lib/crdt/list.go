// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

import (
	"fmt"
	"sort"
)

// ListElement is one element of a [List]. Position and value are
// independent registers so a concurrent move and update both survive.
// An element may exist before its insert has been seen (a move, update
// or delete arrived first); it becomes visible once inserted and stays
// invisible forever once deleted.
type ListElement[T any] struct {
	ID       string           `json:"id"`
	Inserter string           `json:"inserter,omitempty"`
	Inserted bool             `json:"inserted,omitempty"`
	Deleted  bool             `json:"deleted,omitempty"`
	Position Register[string] `json:"position"`
	Value    Register[T]      `json:"value"`
}

func (e *ListElement[T]) visible() bool {
	return e.Inserted && !e.Deleted
}

// List is an ordered list of uniquely identified elements. Order is by
// (position, inserting actor, element id): two concurrent inserts that
// picked the same position converge to the same relative order on every
// replica.
type List[T any] struct {
	Elements map[string]*ListElement[T] `json:"elements"`
}

// NewList returns an empty list.
func NewList[T any]() List[T] {
	return List[T]{Elements: make(map[string]*ListElement[T])}
}

func (l *List[T]) element(id string) *ListElement[T] {
	if l.Elements == nil {
		l.Elements = make(map[string]*ListElement[T])
	}
	element, ok := l.Elements[id]
	if !ok {
		element = &ListElement[T]{ID: id}
		l.Elements[id] = element
	}
	return element
}

// Insert adds element id at position. Re-delivering the same insert is
// harmless: position and value are registers and apply by stamp.
func (l *List[T]) Insert(id, position string, value T, stamp Stamp) error {
	if id == "" {
		return fmt.Errorf("crdt: list insert with empty element id")
	}
	if position == "" {
		return fmt.Errorf("crdt: list insert of %q with empty position", id)
	}
	element := l.element(id)
	if !element.Inserted {
		element.Inserted = true
		element.Inserter = stamp.Actor
	}
	element.Position.Set(position, stamp)
	element.Value.Set(value, stamp)
	return nil
}

// Append inserts element id into a list that is only ever appended
// to. An appended element is immutable: a second append of the same id
// changes nothing, except that of two appends of one id the one with
// the lower stamp is kept, so replicas agree whatever order the appends
// arrive in. It reports whether the element changed.
func (l *List[T]) Append(id, position string, value T, stamp Stamp) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("crdt: list append with empty element id")
	}
	if position == "" {
		return false, fmt.Errorf("crdt: list append of %q with empty position", id)
	}
	element := l.element(id)
	if element.Inserted && stamp.Compare(element.Value.Stamp) >= 0 {
		return false, nil
	}
	element.Inserted = true
	element.Inserter = stamp.Actor
	element.Position = Register[string]{Value: position, Stamp: stamp}
	element.Value = Register[T]{Value: value, Stamp: stamp}
	return true, nil
}

// Move changes the position of element id.
func (l *List[T]) Move(id, position string, stamp Stamp) error {
	if position == "" {
		return fmt.Errorf("crdt: list move of %q with empty position", id)
	}
	l.element(id).Position.Set(position, stamp)
	return nil
}

// Update replaces the value of element id.
func (l *List[T]) Update(id string, value T, stamp Stamp) {
	l.element(id).Value.Set(value, stamp)
}

// Delete tombstones element id. Deleting an absent or already-deleted
// element is a no-op that still records the tombstone; it reports
// whether a visible element was removed.
func (l *List[T]) Delete(id string) bool {
	element := l.element(id)
	wasVisible := element.visible()
	element.Deleted = true
	return wasVisible
}

// Get returns the value of a visible element.
func (l *List[T]) Get(id string) (T, bool) {
	element, ok := l.Elements[id]
	if !ok || !element.visible() {
		var zero T
		return zero, false
	}
	return element.Value.Value, true
}

// Contains reports whether id is visible.
func (l *List[T]) Contains(id string) bool {
	element, ok := l.Elements[id]
	return ok && element.visible()
}

// Ordered returns the visible elements in list order.
func (l *List[T]) Ordered() []*ListElement[T] {
	elements := make([]*ListElement[T], 0, len(l.Elements))
	for _, element := range l.Elements {
		if element.visible() {
			elements = append(elements, element)
		}
	}
	sort.Slice(elements, func(i, j int) bool {
		a, b := elements[i], elements[j]
		if a.Position.Value != b.Position.Value {
			return a.Position.Value < b.Position.Value
		}
		if a.Inserter != b.Inserter {
			return a.Inserter < b.Inserter
		}
		return a.ID < b.ID
	})
	return elements
}

// Values returns the visible values in list order.
func (l *List[T]) Values() []T {
	ordered := l.Ordered()
	values := make([]T, len(ordered))
	for i, element := range ordered {
		values[i] = element.Value.Value
	}
	return values
}

// Len returns the number of visible elements.
func (l *List[T]) Len() int {
	count := 0
	for _, element := range l.Elements {
		if element.visible() {
			count++
		}
	}
	return count
}

// PositionAt returns a position that places a new element at visible
// index (0 is the front, Len() or larger is the back), ignoring the
// element named by exclude so a move can compute its own target. When
// several elements share the position just below the target, the new
// position lands after all of them.
func (l *List[T]) PositionAt(index int, exclude string) (string, error) {
	ordered := l.Ordered()
	if exclude != "" {
		filtered := ordered[:0:0]
		for _, element := range ordered {
			if element.ID != exclude {
				filtered = append(filtered, element)
			}
		}
		ordered = filtered
	}
	if index < 0 {
		index = 0
	}
	if index > len(ordered) {
		index = len(ordered)
	}

	lower := ""
	if index > 0 {
		lower = ordered[index-1].Position.Value
	}
	upper := ""
	for _, element := range ordered[index:] {
		if element.Position.Value > lower {
			upper = element.Position.Value
			break
		}
	}
	return Between(lower, upper)
}

// Tail returns the greatest visible position, or "" for an empty list.
func (l *List[T]) Tail() string {
	tail := ""
	for _, element := range l.Elements {
		if element.visible() && element.Position.Value > tail {
			tail = element.Position.Value
		}
	}
	return tail
}
