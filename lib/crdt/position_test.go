// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

import "testing"

func TestBetweenOrdering(t *testing.T) {
	tests := []struct {
		lower, upper string
	}{
		{"", ""},
		{"V", ""},
		{"", "V"},
		{"", "1"},
		{"V", "W"},
		{"VV", "W"},
		{"V1", "V2"},
		{"V05", "V1"},
		{"a", "az"},
		{"y", "z"},
	}
	for _, test := range tests {
		got, err := Between(test.lower, test.upper)
		if err != nil {
			t.Fatalf("Between(%q, %q): %v", test.lower, test.upper, err)
		}
		if test.lower != "" && got <= test.lower {
			t.Errorf("Between(%q, %q) = %q, not above lower", test.lower, test.upper, got)
		}
		if test.upper != "" && got >= test.upper {
			t.Errorf("Between(%q, %q) = %q, not below upper", test.lower, test.upper, got)
		}
		if err := validatePosition(got); err != nil {
			t.Errorf("Between(%q, %q) produced invalid key: %v", test.lower, test.upper, err)
		}
	}
}

func TestBetweenRepeatedInsertion(t *testing.T) {
	// Repeatedly inserting at the front and at the back must keep
	// producing strictly ordered keys.
	front, back := "V", "V"
	for i := 0; i < 200; i++ {
		next, err := Between("", front)
		if err != nil {
			t.Fatalf("front insert %d: %v", i, err)
		}
		if next >= front {
			t.Fatalf("front insert %d: %q not below %q", i, next, front)
		}
		front = next

		next, err = Between(back, "")
		if err != nil {
			t.Fatalf("back insert %d: %v", i, err)
		}
		if next <= back {
			t.Fatalf("back insert %d: %q not above %q", i, next, back)
		}
		back = next
	}
}

func TestBetweenRejectsInvalidInput(t *testing.T) {
	for _, test := range []struct{ lower, upper string }{
		{"b", "a"},
		{"a", "a"},
		{"a0", ""},
		{"", "a!"},
	} {
		if _, err := Between(test.lower, test.upper); err == nil {
			t.Errorf("Between(%q, %q) succeeded, want error", test.lower, test.upper)
		}
	}
}

func TestAfterGrowsLogarithmically(t *testing.T) {
	position := ""
	for i := range 10000 {
		next, err := After(position)
		if err != nil {
			t.Fatalf("append %d: After(%q): %v", i, position, err)
		}
		if next <= position {
			t.Fatalf("append %d: %q not above %q", i, next, position)
		}
		position = next
	}
	if len(position) > 4 {
		t.Errorf("position after 10000 appends = %q, want at most 4 characters", position)
	}
}

func TestAfterCarries(t *testing.T) {
	tests := []struct{ lower, want string }{
		{"", "10"},
		{"10", "11"},
		{"19", "1A"},
		{"1z", "210"},
		{"21z", "220"},
		{"2zz", "3100"},
	}
	for _, test := range tests {
		got, err := After(test.lower)
		if err != nil {
			t.Fatalf("After(%q): %v", test.lower, err)
		}
		if got != test.want {
			t.Errorf("After(%q) = %q, want %q", test.lower, got, test.want)
		}
	}
}

func TestAfterRejectsForeignPositions(t *testing.T) {
	for _, position := range []string{"V", "0a", "1ab", "2a!"} {
		if _, err := After(position); err == nil {
			t.Errorf("After(%q) succeeded, want error", position)
		}
	}
}
