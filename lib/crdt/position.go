// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

import (
	"fmt"
	"strings"
)

// positionDigits are the base-62 digits in ascending byte order, so
// positions compare correctly as plain strings.
const positionDigits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// Between returns a position key strictly between lower and upper. An
// empty lower means "before everything", an empty upper means "after
// everything". Valid keys are non-empty base-62 strings that do not end
// in the lowest digit; Between only ever produces such keys, which
// guarantees there is always room for another key between two distinct
// ones.
func Between(lower, upper string) (string, error) {
	if upper != "" && lower >= upper {
		return "", fmt.Errorf("crdt: position %q is not below %q", lower, upper)
	}
	if err := validatePosition(lower); err != nil {
		return "", err
	}
	if err := validatePosition(upper); err != nil {
		return "", err
	}
	return midpoint(lower, upper), nil
}

func validatePosition(position string) error {
	if position == "" {
		return nil
	}
	if position[len(position)-1] == positionDigits[0] {
		return fmt.Errorf("crdt: position %q ends in the zero digit", position)
	}
	for i := 0; i < len(position); i++ {
		if strings.IndexByte(positionDigits, position[i]) < 0 {
			return fmt.Errorf("crdt: position %q contains invalid digit %q", position, position[i])
		}
	}
	return nil
}

// midpoint assumes lower < upper (or upper unbounded) and valid inputs.
func midpoint(lower, upper string) string {
	if upper != "" {
		// Strip the common prefix, padding lower with zero digits.
		n := 0
		for n < len(upper) && digitAt(lower, n) == upper[n] {
			n++
		}
		if n > 0 {
			rest := ""
			if n < len(lower) {
				rest = lower[n:]
			}
			return upper[:n] + midpoint(rest, upper[n:])
		}
	}

	digitLower := 0
	if lower != "" {
		digitLower = strings.IndexByte(positionDigits, lower[0])
	}
	digitUpper := len(positionDigits)
	if upper != "" {
		digitUpper = strings.IndexByte(positionDigits, upper[0])
	}

	if digitUpper-digitLower > 1 {
		return string(positionDigits[(digitLower+digitUpper+1)/2])
	}
	// Consecutive leading digits.
	if len(upper) > 1 {
		return upper[:1]
	}
	rest := ""
	if len(lower) > 1 {
		rest = lower[1:]
	}
	return string(positionDigits[digitLower]) + midpoint(rest, "")
}

func digitAt(position string, index int) byte {
	if index < len(position) {
		return position[index]
	}
	return positionDigits[0]
}

// After returns the append position that follows lower, or the first
// one when lower is empty. Append positions are a length digit followed
// by that many base-62 digits and count upward, so they stay ordered as
// plain strings and the n-th append costs O(log n) characters. They are
// for lists that only grow at the tail and do not mix with [Between].
func After(lower string) (string, error) {
	if lower == "" {
		return "10", nil
	}
	if err := ValidateAppendPosition(lower); err != nil {
		return "", err
	}
	digits := []byte(lower[1:])
	for i := len(digits) - 1; i >= 0; i-- {
		index := strings.IndexByte(positionDigits, digits[i])
		if index < len(positionDigits)-1 {
			digits[i] = positionDigits[index+1]
			return lower[:1] + string(digits), nil
		}
		digits[i] = positionDigits[0]
	}
	width := len(digits) + 1
	if width >= len(positionDigits) {
		return "", fmt.Errorf("crdt: append position %q cannot grow further", lower)
	}
	return string(positionDigits[width]) + "1" + strings.Repeat(positionDigits[:1], width-1), nil
}

// ValidateAppendPosition reports whether position was produced by
// [After].
func ValidateAppendPosition(position string) error {
	if len(position) < 2 {
		return fmt.Errorf("crdt: append position %q is too short", position)
	}
	width := strings.IndexByte(positionDigits, position[0])
	if width < 1 || len(position) != width+1 {
		return fmt.Errorf("crdt: append position %q has a bad length digit", position)
	}
	for i := 1; i < len(position); i++ {
		if strings.IndexByte(positionDigits, position[i]) < 0 {
			return fmt.Errorf("crdt: append position %q contains invalid digit %q", position, position[i])
		}
	}
	return nil
}
