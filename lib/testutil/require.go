// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// fataler is the subset of testing.TB the helpers need.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive returns the next value from ch, failing the test if
// none arrives within timeout or ch is closed.
func RequireReceive[T any](t fataler, ch <-chan T, timeout time.Duration, msgAndArgs ...any) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed without a value: %s", formatMessage(msgAndArgs))
		}
		return v
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("timed out after %v: %s", timeout, formatMessage(msgAndArgs))
	}
	panic("unreachable")
}

// RequireClosed waits for ch to close (or deliver) within timeout.
func RequireClosed(t fataler, ch <-chan struct{}, timeout time.Duration, msgAndArgs ...any) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout): //nolint:realclock test hang prevention
		t.Fatalf("timed out after %v waiting for close: %s", timeout, formatMessage(msgAndArgs))
	}
}

func formatMessage(msgAndArgs []any) string {
	switch len(msgAndArgs) {
	case 0:
		return "(no message)"
	case 1:
		return fmt.Sprint(msgAndArgs[0])
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf(format, msgAndArgs[1:]...)
	}
	return fmt.Sprint(msgAndArgs...)
}
