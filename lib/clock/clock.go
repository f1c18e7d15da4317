// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source for everything in commandroom that waits:
// the stall watchdog, tool-execution deadlines, subscribe heartbeats and
// snapshot flushes. Production code uses Real(); tests use Fake() and
// move time forward explicitly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. A
	// non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. C has capacity 1; a slow reader
// misses ticks rather than queueing them.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop halts the ticker. C is not closed.
func (t *Ticker) Stop() { t.stop() }
