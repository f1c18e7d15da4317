// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package crdt

import "fmt"

// Stamp is a Lamport timestamp: a logical counter with the writing
// actor's identity as tie-break. Stamps are totally ordered.
type Stamp struct {
	Counter uint64 `json:"c"`
	Actor   string `json:"a"`
}

// IsZero reports whether the stamp was never assigned.
func (s Stamp) IsZero() bool {
	return s.Counter == 0 && s.Actor == ""
}

// Compare returns -1, 0 or +1 ordering s against other by counter, then
// actor.
func (s Stamp) Compare(other Stamp) int {
	switch {
	case s.Counter < other.Counter:
		return -1
	case s.Counter > other.Counter:
		return 1
	case s.Actor < other.Actor:
		return -1
	case s.Actor > other.Actor:
		return 1
	}
	return 0
}

// After reports whether s wins against other under last-writer-wins.
func (s Stamp) After(other Stamp) bool {
	return s.Compare(other) > 0
}

func (s Stamp) String() string {
	return fmt.Sprintf("%d@%s", s.Counter, s.Actor)
}

// LamportClock issues stamps. Observing a remote stamp advances the
// clock past it so later local writes win over everything already seen.
type LamportClock struct {
	Counter uint64 `json:"counter"`
}

// Tick returns a fresh stamp for actor.
func (c *LamportClock) Tick(actor string) Stamp {
	c.Counter++
	return Stamp{Counter: c.Counter, Actor: actor}
}

// Observe advances the clock to at least the counter of stamp.
func (c *LamportClock) Observe(stamp Stamp) {
	if stamp.Counter > c.Counter {
		c.Counter = stamp.Counter
	}
}
