// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock reading initial. Time only moves when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{now: initial}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for tests. It is safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingTimer
	changed *sync.Cond
}

// pendingTimer is one registered After or ticker.
type pendingTimer struct {
	due      time.Time
	channel  chan time.Time
	interval time.Duration // zero for one-shot timers
	stopped  bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot timer. A non-positive d fires immediately
// without registering anything.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.pending = append(c.pending, &pendingTimer{due: c.now.Add(d), channel: channel})
	c.changed.Broadcast()
	return channel
}

// NewTicker registers a periodic timer.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &pendingTimer{
		due:      c.now.Add(d),
		channel:  make(chan time.Time, 1),
		interval: d,
	}
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()

	return &Ticker{
		C: timer.channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			timer.stopped = true
		},
	}
}

// Advance moves time forward by d and fires every timer that falls
// due, earliest first. A ticker spanning several intervals fires once
// per interval; ticks that do not fit in its buffer are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, timer := range due {
			select {
			case timer.channel <- target:
			default:
			}
		}
	}
}

// takeDue removes expired one-shot timers, reschedules expired tickers,
// and returns everything that must fire, ordered by due time.
func (c *FakeClock) takeDue(target time.Time) []*pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*pendingTimer
	for _, timer := range c.pending {
		switch {
		case timer.stopped:
		case timer.due.After(target):
			keep = append(keep, timer)
		default:
			due = append(due, timer)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].due.Before(due[j].due) })

	for _, timer := range due {
		if timer.interval > 0 {
			timer.due = timer.due.Add(timer.interval)
			keep = append(keep, timer)
		}
	}
	c.pending = keep
	return due
}

// WaitForTimers blocks until at least n timers are registered and not
// stopped.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.activeLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount reports the number of registered, unstopped timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *FakeClock) activeLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.stopped {
			count++
		}
	}
	return count
}
