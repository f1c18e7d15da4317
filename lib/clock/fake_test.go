// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNowMovesOnlyOnAdvance(t *testing.T) {
	fake := Fake(epoch)
	if got := fake.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	fake.Advance(90 * time.Second)
	if got, want := fake.Now(), epoch.Add(90*time.Second); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfter(t *testing.T) {
	fake := Fake(epoch)
	channel := fake.After(3 * time.Second)

	fake.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after one-shot fired, want 0", fake.PendingCount())
	}
}

func TestFakeClockAfterNonPositive(t *testing.T) {
	fake := Fake(epoch)
	for _, d := range []time.Duration{0, -time.Second} {
		select {
		case <-fake.After(d):
		default:
			t.Fatalf("After(%v) should deliver immediately", d)
		}
	}
}

func TestFakeClockTicker(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Second)

	fake.Advance(time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	// Three intervals at once: the buffer holds one tick, the rest drop.
	fake.Advance(3 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after three intervals")
	}
	select {
	case <-ticker.C:
		t.Fatal("ticker buffered more than one tick")
	default:
	}

	ticker.Stop()
	fake.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeClockTickerPanicsOnNonPositive(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) did not panic")
		}
	}()
	Fake(epoch).NewTicker(0)
}

func TestFakeClockWaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	fired := make(chan struct{})
	go func() {
		<-fake.After(5 * time.Second)
		close(fired)
	}()

	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)

	select {
	case <-fired:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("goroutine never observed the timer")
	}
}

func TestClocksImplementClock(t *testing.T) {
	var _ Clock = Fake(epoch)
	var _ Clock = Real()
}
