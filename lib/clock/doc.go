// Copyright 2026 The Commandroom Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Structs that wait on time hold a Clock field instead of calling the
// time package directly:
//
//	watchdog := &Watchdog{clock: clock.Real()}
//
// Tests substitute a FakeClock and step it:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go watchdog.Run(ctx)
//	fake.WaitForTimers(1)         // the goroutine has registered its ticker
//	fake.Advance(5 * time.Second) // fire it deterministically
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it, so no test needs time.Sleep.
package clock
