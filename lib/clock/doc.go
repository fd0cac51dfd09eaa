// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock interface parameter instead of calling
// time.Now, time.After, or time.Sleep directly. In production, Real()
// provides the standard library behavior. In tests, Fake() provides a
// deterministic clock that advances only when Advance is called.
//
// The two time-sensitive paths in Conveyor both depend on this package:
// the runner's retry backoff (a failed step sleeps for its backoff
// interval before the next attempt) and the scheduler's next-fire wait
// (the daemon sleeps until a chain's cron schedule matches). With a
// FakeClock both become exact: advance past the backoff and observe
// exactly one retry; advance past a fire time and observe exactly one
// run start.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Runner struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	r := &Runner{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	r := &Runner{clock: c}
//	// ... start goroutines ...
//	c.WaitForTimers(1)         // wait for goroutine to register a timer
//	c.Advance(5 * time.Minute) // fire the timer deterministically
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep or After on a FakeClock, it registers a
// pending waiter. Use WaitForTimers to block until a specific number of
// waiters are registered before calling Advance. This eliminates the
// race between timer registration and time advancement that plagues
// tests using time.Sleep for synchronization.
package clock
