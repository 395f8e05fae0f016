// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets the session layer wait without touching the time
// package directly, so the verification settling delay and completion
// polling can be driven deterministically in tests.
//
// Production wiring passes [Real]. Tests pass [Fake] and step time with
// [FakeClock.Advance], using [FakeClock.WaitForTimers] to make sure the
// code under test has started waiting before the clock moves:
//
//	fake := clock.Fake(time.Unix(1_700_000_000, 0))
//	go manager.ConfirmVerification(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(500 * time.Millisecond)
package clock
