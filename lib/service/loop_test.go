// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/halyard-chat/halyard/lib/clock"
	"github.com/halyard-chat/halyard/lib/testutil"
)

func TestRunLoopBacksOffAfterFailures(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := []error{errors.New("gateway timeout"), errors.New("gateway timeout"), nil}
	steps := make(chan int, len(results)+1)
	call := 0
	step := func(context.Context) error {
		call++
		steps <- call
		if call <= len(results) {
			return results[call-1]
		}
		return ErrIdle
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		RunLoop(ctx, LoopConfig{Name: "sync", Interval: 10 * time.Second}, step, fakeClock, testLogger())
	}()

	testutil.RequireReceive(t, steps, 5*time.Second, "first step")

	// First failure: one second.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(999 * time.Millisecond)
	select {
	case n := <-steps:
		t.Fatalf("step %d ran before the backoff elapsed", n)
	default:
	}
	fakeClock.Advance(time.Millisecond)
	if n := testutil.RequireReceive(t, steps, 5*time.Second, "second step"); n != 2 {
		t.Fatalf("got step %d, want 2", n)
	}

	// Second failure: doubled.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(2 * time.Second)
	if n := testutil.RequireReceive(t, steps, 5*time.Second, "third step"); n != 3 {
		t.Fatalf("got step %d, want 3", n)
	}

	// Success: back to the regular interval.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(9 * time.Second)
	select {
	case n := <-steps:
		t.Fatalf("step %d ran before the interval elapsed", n)
	default:
	}
	fakeClock.Advance(time.Second)
	testutil.RequireReceive(t, steps, 5*time.Second, "fourth step")

	cancel()
	testutil.RequireClosed(t, loopDone, 5*time.Second, "RunLoop did not return after cancellation")
}

func TestRunLoopCapsBackoff(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	steps := make(chan struct{}, 16)
	step := func(context.Context) error {
		steps <- struct{}{}
		return errors.New("unreachable homeserver")
	}
	go RunLoop(ctx, LoopConfig{MaxBackoff: 3 * time.Second}, step, fakeClock, testLogger())

	testutil.RequireReceive(t, steps, 5*time.Second, "first step")
	for _, wait := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second} {
		fakeClock.WaitForTimers(1)
		fakeClock.Advance(wait)
		testutil.RequireReceive(t, steps, 5*time.Second, "step after %v", wait)
	}
}
