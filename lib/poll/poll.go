// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package poll runs a readiness check on a fixed interval for a bounded
// number of attempts. The verification flow uses it to wait for the
// emoji set to appear and for the peer to finish the handshake.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/halyard-chat/halyard/lib/clock"
)

// Policy is a bounded wait: up to MaxAttempts checks, each preceded by
// a pause of Interval.
type Policy struct {
	Interval    time.Duration
	MaxAttempts int
}

// Validate rejects policies that would never run a check or would spin
// without pausing.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("poll: MaxAttempts must be positive, got %d", p.MaxAttempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("poll: Interval must not be negative, got %v", p.Interval)
	}
	return nil
}

// Budget is the longest Until can wait, ignoring time spent in check.
func (p Policy) Budget() time.Duration {
	return p.Interval * time.Duration(p.MaxAttempts)
}

// Check reports whether the awaited condition holds. A non-nil error
// stops polling immediately.
type Check func(ctx context.Context) (bool, error)

// Until pauses for the policy interval and then calls check, repeating
// until check reports true, check fails, ctx is done, or the attempts
// run out. It returns true only when check reported true. Running out
// of attempts is not an error.
func Until(ctx context.Context, clk clock.Clock, policy Policy, check Check) (bool, error) {
	if err := policy.Validate(); err != nil {
		return false, err
	}
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := clock.Sleep(ctx, clk, policy.Interval); err != nil {
			return false, err
		}
		done, err := check(ctx)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}
