// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/halyard-chat/halyard/lib/clock"
)

// ErrIdle is returned by a loop step that had nothing to do (no
// session is logged in). The loop waits one interval without backing
// off or logging.
var ErrIdle = errors.New("service: loop step idle")

// LoopConfig configures RunLoop.
type LoopConfig struct {
	// Name labels the loop in log output.
	Name string

	// Interval is the pause between successful or idle steps.
	// Default: 0 (a long-polling step paces itself).
	Interval time.Duration

	// MaxBackoff caps the exponential backoff after failed steps,
	// which starts at one second. Default: 30 seconds.
	MaxBackoff time.Duration
}

// RunLoop calls step until ctx is cancelled. After a failed step the
// loop waits with exponential backoff (1 second doubling up to
// MaxBackoff); a successful step resets the backoff.
func RunLoop(ctx context.Context, config LoopConfig, step func(context.Context) error, clk clock.Clock, logger *slog.Logger) {
	maxBackoff := config.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 30 * time.Second
	}
	backoff := time.Second

	for ctx.Err() == nil {
		err := step(ctx)
		wait := config.Interval
		switch {
		case err == nil, errors.Is(err, ErrIdle):
			backoff = time.Second
		case ctx.Err() != nil:
			return
		default:
			logger.Warn("loop step failed, retrying",
				"loop", config.Name,
				"error", err,
				"backoff", backoff,
			)
			wait = backoff
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
		if err := clock.Sleep(ctx, clk, wait); err != nil {
			return
		}
	}
}
