// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/halyard-chat/halyard/desk"
	"github.com/halyard-chat/halyard/lib/service"
)

// syncStep is one pass of the background sync loop. It idles while
// logged out, including when a logout lands mid-sync.
func (d *Daemon) syncStep(ctx context.Context) error {
	if _, loggedIn := d.desk.Session(); !loggedIn {
		return service.ErrIdle
	}
	err := d.desk.Sync(ctx)
	if desk.IsKind(err, desk.NotLoggedIn) {
		return service.ErrIdle
	}
	if err != nil {
		return err
	}
	d.lastSync.Store(d.clock.Now().UnixMilli())
	return nil
}
